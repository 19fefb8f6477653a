package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/emailpilot/epctl/config"
	"github.com/emailpilot/epctl/credentials"
	"github.com/emailpilot/epctl/gateway"
	"github.com/emailpilot/epctl/pkg/audit"
	"github.com/emailpilot/epctl/pkg/comprehensive"
	"github.com/emailpilot/epctl/pkg/db"
	"github.com/emailpilot/epctl/pkg/executor"
	"github.com/emailpilot/epctl/pkg/logging"
	"github.com/emailpilot/epctl/pkg/observability"
	"github.com/emailpilot/epctl/pkg/query"
	"github.com/emailpilot/epctl/pkg/resultcache"
)

// Query command flags.
var (
	queryMetricID string
	queryNoCache  bool
)

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Run a natural-language comprehensive query",
		Long: `Run a natural-language question about an email account.

The question is split into clauses and each recognized clause becomes one or
more gateway requests, executed concurrently. Failures are isolated per
request: a query succeeds with whatever sections could be answered.

Recognized topics: campaign performance, segments, revenue, optimal send
times, and subject-line/content performance. Separate topics with periods.

Revenue clauses need a conversion metric ID, taken from --metric-id or the
client_metrics map in the config file.

Examples:
  epctl query "campaign performance last 30 days" --client acme
  epctl query "show campaign stats for October 2023. active segments. best time to send" --client acme
  epctl query "revenue last 14 days" --client acme --metric-id MET-abc123
  epctl query "how are my campaigns doing" --client acme --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}

	cmd.Flags().StringVar(&queryMetricID, "metric-id", "", "conversion metric ID for revenue queries")
	cmd.Flags().BoolVar(&queryNoCache, "no-cache", false, "bypass the result cache")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	client, err := resolveClientID()
	if err != nil {
		return err
	}
	queryText := strings.Join(args, " ")

	handler, cleanup, err := buildHandler(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	metricID := queryMetricID
	if metricID == "" {
		metricID = cfg.ConversionMetricID(client)
	}

	resp := handler.Process(cmd.Context(), queryText, client, query.Context{
		ConversionMetricID: metricID,
	})

	if currentFormat() == config.OutputFormatText {
		renderQueryText(cmd.OutOrStdout(), resp)
		if !resp.Success {
			return fmt.Errorf("query failed: %s", resp.Error)
		}
		return nil
	}

	if err := writeStructured(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("query failed: %s", resp.Error)
	}
	return nil
}

// buildHandler wires the comprehensive-query pipeline from the loaded
// configuration: credential store, gateway client, optional Redis result
// cache, executor, and optional Postgres audit store. The returned cleanup
// closes whatever was opened.
func buildHandler(ctx context.Context) (*comprehensive.Handler, func(), error) {
	store, err := credentials.NewStore()
	if err != nil {
		return nil, nil, fmt.Errorf("initializing credential store: %w", err)
	}

	gwOpts := gateway.DefaultOptions(cfg.GatewayURL)
	gwOpts.RequestTimeout = cfg.RequestTimeout
	gw := gateway.NewClient(gwOpts, store, log)

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var cache *resultcache.Cache
	if !queryNoCache && cfg.Redis.IsConfigured() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanups = append(cleanups, func() { rdb.Close() })
		cache = resultcache.New(rdb, cfg.Redis.TTL, log)
	}

	metrics := observability.DefaultQueryMetrics()
	tracer := observability.NewTracer()

	exec := executor.New(executor.Config{
		Gateway: gw,
		Cache:   cache,
		Metrics: metrics,
		Tracer:  tracer,
		Logger:  log,
		Options: executor.Options{
			RequestTimeout: cfg.RequestTimeout,
			BatchDeadline:  cfg.BatchDeadline,
			Retry:          executor.DefaultRetryPolicy(),
		},
	})

	recorder, auditCleanup, err := openRecorder(ctx)
	if err != nil {
		// Audit is best-effort: a bad audit config should not block queries.
		log.Warn("audit store unavailable, continuing without history", logging.Err(err))
		recorder = audit.Nop{}
	} else if auditCleanup != nil {
		cleanups = append(cleanups, auditCleanup)
	}

	handler := comprehensive.New(comprehensive.Config{
		Executor: exec,
		Recorder: recorder,
		Metrics:  metrics,
		Tracer:   tracer,
		Logger:   log,
	})
	return handler, cleanup, nil
}

// openRecorder connects to the audit database when one is configured,
// falling back to the no-op recorder otherwise.
func openRecorder(ctx context.Context) (audit.Recorder, func(), error) {
	if !cfg.Audit.IsConfigured() {
		return audit.Nop{}, nil, nil
	}

	dbCfg := db.DefaultConfig()
	dbCfg.Host = cfg.Audit.Host
	if cfg.Audit.Port != 0 {
		dbCfg.Port = cfg.Audit.Port
	}
	dbCfg.Database = cfg.Audit.Database
	dbCfg.User = cfg.Audit.User
	dbCfg.Password = cfg.Audit.Password
	if cfg.Audit.SSLMode != "" {
		dbCfg.SSLMode = cfg.Audit.SSLMode
	}

	pool, err := db.Connect(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to audit database: %w", err)
	}
	if err := db.EnsureAuditSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("preparing audit schema: %w", err)
	}
	if _, err := db.RegisterPoolStatsCollector(pool, "audit", prometheus.DefaultRegisterer); err != nil {
		log.Warn("registering pool stats collector", logging.Err(err))
	}
	return audit.NewPostgresStore(pool), pool.Close, nil
}

// renderQueryText prints a human-readable summary of a query response.
func renderQueryText(w io.Writer, resp *comprehensive.Response) {
	if !resp.Success {
		fmt.Fprintf(w, "Query failed: %s\n", resp.Error)
		return
	}

	fmt.Fprintf(w, "Requests: %d/%d succeeded\n", resp.SuccessfulRequests, resp.TotalRequests)

	agg := resp.AggregatedData
	if agg != nil {
		if agg.Campaigns != nil {
			fmt.Fprintf(w, "\nCampaigns (%d total, showing %d):\n", agg.Campaigns.Total, len(agg.Campaigns.Items))
			for _, c := range agg.Campaigns.Items {
				fmt.Fprintf(w, "  %-40s %s\n", c.Name, c.Status)
			}
		}
		if agg.Segments != nil {
			fmt.Fprintf(w, "\nSegments: %d total, %d active\n", agg.Segments.Total, agg.Segments.Active)
		}
		if agg.Revenue != nil {
			fmt.Fprintf(w, "\nRevenue: %.2f across %d transactions\n", agg.Revenue.TotalRevenue, agg.Revenue.Transactions)
		}
		if agg.SendTimes != nil && len(agg.SendTimes.OptimalTimes) > 0 {
			fmt.Fprintf(w, "\nOptimal send times:\n")
			for _, b := range agg.SendTimes.OptimalTimes {
				fmt.Fprintf(w, "  %-16s %d sends\n", b.Slot, b.Count)
			}
		}
		if agg.Content != nil {
			fmt.Fprintf(w, "\nContent: %d items analyzed\n", agg.Content.Total)
		}
	}

	if a := resp.Analysis; a != nil {
		fmt.Fprintf(w, "\nData completeness: %d%%\n", a.DataQuality.Completeness)
		if a.HighPerformers > 0 {
			fmt.Fprintf(w, "High performers: %d\n", a.HighPerformers)
		}
		for _, r := range a.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}
