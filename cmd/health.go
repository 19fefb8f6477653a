package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/emailpilot/epctl/config"
	"github.com/emailpilot/epctl/credentials"
	"github.com/emailpilot/epctl/gateway"
	"github.com/emailpilot/epctl/pkg/db"
)

// ComponentHealth is the health result for one dependency.
type ComponentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// HealthReport aggregates component checks.
type HealthReport struct {
	Healthy    bool              `json:"healthy"`
	Components []ComponentHealth `json:"components"`
}

var healthTimeout time.Duration

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check connectivity to the gateway and optional backends",
		Long: `Check connectivity to the metrics gateway, the Redis result cache, and
the audit database.

Redis and the audit database are only checked when configured; unconfigured
components are reported as skipped, not failed.

Examples:
  epctl health
  epctl health --output json`,
		RunE: runHealth,
	}

	cmd.Flags().DurationVar(&healthTimeout, "check-timeout", 10*time.Second, "timeout per component check")

	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()

	report := &HealthReport{Healthy: true}
	report.add(checkGateway(ctx))
	report.add(checkRedis(ctx))
	report.add(checkAuditDB(ctx))

	if currentFormat() != config.OutputFormatText {
		if err := writeStructured(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Components {
			fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", c.Name, formatComponent(c))
		}
	}

	if !report.Healthy {
		return fmt.Errorf("one or more components unhealthy")
	}
	return nil
}

// formatComponent renders one component line for text output.
func formatComponent(c ComponentHealth) string {
	switch {
	case c.Skipped:
		return "skipped (not configured)"
	case !c.Healthy:
		return "FAIL: " + c.Error
	}
	status := "ok"
	if c.Latency != "" {
		status += " (" + c.Latency + ")"
	}
	if c.Detail != "" {
		status += ", " + c.Detail
	}
	return status
}

func (r *HealthReport) add(c ComponentHealth) {
	r.Components = append(r.Components, c)
	if !c.Healthy && !c.Skipped {
		r.Healthy = false
	}
}

func checkGateway(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "gateway"}

	store, err := credentials.NewStore()
	if err != nil {
		c.Error = err.Error()
		return c
	}
	gw := gateway.NewClient(gateway.DefaultOptions(cfg.GatewayURL), store, log)

	started := time.Now()
	if err := gw.Ping(ctx); err != nil {
		c.Error = err.Error()
		return c
	}
	c.Healthy = true
	c.Latency = time.Since(started).Round(time.Millisecond).String()
	return c
}

func checkRedis(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "redis"}
	if !cfg.Redis.IsConfigured() {
		c.Skipped = true
		c.Healthy = true
		return c
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	started := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		c.Error = err.Error()
		return c
	}
	c.Healthy = true
	c.Latency = time.Since(started).Round(time.Millisecond).String()
	return c
}

func checkAuditDB(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "audit-db"}
	if !cfg.Audit.IsConfigured() {
		c.Skipped = true
		c.Healthy = true
		return c
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
		c.Error = err.Error()
		return c
	}
	defer pool.Close()

	status := db.Check(ctx, pool)
	if status.Err != nil {
		c.Error = status.Err.Error()
		return c
	}
	c.Healthy = true
	c.Latency = status.Latency.Round(time.Millisecond).String()
	c.Detail = status.Summary()
	return c
}
