// Package comprehensive orchestrates the full natural-language query
// pipeline: parse, fan out to the gateway, aggregate, and derive insights.
package comprehensive

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/emailpilot/epctl/pkg/aggregate"
	"github.com/emailpilot/epctl/pkg/audit"
	"github.com/emailpilot/epctl/pkg/executor"
	"github.com/emailpilot/epctl/pkg/insights"
	"github.com/emailpilot/epctl/pkg/logging"
	"github.com/emailpilot/epctl/pkg/normalize"
	"github.com/emailpilot/epctl/pkg/observability"
	"github.com/emailpilot/epctl/pkg/query"
)

// Response is the contract returned to the CLI/HTTP adapter. Sub-request
// failures never fail the response as a whole; they surface only through
// SuccessfulRequests falling short of TotalRequests and absent sections.
type Response struct {
	Success            bool              `json:"success"`
	TotalRequests      int               `json:"total_requests"`
	SuccessfulRequests int               `json:"successful_requests"`
	AggregatedData     *aggregate.Result `json:"aggregated_data"`
	Analysis           *insights.Summary `json:"ai_ready_analysis"`
	Error              string            `json:"error,omitempty"`
}

// Config wires the pipeline stages. Parser, Aggregator, and Engine default
// to standard instances; Executor is required. Recorder, Metrics, and
// Tracer are optional.
type Config struct {
	Parser     *query.Parser
	Executor   *executor.Executor
	Aggregator *aggregate.Aggregator
	Engine     *insights.Engine
	Recorder   audit.Recorder
	Metrics    *observability.QueryMetrics
	Tracer     *observability.Tracer
	Logger     logging.Logger
}

// Handler processes comprehensive queries end to end.
type Handler struct {
	parser     *query.Parser
	executor   *executor.Executor
	aggregator *aggregate.Aggregator
	engine     *insights.Engine
	recorder   audit.Recorder
	metrics    *observability.QueryMetrics
	tracer     *observability.Tracer
	log        logging.Logger
}

// New creates a Handler from the config, filling in defaults.
func New(cfg Config) *Handler {
	h := &Handler{
		parser:     cfg.Parser,
		executor:   cfg.Executor,
		aggregator: cfg.Aggregator,
		engine:     cfg.Engine,
		recorder:   cfg.Recorder,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		log:        cfg.Logger,
	}
	if h.parser == nil {
		h.parser = query.NewParser()
	}
	if h.aggregator == nil {
		h.aggregator = aggregate.New(normalize.DefaultConvention, cfg.Logger)
	}
	if h.engine == nil {
		h.engine = insights.New()
	}
	if h.recorder == nil {
		h.recorder = audit.Nop{}
	}
	if h.log == nil {
		h.log = logging.Nop()
	}
	return h
}

// Process runs one natural-language query for a client. It never panics and
// never returns a Go error: every outcome, including total failure, is
// encoded in the Response so the adapter can always answer.
func (h *Handler) Process(ctx context.Context, queryText, clientID string, qctx query.Context) *Response {
	started := time.Now()
	batchID := uuid.NewString()

	ctx = context.WithValue(ctx, logging.BatchIDKey, batchID)
	log := h.log.WithContext(ctx).With(logging.F("client_id", clientID))

	var root trace.Span
	if h.tracer != nil {
		ctx, root = h.tracer.StartQuerySpan(ctx, clientID, batchID)
		defer root.End()
	}

	if clientID == "" {
		h.countQuery(clientID, "invalid")
		return &Response{
			Success:        false,
			AggregatedData: &aggregate.Result{},
			Analysis:       h.engine.Analyze(nil),
			Error:          "client_id is required",
		}
	}

	requests := h.parse(ctx, queryText, qctx)
	if h.metrics != nil {
		h.metrics.RequestsPerQuery.WithLabelValues(clientID).Observe(float64(len(requests)))
	}
	log.Info("parsed comprehensive query",
		logging.F("requests", len(requests)))

	results := h.execute(ctx, clientID, requests)
	successful := len(executor.Successes(results))

	agg, maps := h.aggregate(ctx, results)
	summary := h.analyze(ctx, agg)

	h.record(ctx, log, &auditInput{
		clientID:   clientID,
		queryText:  queryText,
		total:      len(requests),
		successful: successful,
		sections:   agg.Sections(),
		complete:   summary.DataQuality.Completeness,
		elapsed:    time.Since(started),
		maps:       maps,
	})

	h.countQuery(clientID, "ok")
	if h.metrics != nil {
		h.metrics.QuerySeconds.WithLabelValues(clientID).Observe(time.Since(started).Seconds())
	}
	if root != nil {
		observability.RecordOutcome(root, len(requests), successful)
	}
	log.Info("comprehensive query complete",
		logging.F("total_requests", len(requests)),
		logging.F("successful_requests", successful),
		logging.F("elapsed", time.Since(started).String()))

	return &Response{
		Success:            true,
		TotalRequests:      len(requests),
		SuccessfulRequests: successful,
		AggregatedData:     agg,
		Analysis:           summary,
	}
}

func (h *Handler) parse(ctx context.Context, queryText string, qctx query.Context) []query.Request {
	if h.tracer != nil {
		end := h.spanEnd(ctx, observability.SpanParse)
		defer end()
	}
	return h.parser.Parse(queryText, qctx)
}

func (h *Handler) execute(ctx context.Context, clientID string, requests []query.Request) []query.Result {
	if len(requests) == 0 {
		return nil
	}
	if h.tracer != nil {
		end := h.spanEnd(ctx, observability.SpanExecuteBatch)
		defer end()
	}
	return h.executor.Execute(ctx, clientID, requests)
}

func (h *Handler) aggregate(ctx context.Context, results []query.Result) (*aggregate.Result, []normalize.Map) {
	if h.tracer != nil {
		end := h.spanEnd(ctx, observability.SpanAggregate)
		defer end()
	}
	return h.aggregator.Aggregate(results)
}

func (h *Handler) analyze(ctx context.Context, agg *aggregate.Result) *insights.Summary {
	if h.tracer != nil {
		end := h.spanEnd(ctx, observability.SpanInsights)
		defer end()
	}
	return h.engine.Analyze(agg)
}

type auditInput struct {
	clientID   string
	queryText  string
	total      int
	successful int
	sections   []string
	complete   int
	elapsed    time.Duration
	maps       []normalize.Map
}

// record writes the audit trail best-effort. A failed write is logged and
// the query still succeeds.
func (h *Handler) record(ctx context.Context, log logging.Logger, in *auditInput) {
	run := audit.NewRun(in.clientID, in.queryText)
	run.TotalRequests = in.total
	run.SuccessfulRequests = in.successful
	run.Sections = in.sections
	run.Completeness = in.complete
	run.Elapsed = in.elapsed
	for _, m := range in.maps {
		run.Maps = append(run.Maps, audit.MapRecord{
			Connector: normalize.DefaultConvention.Connector,
			Fields:    m,
		})
	}
	if err := h.recorder.RecordRun(ctx, run); err != nil {
		log.Warn("audit write failed", logging.Err(err))
	}
}

func (h *Handler) countQuery(clientID, status string) {
	if h.metrics != nil {
		h.metrics.QueriesTotal.WithLabelValues(clientID, status).Inc()
	}
}

func (h *Handler) spanEnd(ctx context.Context, name string) func() {
	_, span := h.tracer.StartStageSpan(ctx, name)
	return func() { span.End() }
}
