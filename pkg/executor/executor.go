// Package executor runs decomposed query requests against the metrics gateway
// concurrently. Each request settles independently: failures are logged,
// counted, and excluded from aggregation without aborting sibling requests,
// and zero successes is a legitimate batch outcome.
package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/emailpilot/epctl/gateway"
	eperrors "github.com/emailpilot/epctl/pkg/errors"
	"github.com/emailpilot/epctl/pkg/logging"
	"github.com/emailpilot/epctl/pkg/observability"
	"github.com/emailpilot/epctl/pkg/query"
	"github.com/emailpilot/epctl/pkg/resultcache"
)

// Default execution settings.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultBatchDeadline  = 2 * time.Minute
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultBackoffFactor  = 2.0
)

// RetryPolicy defines request-local retry behavior for transient gateway
// failures. The policy never spans sibling requests.
type RetryPolicy struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		BackoffFactor:  DefaultBackoffFactor,
	}
}

// Backoff calculates the backoff duration before the given retry attempt.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// Options configures batch execution.
type Options struct {
	// RequestTimeout bounds each individual gateway call attempt.
	RequestTimeout time.Duration

	// BatchDeadline bounds the whole fan-out, retries included. Zero
	// disables the batch-level deadline.
	BatchDeadline time.Duration

	// Retry is the request-local retry policy.
	Retry RetryPolicy
}

// DefaultOptions returns Options with default values.
func DefaultOptions() Options {
	return Options{
		RequestTimeout: DefaultRequestTimeout,
		BatchDeadline:  DefaultBatchDeadline,
		Retry:          DefaultRetryPolicy(),
	}
}

// Config wires the executor's collaborators. Gateway is required; everything
// else is optional.
type Config struct {
	Gateway gateway.Invoker
	Cache   *resultcache.Cache
	Metrics *observability.QueryMetrics
	Tracer  *observability.Tracer
	Logger  logging.Logger
	Options Options
}

// Executor fans query requests out to the gateway.
type Executor struct {
	gw      gateway.Invoker
	cache   *resultcache.Cache
	metrics *observability.QueryMetrics
	tracer  *observability.Tracer
	log     logging.Logger
	opts    Options
}

// New creates an Executor from the config.
func New(cfg Config) *Executor {
	opts := cfg.Options
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Retry.BackoffFactor == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{
		gw:      cfg.Gateway,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		tracer:  cfg.Tracer,
		log:     log,
		opts:    opts,
	}
}

// Execute runs every request concurrently and waits for all of them to
// settle. There is no first-success short-circuiting and no ordering
// guarantee between siblings; each goroutine writes only its own result slot.
// The returned slice has one entry per input request, settled order matching
// input order for attribution, with Err set on failures.
func (e *Executor) Execute(ctx context.Context, clientID string, requests []query.Request) []query.Result {
	if len(requests) == 0 {
		return nil
	}

	if e.opts.BatchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.BatchDeadline)
		defer cancel()
	}

	results := make([]query.Result, len(requests))
	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(slot int, req query.Request) {
			defer wg.Done()
			results[slot] = e.executeOne(ctx, clientID, req)
		}(i, requests[i])
	}
	wg.Wait()

	return results
}

// Successes filters the settled results down to the (request, payload) pairs
// that aggregation consumes.
func Successes(results []query.Result) []query.Result {
	var ok []query.Result
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		}
	}
	return ok
}

// executeOne settles a single request: precondition check, cache lookup,
// then the gateway call under the request-local retry policy.
func (e *Executor) executeOne(ctx context.Context, clientID string, req query.Request) query.Result {
	log := e.log.With(
		logging.F("query_type", string(req.Type)),
		logging.F("tool", req.Tool),
		logging.F("description", req.Description),
	)

	if req.Precondition != nil {
		log.Warn("request failed closed", logging.Err(req.Precondition))
		e.countSubRequest(req, "precondition")
		return query.Result{Request: req, Err: req.Precondition}
	}

	cacheKey := resultcache.Key(req.Tool, clientID, req.Key())
	if data, hit := e.cache.Get(ctx, cacheKey); hit {
		log.Debug("result cache hit")
		if e.metrics != nil {
			e.metrics.CacheHitsTotal.WithLabelValues(req.Tool).Inc()
		}
		e.countSubRequest(req, "cached")
		return query.Result{Request: req, Data: data, Cached: true}
	}
	if e.metrics != nil {
		e.metrics.CacheMissesTotal.WithLabelValues(req.Tool).Inc()
	}

	started := time.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := e.invokeOnce(ctx, clientID, req)
		if err == nil {
			elapsed := time.Since(started)
			log.Debug("sub-request succeeded",
				logging.F("attempts", attempt+1),
				logging.F("elapsed", elapsed))
			e.observeSubRequest(req, elapsed, "success")
			e.cache.Put(ctx, cacheKey, data)
			return query.Result{
				Request:  req,
				Data:     data,
				Elapsed:  elapsed,
				Attempts: attempt + 1,
			}
		}

		lastErr = err
		if attempt >= e.opts.Retry.MaxRetries || !eperrors.Retryable(err) {
			break
		}

		if e.metrics != nil {
			e.metrics.SubRequestRetries.WithLabelValues(string(req.Type), errorCode(err)).Inc()
		}
		backoff := e.opts.Retry.Backoff(attempt)
		log.Debug("retrying sub-request",
			logging.F("attempt", attempt+1),
			logging.F("backoff", backoff),
			logging.Err(err))

		select {
		case <-ctx.Done():
			lastErr = eperrors.NewTransientError(eperrors.CodeGatewayTimeout,
				"batch deadline exceeded during backoff", ctx.Err())
		case <-time.After(backoff):
			continue
		}
		break
	}

	elapsed := time.Since(started)
	log.Error("sub-request failed", logging.F("elapsed", elapsed), logging.Err(lastErr))
	e.observeSubRequest(req, elapsed, "failure")
	return query.Result{Request: req, Err: lastErr, Elapsed: elapsed}
}

// invokeOnce issues one gateway call attempt under the per-request timeout.
func (e *Executor) invokeOnce(ctx context.Context, clientID string, req query.Request) (data []byte, err error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	if e.tracer == nil {
		return e.gw.Invoke(callCtx, req.Tool, clientID, req.Params)
	}

	callCtx, span := e.tracer.StartSubRequestSpan(callCtx, string(req.Type), req.Tool)
	defer span.End()
	data, err = e.gw.Invoke(callCtx, req.Tool, clientID, req.Params)
	observability.RecordError(span, err)
	return data, err
}

func (e *Executor) countSubRequest(req query.Request, status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SubRequestsTotal.WithLabelValues(string(req.Type), req.Tool, status).Inc()
}

func (e *Executor) observeSubRequest(req query.Request, elapsed time.Duration, status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SubRequestsTotal.WithLabelValues(string(req.Type), req.Tool, status).Inc()
	e.metrics.SubRequestSeconds.WithLabelValues(string(req.Type), req.Tool).Observe(elapsed.Seconds())
}

func errorCode(err error) string {
	var ge *eperrors.GatewayError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return "UNKNOWN"
}
