// Package extract turns a free-text shipping request into a structured route
// guess using the Anthropic messages API.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
	"github.com/sells-group/carbon-cli/internal/resilience"
	"github.com/sells-group/carbon-cli/pkg/anthropic"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 500
	DefaultTimeout   = 30 * time.Second
)

// ErrRateLimited is returned when the client-side rate limiter cannot admit
// a call before ctx ends.
var ErrRateLimited = eris.New("extract: rate limited")

// UpstreamError means the extraction service failed or was unavailable. An
// open circuit is reported as an UpstreamError wrapping
// resilience.ErrCircuitOpen.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return "extract: upstream: " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Extractor calls the model with retry, an optional circuit breaker and an
// optional client-side rate limit.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	limiter   *rate.Limiter
	metrics   *monitoring.Metrics
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithModel overrides DefaultModel.
func WithModel(m string) Option {
	return func(e *Extractor) {
		if m != "" {
			e.model = m
		}
	}
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTimeout bounds each individual model call.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetry replaces the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Extractor) { e.retry = cfg }
}

// WithBreaker guards model calls with cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(e *Extractor) { e.breaker = cb }
}

// WithRateLimit caps model calls at perSec with the given burst. A
// non-positive rate disables limiting.
func WithRateLimit(perSec float64, burst int) Option {
	return func(e *Extractor) {
		if perSec <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithMetrics records extraction outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// New creates an Extractor over client.
func New(client anthropic.Client, opts ...Option) *Extractor {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")

	e := &Extractor{
		client:    client,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
		timeout:   DefaultTimeout,
		retry:     retry,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the model's reading of query. An unusable reply is not an
// error: it yields Failed(). Errors are returned only when the model could
// not be called, as *UpstreamError, or when ctx ends while waiting for the
// rate limiter.
func (e *Extractor) Extract(ctx context.Context, query string) (*model.Extraction, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.metrics.ObserveExtraction(monitoring.OutcomeRejected)
			return nil, eris.Wrapf(ErrRateLimited, "extract: rate limit wait: %v", err)
		}
	}

	req := anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: BuildPrompt(query)}},
	}

	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.call(ctx, req)
	})
	if err != nil {
		e.metrics.ObserveExtraction(monitoring.OutcomeError)
		zap.L().Warn("extract: model call failed",
			zap.String("model", e.model),
			zap.Error(err),
		)
		return nil, &UpstreamError{Err: err}
	}

	resp.Usage.LogCost(e.model, "extract")

	out := Parse(resp.Text())
	if out.Reasoning == FailedParseReasoning && !out.Complete() {
		e.metrics.ObserveExtraction(monitoring.OutcomeUnparsed)
		zap.L().Warn("extract: unparseable model reply", zap.String("response_id", resp.ID))
	} else {
		e.metrics.ObserveExtraction(monitoring.OutcomeSuccess)
	}
	return &out, nil
}

func (e *Extractor) call(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	do := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.client.CreateMessage(callCtx, req)
	}
	if e.breaker == nil {
		return do(ctx)
	}
	return resilience.ExecuteVal(ctx, e.breaker, do)
}

// Ping reports whether the extractor's circuit is currently letting calls
// through. It does not call the model.
func (e *Extractor) Ping(_ context.Context) error {
	if e.breaker == nil || e.breaker.State() != resilience.CircuitOpen {
		return nil
	}
	failures, _ := e.breaker.Counters()
	return eris.Wrapf(resilience.ErrCircuitOpen, "extract: %d consecutive failures", failures)
}
