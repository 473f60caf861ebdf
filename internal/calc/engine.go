// Package calc computes shipment emissions: it resolves the emission factor,
// measures the great-circle route, and caches the result, for both explicit
// requests and ones extracted from free text.
package calc

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sells-group/carbon-cli/internal/audit"
	"github.com/sells-group/carbon-cli/internal/cache"
	"github.com/sells-group/carbon-cli/internal/factor"
	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

// Distancer measures the route between two city identifiers.
type Distancer interface {
	Distance(origin, destination string) (*geo.DistanceResult, error)
}

// FactorResolver returns the emission factor for a mode.
type FactorResolver interface {
	Factor(ctx context.Context, mode model.TransportMode) (float64, error)
}

// ResultCache stores computed results. It never fails a request.
type ResultCache interface {
	Get(ctx context.Context, key string) (*model.CalculationResult, bool)
	Set(ctx context.Context, key string, res *model.CalculationResult)
}

// Extractor reads a route out of free text.
type Extractor interface {
	Extract(ctx context.Context, query string) (*model.Extraction, error)
}

// Engine runs calculations. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	distances Distancer
	factors   FactorResolver
	results   ResultCache
	extractor Extractor
	audit     audit.Logger
	clock     clockwork.Clock
	metrics   *monitoring.Metrics
	newID     func() string
	validator *validator.Validate
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtractor enables SmartCalculate and Parse.
func WithExtractor(x Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithAudit sets the audit logger. The default discards records.
func WithAudit(l audit.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.audit = l
		}
	}
}

// WithClock sets the clock used for latency and audit timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithMetrics records per-variant outcomes and durations.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator overrides the calculation ID source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine over its three core collaborators.
func NewEngine(d Distancer, f FactorResolver, r ResultCache, opts ...Option) *Engine {
	e := &Engine{
		distances: d,
		factors:   f,
		results:   r,
		audit:     audit.Nop{},
		clock:     clockwork.NewRealClock(),
		newID:     uuid.NewString,
		validator: newValidator(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// route is a fully resolved calculation input.
type route struct {
	origin      string
	destination string
	weightKg    float64
	mode        model.TransportMode
}

// Calculate runs an explicit request.
func (e *Engine) Calculate(ctx context.Context, req model.CalculationRequest) (*model.CalculationResult, error) {
	start := e.clock.Now()
	res, err := e.calculate(ctx, req, start)
	e.observe(model.VariantDirect, err, start)
	return res, err
}

func (e *Engine) calculate(ctx context.Context, req model.CalculationRequest, start time.Time) (*model.CalculationResult, error) {
	if err := e.validate(&req); err != nil {
		return nil, err
	}

	r := route{
		origin:      req.Origin,
		destination: req.Destination,
		weightKg:    req.WeightKg,
		mode:        req.TransportMode,
	}
	if r.mode == "" {
		r.mode = model.DefaultTransportMode
	}

	key := cache.DirectKey(r.origin, r.destination, r.weightKg, r.mode)
	if hit, ok := e.results.Get(ctx, key); ok {
		hit.CacheHit = true
		hit.LatencyMs = e.latency(start)
		return hit, nil
	}

	res, err := e.compute(ctx, r)
	if err != nil {
		return nil, err
	}
	res.Confidence = 1.0
	res.Request = &model.RequestEcho{
		Origin:        r.origin,
		Destination:   r.destination,
		WeightKg:      r.weightKg,
		TransportMode: r.mode,
	}

	e.record(ctx, model.VariantDirect, r, res, start)
	e.results.Set(ctx, key, res)

	res.LatencyMs = e.latency(start)
	return res, nil
}

// SmartCalculate extracts the route from req.Query, then runs it. Explicit
// weight and mode in req win over extracted ones; the fallbacks are 1 kg and
// ground.
func (e *Engine) SmartCalculate(ctx context.Context, req model.SmartRequest) (*model.CalculationResult, error) {
	start := e.clock.Now()
	res, err := e.smartCalculate(ctx, req, start)
	e.observe(model.VariantSmart, err, start)
	return res, err
}

func (e *Engine) smartCalculate(ctx context.Context, req model.SmartRequest, start time.Time) (*model.CalculationResult, error) {
	if err := e.validate(&req); err != nil {
		return nil, err
	}

	ext, err := e.extract(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	if !ext.Complete() {
		return nil, &ExtractionIncompleteError{Parsed: *ext}
	}

	r := route{
		origin:      ext.Origin,
		destination: ext.Destination,
		weightKg:    1,
		mode:        model.DefaultTransportMode,
	}
	switch {
	case req.WeightKg != nil:
		r.weightKg = *req.WeightKg
	case ext.WeightKg != nil:
		r.weightKg = *ext.WeightKg
	}
	switch {
	case req.TransportMode != nil:
		r.mode = *req.TransportMode
	case ext.TransportMode != nil:
		r.mode = *ext.TransportMode
	}

	key := cache.SmartKey(r.origin, r.destination, r.weightKg, r.mode)
	if hit, ok := e.results.Get(ctx, key); ok {
		hit.CacheHit = true
		hit.ClaudeReasoning = ext.Reasoning
		hit.LatencyMs = e.latency(start)
		return hit, nil
	}

	res, err := e.compute(ctx, r)
	if err != nil {
		var cerr *UnknownCityError
		if errors.As(err, &cerr) {
			cerr.Parsed = ext
		}
		return nil, err
	}
	res.Confidence = ext.Confidence
	res.ParsedOrigin = r.origin
	res.ParsedDestination = r.destination
	res.WeightKg = r.weightKg

	e.record(ctx, model.VariantSmart, r, res, start)
	e.results.Set(ctx, key, res)

	res.ClaudeReasoning = ext.Reasoning
	res.LatencyMs = e.latency(start)
	return res, nil
}

// Parse runs extraction only.
func (e *Engine) Parse(ctx context.Context, req model.ParseRequest) (*model.ParseResult, error) {
	start := e.clock.Now()
	if err := e.validate(&req); err != nil {
		return nil, err
	}

	ext, err := e.extract(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return &model.ParseResult{Extraction: *ext, LatencyMs: e.latency(start)}, nil
}

func (e *Engine) extract(ctx context.Context, query string) (*model.Extraction, error) {
	if e.extractor == nil {
		return nil, ErrExtractionUnavailable
	}
	return e.extractor.Extract(ctx, query)
}

// compute resolves the factor, then the distance, and builds a fresh result.
func (e *Engine) compute(ctx context.Context, r route) (*model.CalculationResult, error) {
	f, err := e.factors.Factor(ctx, r.mode)
	if err != nil {
		var nf *factor.NotFoundError
		if errors.As(err, &nf) {
			return nil, &UnknownTransportModeError{Mode: r.mode}
		}
		return nil, &StoreError{Err: err}
	}

	d, err := e.distances.Distance(r.origin, r.destination)
	if err != nil {
		var gerr *geo.UnknownCityError
		if errors.As(err, &gerr) {
			return nil, &UnknownCityError{Side: gerr.Side, City: gerr.City}
		}
		return nil, err
	}

	emissions := Emissions(d.DistanceKm, r.weightKg, f)
	if math.IsInf(emissions, 0) || math.IsNaN(emissions) {
		return nil, &ValidationError{Fields: map[string][]string{"weight_kg": {"Too large"}}}
	}

	return &model.CalculationResult{
		EmissionsKg:   emissions,
		DistanceKm:    d.DistanceKm,
		TransportMode: r.mode,
		CalculationID: e.newID(),
	}, nil
}

func (e *Engine) record(ctx context.Context, v model.Variant, r route, res *model.CalculationResult, start time.Time) {
	e.audit.Log(ctx, model.AuditRecord{
		ID:            res.CalculationID,
		Variant:       v,
		Origin:        r.origin,
		Destination:   r.destination,
		WeightKg:      r.weightKg,
		TransportMode: r.mode,
		DistanceKm:    res.DistanceKm,
		EmissionsKg:   res.EmissionsKg,
		LatencyMs:     e.latency(start),
		CreatedAt:     e.clock.Now().UTC(),
	})
}

func (e *Engine) latency(start time.Time) int64 {
	return int64(math.Round(float64(e.clock.Since(start)) / float64(time.Millisecond)))
}

func (e *Engine) observe(v model.Variant, err error, start time.Time) {
	outcome := monitoring.OutcomeSuccess
	switch {
	case err == nil:
	case IsCallerError(err):
		outcome = monitoring.OutcomeRejected
	default:
		outcome = monitoring.OutcomeError
	}
	e.metrics.ObserveCalculation(string(v), outcome, e.clock.Since(start))
}

// Emissions returns distance × weight × factor rounded half-up to two
// decimal places.
func Emissions(distanceKm int, weightKg, factorPerKmKg float64) float64 {
	return Round2(float64(distanceKm) * weightKg * factorPerKmKg)
}

// Round2 rounds a non-negative value half-up to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
