// Package api serves the calculation engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

// DefaultRequestTimeout bounds a request when no timeout is configured.
const DefaultRequestTimeout = 60 * time.Second

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Calculator is the calculation engine.
type Calculator interface {
	Calculate(ctx context.Context, req model.CalculationRequest) (*model.CalculationResult, error)
	SmartCalculate(ctx context.Context, req model.SmartRequest) (*model.CalculationResult, error)
	Parse(ctx context.Context, req model.ParseRequest) (*model.ParseResult, error)
}

// FactorLister lists the durable emission factor table.
type FactorLister interface {
	List(ctx context.Context) ([]model.EmissionFactor, error)
}

// Flusher empties the fast cache.
type Flusher interface {
	Flush(ctx context.Context) error
}

// HealthProber reports dependency health.
type HealthProber interface {
	Check(ctx context.Context) monitoring.HealthReport
}

// Server holds the handler dependencies.
type Server struct {
	calc    Calculator
	cities  *geo.Index
	factors FactorLister
	cache   Flusher

	health      HealthProber
	metrics     *monitoring.Metrics
	gatherer    prometheus.Gatherer
	corsOrigins []string
	timeout     time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithHealth mounts GET /health.
func WithHealth(h HealthProber) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records per-route request metrics and mounts GET /metrics for
// g. Either may be nil.
func WithMetrics(m *monitoring.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithCORSOrigins sets the allowed CORS origins. The default allows all.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Server. cities defaults to geo.Default().
func New(calc Calculator, cities *geo.Index, factors FactorLister, cache Flusher, opts ...Option) *Server {
	if cities == nil {
		cities = geo.Default()
	}
	s := &Server{
		calc:        calc,
		cities:      cities,
		factors:     factors,
		cache:       cache,
		corsOrigins: []string{"*"},
		timeout:     DefaultRequestTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed handler with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	if s.health != nil {
		r.Get("/health", s.handleHealth)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Post("/calculate-carbon", s.handleCalculate)
		r.Post("/smart-calculate", s.handleSmartCalculate)
		r.Post("/parse-route", s.handleParseRoute)
		r.Get("/cities", s.handleCities)
		r.Get("/emission-factors", s.handleEmissionFactors)
		r.Post("/clear-cache", s.handleClearCache)
	})

	return r
}
