// Package factor resolves emission factors through a fast cache in front of
// the durable factor table.
package factor

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/carbon-cli/internal/cache"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

// DefaultTTL is how long a factor stays in the fast cache.
const DefaultTTL = time.Hour

const keyPrefix = "emission_factor:"

// Key returns the fast-cache key for mode.
func Key(mode model.TransportMode) string {
	return keyPrefix + string(mode)
}

// NotFoundError means the durable table has no row for the mode. It is a
// caller error and never retried.
type NotFoundError struct {
	Mode model.TransportMode
}

func (e *NotFoundError) Error() string {
	return "Unknown transport mode: " + string(e.Mode)
}

// Source is the durable factor table.
type Source interface {
	GetEmissionFactor(ctx context.Context, mode model.TransportMode) (*model.EmissionFactor, error)
	ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error)
	UpsertEmissionFactors(ctx context.Context, factors ...model.EmissionFactor) error
}

// Store is the cache-aside emission factor lookup. Concurrent misses for the
// same mode each read the durable table; there is no request coalescing.
type Store struct {
	source  Source
	cache   cache.Cache
	ttl     time.Duration
	metrics *monitoring.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithMetrics records cache and durable-read outcomes.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a factor store over source with c as the fast cache.
func New(source Source, c cache.Cache, opts ...Option) *Store {
	s := &Store{source: source, cache: c, ttl: DefaultTTL}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Factor returns kg CO2e per km per kg for mode. A missing row yields
// *NotFoundError; any other error is a durable-store failure.
func (s *Store) Factor(ctx context.Context, mode model.TransportMode) (float64, error) {
	key := Key(mode)

	if v, ok := s.cached(ctx, key); ok {
		return v, nil
	}

	f, err := s.source.GetEmissionFactor(ctx, mode)
	if err != nil {
		s.metrics.ObserveFactorRead(monitoring.OutcomeError)
		return 0, eris.Wrapf(err, "factor: read %s", mode)
	}
	if f == nil {
		s.metrics.ObserveFactorRead(monitoring.OutcomeNotFound)
		return 0, &NotFoundError{Mode: mode}
	}
	s.metrics.ObserveFactorRead(monitoring.OutcomeSuccess)

	s.store(ctx, key, f.FactorPerKmKg)
	return f.FactorPerKmKg, nil
}

func (s *Store) cached(ctx context.Context, key string) (float64, bool) {
	var v float64
	found, err := cache.GetJSON(ctx, s.cache, key, &v)
	switch {
	case err != nil:
		zap.L().Warn("factor: cache read failed, falling back to store",
			zap.String("key", key),
			zap.Error(err),
		)
		s.metrics.ObserveCacheLookup(monitoring.LayerFactor, monitoring.ResultError)
		return 0, false
	case !found:
		s.metrics.ObserveCacheLookup(monitoring.LayerFactor, monitoring.ResultMiss)
		return 0, false
	case v <= 0:
		zap.L().Warn("factor: ignoring non-positive cached factor", zap.String("key", key))
		s.metrics.ObserveCacheLookup(monitoring.LayerFactor, monitoring.ResultError)
		return 0, false
	}

	zap.L().Debug("factor: cache hit", zap.String("key", key))
	s.metrics.ObserveCacheLookup(monitoring.LayerFactor, monitoring.ResultHit)
	return v, true
}

func (s *Store) store(ctx context.Context, key string, v float64) {
	if err := cache.SetJSON(ctx, s.cache, key, v, s.ttl); err != nil {
		zap.L().Warn("factor: cache write failed",
			zap.String("key", key),
			zap.Error(err),
		)
		s.metrics.ObserveCacheWriteError(monitoring.LayerFactor)
	}
}

// List returns every factor straight from the durable table.
func (s *Store) List(ctx context.Context) ([]model.EmissionFactor, error) {
	factors, err := s.source.ListEmissionFactors(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "factor: list")
	}
	return factors, nil
}

// Set writes factors to the durable table and evicts their cached copies so
// the next lookup sees the new values.
func (s *Store) Set(ctx context.Context, factors ...model.EmissionFactor) error {
	if err := s.source.UpsertEmissionFactors(ctx, factors...); err != nil {
		return eris.Wrap(err, "factor: set")
	}

	modes := make([]model.TransportMode, len(factors))
	for i, f := range factors {
		modes[i] = f.TransportMode
	}
	return s.Invalidate(ctx, modes...)
}

// Invalidate evicts the cached factors for modes.
func (s *Store) Invalidate(ctx context.Context, modes ...model.TransportMode) error {
	keys := make([]string, len(modes))
	for i, m := range modes {
		keys[i] = Key(m)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		return eris.Wrap(err, "factor: invalidate")
	}
	return nil
}

// Warm loads every durable factor into the fast cache concurrently and
// returns how many were cached.
func (s *Store) Warm(ctx context.Context) (int, error) {
	factors, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range factors {
		g.Go(func() error {
			if err := cache.SetJSON(gctx, s.cache, Key(f.TransportMode), f.FactorPerKmKg, s.ttl); err != nil {
				return eris.Wrapf(err, "factor: warm %s", f.TransportMode)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	zap.L().Info("factor: cache warmed", zap.Int("factors", len(factors)))
	return len(factors), nil
}
