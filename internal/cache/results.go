package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

// DefaultResultTTL is how long a computed calculation stays cached.
const DefaultResultTTL = 24 * time.Hour

// Key namespaces. Direct and smart results never share a key.
const (
	directPrefix = "calc"
	smartPrefix  = "smart"
)

// DirectKey returns the cache key for an explicit request. City names are
// keyed in the same normal form the city index matches on.
func DirectKey(origin, destination string, weightKg float64, mode model.TransportMode) string {
	return routeKey(directPrefix, origin, destination, weightKg, mode)
}

// SmartKey returns the cache key for a request whose route was extracted
// from free text. The extracted city names are part of the key.
func SmartKey(parsedOrigin, parsedDestination string, weightKg float64, mode model.TransportMode) string {
	return routeKey(smartPrefix, parsedOrigin, parsedDestination, weightKg, mode)
}

func routeKey(prefix, origin, destination string, weightKg float64, mode model.TransportMode) string {
	return strings.Join([]string{
		prefix,
		geo.Normalize(origin),
		geo.Normalize(destination),
		FormatWeight(weightKg),
		string(mode),
	}, ":")
}

// FormatWeight renders a weight with the fewest digits that round-trip, so
// 10 and 10.0 share a key while 10.5 does not.
func FormatWeight(w float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// Results is the calculation cache: a typed, fault-tolerant view over Cache.
// Read faults of any kind are misses and write faults are logged, so the
// cache can never fail a request.
type Results struct {
	cache   Cache
	ttl     time.Duration
	metrics *monitoring.Metrics
}

// NewResults creates a calculation cache. ttl <= 0 uses DefaultResultTTL.
func NewResults(c Cache, ttl time.Duration, metrics *monitoring.Metrics) *Results {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &Results{cache: c, ttl: ttl, metrics: metrics}
}

// Get returns the cached result for key, if any.
func (r *Results) Get(ctx context.Context, key string) (*model.CalculationResult, bool) {
	var res model.CalculationResult
	found, err := GetJSON(ctx, r.cache, key, &res)
	if err != nil {
		zap.L().Warn("cache: result read failed, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		r.metrics.ObserveCacheLookup(monitoring.LayerResult, monitoring.ResultError)
		return nil, false
	}
	if !found {
		r.metrics.ObserveCacheLookup(monitoring.LayerResult, monitoring.ResultMiss)
		return nil, false
	}
	if !res.Cacheable() {
		zap.L().Warn("cache: unexpected result payload, treating as miss", zap.String("key", key))
		r.metrics.ObserveCacheLookup(monitoring.LayerResult, monitoring.ResultError)
		return nil, false
	}

	zap.L().Debug("cache: result hit", zap.String("key", key))
	r.metrics.ObserveCacheLookup(monitoring.LayerResult, monitoring.ResultHit)
	return &res, true
}

// Set stores res under key. Per-response fields are not persisted.
func (r *Results) Set(ctx context.Context, key string, res *model.CalculationResult) {
	stored := *res
	stored.CacheHit = false
	stored.ClaudeReasoning = ""
	stored.LatencyMs = 0

	if err := SetJSON(ctx, r.cache, key, &stored, r.ttl); err != nil {
		zap.L().Warn("cache: result write failed",
			zap.String("key", key),
			zap.Error(err),
		)
		r.metrics.ObserveCacheWriteError(monitoring.LayerResult)
	}
}
