package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/carbon-cli/internal/audit"
	"github.com/sells-group/carbon-cli/internal/cache"
	"github.com/sells-group/carbon-cli/internal/calc"
	"github.com/sells-group/carbon-cli/internal/extract"
	"github.com/sells-group/carbon-cli/internal/factor"
	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/monitoring"
	"github.com/sells-group/carbon-cli/internal/resilience"
	"github.com/sells-group/carbon-cli/internal/store"
	anthropicpkg "github.com/sells-group/carbon-cli/pkg/anthropic"
)

// appEnv holds the initialized backends and the engine needed by the
// serve and calculate commands.
type appEnv struct {
	Store     store.Store
	Cache     cache.Cache
	Factors   *factor.Store
	Results   *cache.Results
	Extractor *extract.Extractor // nil unless requested
	Audit     *audit.Async       // nil when audit.sink is none
	Engine    *calc.Engine

	closers []func() error
}

// Close waits for in-flight audit writes until ctx is done, then releases
// every backend.
func (e *appEnv) Close(ctx context.Context) {
	if e.Audit != nil {
		if err := e.Audit.Wait(ctx); err != nil {
			zap.L().Warn("audit writes still in flight at shutdown", zap.Error(err))
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close backend", zap.Error(err))
		}
	}
}

// initApp opens the store (migrating it), connects the cache and builds the
// engine. withExtractor also wires free-text extraction. Callers should
// defer env.Close().
func initApp(ctx context.Context, withExtractor bool, metrics *monitoring.Metrics) (*appEnv, error) {
	env := &appEnv{}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, st.Close)

	if err := st.Migrate(ctx); err != nil {
		env.Close(ctx)
		return nil, eris.Wrap(err, "migrate store")
	}

	c, err := initCache(ctx)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	env.Cache = c
	env.closers = append(env.closers, c.Close)

	env.Factors = factor.New(st, c,
		factor.WithTTL(cfg.Cache.FactorTTL()),
		factor.WithMetrics(metrics),
	)
	env.Results = cache.NewResults(c, cfg.Cache.ResultTTL(), metrics)

	opts := []calc.Option{calc.WithMetrics(metrics)}

	sink, closeSink, err := initAuditSink(st)
	if err != nil {
		env.Close(ctx)
		return nil, err
	}
	if closeSink != nil {
		env.closers = append(env.closers, closeSink)
	}
	if sink != nil {
		env.Audit = audit.NewAsync(sink,
			audit.WithWriteTimeout(cfg.Audit.WriteTimeout()),
			audit.WithMetrics(metrics),
		)
		opts = append(opts, calc.WithAudit(env.Audit))
	}

	if withExtractor {
		env.Extractor = initExtractor(metrics)
		opts = append(opts, calc.WithExtractor(env.Extractor))
	}

	env.Engine = calc.NewEngine(geo.Default(), env.Factors, env.Results, opts...)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "carbon.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initCache connects the fast cache. Redis is pinged at startup so a bad
// URL fails fast.
func initCache(ctx context.Context) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case "memory":
		zap.L().Info("using in-process cache")
		return cache.NewMemory(nil), nil
	case "redis":
		return cache.NewRedis(ctx, cfg.Cache.RedisURL, cache.WithOpTimeout(cfg.Cache.OpTimeout()))
	default:
		return nil, eris.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// initAuditSink picks the audit destination. Both return values are nil for
// audit.sink=none.
func initAuditSink(st store.Store) (audit.Sink, func() error, error) {
	switch cfg.Audit.Sink {
	case "none":
		zap.L().Info("calculation audit disabled")
		return nil, nil, nil
	case "", "store":
		return audit.NewStoreSink(st), nil, nil
	case "kafka":
		if len(cfg.Audit.KafkaBrokers) == 0 {
			return nil, nil, eris.New("audit.kafka_brokers is required for the kafka sink")
		}
		k := audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		zap.L().Info("auditing calculations to kafka",
			zap.Strings("brokers", cfg.Audit.KafkaBrokers),
			zap.String("topic", cfg.Audit.KafkaTopic),
		)
		return k, k.Close, nil
	default:
		return nil, nil, eris.Errorf("unsupported audit sink: %s", cfg.Audit.Sink)
	}
}

// initExtractor builds the Anthropic-backed extractor with retry, circuit
// breaker and rate limit from config.
func initExtractor(metrics *monitoring.Metrics) *extract.Extractor {
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)

	retry := resilience.FromRetryConfig(cfg.Extract.MaxAttempts, cfg.Extract.InitialBackoffMs, cfg.Extract.MaxBackoffMs)
	retry.OnRetry = resilience.RetryLogger("anthropic", "extract")

	breakerCfg := resilience.FromCircuitConfig(cfg.Extract.BreakerThreshold, cfg.Extract.BreakerResetSecs)
	breakerCfg.ShouldTrip = resilience.IsTransient
	breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
		zap.L().Warn("extractor circuit state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	return extract.New(client,
		extract.WithModel(cfg.Anthropic.Model),
		extract.WithMaxTokens(cfg.Anthropic.MaxTokens),
		extract.WithTimeout(cfg.Anthropic.Timeout()),
		extract.WithRetry(retry),
		extract.WithBreaker(resilience.NewCircuitBreaker(breakerCfg)),
		extract.WithRateLimit(cfg.Extract.RatePerSec, cfg.Extract.Burst),
		extract.WithMetrics(metrics),
	)
}
