package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the fast cache.
type CacheConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	RedisURL      string `yaml:"redis_url" mapstructure:"redis_url"`
	OpTimeoutMs   int    `yaml:"op_timeout_ms" mapstructure:"op_timeout_ms"`
	FactorTTLSecs int    `yaml:"factor_ttl_secs" mapstructure:"factor_ttl_secs"`
	ResultTTLSecs int    `yaml:"result_ttl_secs" mapstructure:"result_ttl_secs"`
}

// OpTimeout is the per-operation Redis deadline.
func (c CacheConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutMs) * time.Millisecond
}

// FactorTTL is how long an emission factor stays in the fast cache.
func (c CacheConfig) FactorTTL() time.Duration {
	return time.Duration(c.FactorTTLSecs) * time.Second
}

// ResultTTL is how long a calculation result stays in the fast cache.
func (c CacheConfig) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout bounds a single extraction call.
func (c AnthropicConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ExtractConfig configures retries, rate limiting and the circuit breaker
// around the extractor.
type ExtractConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AuditConfig selects where calculation records go.
type AuditConfig struct {
	Sink           string   `yaml:"sink" mapstructure:"sink"`
	KafkaBrokers   []string `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic     string   `yaml:"kafka_topic" mapstructure:"kafka_topic"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms" mapstructure:"write_timeout_ms"`
}

// WriteTimeout bounds a single audit write.
func (c AuditConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMs) * time.Millisecond
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs  int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// RequestTimeout bounds one HTTP request.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// ShutdownTimeout bounds graceful shutdown, including in-flight audit writes.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CARBON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without a default are unknown to Unmarshal unless bound.
	for _, key := range []string{"store.database_url", "anthropic.key", "audit.kafka_brokers"} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.op_timeout_ms", 500)
	v.SetDefault("cache.factor_ttl_secs", 3600)
	v.SetDefault("cache.result_ttl_secs", 86400)
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 500)
	v.SetDefault("anthropic.timeout_secs", 30)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.initial_backoff_ms", 250)
	v.SetDefault("extract.max_backoff_ms", 5000)
	v.SetDefault("extract.rate_per_sec", 5.0)
	v.SetDefault("extract.burst", 10)
	v.SetDefault("extract.breaker_threshold", 5)
	v.SetDefault("extract.breaker_reset_secs", 30)
	v.SetDefault("audit.sink", "store")
	v.SetDefault("audit.kafka_topic", "carbon.calculations")
	v.SetDefault("audit.write_timeout_ms", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 60)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "serve", "calculate", "smart", "parse", "admin" (durable store only) and
// "cache" (fast cache only).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		problems = append(problems, c.validateStore()...)
		problems = append(problems, c.validateCache()...)
		problems = append(problems, c.validateExtract()...)
		problems = append(problems, c.validateAudit()...)
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RequestTimeoutSecs <= 0 {
			problems = append(problems, "server.request_timeout_secs must be > 0")
		}
	case "calculate":
		problems = append(problems, c.validateStore()...)
		problems = append(problems, c.validateCache()...)
		problems = append(problems, c.validateAudit()...)
	case "smart":
		problems = append(problems, c.validateStore()...)
		problems = append(problems, c.validateCache()...)
		problems = append(problems, c.validateExtract()...)
		problems = append(problems, c.validateAudit()...)
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "parse":
		problems = append(problems, c.validateExtract()...)
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	case "admin":
		problems = append(problems, c.validateStore()...)
	case "cache":
		problems = append(problems, c.validateCache()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var problems []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Store.MaxConns < 0 || c.Store.MinConns < 0 || (c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns) {
			problems = append(problems, "store.min_conns must be between 0 and store.max_conns")
		}
	case "sqlite":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	return problems
}

func (c *Config) validateCache() []string {
	var problems []string
	switch c.Cache.Driver {
	case "redis":
		if c.Cache.RedisURL == "" {
			problems = append(problems, "cache.redis_url is required")
		}
	case "memory":
	default:
		problems = append(problems, "cache.driver must be redis or memory")
	}
	if c.Cache.FactorTTLSecs <= 0 || c.Cache.ResultTTLSecs <= 0 {
		problems = append(problems, "cache ttl values must be > 0")
	}
	return problems
}

func (c *Config) validateExtract() []string {
	var problems []string
	if c.Extract.MaxAttempts < 1 || c.Extract.MaxAttempts > 10 {
		problems = append(problems, "extract.max_attempts must be between 1 and 10")
	}
	if c.Extract.RatePerSec < 0 {
		problems = append(problems, "extract.rate_per_sec must be >= 0")
	}
	if c.Extract.RatePerSec > 0 && c.Extract.Burst < 1 {
		problems = append(problems, "extract.burst must be >= 1 when rate limiting")
	}
	return problems
}

func (c *Config) validateAudit() []string {
	switch c.Audit.Sink {
	case "store", "none":
		return nil
	case "kafka":
		var problems []string
		if len(c.Audit.KafkaBrokers) == 0 {
			problems = append(problems, "audit.kafka_brokers is required")
		}
		if c.Audit.KafkaTopic == "" {
			problems = append(problems, "audit.kafka_topic is required")
		}
		return problems
	default:
		return []string{"audit.sink must be store, kafka or none"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
