package domain

import "time"

// Config holds the complete LifeLink configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server" json:"server"`

	// Tier determines which backends are used
	Tier Tier `mapstructure:"tier" json:"tier"`

	// Matching engine tuning
	Scoring ScoringConfig `mapstructure:"scoring" json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository" json:"repository"`
	Cache      CacheConfig      `mapstructure:"cache" json:"cache"`
	EventBus   EventBusConfig   `mapstructure:"eventBus" json:"eventBus"`
	RateLimit  RateLimitConfig  `mapstructure:"rateLimit" json:"rateLimit"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host" json:"host"`
	Port         int    `mapstructure:"port" json:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `mapstructure:"writeTimeout" json:"writeTimeout"` // seconds
}

// ScoringConfig tunes ranking.
type ScoringConfig struct {
	// Weights used when neither the caller nor a profile supplies any.
	DefaultWeights MatchWeights `mapstructure:"defaultWeights" json:"defaultWeights"`

	// MaxWorkers bounds the pairs scored concurrently per ranking.
	MaxWorkers int `mapstructure:"maxWorkers" json:"maxWorkers"`

	// TopN is the default number of candidates kept per ranking (0 = all).
	TopN int `mapstructure:"topN" json:"topN"`

	// AlertThreshold is the minimum match score for which a donor alert
	// event is published on Urgent requests.
	AlertThreshold float64 `mapstructure:"alertThreshold" json:"alertThreshold"`

	// EvaluationTTL is how long a ranking stays in cache.
	EvaluationTTL time.Duration `mapstructure:"evaluationTtl" json:"evaluationTtl"`
}

// RateLimitConfig limits requests per tenant.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Requests int64         `mapstructure:"requests" json:"requests"`
	Window   time.Duration `mapstructure:"window" json:"window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // json, console
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	ServiceName string `mapstructure:"serviceName" json:"serviceName"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			DefaultWeights: DefaultMatchWeights(),
			MaxWorkers:     16,
			TopN:           25,
			AlertThreshold: 60,
			EvaluationTTL:  5 * time.Minute,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./lifelink.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		RateLimit: RateLimitConfig{
			Enabled:  false,
			Requests: 600,
			Window:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "lifelink",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "lifelink",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "lifelink-workers",
	}
	cfg.RateLimit.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
