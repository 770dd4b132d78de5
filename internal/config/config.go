// Package config loads LifeLink configuration from defaults, an optional
// .env file, an optional YAML file and LIFELINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

// EnvPrefix is prepended to every environment override, e.g.
// LIFELINK_SERVER_PORT or LIFELINK_CACHE_REDISADDR.
const EnvPrefix = "LIFELINK"

// Options control where configuration is read from.
type Options struct {
	// File is an optional YAML/JSON config file.
	File string

	// EnvFile is an optional dotenv file. A missing file is not an error.
	EnvFile string
}

// Load resolves the configuration. The tier ("community" or "pro") picks
// the base defaults before file and environment overrides apply.
func Load(opts Options) (*domain.Config, error) {
	return LoadWith(viper.New(), opts)
}

// LoadWith is Load on a caller-supplied viper instance, so command line
// flags bound to it take part in resolution.
func LoadWith(v *viper.Viper, opts Options) (*domain.Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(v.GetString("tier")) == domain.TierPro {
		base = domain.ProConfig()
	}
	setDefaults(v, base)

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("tier", string(c.Tier))

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.readTimeout", c.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", c.Server.WriteTimeout)

	v.SetDefault("scoring.defaultWeights.rus", c.Scoring.DefaultWeights.RUS)
	v.SetDefault("scoring.defaultWeights.drs", c.Scoring.DefaultWeights.DRS)
	v.SetDefault("scoring.defaultWeights.distance", c.Scoring.DefaultWeights.Distance)
	v.SetDefault("scoring.maxWorkers", c.Scoring.MaxWorkers)
	v.SetDefault("scoring.topN", c.Scoring.TopN)
	v.SetDefault("scoring.alertThreshold", c.Scoring.AlertThreshold)
	v.SetDefault("scoring.evaluationTtl", c.Scoring.EvaluationTTL)

	v.SetDefault("repository.driver", c.Repository.Driver)
	v.SetDefault("repository.sqlitePath", c.Repository.SQLitePath)
	v.SetDefault("repository.postgresHost", c.Repository.PostgresHost)
	v.SetDefault("repository.postgresPort", c.Repository.PostgresPort)
	v.SetDefault("repository.postgresUser", c.Repository.PostgresUser)
	v.SetDefault("repository.postgresPassword", c.Repository.PostgresPassword)
	v.SetDefault("repository.postgresDb", c.Repository.PostgresDB)
	v.SetDefault("repository.postgresSslMode", c.Repository.PostgresSSLMode)
	v.SetDefault("repository.maxOpenConns", c.Repository.MaxOpenConns)
	v.SetDefault("repository.maxIdleConns", c.Repository.MaxIdleConns)
	v.SetDefault("repository.connMaxLifetime", c.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", c.Cache.Type)
	v.SetDefault("cache.localMaxSize", c.Cache.LocalMaxSize)
	v.SetDefault("cache.localTtl", c.Cache.LocalTTL)
	v.SetDefault("cache.redisAddr", c.Cache.RedisAddr)
	v.SetDefault("cache.redisPassword", c.Cache.RedisPassword)
	v.SetDefault("cache.redisDb", c.Cache.RedisDB)
	v.SetDefault("cache.enableTwoPhase", c.Cache.EnableTwoPhase)

	v.SetDefault("eventBus.type", c.EventBus.Type)
	v.SetDefault("eventBus.channelBufferSize", c.EventBus.ChannelBufferSize)
	v.SetDefault("eventBus.natsUrl", c.EventBus.NATSUrl)
	v.SetDefault("eventBus.natsToken", c.EventBus.NATSToken)
	v.SetDefault("eventBus.natsMaxReconnects", c.EventBus.NATSMaxReconnects)
	v.SetDefault("eventBus.natsReconnectWait", c.EventBus.NATSReconnectWait)
	v.SetDefault("eventBus.natsQueueGroup", c.EventBus.NATSQueueGroup)

	v.SetDefault("rateLimit.enabled", c.RateLimit.Enabled)
	v.SetDefault("rateLimit.requests", c.RateLimit.Requests)
	v.SetDefault("rateLimit.window", c.RateLimit.Window)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)

	v.SetDefault("tracing.enabled", c.Tracing.Enabled)
	v.SetDefault("tracing.serviceName", c.Tracing.ServiceName)
}

// Validate rejects configurations the service cannot start with.
func Validate(c *domain.Config) error {
	var errs []error

	if c.Tier != domain.TierCommunity && c.Tier != domain.TierPro {
		errs = append(errs, fmt.Errorf("unknown tier %q", c.Tier))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if err := scoring.ValidateWeights(c.Scoring.DefaultWeights); err != nil {
		errs = append(errs, fmt.Errorf("scoring.defaultWeights: %w", err))
	}
	if c.Scoring.TopN < 0 {
		errs = append(errs, fmt.Errorf("scoring.topN must not be negative"))
	}

	switch c.Repository.Driver {
	case "sqlite":
		if c.Repository.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("repository.sqlitePath is required for sqlite"))
		}
	case "postgres", "pgx":
		if c.Repository.PostgresHost == "" {
			errs = append(errs, fmt.Errorf("repository.postgresHost is required for %s", c.Repository.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported repository driver %q", c.Repository.Driver))
	}

	switch c.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unsupported cache type %q", c.Cache.Type))
	}

	switch c.EventBus.Type {
	case "channel", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported event bus type %q", c.EventBus.Type))
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, fmt.Errorf("rateLimit requires positive requests and window"))
	}

	return errors.Join(errs...)
}
