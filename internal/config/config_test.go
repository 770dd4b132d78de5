package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/scoring"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(Options{})
		require.NoError(t, err)

		assert.Equal(t, domain.TierCommunity, cfg.Tier)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Repository.Driver)
		assert.Equal(t, "memory", cfg.Cache.Type)
		assert.Equal(t, domain.DefaultMatchWeights(), cfg.Scoring.DefaultWeights)
		assert.Equal(t, 5*time.Minute, cfg.Scoring.EvaluationTTL)
	})

	t.Run("ProTierBase", func(t *testing.T) {
		t.Setenv("LIFELINK_TIER", "pro")

		cfg, err := Load(Options{})
		require.NoError(t, err)

		assert.Equal(t, domain.TierPro, cfg.Tier)
		assert.Equal(t, "postgres", cfg.Repository.Driver)
		assert.Equal(t, "redis", cfg.Cache.Type)
		assert.True(t, cfg.Cache.EnableTwoPhase)
		assert.Equal(t, "nats", cfg.EventBus.Type)
		assert.True(t, cfg.RateLimit.Enabled)
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("LIFELINK_SERVER_PORT", "9191")
		t.Setenv("LIFELINK_SCORING_TOPN", "5")
		t.Setenv("LIFELINK_SCORING_EVALUATIONTTL", "90s")
		t.Setenv("LIFELINK_REPOSITORY_DRIVER", "pgx")
		t.Setenv("LIFELINK_REPOSITORY_POSTGRESHOST", "db.internal")

		cfg, err := Load(Options{})
		require.NoError(t, err)

		assert.Equal(t, 9191, cfg.Server.Port)
		assert.Equal(t, 5, cfg.Scoring.TopN)
		assert.Equal(t, 90*time.Second, cfg.Scoring.EvaluationTTL)
		assert.Equal(t, "pgx", cfg.Repository.Driver)
		assert.Equal(t, "db.internal", cfg.Repository.PostgresHost)
	})

	t.Run("YAMLFile", func(t *testing.T) {
		path := writeFile(t, "lifelink.yaml", `
server:
  port: 7070
scoring:
  defaultWeights:
    rus: 0.6
    drs: 0.3
    distance: 0.1
  alertThreshold: 75
logging:
  level: debug
  format: console
`)
		cfg, err := Load(Options{File: path})
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, domain.MatchWeights{RUS: 0.6, DRS: 0.3, Distance: 0.1}, cfg.Scoring.DefaultWeights)
		assert.Equal(t, 75.0, cfg.Scoring.AlertThreshold)
		assert.Equal(t, "console", cfg.Logging.Format)
		assert.Equal(t, "sqlite", cfg.Repository.Driver, "unset keys keep their defaults")
	})

	t.Run("EnvFile", func(t *testing.T) {
		path := writeFile(t, ".env", "LIFELINK_CACHE_LOCALMAXSIZE=42\n")
		t.Cleanup(func() { os.Unsetenv("LIFELINK_CACHE_LOCALMAXSIZE") })

		cfg, err := Load(Options{EnvFile: path})
		require.NoError(t, err)
		assert.Equal(t, 42, cfg.Cache.LocalMaxSize)
	})

	t.Run("MissingEnvFileIgnored", func(t *testing.T) {
		_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
		assert.NoError(t, err)
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		_, err := Load(Options{File: filepath.Join(t.TempDir(), "absent.yaml")})
		assert.Error(t, err)
	})

	t.Run("InvalidWeightsRejected", func(t *testing.T) {
		t.Setenv("LIFELINK_SCORING_DEFAULTWEIGHTS_RUS", "0")
		t.Setenv("LIFELINK_SCORING_DEFAULTWEIGHTS_DRS", "0")
		t.Setenv("LIFELINK_SCORING_DEFAULTWEIGHTS_DISTANCE", "0")

		_, err := Load(Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, scoring.ErrInvalidWeights)
	})
}

func TestValidate(t *testing.T) {
	t.Run("DefaultsAreValid", func(t *testing.T) {
		assert.NoError(t, Validate(domain.DefaultConfig()))
		assert.NoError(t, Validate(domain.ProConfig()))
	})

	t.Run("CollectsAllProblems", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.Server.Port = 0
		cfg.Repository.Driver = "mysql"
		cfg.Cache.Type = "memcached"

		err := Validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server port")
		assert.Contains(t, err.Error(), "mysql")
		assert.Contains(t, err.Error(), "memcached")
	})

	t.Run("RateLimitNeedsWindow", func(t *testing.T) {
		cfg := domain.DefaultConfig()
		cfg.RateLimit = domain.RateLimitConfig{Enabled: true, Requests: 10}
		assert.Error(t, Validate(cfg))
	})
}
