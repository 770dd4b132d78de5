package domain

import (
	"context"
	"time"
)

// Cache holds the latest ranking per subject and the rate-limit windows.
// Every call is scoped to a tenant; an empty tenant is an error.
type Cache interface {
	// GetEvaluation returns the cached ranking for a subject ("request" or
	// "donor"), or nil, nil on a miss.
	GetEvaluation(ctx context.Context, tenantID, subject, subjectID string) (*MatchEvaluation, error)

	// SetEvaluation caches eval under its own subject.
	SetEvaluation(ctx context.Context, tenantID string, eval *MatchEvaluation, ttl time.Duration) error

	// InvalidateEvaluation drops the cached ranking for a subject, e.g.
	// after a status change or a recorded donation.
	InvalidateEvaluation(ctx context.Context, tenantID, subject, subjectID string) error

	// IncrementCounter bumps a fixed-window counter and returns the count
	// within the current window.
	IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string `mapstructure:"type"`

	LocalMaxSize int           `mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `mapstructure:"localTtl"`

	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDb"`

	// EnableTwoPhase fronts Redis with the in-process LRU.
	EnableTwoPhase bool `mapstructure:"enableTwoPhase"`
}
