// Package cache keeps the latest ranking per request or donor and the
// per-tenant rate-limit windows. Rankings are stored JSON-encoded in a
// byte store: an in-process LRU, Redis, or the LRU in front of Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lifelink-community/lifelink/internal/domain"
	"github.com/lifelink-community/lifelink/internal/metrics"
)

// ErrTenantRequired is returned for calls without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// store is a byte store addressed by fully-qualified keys. A miss is
// nil, nil.
type store interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	del(ctx context.Context, key string) error
	incr(ctx context.Context, key string, window time.Duration) (int64, error)
	ping(ctx context.Context) error
	close() error
}

// Cache implements domain.Cache over a store.
type Cache struct {
	backend string
	store   store
}

var _ domain.Cache = (*Cache)(nil)

// New builds the cache selected by cfg.
func New(cfg domain.CacheConfig) (*Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTiered(cfg)
		}
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NewMemory returns a process-local cache holding at most maxSize
// rankings.
func NewMemory(maxSize int) *Cache {
	return &Cache{backend: "memory", store: newLRU(maxSize)}
}

// NewTiered returns Redis fronted by a local LRU. Local entries live for
// at most cfg.LocalTTL so other nodes' invalidations are seen quickly.
func NewTiered(cfg domain.CacheConfig) (*Cache, error) {
	remote, err := dialRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return &Cache{backend: "tiered", store: newTiered(newLRU(cfg.LocalMaxSize), remote, cfg.LocalTTL)}, nil
}

// GetEvaluation returns the cached ranking for a subject.
func (c *Cache) GetEvaluation(ctx context.Context, tenantID, subject, subjectID string) (*domain.MatchEvaluation, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	data, err := c.store.get(ctx, evaluationKey(tenantID, subject, subjectID))
	if err != nil {
		metrics.CacheLookups.WithLabelValues(c.backend, metrics.CacheError).Inc()
		return nil, err
	}
	if data == nil {
		metrics.CacheLookups.WithLabelValues(c.backend, metrics.CacheMiss).Inc()
		return nil, nil
	}

	var eval domain.MatchEvaluation
	if err := json.Unmarshal(data, &eval); err != nil {
		metrics.CacheLookups.WithLabelValues(c.backend, metrics.CacheError).Inc()
		return nil, fmt.Errorf("failed to decode cached evaluation: %w", err)
	}
	metrics.CacheLookups.WithLabelValues(c.backend, metrics.CacheHit).Inc()
	return &eval, nil
}

// SetEvaluation caches eval under its subject.
func (c *Cache) SetEvaluation(ctx context.Context, tenantID string, eval *domain.MatchEvaluation, ttl time.Duration) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	data, err := json.Marshal(eval)
	if err != nil {
		return err
	}
	return c.store.set(ctx, evaluationKey(tenantID, eval.Subject, eval.SubjectID), data, ttl)
}

// InvalidateEvaluation drops the cached ranking for a subject.
func (c *Cache) InvalidateEvaluation(ctx context.Context, tenantID, subject, subjectID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	return c.store.del(ctx, evaluationKey(tenantID, subject, subjectID))
}

// IncrementCounter bumps a fixed-window counter.
func (c *Cache) IncrementCounter(ctx context.Context, tenantID, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, ErrTenantRequired
	}
	return c.store.incr(ctx, counterKey(tenantID, key), window)
}

// Ping checks the backing store.
func (c *Cache) Ping(ctx context.Context) error {
	return c.store.ping(ctx)
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.close()
}

// Backend names the store: memory, redis or tiered.
func (c *Cache) Backend() string {
	return c.backend
}

// Stats reports local entry count and capacity. Redis-only caches report
// zeros.
func (c *Cache) Stats() (size, capacity int) {
	switch s := c.store.(type) {
	case *lru:
		return s.stats()
	case *tiered:
		return s.local.stats()
	}
	return 0, 0
}

func evaluationKey(tenantID, subject, subjectID string) string {
	return tenantID + ":eval:" + subject + ":" + subjectID
}

func counterKey(tenantID, key string) string {
	return tenantID + ":counter:" + key
}

// tiered reads through a local LRU into Redis. Counters always go to
// Redis so every node sees the same window.
type tiered struct {
	local    *lru
	remote   *redisStore
	localTTL time.Duration
}

func newTiered(local *lru, remote *redisStore, localTTL time.Duration) *tiered {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &tiered{local: local, remote: remote, localTTL: localTTL}
}

func (t *tiered) get(ctx context.Context, key string) ([]byte, error) {
	if val, _ := t.local.get(ctx, key); val != nil {
		return val, nil
	}
	val, remaining, err := t.remote.getWithTTL(ctx, key)
	if err != nil || val == nil {
		return nil, err
	}
	// The local copy must not outlive the Redis entry.
	ttl := t.localTTL
	if remaining > 0 {
		ttl = min(ttl, remaining)
	}
	_ = t.local.set(ctx, key, val, ttl)
	return val, nil
}

func (t *tiered) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.remote.set(ctx, key, value, ttl); err != nil {
		return err
	}
	return t.local.set(ctx, key, value, min(ttl, t.localTTL))
}

func (t *tiered) del(ctx context.Context, key string) error {
	_ = t.local.del(ctx, key)
	return t.remote.del(ctx, key)
}

func (t *tiered) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return t.remote.incr(ctx, key, window)
}

func (t *tiered) ping(ctx context.Context) error {
	if err := t.remote.ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (t *tiered) close() error {
	_ = t.local.close()
	return t.remote.close()
}
