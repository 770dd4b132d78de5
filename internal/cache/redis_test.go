package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelink-community/lifelink/internal/domain"
)

func newTestRedis(t *testing.T) (*redisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := wrapRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return s, mr
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("EvaluationRoundTrip", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.SetEvaluation(ctx, tenantID, ranking(domain.SubjectDonor, "donor-9", 40, 12), time.Minute))
		assert.True(t, mr.Exists("lifelink:tenant-001:eval:donor:donor-9"))

		got, err := c.GetEvaluation(ctx, tenantID, domain.SubjectDonor, "donor-9")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "eval-donor-9", got.ID)
		assert.Len(t, got.Candidates, 2)
		assert.Equal(t, "redis", c.Backend())
	})

	t.Run("MissAndExpiry", func(t *testing.T) {
		s, mr := newTestRedis(t)
		c := &Cache{backend: "redis", store: s}

		got, err := c.GetEvaluation(ctx, tenantID, domain.SubjectRequest, "absent")
		require.NoError(t, err)
		assert.Nil(t, got)

		require.NoError(t, c.SetEvaluation(ctx, tenantID, ranking(domain.SubjectRequest, "temp"), time.Second))
		mr.FastForward(2 * time.Second)

		got, err = c.GetEvaluation(ctx, tenantID, domain.SubjectRequest, "temp")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CounterWindow", func(t *testing.T) {
		s, mr := newTestRedis(t)
		c := &Cache{backend: "redis", store: s}

		n, err := c.IncrementCounter(ctx, tenantID, "ratelimit", time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.IncrementCounter(ctx, tenantID, "ratelimit", time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		mr.FastForward(2 * time.Second)

		n, err = c.IncrementCounter(ctx, tenantID, "ratelimit", time.Second)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "counter resets once the window expires")
	})

	t.Run("Ping", func(t *testing.T) {
		s, _ := newTestRedis(t)
		assert.NoError(t, (&Cache{store: s}).Ping(ctx))
	})

	t.Run("Unreachable", func(t *testing.T) {
		_, err := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
		assert.Error(t, err)
	})
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("RemoteHitFillsLocal", func(t *testing.T) {
		remote, _ := newTestRedis(t)
		local := newLRU(10)
		c := &Cache{backend: "tiered", store: newTiered(local, remote, time.Minute)}

		// Written by another node: only Redis has it.
		peer := &Cache{store: remote}
		require.NoError(t, peer.SetEvaluation(ctx, tenantID, ranking(domain.SubjectRequest, "r1", 55), time.Minute))

		got, err := c.GetEvaluation(ctx, tenantID, domain.SubjectRequest, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)

		raw, err := local.get(ctx, evaluationKey(tenantID, domain.SubjectRequest, "r1"))
		require.NoError(t, err)
		assert.NotNil(t, raw)
	})

	t.Run("LocalCopyBoundedByRemoteTTL", func(t *testing.T) {
		remote, _ := newTestRedis(t)
		local := newLRU(10)
		clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		local.now = func() time.Time { return clock }
		c := &Cache{backend: "tiered", store: newTiered(local, remote, time.Hour)}

		peer := &Cache{store: remote}
		require.NoError(t, peer.SetEvaluation(ctx, tenantID, ranking(domain.SubjectRequest, "r1", 55), 2*time.Second))

		got, err := c.GetEvaluation(ctx, tenantID, domain.SubjectRequest, "r1")
		require.NoError(t, err)
		require.NotNil(t, got)

		key := evaluationKey(tenantID, domain.SubjectRequest, "r1")
		clock = clock.Add(time.Second)
		raw, err := local.get(ctx, key)
		require.NoError(t, err)
		assert.NotNil(t, raw, "still within the remote TTL")

		clock = clock.Add(2 * time.Second)
		raw, err = local.get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, raw, "local copy outlived the Redis entry")
	})

	t.Run("SetWritesBothTiers", func(t *testing.T) {
		remote, mr := newTestRedis(t)
		local := newLRU(10)
		c := &Cache{store: newTiered(local, remote, 0)}

		require.NoError(t, c.SetEvaluation(ctx, tenantID, ranking(domain.SubjectRequest, "r1"), time.Minute))

		assert.True(t, mr.Exists("lifelink:tenant-001:eval:request:r1"))
		size, _ := c.Stats()
		assert.Equal(t, 1, size)
	})

	t.Run("InvalidateClearsBothTiers", func(t *testing.T) {
		remote, mr := newTestRedis(t)
		c := &Cache{store: newTiered(newLRU(10), remote, time.Minute)}

		require.NoError(t, c.SetEvaluation(ctx, tenantID, ranking(domain.SubjectRequest, "r1"), time.Minute))
		require.NoError(t, c.InvalidateEvaluation(ctx, tenantID, domain.SubjectRequest, "r1"))

		got, err := c.GetEvaluation(ctx, tenantID, domain.SubjectRequest, "r1")
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, mr.Exists("lifelink:tenant-001:eval:request:r1"))
	})

	t.Run("CountersUseRedis", func(t *testing.T) {
		remote, _ := newTestRedis(t)
		c := &Cache{store: newTiered(newLRU(10), remote, time.Minute)}
		peer := &Cache{store: remote}

		_, err := c.IncrementCounter(ctx, tenantID, "ratelimit", time.Minute)
		require.NoError(t, err)
		n, err := peer.IncrementCounter(ctx, tenantID, "ratelimit", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}
