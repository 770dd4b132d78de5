package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "lifelink:"

// redisStore keeps entries under "lifelink:<tenant>:..." so several
// services can share one Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedis connects to Redis and returns a cache backed by it.
func NewRedis(addr, password string, db int) (*Cache, error) {
	s, err := dialRedis(addr, password, db)
	if err != nil {
		return nil, err
	}
	return &Cache{backend: "redis", store: s}, nil
}

// NewRedisFromClient wraps an existing client after checking it responds.
func NewRedisFromClient(client *redis.Client) (*Cache, error) {
	s, err := wrapRedis(client)
	if err != nil {
		return nil, err
	}
	return &Cache{backend: "redis", store: s}, nil
}

func dialRedis(addr, password string, db int) (*redisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	return wrapRedis(redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}))
}

func wrapRedis(client *redis.Client) (*redisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// getWithTTL returns the value and its remaining lifetime in one round
// trip. A key without expiry reports a ttl of zero.
func (s *redisStore) getWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	var get *redis.StringCmd
	var pttl *redis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, redisPrefix+key)
		pttl = p.PTTL(ctx, redisPrefix+key)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	val, err := get.Bytes()
	if err != nil {
		return nil, 0, err
	}
	return val, max(pttl.Val(), 0), nil
}

func (s *redisStore) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, redisPrefix+key, value, ttl).Err()
}

func (s *redisStore) del(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisPrefix+key).Err()
}

// openWindow increments a counter and starts its expiry on first use, in
// one round trip.
var openWindow = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

func (s *redisStore) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return openWindow.Run(ctx, s.client, []string{redisPrefix + key}, window.Milliseconds()).Int64()
}

func (s *redisStore) ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *redisStore) close() error {
	return s.client.Close()
}
