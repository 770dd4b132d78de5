package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// lru is a size-bounded store with per-entry expiry. Counters live in a
// separate map so rate-limit windows never evict rankings.
type lru struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	recency  *list.List // front = most recently used
	windows  map[string]*window
	now      func() time.Time
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

type window struct {
	count int64
	ends  time.Time
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 10000
	}
	return &lru{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		recency:  list.New(),
		windows:  make(map[string]*window),
		now:      time.Now,
	}
}

func (c *lru) get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	e := el.Value.(*lruEntry)
	if !c.now().Before(e.expiresAt) {
		c.drop(el)
		return nil, nil
	}
	c.recency.MoveToFront(el)
	return e.value, nil
}

func (c *lru) set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		e := el.Value.(*lruEntry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(el)
		return nil
	}

	c.entries[key] = c.recency.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
	}
	return nil
}

func (c *lru) del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.drop(el)
	}
	return nil
}

func (c *lru) incr(_ context.Context, key string, d time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.ends) {
		c.windows[key] = &window{count: 1, ends: now.Add(d)}
		c.sweepWindows(now)
		return 1, nil
	}
	w.count++
	return w.count, nil
}

// sweepWindows forgets expired windows once the map outgrows the entry
// capacity, so one-off tenants do not accumulate.
func (c *lru) sweepWindows(now time.Time) {
	if len(c.windows) <= c.capacity {
		return
	}
	for k, w := range c.windows {
		if !now.Before(w.ends) {
			delete(c.windows, k)
		}
	}
}

func (c *lru) ping(context.Context) error { return nil }

func (c *lru) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency.Init()
	c.windows = make(map[string]*window)
	return nil
}

func (c *lru) stats() (size, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len(), c.capacity
}

func (c *lru) drop(el *list.Element) {
	c.recency.Remove(el)
	delete(c.entries, el.Value.(*lruEntry).key)
}
