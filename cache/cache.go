// Package cache memoizes analysis results with TTL expiry and single-flight population.
package cache

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"restaurant-analytics/metrics"
)

const defaultMaxEntries = 1024

type entry struct {
	value   interface{}
	expires time.Time
}

// flight tracks the callers waiting on one in-progress computation. The computation runs on
// ctx, which is detached from every caller and cancelled when the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type Options struct {
	Enabled    bool
	MaxEntries int
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	flights map[string]*flight
	group   singleflight.Group

	enabled    bool
	maxEntries int
	metrics    *metrics.Metrics
	now        func() time.Time
}

func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:    make(map[string]entry),
		flights:    make(map[string]*flight),
		enabled:    opts.Enabled,
		maxEntries: opts.MaxEntries,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// GetOrCompute returns the cached value for key, or runs fn once for all concurrent callers
// of the same key and caches a successful result for ttl. Errors are never cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	op := operation(key)
	if !c.enabled {
		return fn(ctx)
	}
	if v, ok := c.get(key); ok {
		c.metrics.CacheHit(op)
		return v, nil
	}
	c.metrics.CacheMiss(op)

	v, err := c.wait(ctx, key, ttl, fn)
	// The shared computation was abandoned by its other waiters; this caller still wants it.
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		log.Printf("[CACHE] retrying %s after shared computation was cancelled", op)
		v, err = c.wait(ctx, key, ttl, fn)
	}
	return v, err
}

func (c *Cache) wait(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	f := c.join(ctx, key)
	defer c.leave(key, f)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		defer c.finish(key, f)
		// A previous flight may have filled the entry between our miss and this call.
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := fn(f.ctx)
		if err == nil {
			c.set(key, v, ttl)
		}
		return v, err
	})

	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Cache) leave(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Cache) finish(key string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
}

func (c *Cache) get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) set(key string, v interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= c.maxEntries {
		for k, e := range c.entries {
			if !now.Before(e.expires) {
				delete(c.entries, k)
			}
		}
	}
	if len(c.entries) >= c.maxEntries {
		// Still full of live entries: evict the one closest to expiry.
		var oldest string
		var oldestAt time.Time
		for k, e := range c.entries {
			if oldest == "" || e.expires.Before(oldestAt) {
				oldest, oldestAt = k, e.expires
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[key] = entry{value: v, expires: now.Add(ttl)}
}

// Len reports the number of stored entries, expired ones included until they are touched.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func operation(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
