// Package cache provides a generic, thread-safe cache with time-to-live
// expiry and hit/miss statistics.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/googlearchive/science-journal-ios/errors"
)

// Statistics counts cache activity. Safe for concurrent use.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	evictions atomic.Int64
}

// Hits returns the number of successful lookups.
func (s *Statistics) Hits() int64 { return s.hits.Load() }

// Misses returns the number of lookups that found nothing or an expired entry.
func (s *Statistics) Misses() int64 { return s.misses.Load() }

// Sets returns the number of stores.
func (s *Statistics) Sets() int64 { return s.sets.Load() }

// Evictions returns the number of entries removed on expiry.
func (s *Statistics) Evictions() int64 { return s.evictions.Load() }

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s *Statistics) HitRatio() float64 {
	hits, misses := s.Hits(), s.Misses()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) isExpired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTL is a cache whose entries expire ttl after they are stored. Expired
// entries are dropped on access and by a background sweep.
type TTL[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]*entry[V]
	stats *Statistics
	now   func() time.Time

	shutdown  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewTTL creates a cache. The background sweep runs every cleanupInterval
// until ctx is done or Close is called.
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration) (*TTL[V], error) {
	if ttl <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: ttl must be positive, got %v", errors.ErrInvalidConfig, ttl), "cache", "NewTTL", "ttl check")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &TTL[V]{
		ttl:      ttl,
		items:    make(map[string]*entry[V]),
		stats:    &Statistics{},
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.cleanup(ctx, cleanupInterval)
	return c, nil
}

// Get returns the value stored under key if present and not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.stats.misses.Add(1)
		return zero, false
	}

	if e.isExpired(c.now()) {
		c.mu.Lock()
		// Still the same expired entry?
		if current, ok := c.items[key]; ok && current == e {
			delete(c.items, key)
			c.stats.evictions.Add(1)
		}
		c.mu.Unlock()
		c.stats.misses.Add(1)
		return zero, false
	}

	c.stats.hits.Add(1)
	return e.value, true
}

// Set stores value under key. It reports whether the key was new.
func (c *TTL[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	c.stats.sets.Add(1)
	return !exists, nil
}

// Delete removes key. It reports whether the key existed.
func (c *TTL[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	_, exists := c.items[key]
	delete(c.items, key)
	c.mu.Unlock()
	return exists, nil
}

// Clear removes every entry.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]*entry[V])
	c.mu.Unlock()
}

// Size returns the number of stored entries, expired ones not yet swept
// included.
func (c *TTL[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns the cache statistics.
func (c *TTL[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background sweep. It is safe to call more than once.
func (c *TTL[V]) Close() error {
	c.closeOnce.Do(func() { close(c.shutdown) })

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *TTL[V]) cleanup(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *TTL[V]) removeExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.items {
		if e.isExpired(now) {
			delete(c.items, key)
			c.stats.evictions.Add(1)
		}
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
