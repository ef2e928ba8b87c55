package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// IN-MEMORY TTL CACHE
// ============================================================================
// Thread-safe key/value store with per-item expiry and a background sweeper.
// Used for the question bank, which is fetched remotely and changes rarely.
//
//   c := NewCache(5*time.Minute, 10*time.Minute)
//   defer c.Stop()
//   v, err := c.GetOrLoad("questions", fetch)

// Item is a cached value with its expiry (unix nanos, 0 = never).
type Item struct {
	Value      any
	Expiration int64
}

type Cache struct {
	items             map[string]Item
	mu                sync.RWMutex
	loadMu            sync.Mutex
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
	hits              atomic.Uint64
	misses            atomic.Uint64
	now               func() time.Time
}

// NewCache creates a cache. A positive cleanupInterval starts a sweeper that
// drops expired items; call Stop to end it.
func NewCache(defaultExpiration, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:             make(map[string]Item),
		defaultExpiration: defaultExpiration,
		cleanupInterval:   cleanupInterval,
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
	}
	if cleanupInterval > 0 {
		go c.startCleanupTimer()
	}
	return c
}

// Set stores value with the default expiry.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultExpiration)
}

// SetWithTTL stores value; a non-positive duration never expires.
func (c *Cache) SetWithTTL(key string, value any, duration time.Duration) {
	var expiration int64
	if duration > 0 {
		expiration = c.now().Add(duration).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = Item{Value: value, Expiration: expiration}
	c.mu.Unlock()
}

// Get returns the value for key if present and not expired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		c.misses.Add(1)
		return nil, false
	}
	if c.expired(item) {
		c.Delete(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return item.Value, true
}

// GetOrLoad returns the cached value for key, calling load on a miss.
// Concurrent misses share one load. Failed loads are not cached.
func (c *Cache) GetOrLoad(key string, load func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()
	if found && !c.expired(item) {
		return item.Value, nil
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

type Stats struct {
	TotalItems   int    `json:"total_items"`
	ExpiredItems int    `json:"expired_items"`
	ValidItems   int    `json:"valid_items"`
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
}

func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		TotalItems: len(c.items),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}
	for _, item := range c.items {
		if c.expired(item) {
			stats.ExpiredItems++
		} else {
			stats.ValidItems++
		}
	}
	return stats
}

func (c *Cache) expired(item Item) bool {
	return item.Expiration > 0 && c.now().UnixNano() > item.Expiration
}

func (c *Cache) startCleanupTimer() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if c.expired(item) {
			delete(c.items, key)
		}
	}
}

// Stop ends the sweeper. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}
