package category

import (
	"sync"
	"time"

	"github.com/anonto42/reviewinn/backend/internal/metrics"
)

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// ReadCache caches category reads for ttl. Any write flushes the whole
// namespace and bumps the generation, so a load that started before the
// flush cannot store its result afterwards.
type ReadCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	gen     uint64
	ttl     time.Duration
	now     func() time.Time
}

func NewReadCache(ttl time.Duration) *ReadCache {
	return &ReadCache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func (c *ReadCache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		metrics.CategoryCacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CategoryCacheRequests.WithLabelValues("hit").Inc()
	return e.value, true
}

func (c *ReadCache) Set(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Generation changes on every Flush.
func (c *ReadCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// SetAt stores value only if no Flush happened since gen was read.
func (c *ReadCache) SetAt(gen uint64, key string, value interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

// Flush drops every entry.
func (c *ReadCache) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.gen++
	c.mu.Unlock()
}

func (c *ReadCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cached returns the value under key, loading and storing it on a miss.
// A nil cache always loads.
func cached[T any](c *ReadCache, key string, load func() (T, error)) (T, error) {
	var gen uint64
	if c != nil {
		if v, ok := c.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
		gen = c.Generation()
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if c != nil {
		c.SetAt(gen, key, v)
	}
	return v, nil
}
