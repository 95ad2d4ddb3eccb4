package cache

import (
	"sync"
	"time"

	"stockdash/internal/quote"
)

// DefaultTTL is the freshness window applied when TTL is unset.
const DefaultTTL = time.Hour

// entry stores one quote with the wall-clock time it was written.
type entry struct {
	data      quote.Quote
	timestamp time.Time
}

// Cache keeps quotes per requested key. Entries are never evicted: Get honors
// the TTL, GetStale ignores it. The zero value is ready to use.
type Cache struct {
	TTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time

	mu    sync.Mutex
	items map[string]entry
}

// New returns a Cache with the default TTL.
func New() *Cache { return &Cache{TTL: DefaultTTL} }

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Cache) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

// Get returns the quote stored under key only while it is younger than the TTL.
func (c *Cache) Get(key string) (quote.Quote, bool) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || now.Sub(e.timestamp) >= c.ttl() {
		return quote.Quote{}, false
	}
	return e.data, true
}

// GetStale returns whatever was last stored under key, regardless of age.
func (c *Cache) GetStale(key string) (quote.Quote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	return e.data, ok
}

// Set overwrites the value and timestamp for key.
func (c *Cache) Set(key string, q quote.Quote) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[key] = entry{data: q, timestamp: now}
}

// Len reports how many keys have ever been written.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
