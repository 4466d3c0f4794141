package client

import (
	"strconv"
	"sync"
	"time"

	"github.com/noah-isme/toko-tierprice/internal/quote"
)

// Stats summarises the local cache contents.
type Stats struct {
	Total   int           `json:"total"`
	Expired int           `json:"expired"`
	Active  int           `json:"active"`
	TTL     time.Duration `json:"ttl"`
}

type cacheEntry struct {
	payload quote.Payload
	stored  time.Time
}

// LocalCache remembers quote payloads per product and quantity for a short TTL.
// Entries are valid while now-stored < TTL. Once MaxEntries is reached the
// next new key clears the whole cache.
type LocalCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewLocalCache constructs a cache. maxEntries <= 0 disables the ceiling.
func NewLocalCache(ttl time.Duration, maxEntries int) *LocalCache {
	return &LocalCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func cacheKey(productID int64, qty int) string {
	return strconv.FormatInt(productID, 10) + "_" + strconv.Itoa(qty)
}

// Get returns the payload for the pair. Expired entries are removed on read.
func (c *LocalCache) Get(productID int64, qty int) (quote.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(productID, qty)
	entry, ok := c.entries[key]
	if !ok {
		return quote.Payload{}, false
	}
	if !c.fresh(entry, c.now()) {
		delete(c.entries, key)
		return quote.Payload{}, false
	}
	return entry.payload, true
}

// Put stores payload. It reports whether the ceiling forced a full clear.
func (c *LocalCache) Put(productID int64, qty int, payload quote.Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(productID, qty)
	cleared := false
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]cacheEntry)
		cleared = true
	}
	c.entries[key] = cacheEntry{payload: payload, stored: c.now()}
	return cleared
}

// Sweep removes expired entries and returns how many were dropped.
func (c *LocalCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if !c.fresh(entry, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *LocalCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *LocalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats counts total, expired and active entries.
func (c *LocalCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	stats := Stats{Total: len(c.entries), TTL: c.ttl}
	for _, entry := range c.entries {
		if !c.fresh(entry, now) {
			stats.Expired++
		}
	}
	stats.Active = stats.Total - stats.Expired
	return stats
}

func (c *LocalCache) fresh(entry cacheEntry, now time.Time) bool {
	return now.Sub(entry.stored) < c.ttl
}
