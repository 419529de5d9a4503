// Package currency provides exchange rate lookup, caching and conversion.
package currency

import (
	"sort"
	"sync"
	"time"

	"github.com/aristath/subwatch/internal/domain"
)

// RateCache is an in-memory exchange rate cache keyed by ordered currency pair.
// Entries past their TTL are kept so they can be served when every provider fails;
// they are removed only by Clear or Prune.
type RateCache struct {
	entries map[domain.Pair]domain.CachedRate
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
}

// NewRateCache creates an empty cache. A non-positive ttl uses TTLExchangeRate.
func NewRateCache(ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = TTLExchangeRate
	}
	return &RateCache{
		entries: make(map[domain.Pair]domain.CachedRate),
		now:     time.Now,
		ttl:     ttl,
	}
}

// TTL returns the freshness window
func (c *RateCache) TTL() time.Duration {
	return c.ttl
}

// Now returns the cache clock's current time
func (c *RateCache) Now() time.Time {
	return c.now()
}

// IsFresh reports whether entry is still within the TTL
func (c *RateCache) IsFresh(entry domain.CachedRate) bool {
	return c.now().Sub(entry.FetchedAt) < c.ttl
}

// Get returns the entry for pair regardless of age
func (c *RateCache) Get(pair domain.Pair) (domain.CachedRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[pair]
	return entry, ok
}

// GetIfFresh returns the entry for pair only if it is within the TTL
func (c *RateCache) GetIfFresh(pair domain.Pair) (domain.CachedRate, bool) {
	entry, ok := c.Get(pair)
	if !ok || !c.IsFresh(entry) {
		return domain.CachedRate{}, false
	}
	return entry, true
}

// Store records rate for pair as fetched now and returns the stored entry
func (c *RateCache) Store(pair domain.Pair, rate float64) domain.CachedRate {
	entry := domain.CachedRate{Pair: pair, Rate: rate, FetchedAt: c.now()}
	c.StoreEntry(entry)
	return entry
}

// StoreEntry records entry unless a newer one for the same pair is already cached.
// Returns false when the entry was discarded.
func (c *RateCache) StoreEntry(entry domain.CachedRate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[entry.Pair]; ok && existing.FetchedAt.After(entry.FetchedAt) {
		return false
	}
	c.entries[entry.Pair] = entry
	return true
}

// Clear removes every entry
func (c *RateCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.Pair]domain.CachedRate)
}

// Prune removes entries fetched more than maxAge ago and returns how many were removed
func (c *RateCache) Prune(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for pair, entry := range c.entries {
		if entry.FetchedAt.Before(cutoff) {
			delete(c.entries, pair)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached pairs
func (c *RateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of all entries ordered by pair
func (c *RateCache) Snapshot() []domain.CachedRate {
	c.mu.RLock()
	out := make([]domain.CachedRate, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Pair.String() < out[j].Pair.String()
	})
	return out
}
