package chain

import (
	"sync"
	"time"

	"github.com/stampchain-io/vault-plugin-stamps/txbuilder"
)

const (
	// MaxCacheAge is the maximum age of a cached transaction. Transactions
	// never change once seen, the limit only bounds memory held by
	// long-lived backends.
	MaxCacheAge = time.Hour

	// DefaultCacheEntries caps the memory cache.
	DefaultCacheEntries = 4096
)

// TxCache stores previous transactions by id.
type TxCache interface {
	Get(txid string) (*txbuilder.PrevTx, bool)
	Put(tx *txbuilder.PrevTx) error
}

type cachedTx struct {
	tx       *txbuilder.PrevTx
	storedAt time.Time
}

// MemoryCache is a TxCache held in process memory.
type MemoryCache struct {
	entries    map[string]cachedTx
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
	mu         sync.RWMutex
}

// NewMemoryCache creates a cache holding at most maxEntries transactions
// for at most maxAge. Zero values select the defaults.
func NewMemoryCache(maxEntries int, maxAge time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if maxAge <= 0 {
		maxAge = MaxCacheAge
	}
	return &MemoryCache{
		entries:    make(map[string]cachedTx),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Get returns the cached transaction if present and not too old.
func (c *MemoryCache) Get(txid string) (*txbuilder.PrevTx, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[txid]
	if !exists {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.maxAge {
		return nil, false
	}
	return entry.tx, true
}

// Put stores tx, evicting the oldest entries when full.
func (c *MemoryCache) Put(tx *txbuilder.PrevTx) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[tx.TxID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[tx.TxID] = cachedTx{tx: tx, storedAt: now}
	return nil
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *MemoryCache) evictLocked(now time.Time) {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.maxAge {
			delete(c.entries, id)
			continue
		}
		if oldestID == "" || entry.storedAt.Before(oldestAt) {
			oldestID, oldestAt = id, entry.storedAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestID != "" {
		delete(c.entries, oldestID)
	}
}

// Invalidate clears the cache.
func (c *MemoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cachedTx)
}

// Len returns the number of cached transactions.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
