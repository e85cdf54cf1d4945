package metacache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

// FetchFn populates one cache key. Retry policy belongs to the fetch
// function, not the cache.
type FetchFn func(ctx context.Context) (any, error)

// Cache is an in-memory TTL cache for on-chain collectible metadata.
// Expiry is lazy (checked on read, never swept); bounding growth is the
// caller's job via Invalidate/Clear on logout or known-stale events.
// Concurrent GetOrFetch calls for one key coalesce into a single fetch.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	gens    map[string]uint64
	epoch   uint64
	hits    uint64
	misses  uint64

	sf singleflight.Group
}

type entry struct {
	value    any
	storedAt time.Time
}

// Stats is a read-only snapshot for introspection.
type Stats struct {
	EntryCount     int
	OldestEntryAge time.Duration
	Hits           uint64
	Misses         uint64
}

func New(ttl time.Duration) *Cache {
	return NewWithClock(ttl, time.Now)
}

// NewWithClock builds a cache with a fixed clock source.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]entry),
		gens:    make(map[string]uint64),
	}
}

// GetOrFetch returns the cached value for key, or invokes fetch to
// populate it. At most one fetch is outstanding per key; all concurrent
// callers receive the same resolved value or the same propagated failure.
// Failures are never stored; the next call retries from scratch.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFn) (any, error) {
	if v, ok := c.lookup(key, true); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// A concurrent flight may have settled between the miss above and
		// this goroutine winning the flight slot.
		if v, ok := c.lookup(key, false); ok {
			return v, nil
		}
		c.mu.Lock()
		gen, epoch := c.gens[key], c.epoch
		c.mu.Unlock()

		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// An Invalidate or Clear that raced the fetch marked this result
		// stale before it arrived. Waiters still receive it; the cache
		// does not keep it.
		if c.gens[key] == gen && c.epoch == epoch {
			c.entries[key] = entry{value: v, storedAt: c.now()}
		}
		c.mu.Unlock()
		return v, nil
	})
	return v, err
}

// lookup reports a live entry, treating expired entries as absent.
func (c *Cache) lookup(key string, count bool) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		ok = false
	}
	if count {
		if ok {
			c.hits++
		} else {
			c.misses++
		}
	}
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Invalidate removes one entry immediately regardless of TTL and detaches
// any in-flight fetch for the key so the next call starts fresh. A fetch
// already running when Invalidate is called settles its waiters but its
// result is never stored.
func (c *Cache) Invalidate(key string) {
	c.sf.Forget(key)
	c.mu.Lock()
	c.gens[key]++
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear removes all entries and marks every in-flight fetch stale.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.epoch++
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{EntryCount: len(c.entries), Hits: c.hits, Misses: c.misses}
	now := c.now()
	for _, e := range c.entries {
		if age := now.Sub(e.storedAt); age > s.OldestEntryAge {
			s.OldestEntryAge = age
		}
	}
	return s
}

// OwnershipKey addresses raw-ownership lookups for an owner.
func OwnershipKey(owner common.Address) string {
	return strings.ToLower(owner.Hex()) + ":ownership"
}

// CollectionKey addresses metadata-enriched collection lookups for an owner.
func CollectionKey(owner common.Address) string {
	return strings.ToLower(owner.Hex()) + ":collection"
}
