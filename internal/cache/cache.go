// Package cache memoizes expensive upstream fetches under a
// time-bounded TTL with single-flight admission: at most one in-flight
// fetch per fingerprint, with concurrent callers sharing its outcome.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aqwatch/air-quality-aggregation/internal/airquality"
)

// FetchFunc performs the actual upstream call on a cache miss. An
// alias so *Cache satisfies the orchestrator's cache contract.
type FetchFunc = func(ctx context.Context) (*airquality.Payload, error)

type entry struct {
	payload    *airquality.Payload
	fetchedAt  time.Time
	expiresAt  time.Time
	lastAccess time.Time
}

// Cache is a concurrency-safe TTL memo cache keyed by query fingerprint.
// Entries are replaced atomically under the lock; failed fetches never
// leave an entry behind, so a later call retries from scratch.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	flight  singleflight.Group

	now func() time.Time // test hook

	hits      int64
	misses    int64
	evictions int64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Resolve returns the live payload for key if one exists; otherwise it
// admits exactly one caller to run fetch while concurrent callers for
// the same key await the shared outcome. The returned bool reports a
// cache hit: exactly one caller per upstream fetch observes a miss,
// waiters that joined the flight are reported as hits. A caller whose
// ctx is canceled gives up only its own wait; the shared fetch keeps
// running for the remaining waiters.
func (c *Cache) Resolve(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (*airquality.Payload, bool, error) {
	if p, ok := c.lookup(key); ok {
		atomic.AddInt64(&c.hits, 1)
		return p, true, nil
	}

	// Only set by the closure singleflight actually executes, so at
	// most one caller per flight sees it. The channel receive below
	// orders the write before the read.
	var fetched bool
	ch := c.flight.DoChan(key, func() (any, error) {
		// Another waiter may have stored the entry between our lookup
		// and admission.
		if p, ok := c.lookup(key); ok {
			return p, nil
		}
		p, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		fetched = true
		c.store(key, p, ttl)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, airquality.Unavailablef("", ctx.Err(), "caller abandoned wait")
	case res := <-ch:
		if res.Err != nil {
			atomic.AddInt64(&c.misses, 1)
			return nil, false, res.Err
		}
		if fetched {
			atomic.AddInt64(&c.misses, 1)
			return res.Val.(*airquality.Payload), false, nil
		}
		atomic.AddInt64(&c.hits, 1)
		return res.Val.(*airquality.Payload), true, nil
	}
}

func (c *Cache) lookup(key string) (*airquality.Payload, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		c.mu.RUnlock()
		return nil, false
	}
	p := e.payload
	c.mu.RUnlock()

	c.mu.Lock()
	if e2, ok := c.entries[key]; ok && e2 == e {
		e2.lastAccess = now
	}
	c.mu.Unlock()
	return p, true
}

func (c *Cache) store(key string, p *airquality.Payload, ttl time.Duration) {
	now := c.now()
	c.mu.Lock()
	c.entries[key] = &entry{
		payload:    p,
		fetchedAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
	c.mu.Unlock()
}

// Sweep removes entries whose TTL has passed and which have not been
// accessed for the grace window. Expired entries are already invisible
// to Resolve; the sweep only bounds memory.
func (c *Cache) Sweep(grace time.Duration) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) && now.Sub(e.lastAccess) > grace {
			delete(c.entries, key)
			removed++
		}
	}
	atomic.AddInt64(&c.evictions, int64(removed))
	return removed
}

// Len returns the number of entries currently held, live or expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Contains reports whether a live entry exists for key.
func (c *Cache) Contains(key string) bool {
	_, ok := c.lookup(key)
	return ok
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Entries:   c.Len(),
	}
}
