package cache

import (
	"context"
	"sync"
	"time"
)

// LoaderFunc fetches the value for a cache key from the backing store.
type LoaderFunc func(ctx context.Context) (interface{}, error)

type entry struct {
	value     interface{}
	err       error
	hasValue  bool
	fetchedAt time.Time
	stale     bool
	version   int           // bumped by Invalidate; a load commits fresh only if unchanged
	inflight  chan struct{} // closed when the owning load finishes; nil when idle
}

// Cache is a read-through query cache keyed by logical resource. Entries age
// out after a per-call stale time, can be invalidated explicitly, and
// concurrent loads for the same key collapse into a single loader call.
//
// A failed refetch never clears a previously loaded value: the old value stays
// readable (returned alongside the load error) until a later load succeeds.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]*entry),
	}
}

// Get returns the cached value for key if it is fresh, otherwise loads it.
// All callers that arrive while a load is in flight share that load's result.
// The loader is retried once on failure; after that the error is cached until
// the entry goes stale or is invalidated, so a failing backend is not hammered
// by every render.
func (c *Cache) Get(ctx context.Context, key string, staleTime time.Duration, loader LoaderFunc) (interface{}, error) {
	c.mu.Lock()
	e := c.entries[key]
	if e == nil {
		e = &entry{}
		c.entries[key] = e
	}

	for {
		if e.inflight == nil {
			if !e.fetchedAt.IsZero() && !e.stale && time.Since(e.fetchedAt) < staleTime {
				value, err := e.value, e.err
				c.mu.Unlock()
				return value, err
			}
			break
		}

		wait := e.inflight
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
	}

	done := make(chan struct{})
	e.inflight = done
	version := e.version
	c.mu.Unlock()

	value, err := loader(ctx)
	if err != nil && ctx.Err() == nil {
		value, err = loader(ctx)
	}

	c.mu.Lock()
	e.fetchedAt = time.Now()
	// An Invalidate that raced this load means the result may predate the
	// write; the entry stays stale so the next Get refetches.
	e.stale = e.version != version
	e.err = err
	if err == nil {
		e.value = value
		e.hasValue = true
	}
	e.inflight = nil
	value, err = e.value, e.err
	close(done)
	c.mu.Unlock()

	return value, err
}

// Invalidate marks the entry stale so the next Get refetches. It never
// refetches synchronously and is idempotent: any number of invalidations
// before the next Get still cost exactly one reload. An invalidation that
// lands while a load is in flight also sticks: that load commits stale and
// the next Get refetches.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	if e := c.entries[key]; e != nil {
		e.stale = true
		e.version++
	}
	c.mu.Unlock()
}

// Peek returns the cached value without triggering a load. ok is false when
// the key has never loaded successfully.
func (c *Cache) Peek(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil || !e.hasValue {
		return nil, false
	}
	return e.value, true
}
