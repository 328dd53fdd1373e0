// Package cache provides the in-process cache binding inline-query results
// to the tracks they represent.
package cache

import (
	"container/list"
	"sync"

	"norelock.dev/nowplaying/bot/internal/models"
)

// DefaultQueryCapacity is the bound on concurrently live result entries.
// It covers realistic concurrent query sessions, not total track volume;
// entries are best-effort and evaporate with the process.
const DefaultQueryCapacity = 100

type queryEntry struct {
	key   string
	track *models.Track
}

// QueryCache is a bounded, least-recently-used mapping from an inline-query
// result identifier to the track it represents. An entry lives only between
// "result shown" and "result selected or evicted"; a key maps to exactly one
// track for its lifetime and is never mutated, only removed.
//
// QueryCache is safe for concurrent use.
type QueryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[string]*list.Element
}

// NewQueryCache creates a QueryCache holding at most capacity entries.
// A non-positive capacity falls back to DefaultQueryCapacity.
func NewQueryCache(capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = DefaultQueryCapacity
	}
	return &QueryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element, capacity),
	}
}

// Put inserts the key or refreshes its recency. When the cache is at
// capacity, the least-recently-used entry is evicted first.
func (c *QueryCache) Put(key string, track *models.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*queryEntry).track = track
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*queryEntry).key)
		}
	}

	c.entries[key] = c.order.PushFront(&queryEntry{key: key, track: track})
}

// Get looks up the track for key without removing it. The second return is
// false for unknown or evicted keys; selection events for those are expected
// to be silently dropped by the caller.
func (c *QueryCache) Get(key string) (*models.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*queryEntry).track, true
}

// Len returns the number of live entries.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
