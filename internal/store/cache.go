// Package store persists rounds: a durable document store behind a
// write-through cache, a per-round mutation lock, the index of each player's
// live round and the immutable history verification reads from.
package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// Key addresses a cache entry
type Key struct {
	Namespace string
	Name      string
}

func (k Key) String() string { return k.Namespace + ":" + k.Name }

// Cache is a byte cache with per-entry expiry
type Cache interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key Key) error
}

type cacheEntry struct {
	key     Key
	value   []byte
	expires time.Time
}

// MemoryCache is an in-process Cache holding at most capacity entries. The
// least recently used entry is evicted first and expired entries are dropped
// when read.
type MemoryCache struct {
	mu       sync.Mutex
	clock    quartz.Clock
	capacity int
	order    *list.List
	entries  map[Key]*list.Element
}

// NewMemoryCache returns a cache bounded to capacity entries. A capacity of
// zero or less means unbounded.
func NewMemoryCache(clock quartz.Clock, capacity int) *MemoryCache {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &MemoryCache{
		clock:    clock,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[Key]*list.Element),
	}
}

// Get returns a copy of the value stored under key
func (c *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*cacheEntry)
	if !entry.expires.IsZero() && !c.clock.Now().Before(entry.expires) {
		c.remove(el)
		return nil, false, nil
	}
	c.order.MoveToFront(el)
	return append([]byte(nil), entry.value...), true, nil
}

// Set stores value under key for ttl. A ttl of zero never expires.
func (c *MemoryCache) Set(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &cacheEntry{key: key, value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = c.clock.Now().Add(ttl)
	}
	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return nil
	}
	c.entries[key] = c.order.PushFront(entry)
	for c.capacity > 0 && c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
	return nil
}

// Delete removes key
func (c *MemoryCache) Delete(_ context.Context, key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

// Len returns the number of entries held, expired or not
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}
