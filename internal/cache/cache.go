// Package cache implements a capacity-bounded LRU cache of renderable
// tile handles keyed by item ID. The cache is the sole owner of every
// handle it holds: eviction, replacement, removal, and teardown are the
// only paths that release a handle, and each handle is released exactly
// once.
package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
)

// ErrCapacity indicates a requested capacity below the minimum of 1.
// A zero capacity would evict every insert immediately and defeat
// in-flight deduplication, so it is rejected rather than clamped.
var ErrCapacity = errors.New("cache: capacity must be at least 1")

// DefaultCapacity is the entry bound used when none is configured.
const DefaultCapacity = 512

// Cache is a concurrency-safe LRU map from item ID to renderable
// handles. Each entry holds up to one handle per Kind; an entry with
// no handles left is removed, never kept empty.
type Cache struct {
	mu        sync.Mutex
	order     *list.List // front = most recently used
	entries   map[string]*list.Element
	capacity  int
	byteSize  int64
	onRelease func(id string, kind Kind, err error)
}

// entry is the list element payload. handles is indexed by Kind.
type entry struct {
	id      string
	handles [kindCount]*Handle
}

// Option configures a Cache.
type Option func(*Cache)

// WithCapacity sets the entry bound. Values below 1 are ignored in
// favor of DefaultCapacity; use SetCapacity for validated changes.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n >= 1 {
			c.capacity = n
		}
	}
}

// WithReleaseErrorHook sets a hook invoked when a handle's release
// callback panics. The panic is recovered and reported here; it never
// propagates into cache bookkeeping.
func WithReleaseErrorHook(fn func(id string, kind Kind, err error)) Option {
	return func(c *Cache) { c.onRelease = fn }
}

// New creates a Cache with the given options.
func New(opts ...Option) *Cache {
	c := &Cache{
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the handle of the given kind for id, touching the entry
// (moving it to the most-recently-used position). A miss has no side
// effects.
func (c *Cache) Get(id string, kind Kind) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	h := el.Value.(*entry).handles[kind]
	return h, h != nil
}

// Peek returns the handle of the given kind for id without disturbing
// LRU order. Use for existence checks on the paint path.
func (c *Cache) Peek(id string, kind Kind) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	h := el.Value.(*entry).handles[kind]
	return h, h != nil
}

// Put stores a handle of the given kind for id, creating the entry if
// needed. An existing handle of the same kind is released before being
// replaced. The insert counts as a touch, and eviction runs afterward
// if the entry count exceeded capacity. A nil handle is a no-op.
func (c *Cache) Put(id string, kind Kind, h *Handle) {
	if h == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[id]; ok {
		e := el.Value.(*entry)
		if old := e.handles[kind]; old != nil {
			c.release(id, kind, old)
		}
		e.handles[kind] = h
		c.byteSize += int64(h.Size)
		c.order.MoveToFront(el)
		return
	}

	e := &entry{id: id}
	e.handles[kind] = h
	c.entries[id] = c.order.PushFront(e)
	c.byteSize += int64(h.Size)
	c.evictLocked()
}

// RemoveMany removes the given ids, releasing every handle each one
// holds. Unknown ids are skipped.
func (c *Cache) RemoveMany(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		el, ok := c.entries[id]
		if !ok {
			continue
		}
		c.removeLocked(el)
	}
}

// Clear releases every handle and empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		c.removeLocked(el)
		el = next
	}
}

// SetCapacity changes the entry bound, evicting down to the new bound
// immediately when shrinking. Values below 1 return ErrCapacity.
func (c *Cache) SetCapacity(n int) error {
	if n < 1 {
		return fmt.Errorf("%w, got %d", ErrCapacity, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacity = n
	c.evictLocked()
	return nil
}

// Len returns the number of entries (items, not handles).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ByteSize returns the total accounted size of all held handles.
func (c *Cache) ByteSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byteSize
}

// Capacity returns the current entry bound.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// evictLocked pops least-recently-used entries until the entry count
// is within capacity. Each popped entry's handles are released.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			return
		}
		c.removeLocked(oldest)
	}
}

// removeLocked detaches an entry and releases its handles.
func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.id)
	for kind, h := range e.handles {
		if h != nil {
			c.release(e.id, Kind(kind), h)
		}
	}
}

// release invokes a handle's release callback, accounting for its
// size. A release that panics is recovered and reported through the
// hook; broken releases must not corrupt bookkeeping.
func (c *Cache) release(id string, kind Kind, h *Handle) {
	c.byteSize -= int64(h.Size)
	if err := h.release(); err != nil && c.onRelease != nil {
		c.onRelease(id, kind, err)
	}
}
