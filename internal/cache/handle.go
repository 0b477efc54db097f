package cache

import (
	"fmt"
	"sync/atomic"
)

// Kind distinguishes the two renderable resources an item can have.
type Kind int

const (
	// Thumbnail is the grid tile rendering of an item.
	Thumbnail Kind = iota
	// Original is the full-resolution rendering of an item.
	Original

	kindCount = 2
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case Thumbnail:
		return "thumbnail"
	case Original:
		return "original"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Handle is an opaque renderable resource plus the bookkeeping the
// cache needs: an accounted byte size and a release callback. The
// resource itself is whatever the rendering layer produced (cell art,
// a decoded image); the cache never inspects it.
type Handle struct {
	// Resource is the renderable payload. Consumers type-assert it.
	Resource any
	// Size is the accounted byte size of the resource.
	Size int

	releaseFn func()
	released  atomic.Bool
}

// NewHandle wraps a resource with its size and release callback.
// releaseFn may be nil for resources with no cleanup.
func NewHandle(resource any, size int, releaseFn func()) *Handle {
	return &Handle{Resource: resource, Size: size, releaseFn: releaseFn}
}

// release runs the release callback at most once, recovering a panic
// into an error. Only the cache (or a loader discarding a result that
// will never reach the cache) calls this.
func (h *Handle) release() (err error) {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if h.releaseFn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: release panicked: %v", r)
		}
	}()
	h.releaseFn()
	return nil
}

// Discard releases a handle that never entered a cache, such as a
// load result arriving after cancellation. Safe to call on a handle
// the cache later receives only because release is once-guarded, but
// callers must hand a handle to exactly one owner.
func (h *Handle) Discard() {
	_ = h.release()
}

// Released reports whether the handle's release callback has run.
func (h *Handle) Released() bool {
	return h.released.Load()
}
