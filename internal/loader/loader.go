// Package loader runs handle-producing work under a concurrency bound
// with strict-FIFO overflow queueing and per-key in-flight
// deduplication. The loader never retries and never surfaces errors:
// a failed or cancelled load resolves to a nil handle and the caller
// decides what happens next.
package loader

import (
	"fmt"
	"sync"

	"github.com/smileynet/mosaic/internal/cache"
)

// DefaultMaxInFlight caps simultaneous outstanding loads. The bound
// exists to limit outstanding I/O, not CPU contention.
const DefaultMaxInFlight = 12

// Producer performs one load: read bytes, build a renderable handle.
// It may block; errors and panics are absorbed at the task boundary.
type Producer func() (*cache.Handle, error)

// Deliver receives a load result. A nil handle means the load failed
// or was cancelled. Every subscriber of a deduplicated load receives
// the same handle.
type Deliver func(h *cache.Handle)

type key struct {
	id   string
	kind cache.Kind
}

func (k key) String() string {
	return fmt.Sprintf("%s/%s", k.id, k.kind)
}

// call is one outstanding load shared by all subscribers of its key.
type call struct {
	key         key
	produce     Producer
	subscribers []Deliver
	cancelled   bool
}

// Loader is a bounded worker gate over a FIFO queue with an in-flight
// dedup map. Safe for concurrent use.
type Loader struct {
	mu          sync.Mutex
	maxInFlight int
	active      int
	queue       []*call // strict FIFO overflow
	inflight    map[key]*call
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxInFlight sets the concurrency bound. Values below 1 are
// ignored in favor of the default.
func WithMaxInFlight(n int) Option {
	return func(l *Loader) {
		if n >= 1 {
			l.maxInFlight = n
		}
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{
		maxInFlight: DefaultMaxInFlight,
		inflight:    make(map[key]*call),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ensure schedules a load for (id, kind) unless one is already
// outstanding, in which case deliver subscribes to the existing load
// and produce is dropped. Returns true if a new load was scheduled.
//
// deliver runs on a worker goroutine; it must not call back into
// Ensure synchronously while holding its own locks in a way that
// could deadlock with the caller.
func (l *Loader) Ensure(id string, kind cache.Kind, produce Producer, deliver Deliver) bool {
	k := key{id: id, kind: kind}

	l.mu.Lock()
	if existing, ok := l.inflight[k]; ok {
		existing.subscribers = append(existing.subscribers, deliver)
		l.mu.Unlock()
		return false
	}

	c := &call{key: k, produce: produce, subscribers: []Deliver{deliver}}
	l.inflight[k] = c

	if l.active < l.maxInFlight {
		l.active++
		l.mu.Unlock()
		go l.run(c)
		return true
	}

	l.queue = append(l.queue, c)
	l.mu.Unlock()
	return true
}

// CancelAll resolves every queued load with nil immediately and marks
// every running load cancelled so its eventual result is discarded.
// Cancellation is cooperative: in-progress producers are not aborted.
// Cancelled calls leave the dedup map, so a later Ensure for the same
// key starts a fresh load instead of joining a doomed one.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	drained := l.queue
	l.queue = nil
	for _, c := range drained {
		c.cancelled = true
		delete(l.inflight, c.key)
	}
	for k, c := range l.inflight {
		c.cancelled = true
		delete(l.inflight, k)
	}
	l.mu.Unlock()

	for _, c := range drained {
		notify(c.subscribers, nil)
	}
}

// InFlight returns the number of loads currently outstanding,
// including queued ones.
func (l *Loader) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inflight)
}

// QueueLen returns the number of loads waiting for a worker slot.
func (l *Loader) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// run executes calls on one worker slot until the queue is drained,
// then frees the slot.
func (l *Loader) run(c *call) {
	for c != nil {
		h := safeProduce(c.produce)

		l.mu.Lock()
		if l.inflight[c.key] == c {
			delete(l.inflight, c.key)
		}
		cancelled := c.cancelled
		subs := c.subscribers
		next := l.nextLocked()
		l.mu.Unlock()

		if cancelled && h != nil {
			// Nobody will own this handle; release it here.
			h.Discard()
			h = nil
		}
		notify(subs, h)

		c = next
	}
}

// nextLocked frees the caller's worker slot and claims the next
// queued call, if any. Strict FIFO: the oldest queued call runs next.
func (l *Loader) nextLocked() *call {
	if len(l.queue) == 0 {
		l.active--
		return nil
	}
	next := l.queue[0]
	l.queue = l.queue[1:]
	return next
}

// safeProduce runs a producer, converting errors and panics into a
// nil handle. I/O failure is data here, not control flow.
func safeProduce(produce Producer) (h *cache.Handle) {
	defer func() {
		if recover() != nil {
			h = nil
		}
	}()
	h, err := produce()
	if err != nil {
		return nil
	}
	return h
}

// notify delivers a result to every subscriber in subscription order.
func notify(subs []Deliver, h *cache.Handle) {
	for _, deliver := range subs {
		if deliver != nil {
			deliver(h)
		}
	}
}
