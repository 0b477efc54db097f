// Package orchestrator drives the loading pipeline: it decides which
// items of the current list still need renderable handles, orders
// them so the viewport is served first, dispatches work through the
// concurrency-limited loader, retries transient failures with
// backoff, and invalidates stale completions after a list
// replacement.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/smileynet/mosaic/internal/cache"
	"github.com/smileynet/mosaic/internal/loader"
	"github.com/smileynet/mosaic/internal/source"
	"github.com/smileynet/mosaic/internal/viewport"
)

// Defaults for the retry and scheduling policy.
const (
	// DefaultThumbnailRetries is the retry budget for thumbnail
	// loads; a load is attempted at most budget+1 times.
	DefaultThumbnailRetries = 3
	// DefaultOriginalRetries is the retry budget for original loads.
	DefaultOriginalRetries = 2
	// DefaultBackoffBase is the first retry delay; it doubles per
	// retry up to DefaultBackoffMax.
	DefaultBackoffBase = 450 * time.Millisecond
	// DefaultBackoffMax caps the retry delay.
	DefaultBackoffMax = 5 * time.Second
	// DefaultWorkingSetLimit is the list size above which the
	// candidate scan is restricted to the visible range, so the
	// viewport never starves behind thousands of off-screen items.
	DefaultWorkingSetLimit = 2000
	// DefaultHoldWindow is how long dispatching is deferred after an
	// interaction burst is signalled.
	DefaultHoldWindow = 150 * time.Millisecond
)

// ReadFunc is the byte-read primitive supplied by the source layer.
type ReadFunc func(ctx context.Context, path string) ([]byte, error)

// BuildFunc turns raw bytes into a renderable handle. pathHint
// carries the origin path so the builder can sniff the format.
type BuildFunc func(data []byte, pathHint string, kind cache.Kind) (*cache.Handle, error)

// Status is the terminal state of one (item, kind) load reported
// through the status callback.
type Status string

const (
	// StatusLoaded means a handle was written to the cache.
	StatusLoaded Status = "loaded"
	// StatusFailed means the retry budget is exhausted; the item
	// stays without that handle until an explicit reload.
	StatusFailed Status = "failed"
)

// StatusUpdate is delivered to the status callback when a load
// settles. Attempts counts every producer invocation.
type StatusUpdate struct {
	ID       string
	Kind     cache.Kind
	Status   Status
	Attempts int
}

// StatusCallback receives settle notifications. It is invoked from
// loader worker goroutines and must be safe for that.
type StatusCallback func(StatusUpdate)

// taskKey identifies one unit of bookkeeping.
type taskKey struct {
	id   string
	kind cache.Kind
}

// Orchestrator composes the cache, the loader, and the viewport
// estimator into the loading pipeline. Safe for concurrent use.
type Orchestrator struct {
	cache  *cache.Cache
	ldr    *loader.Loader
	read   ReadFunc
	build  BuildFunc
	notify StatusCallback

	thumbRetries    int
	origRetries     int
	backoffBase     time.Duration
	backoffMax      time.Duration
	workingSetLimit int
	holdWindow      time.Duration

	mu       sync.Mutex
	epoch    uint64
	identity map[string]struct{}
	loaded   [2]map[string]struct{} // indexed by cache.Kind
	retries  map[taskKey]int        // failures so far
	timers   map[taskKey]*time.Timer
	terminal map[taskKey]struct{}
	holdOff  time.Time
	rearmed  bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStatusCallback sets the settle notification callback.
func WithStatusCallback(cb StatusCallback) Option {
	return func(o *Orchestrator) { o.notify = cb }
}

// WithRetryBudgets overrides the per-kind retry budgets. Negative
// values keep the defaults.
func WithRetryBudgets(thumbnail, original int) Option {
	return func(o *Orchestrator) {
		if thumbnail >= 0 {
			o.thumbRetries = thumbnail
		}
		if original >= 0 {
			o.origRetries = original
		}
	}
}

// WithBackoff overrides the retry backoff curve.
func WithBackoff(base, max time.Duration) Option {
	return func(o *Orchestrator) {
		if base > 0 {
			o.backoffBase = base
		}
		if max > 0 {
			o.backoffMax = max
		}
	}
}

// WithWorkingSetLimit overrides the list size above which candidate
// scanning is restricted to the visible range.
func WithWorkingSetLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workingSetLimit = n
		}
	}
}

// WithHoldWindow overrides the interaction deferral window. Zero
// disables deferral entirely.
func WithHoldWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.holdWindow = d
		}
	}
}

// New creates an Orchestrator over the given cache and loader, with
// read and build as the storage and rendering collaborators.
func New(c *cache.Cache, l *loader.Loader, read ReadFunc, build BuildFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:           c,
		ldr:             l,
		read:            read,
		build:           build,
		notify:          func(StatusUpdate) {},
		thumbRetries:    DefaultThumbnailRetries,
		origRetries:     DefaultOriginalRetries,
		backoffBase:     DefaultBackoffBase,
		backoffMax:      DefaultBackoffMax,
		workingSetLimit: DefaultWorkingSetLimit,
		holdWindow:      DefaultHoldWindow,
	}
	o.resetStateLocked()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Reconcile inspects the item snapshot against the cache and
// dispatches loads for everything still missing, visible items first.
// The snapshot replaces the identity set: completions for ids no
// longer present are discarded. needOriginal additionally requests
// full-resolution handles for the working set.
//
// Everything here is synchronous map and slice work; the only
// suspension happens inside loader workers.
func (o *Orchestrator) Reconcile(items []source.Item, m viewport.Metrics, needOriginal bool) {
	o.mu.Lock()

	o.identity = make(map[string]struct{}, len(items))
	for _, it := range items {
		o.identity[it.ID] = struct{}{}
	}

	if o.holdWindow > 0 && time.Now().Before(o.holdOff) {
		// Interaction burst in progress: defer dispatching, but only
		// arm one deferred attempt at a time.
		if !o.rearmed {
			o.rearmed = true
			epoch := o.epoch
			snapshot := append([]source.Item(nil), items...)
			delay := time.Until(o.holdOff)
			time.AfterFunc(delay, func() {
				o.mu.Lock()
				o.rearmed = false
				stale := o.epoch != epoch
				o.mu.Unlock()
				if !stale {
					o.Reconcile(snapshot, m, needOriginal)
				}
			})
		}
		o.mu.Unlock()
		return
	}

	m.TotalItems = len(items)
	visible := viewport.Visible(m)

	// Working-set bound: for very large lists only the visible range
	// is scanned at all. With no usable viewport there is no visible
	// range, so nothing dispatches until one arrives.
	scanFrom, scanTo := 0, len(items)-1
	if len(items) > o.workingSetLimit {
		if visible.Empty() {
			o.mu.Unlock()
			return
		}
		scanFrom, scanTo = visible.Start, visible.End
	}

	kinds := []cache.Kind{cache.Thumbnail}
	if needOriginal {
		kinds = append(kinds, cache.Original)
	}

	// Stable partition: visible candidates dispatch before off-screen
	// ones, preserving scan order within each part.
	var near, far []dispatch
	for i := scanFrom; i <= scanTo && i < len(items); i++ {
		it := items[i]
		for _, kind := range kinds {
			if !o.needsLocked(it.ID, kind) {
				continue
			}
			path := it.PrimaryPath
			if kind == cache.Thumbnail {
				path = it.ThumbSource()
			}
			d := dispatch{id: it.ID, kind: kind, path: path}
			if visible.Contains(i) {
				near = append(near, d)
			} else {
				far = append(far, d)
			}
		}
	}

	epoch := o.epoch
	o.mu.Unlock()

	for _, d := range near {
		o.dispatch(d, epoch)
	}
	for _, d := range far {
		o.dispatch(d, epoch)
	}
}

// dispatch is one candidate load.
type dispatch struct {
	id   string
	kind cache.Kind
	path string
}

// needsLocked reports whether (id, kind) still needs a load. The
// loaded set is the fast path; the cache stays authoritative so an
// evicted entry becomes a candidate again.
func (o *Orchestrator) needsLocked(id string, kind cache.Kind) bool {
	if _, dead := o.terminal[taskKey{id, kind}]; dead {
		return false
	}
	if _, ok := o.loaded[kind][id]; ok {
		if _, cached := o.cache.Peek(id, kind); cached {
			return false
		}
		delete(o.loaded[kind], id) // evicted since it was loaded
	}
	return true
}

// dispatch hands one load to the loader. The delivery closure runs on
// a worker goroutine and is guarded by the captured epoch.
func (o *Orchestrator) dispatch(d dispatch, epoch uint64) {
	produce := func() (*cache.Handle, error) {
		data, err := o.read(context.Background(), d.path)
		if err != nil {
			return nil, err
		}
		return o.build(data, d.path, d.kind)
	}
	o.ldr.Ensure(d.id, d.kind, produce, func(h *cache.Handle) {
		o.settle(d, epoch, h)
	})
}

// settle processes one load completion: a cache write on success, a
// retry or terminal failure otherwise. Completions from a previous
// epoch, or for ids that left the identity set, are dropped (their
// handle is released here since no cache will ever own it).
func (o *Orchestrator) settle(d dispatch, epoch uint64, h *cache.Handle) {
	o.mu.Lock()

	if o.epoch != epoch {
		o.mu.Unlock()
		if h != nil {
			h.Discard()
		}
		return
	}
	if _, ok := o.identity[d.id]; !ok {
		o.mu.Unlock()
		if h != nil {
			h.Discard()
		}
		return
	}

	k := taskKey{d.id, d.kind}

	if h != nil {
		attempts := o.retries[k] + 1
		o.loaded[d.kind][d.id] = struct{}{}
		delete(o.retries, k)
		o.stopTimerLocked(k)
		// The write stays inside the critical section that checked the
		// epoch and identity set, so a concurrent Reset or RemoveIDs
		// cannot slip between the check and the Put.
		o.cache.Put(d.id, d.kind, h)
		o.mu.Unlock()

		o.notify(StatusUpdate{ID: d.id, Kind: d.kind, Status: StatusLoaded, Attempts: attempts})
		return
	}

	fails := o.retries[k] + 1
	budget := o.retryBudget(d.kind)
	if fails > budget {
		// Retry budget exhausted: terminal until an explicit reload.
		delete(o.retries, k)
		o.terminal[k] = struct{}{}
		o.stopTimerLocked(k)
		o.mu.Unlock()
		o.notify(StatusUpdate{ID: d.id, Kind: d.kind, Status: StatusFailed, Attempts: fails})
		return
	}

	o.retries[k] = fails
	if _, pending := o.timers[k]; pending {
		// A retry is already scheduled; never stack a second timer.
		o.mu.Unlock()
		return
	}
	delay := backoff(o.backoffBase, o.backoffMax, fails)
	o.timers[k] = time.AfterFunc(delay, func() {
		o.mu.Lock()
		delete(o.timers, k)
		if o.epoch != epoch {
			o.mu.Unlock()
			return
		}
		if _, ok := o.identity[d.id]; !ok {
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()
		o.dispatch(d, epoch)
	})
	o.mu.Unlock()
}

// retryBudget returns the per-kind retry budget.
func (o *Orchestrator) retryBudget(kind cache.Kind) int {
	if kind == cache.Original {
		return o.origRetries
	}
	return o.thumbRetries
}

// backoff returns min(max, base * 2^(attempt-1)).
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Handle returns the cached handle for id and kind, touching LRU
// order. This is the renderer's read path for focused content.
func (o *Orchestrator) Handle(id string, kind cache.Kind) (*cache.Handle, bool) {
	return o.cache.Get(id, kind)
}

// Peek returns the cached handle without touching LRU order; use it
// on the paint path where iteration must not reorder the cache.
func (o *Orchestrator) Peek(id string, kind cache.Kind) (*cache.Handle, bool) {
	return o.cache.Peek(id, kind)
}

// Failed reports whether (id, kind) has exhausted its retry budget.
func (o *Orchestrator) Failed(id string, kind cache.Kind) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.terminal[taskKey{id, kind}]
	return ok
}

// ForceReload clears terminal-failure and loaded bookkeeping for id
// so the next Reconcile schedules it again.
func (o *Orchestrator) ForceReload(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for kind := cache.Thumbnail; kind <= cache.Original; kind++ {
		k := taskKey{id, kind}
		delete(o.terminal, k)
		delete(o.retries, k)
		delete(o.loaded[kind], id)
		o.stopTimerLocked(k)
	}
}

// NoteInteraction signals a high-interaction period (drag, rapid
// scroll). New dispatches are deferred for the hold window; loads
// already running are never cancelled by this.
func (o *Orchestrator) NoteInteraction() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.holdOff = time.Now().Add(o.holdWindow)
}

// Reset invalidates everything after a wholesale list replacement.
// The epoch bump makes any already-in-flight completion a no-op
// before the loader is drained, so no stale handle can be written
// under the new list.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.epoch++
	for _, t := range o.timers {
		t.Stop()
	}
	o.resetStateLocked()
	o.mu.Unlock()

	o.ldr.CancelAll()
}

// RemoveIDs handles explicit item deletion: handles are released via
// the cache, bookkeeping and pending retry timers are dropped, and
// the ids leave the identity set so in-flight completions for them
// are discarded.
func (o *Orchestrator) RemoveIDs(ids []string) {
	o.mu.Lock()
	for _, id := range ids {
		delete(o.identity, id)
		for kind := cache.Thumbnail; kind <= cache.Original; kind++ {
			k := taskKey{id, kind}
			delete(o.loaded[kind], id)
			delete(o.retries, k)
			delete(o.terminal, k)
			o.stopTimerLocked(k)
		}
	}
	o.mu.Unlock()

	o.cache.RemoveMany(ids)
}

// SetCapacity forwards a capacity change to the cache.
func (o *Orchestrator) SetCapacity(n int) error {
	return o.cache.SetCapacity(n)
}

// Close tears the pipeline down: outstanding work is invalidated and
// every cached handle is released.
func (o *Orchestrator) Close() {
	o.Reset()
	o.cache.Clear()
}

// resetStateLocked reinstalls empty bookkeeping.
func (o *Orchestrator) resetStateLocked() {
	o.identity = make(map[string]struct{})
	o.loaded[cache.Thumbnail] = make(map[string]struct{})
	o.loaded[cache.Original] = make(map[string]struct{})
	o.retries = make(map[taskKey]int)
	o.timers = make(map[taskKey]*time.Timer)
	o.terminal = make(map[taskKey]struct{})
}

// stopTimerLocked cancels and forgets a pending retry timer. A timer
// that already fired is harmless: its callback re-checks epoch and
// identity before dispatching.
func (o *Orchestrator) stopTimerLocked(k taskKey) {
	if t, ok := o.timers[k]; ok {
		t.Stop()
		delete(o.timers, k)
	}
}
