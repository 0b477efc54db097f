package cache

import (
	"fmt"
	"sync"
	"testing"
)

// countingHandle returns a handle whose release increments *n.
func countingHandle(size int, n *int) *Handle {
	return NewHandle("res", size, func() { *n++ })
}

func TestGet_Miss(t *testing.T) {
	c := New(WithCapacity(2))
	if _, ok := c.Get("missing", Thumbnail); ok {
		t.Fatal("Get(missing) = hit, want miss")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after miss, want 0", c.Len())
	}
}

func TestPut_Get(t *testing.T) {
	c := New(WithCapacity(2))
	h := NewHandle("tile-a", 10, nil)
	c.Put("a", Thumbnail, h)

	got, ok := c.Get("a", Thumbnail)
	if !ok {
		t.Fatal("Get(a) = miss, want hit")
	}
	if got != h {
		t.Errorf("Get(a) = %v, want the handle that was put", got)
	}
	if _, ok := c.Get("a", Original); ok {
		t.Error("Get(a, Original) = hit, want miss for unset kind")
	}
}

func TestPut_CapacityInvariant(t *testing.T) {
	const capacity = 3
	c := New(WithCapacity(capacity))

	for i := 0; i < 20; i++ {
		c.Put(fmt.Sprintf("id-%d", i), Thumbnail, NewHandle(i, 1, nil))
		if c.Len() > capacity {
			t.Fatalf("Len() = %d after put %d, want <= %d", c.Len(), i, capacity)
		}
	}
}

func TestPut_EvictsOldest(t *testing.T) {
	c := New(WithCapacity(2))
	c.Put("a", Thumbnail, NewHandle("a", 1, nil))
	c.Put("b", Thumbnail, NewHandle("b", 1, nil))
	c.Put("c", Thumbnail, NewHandle("c", 1, nil))

	if _, ok := c.Peek("a", Thumbnail); ok {
		t.Error("Peek(a) = hit, want a evicted as oldest")
	}
	if _, ok := c.Peek("b", Thumbnail); !ok {
		t.Error("Peek(b) = miss, want hit")
	}
	if _, ok := c.Peek("c", Thumbnail); !ok {
		t.Error("Peek(c) = miss, want hit")
	}
}

func TestGet_TouchReorders(t *testing.T) {
	c := New(WithCapacity(3))
	c.Put("a", Thumbnail, NewHandle("a", 1, nil))
	c.Put("b", Thumbnail, NewHandle("b", 1, nil))
	c.Put("c", Thumbnail, NewHandle("c", 1, nil))

	// Touch a; b becomes the LRU-oldest.
	if _, ok := c.Get("a", Thumbnail); !ok {
		t.Fatal("Get(a) = miss, want hit")
	}
	c.Put("d", Thumbnail, NewHandle("d", 1, nil))

	if _, ok := c.Peek("b", Thumbnail); ok {
		t.Error("Peek(b) = hit, want b evicted after a was touched")
	}
	if _, ok := c.Peek("a", Thumbnail); !ok {
		t.Error("Peek(a) = miss, want touched entry retained")
	}
}

func TestPeek_DoesNotTouch(t *testing.T) {
	c := New(WithCapacity(2))
	c.Put("a", Thumbnail, NewHandle("a", 1, nil))
	c.Put("b", Thumbnail, NewHandle("b", 1, nil))

	// Peek must not rescue a from eviction.
	if _, ok := c.Peek("a", Thumbnail); !ok {
		t.Fatal("Peek(a) = miss, want hit")
	}
	c.Put("c", Thumbnail, NewHandle("c", 1, nil))

	if _, ok := c.Peek("a", Thumbnail); ok {
		t.Error("Peek(a) = hit, want a evicted despite earlier Peek")
	}
}

func TestPut_ReplaceReleasesOld(t *testing.T) {
	released := 0
	c := New(WithCapacity(2))
	c.Put("a", Thumbnail, countingHandle(1, &released))
	c.Put("a", Thumbnail, countingHandle(1, &released))

	if released != 1 {
		t.Errorf("releases = %d after replace, want 1", released)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestEviction_ReleasesExactlyOnce(t *testing.T) {
	released := make(map[string]int)
	c := New(WithCapacity(1))

	for _, id := range []string{"a", "b", "c"} {
		id := id
		c.Put(id, Thumbnail, NewHandle(id, 1, func() { released[id]++ }))
	}
	c.Clear()

	for _, id := range []string{"a", "b", "c"} {
		if released[id] != 1 {
			t.Errorf("releases[%s] = %d, want exactly 1", id, released[id])
		}
	}
}

func TestRemoveMany(t *testing.T) {
	released := 0
	c := New(WithCapacity(4))
	c.Put("a", Thumbnail, countingHandle(1, &released))
	c.Put("a", Original, countingHandle(1, &released))
	c.Put("b", Thumbnail, countingHandle(1, &released))
	c.Put("c", Thumbnail, countingHandle(1, &released))

	c.RemoveMany([]string{"a", "b", "unknown"})

	if released != 3 {
		t.Errorf("releases = %d, want 3 (both kinds of a, plus b)", released)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if _, ok := c.Peek("c", Thumbnail); !ok {
		t.Error("Peek(c) = miss, want untouched entry retained")
	}
}

func TestClear(t *testing.T) {
	released := 0
	c := New(WithCapacity(4))
	c.Put("a", Thumbnail, countingHandle(2, &released))
	c.Put("b", Thumbnail, countingHandle(3, &released))

	c.Clear()

	if released != 2 {
		t.Errorf("releases = %d, want 2", released)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if c.ByteSize() != 0 {
		t.Errorf("ByteSize() = %d, want 0", c.ByteSize())
	}
}

func TestSetCapacity_RejectsBelowOne(t *testing.T) {
	c := New(WithCapacity(2))
	for _, n := range []int{0, -1} {
		if err := c.SetCapacity(n); err == nil {
			t.Errorf("SetCapacity(%d) = nil, want error", n)
		}
	}
	if c.Capacity() != 2 {
		t.Errorf("Capacity() = %d after rejected change, want 2", c.Capacity())
	}
}

func TestSetCapacity_ShrinkEvicts(t *testing.T) {
	released := 0
	c := New(WithCapacity(4))
	for _, id := range []string{"a", "b", "c", "d"} {
		c.Put(id, Thumbnail, countingHandle(1, &released))
	}

	if err := c.SetCapacity(2); err != nil {
		t.Fatalf("SetCapacity(2) error = %v", err)
	}

	if c.Len() != 2 {
		t.Errorf("Len() = %d after shrink, want 2", c.Len())
	}
	if released != 2 {
		t.Errorf("releases = %d after shrink, want 2", released)
	}
	// The two most recently used survive.
	if _, ok := c.Peek("c", Thumbnail); !ok {
		t.Error("Peek(c) = miss, want hit")
	}
	if _, ok := c.Peek("d", Thumbnail); !ok {
		t.Error("Peek(d) = miss, want hit")
	}
}

func TestByteSize_Accounting(t *testing.T) {
	c := New(WithCapacity(2))
	c.Put("a", Thumbnail, NewHandle("a", 100, nil))
	c.Put("b", Thumbnail, NewHandle("b", 50, nil))

	if got := c.ByteSize(); got != 150 {
		t.Errorf("ByteSize() = %d, want 150", got)
	}

	// Evicting a (oldest) drops its 100 bytes.
	c.Put("c", Thumbnail, NewHandle("c", 25, nil))
	if got := c.ByteSize(); got != 75 {
		t.Errorf("ByteSize() = %d after eviction, want 75", got)
	}
}

func TestRelease_PanicReportedNotPropagated(t *testing.T) {
	var hookID string
	var hookErr error
	c := New(
		WithCapacity(1),
		WithReleaseErrorHook(func(id string, _ Kind, err error) {
			hookID, hookErr = id, err
		}),
	)

	c.Put("bad", Thumbnail, NewHandle("bad", 1, func() { panic("broken release") }))
	c.Put("good", Thumbnail, NewHandle("good", 1, nil)) // evicts bad

	if hookID != "bad" {
		t.Errorf("hook id = %q, want %q", hookID, "bad")
	}
	if hookErr == nil {
		t.Fatal("hook err = nil, want panic converted to error")
	}
	if _, ok := c.Peek("good", Thumbnail); !ok {
		t.Error("Peek(good) = miss, want cache usable after broken release")
	}
}

func TestHandle_DiscardThenCacheReleaseIsOnce(t *testing.T) {
	released := 0
	h := NewHandle("x", 1, func() { released++ })
	h.Discard()
	h.Discard()

	if released != 1 {
		t.Errorf("releases = %d after double discard, want 1", released)
	}
	if !h.Released() {
		t.Error("Released() = false, want true")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(WithCapacity(16))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("id-%d", (g*100+i)%32)
				c.Put(id, Thumbnail, NewHandle(id, 1, nil))
				c.Get(id, Thumbnail)
				c.Peek(id, Thumbnail)
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("Len() = %d, want <= capacity 16", c.Len())
	}
}
