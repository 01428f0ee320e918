package cache

import (
	"strconv"
	"testing"
)

func TestNewFIFO(t *testing.T) {
	c := NewFIFO[string, int](10)
	if c.Capacity() != 10 {
		t.Errorf("expected capacity 10, got %d", c.Capacity())
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}

	c = NewFIFO[string, int](0)
	if c.Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, c.Capacity())
	}
}

func TestFIFOGetSet(t *testing.T) {
	c := NewFIFO[string, int](4)

	c.Set("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("expected 1, got %d, %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	// Replacing a key keeps one entry.
	c.Set("a", 2)
	if c.Len() != 1 {
		t.Errorf("expected 1 entry after replace, got %d", c.Len())
	}
	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("expected replaced value 2, got %d", v)
	}
}

func TestFIFOEvictsInInsertionOrder(t *testing.T) {
	c := NewFIFO[int, string](3)

	for i := 0; i < 3; i++ {
		c.Set(i, strconv.Itoa(i))
	}

	// A hit must not promote: 0 stays the eviction candidate.
	if _, ok := c.Get(0); !ok {
		t.Fatal("expected 0 cached")
	}

	evicted, wasEvicted := c.Set(3, "3")
	if !wasEvicted || evicted != "0" {
		t.Fatalf("expected insertion-order eviction of 0, got %q, %v", evicted, wasEvicted)
	}
	evicted, wasEvicted = c.Set(4, "4")
	if !wasEvicted || evicted != "1" {
		t.Fatalf("expected eviction of 1 next, got %q, %v", evicted, wasEvicted)
	}
	if c.Len() != 3 {
		t.Errorf("size exceeded bound: %d", c.Len())
	}
}

func TestFIFOBoundHolds(t *testing.T) {
	c := NewFIFO[int, int](8)
	for i := 0; i < 100; i++ {
		c.Set(i, i)
		if c.Len() > 8 {
			t.Fatalf("cache grew past capacity at insert %d: %d", i, c.Len())
		}
	}
	if got := c.Stats().Evictions; got != 92 {
		t.Errorf("expected 92 evictions, got %d", got)
	}
}

func TestFIFOClear(t *testing.T) {
	c := NewFIFO[int, int](4)
	c.Set(1, 10)
	c.Set(2, 20)

	values := c.Clear()
	if len(values) != 2 {
		t.Fatalf("expected 2 released values, got %d", len(values))
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Len())
	}
	if _, ok := c.Get(1); ok {
		t.Error("expected miss after Clear")
	}
}

func TestFIFOStats(t *testing.T) {
	c := NewFIFO[string, int](2)
	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("b")

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 {
		t.Errorf("expected 2 hits / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
	if stats.HitRate < 0.66 || stats.HitRate > 0.67 {
		t.Errorf("unexpected hit rate %f", stats.HitRate)
	}
}
