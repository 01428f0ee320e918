package device

import (
	"errors"
	"testing"
)

func newTestAdapter(t *testing.T) *SoftwareAdapter {
	t.Helper()
	a := NewSoftwareAdapter()
	if err := a.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func testDesc(w, h int) TextureDescriptor {
	return TextureDescriptor{
		Width:  w,
		Height: h,
		Format: FormatRGBA16F,
		Usage:  DefaultUsage,
	}
}

func TestPoolReuseRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	defer pool.Close()

	desc := testDesc(64, 64)
	tex, err := pool.Checkout(desc)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	pool.Checkin(tex)

	tex2, err := pool.Checkout(desc)
	if err != nil {
		t.Fatalf("Checkout after Checkin: %v", err)
	}
	if tex2.ID() != tex.ID() {
		t.Errorf("expected reuse of texture %d, got %d", tex.ID(), tex2.ID())
	}

	stats := pool.Stats()
	if stats.Allocations != 1 || stats.Reuses != 1 {
		t.Errorf("stats = %s, want 1 alloc 1 reuse", stats)
	}
}

func TestPoolLIFOOrder(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	defer pool.Close()

	desc := testDesc(32, 32)
	t1, _ := pool.Checkout(desc)
	t2, _ := pool.Checkout(desc)
	pool.Checkin(t1)
	pool.Checkin(t2)

	// Most recently checked in comes back first.
	got, _ := pool.Checkout(desc)
	if got.ID() != t2.ID() {
		t.Errorf("expected %d (last in), got %d", t2.ID(), got.ID())
	}
}

func TestPoolExactDescriptorMatch(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	defer pool.Close()

	tex, _ := pool.Checkout(testDesc(64, 64))
	pool.Checkin(tex)

	// A different descriptor must not reuse the freed texture.
	other, err := pool.Checkout(testDesc(64, 63))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if other.ID() == tex.ID() {
		t.Error("pool reused a texture across different descriptors")
	}
}

func TestPoolIgnoresForeignTextures(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	defer pool.Close()

	desc := testDesc(16, 16)
	id, err := a.CreateTexture(desc, "foreign")
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	pool.Checkin(NewTexture(id, desc))
	pool.Checkin(nil)

	if stats := pool.Stats(); stats.FreeCount != 0 {
		t.Errorf("foreign checkin entered the pool: %s", stats)
	}
}

func TestPoolBudget(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, MinPoolBudgetMB)
	defer pool.Close()

	// One 1024x1024 RGBA16F texture is 8 MB; three fit in 16 MB, not four.
	desc := testDesc(1024, 1024)
	var held []*Texture
	for i := 0; i < 2; i++ {
		tex, err := pool.Checkout(desc)
		if err != nil {
			t.Fatalf("Checkout %d: %v", i, err)
		}
		held = append(held, tex)
	}
	if _, err := pool.Checkout(testDesc(2048, 2048)); !errors.Is(err, ErrPoolBudgetExceeded) {
		t.Errorf("over-budget checkout: err = %v, want ErrPoolBudgetExceeded", err)
	}

	// Freed textures are purged to make room.
	pool.Checkin(held[0])
	pool.Checkin(held[1])
	if _, err := pool.Checkout(testDesc(1024, 2048)); err != nil {
		t.Errorf("checkout after freeing should purge and succeed: %v", err)
	}
}

func TestPoolPurge(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	defer pool.Close()

	tex, _ := pool.Checkout(testDesc(64, 64))
	pool.Checkin(tex)
	pool.Purge()

	stats := pool.Stats()
	if stats.FreeCount != 0 || stats.UsedBytes != 0 {
		t.Errorf("after purge: %s", stats)
	}

	// The purged texture is gone from the adapter too.
	if _, err := a.ReadTexture(tex.ID()); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("purged texture still alive: err = %v", err)
	}
}

func TestPoolClosed(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	pool.Close()

	if _, err := pool.Checkout(testDesc(16, 16)); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("checkout on closed pool: err = %v, want ErrPoolClosed", err)
	}
}

func TestPoolInvalidDimensions(t *testing.T) {
	a := newTestAdapter(t)
	pool := NewTexturePool(a, 64)
	defer pool.Close()

	if _, err := pool.Checkout(testDesc(0, 16)); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("zero width: err = %v, want ErrInvalidDimensions", err)
	}
}
