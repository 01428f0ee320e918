// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Pool errors.
var (
	// ErrPoolBudgetExceeded is returned when a checkout would exceed
	// the pool's memory budget even after purging free textures.
	ErrPoolBudgetExceeded = errors.New("device: texture pool budget exceeded")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("device: texture pool closed")
)

// Default pool limits.
const (
	// DefaultPoolBudgetMB is the default pool memory budget (512 MB).
	DefaultPoolBudgetMB = 512

	// MinPoolBudgetMB is the minimum allowed budget (16 MB).
	MinPoolBudgetMB = 16
)

// PoolStats contains texture pool statistics.
type PoolStats struct {
	// Allocations is the number of fresh device allocations.
	Allocations uint64

	// Reuses is the number of checkouts served from the free lists.
	Reuses uint64

	// FreeCount is the number of textures currently checked in.
	FreeCount int

	// UsedBytes is the memory footprint of all pool-owned textures,
	// checked out or free.
	UsedBytes uint64

	// BudgetBytes is the memory budget.
	BudgetBytes uint64
}

// String returns a human-readable summary.
func (s PoolStats) String() string {
	return fmt.Sprintf("Pool[%d/%d MB, %d free, %d allocs, %d reuses]",
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.FreeCount,
		s.Allocations,
		s.Reuses)
}

// TexturePool caches and reuses GPU textures by descriptor to avoid
// per-frame allocation storms. Reuse is keyed on the full descriptor
// (dimensions, format, usage, storage class): two textures are
// interchangeable if and only if their descriptors are equal.
//
// Checkout returns the most recently checked-in match (last in, first
// out) so the hottest texture memory is reused first. Checkin only
// accepts textures this pool allocated: the pool tags its textures
// with an owner marker at allocation time, so foreign textures (frame
// cache images, caller-owned destinations) pass through Checkin as
// no-ops.
//
// The pool does not track hazards. The engine guarantees a texture's
// last read has been encoded before checking it in, and relies on the
// queue's total submission order for safety of same-frame reuse.
//
// TexturePool is safe for concurrent use, though the engine confines
// it to one frame walk at a time.
type TexturePool struct {
	mu      sync.Mutex
	adapter Adapter
	free    map[TextureDescriptor][]*Texture
	closed  bool

	budgetBytes uint64
	usedBytes   uint64

	allocations atomic.Uint64
	reuses      atomic.Uint64
}

// NewTexturePool creates a pool over the adapter with a budget in
// megabytes. Budgets below MinPoolBudgetMB fall back to the default.
func NewTexturePool(adapter Adapter, budgetMB int) *TexturePool {
	if budgetMB < MinPoolBudgetMB {
		budgetMB = DefaultPoolBudgetMB
	}
	return &TexturePool{
		adapter:     adapter,
		free:        make(map[TextureDescriptor][]*Texture),
		budgetBytes: uint64(budgetMB) * 1024 * 1024,
	}
}

// Checkout returns a texture matching the descriptor exactly, reusing
// the most recently freed match when one exists and allocating fresh
// otherwise. The caller owns the texture until Checkin.
func (p *TexturePool) Checkout(desc TextureDescriptor) (*Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, ErrInvalidDimensions
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	if bucket := p.free[desc]; len(bucket) > 0 {
		tex := bucket[len(bucket)-1]
		p.free[desc] = bucket[:len(bucket)-1]
		p.reuses.Add(1)
		return tex, nil
	}

	required := desc.ByteSize()
	if p.usedBytes+required > p.budgetBytes {
		p.purgeLocked()
	}
	if p.usedBytes+required > p.budgetBytes {
		return nil, fmt.Errorf("%w: need %d bytes, budget %d, in use %d",
			ErrPoolBudgetExceeded, required, p.budgetBytes, p.usedBytes)
	}

	id, err := p.adapter.CreateTexture(desc, "pool")
	if err != nil {
		return nil, fmt.Errorf("device: pool allocation: %w", err)
	}

	p.usedBytes += required
	p.allocations.Add(1)
	return &Texture{id: id, desc: desc, poolOwned: true}, nil
}

// Checkin returns a texture to the free bucket for its descriptor.
// Textures not allocated by this pool are ignored. Checking in the
// same texture twice without an intervening Checkout is a caller bug;
// the pool does not defend against it.
func (p *TexturePool) Checkin(tex *Texture) {
	if tex == nil || !tex.poolOwned {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.adapter.DestroyTexture(tex.id)
		return
	}
	p.free[tex.desc] = append(p.free[tex.desc], tex)
}

// Purge drops all free textures, releasing their device memory.
// Checked-out textures are unaffected. Used under memory pressure.
func (p *TexturePool) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purgeLocked()
}

// purgeLocked destroys every free texture. Caller must hold mu.
func (p *TexturePool) purgeLocked() {
	for desc, bucket := range p.free {
		for _, tex := range bucket {
			p.adapter.DestroyTexture(tex.id)
			p.usedBytes -= tex.desc.ByteSize()
		}
		delete(p.free, desc)
	}
}

// Close purges the pool and rejects further checkouts.
func (p *TexturePool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.purgeLocked()
	p.closed = true
}

// Stats returns current pool statistics.
func (p *TexturePool) Stats() PoolStats {
	p.mu.Lock()
	freeCount := 0
	for _, bucket := range p.free {
		freeCount += len(bucket)
	}
	used := p.usedBytes
	budget := p.budgetBytes
	p.mu.Unlock()

	return PoolStats{
		Allocations: p.allocations.Load(),
		Reuses:      p.reuses.Load(),
		FreeCount:   freeCount,
		UsedBytes:   used,
		BudgetBytes: budget,
	}
}
