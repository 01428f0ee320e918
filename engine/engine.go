// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package engine executes compiled render graphs against a device
// adapter.
//
// One Engine owns one adapter queue. Frames render one at a time: all
// dispatches for a frame are recorded, submitted as a single ordered
// batch, and awaited before the result is read back. Execution never
// fails on a single bad node; decode failures, missing kernels, and
// allocation failures substitute blank placeholders and accumulate
// warnings in the result instead.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gogpu/vfx"
	"github.com/gogpu/vfx/device"
	"github.com/gogpu/vfx/graph"
	"github.com/gogpu/vfx/media"
)

// Result is one rendered frame.
type Result struct {
	// RenderID correlates this frame's warnings and log records.
	RenderID uuid.UUID

	// Pixels is the frame as host floats, RGBA interleaved, converted
	// from the half-float working format.
	Pixels []float32

	// Width and Height are the rendered resolution.
	Width  int
	Height int

	// Warnings lists every soft failure encountered while rendering.
	Warnings []string
}

// WatermarkSpec describes the optional overlay pass applied after a
// direct render.
type WatermarkSpec struct {
	// Opacity in [0,1].
	Opacity float64

	// Stripe is the lit stripe width in pixels; Pitch the repeat
	// distance. Zero values fall back to the kernel defaults.
	Stripe int
	Pitch  int

	// Style 0 draws diagonal stripes, 1 horizontal.
	Style int
}

// Engine renders compiled graphs. Safe for concurrent use; frames are
// serialized internally on the single command queue.
type Engine struct {
	adapter device.Adapter
	pool    *device.TexturePool
	kernels *device.KernelLibrary
	source  *media.FrameSource
	mode    device.KernelMode

	shaderDir string
	budgetMB  int

	ownsAdapter bool
	ownsPool    bool
	ownsSource  bool

	configOnce sync.Once
	configErr  error

	frameMu sync.Mutex
	accum   device.BufferID
}

// Option configures an Engine.
type Option func(*Engine)

// WithAdapter pins the device adapter. The caller keeps ownership; the
// engine will not close it. The default is the best available backend.
func WithAdapter(a device.Adapter) Option {
	return func(e *Engine) { e.adapter = a }
}

// WithMode selects kernel recovery behavior. Development (the default)
// tolerates kernels that fail to load at startup and retries at
// dispatch; Production fails engine configuration hard.
func WithMode(m device.KernelMode) Option {
	return func(e *Engine) { e.mode = m }
}

// WithPool substitutes the texture pool. The caller keeps ownership.
func WithPool(p *device.TexturePool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithPoolBudgetMB sets the budget of the engine-owned pool. Ignored
// when WithPool is given.
func WithPoolBudgetMB(mb int) Option {
	return func(e *Engine) { e.budgetMB = mb }
}

// WithFrameSource substitutes the frame source. The caller keeps
// ownership.
func WithFrameSource(s *media.FrameSource) Option {
	return func(e *Engine) { e.source = s }
}

// WithShaderSourceDir sets the development-mode shader override
// directory.
func WithShaderSourceDir(dir string) Option {
	return func(e *Engine) { e.shaderDir = dir }
}

// New creates an engine. Components not supplied via options are
// created and owned by the engine and released by Close.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		mode:     device.KernelDevelopment,
		budgetMB: device.DefaultPoolBudgetMB,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.adapter == nil {
		a, err := device.Default()
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.adapter = a
		e.ownsAdapter = true
	} else if err := e.adapter.Init(); err != nil {
		return nil, fmt.Errorf("engine: adapter init: %w", err)
	}

	if e.pool == nil {
		e.pool = device.NewTexturePool(e.adapter, e.budgetMB)
		e.ownsPool = true
	}
	if e.source == nil {
		e.source = media.NewFrameSource(e.adapter)
		e.ownsSource = true
	}

	e.kernels = device.NewKernelLibrary(e.adapter, e.mode)
	e.kernels.SourceDir = e.shaderDir

	vfx.Logger().Info("engine ready",
		"backend", e.adapter.Name(),
		"device", e.adapter.Capabilities().DeviceName)
	return e, nil
}

// NewFromConfig builds an engine from an operator config: backend
// selection, mode, and pool budget come from cfg.
func NewFromConfig(cfg *vfx.Config, opts ...Option) (*Engine, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode := device.KernelDevelopment
	if cfg.Mode == "production" {
		mode = device.KernelProduction
	}
	base := []Option{WithMode(mode), WithPoolBudgetMB(cfg.MemoryBudgetMB)}

	if cfg.Backend != "" {
		a, err := device.Get(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		base = append(base, WithAdapter(a))
	}
	e, err := New(append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	// A pinned backend was created here, not handed in by the caller.
	if cfg.Backend != "" {
		e.ownsAdapter = true
	}
	return e, nil
}

// Close releases the kernel library, the accumulation buffer, and
// every engine-owned component.
func (e *Engine) Close() {
	e.frameMu.Lock()
	if e.accum != device.InvalidID {
		e.adapter.DestroyBuffer(e.accum)
		e.accum = device.InvalidID
	}
	e.frameMu.Unlock()

	e.kernels.Close()
	if e.ownsSource {
		e.source.Close()
	}
	if e.ownsPool {
		e.pool.Close()
	}
	if e.ownsAdapter {
		e.adapter.Close()
	}
}

// configure preloads every cataloged kernel once. In Production a load
// failure is fatal; in Development it is deferred to dispatch time,
// where the library retries (recompiling from source, honoring the
// override directory).
func (e *Engine) configure() error {
	e.configOnce.Do(func() {
		for _, id := range device.Kernels() {
			if _, err := e.kernels.Load(id); err != nil {
				if e.mode == device.KernelProduction {
					e.configErr = fmt.Errorf("engine: preload %q: %w", id, err)
					return
				}
				vfx.Logger().Warn("kernel preload failed", "kernel", id, "error", err)
			}
		}
	})
	return e.configErr
}

// Render renders one frame at the request's quality tier and returns
// the pixels as host floats.
func (e *Engine) Render(ctx context.Context, req *graph.Request) (*Result, error) {
	if req == nil || req.Graph == nil {
		return nil, errors.New("engine: nil request")
	}
	if err := e.configure(); err != nil {
		return nil, err
	}

	w, h := req.Quality.Resolution()
	dst, err := e.pool.Checkout(workingDesc(w, h))
	if err != nil {
		return nil, fmt.Errorf("engine: destination: %w", err)
	}

	id := uuid.New()
	warnings, err := e.renderInto(ctx, req, dst, nil, id)
	if err != nil {
		e.pool.Checkin(dst)
		return nil, err
	}

	raw, err := e.adapter.ReadTexture(dst.ID())
	e.pool.Checkin(dst)
	if err != nil {
		return nil, fmt.Errorf("engine: readback: %w", err)
	}

	return &Result{
		RenderID: id,
		Pixels:   halfToFloats(raw),
		Width:    w,
		Height:   h,
		Warnings: warnings,
	}, nil
}

// RenderInto renders one frame directly into a caller-owned texture,
// sized to the destination rather than the quality tier, and
// optionally applies a watermark pass afterward. The result stays
// resident in dst.
func (e *Engine) RenderInto(ctx context.Context, req *graph.Request, dst *device.Texture, watermark *WatermarkSpec) ([]string, error) {
	if req == nil || req.Graph == nil {
		return nil, errors.New("engine: nil request")
	}
	if dst == nil || dst.ID() == device.InvalidID {
		return nil, errors.New("engine: nil destination")
	}
	if err := e.configure(); err != nil {
		return nil, err
	}
	return e.renderInto(ctx, req, dst, watermark, uuid.New())
}

// renderInto runs the frame walk. Only one frame records at a time.
func (e *Engine) renderInto(ctx context.Context, req *graph.Request, dst *device.Texture, watermark *WatermarkSpec, id uuid.UUID) ([]string, error) {
	if err := req.Graph.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	f := &frame{
		e:       e,
		req:     req,
		dst:     dst,
		w:       dst.Width(),
		h:       dst.Height(),
		uses:    req.Graph.UseCounts(),
		outputs: make([]*device.Texture, req.Graph.Len()+1),
		id:      id,
	}
	f.run(ctx)
	if watermark != nil {
		f.applyWatermark(watermark)
	}

	e.adapter.Submit()
	e.adapter.WaitIdle()
	f.release()
	e.source.Reclaim()

	vfx.Logger().Debug("frame rendered",
		"render", id,
		"time", req.Time,
		"nodes", req.Graph.Len(),
		"warnings", len(f.warnings))
	return f.warnings, nil
}

// workingDesc is the descriptor for intermediate frame textures.
func workingDesc(w, h int) device.TextureDescriptor {
	return device.TextureDescriptor{
		Width:  w,
		Height: h,
		Format: device.FormatRGBA16F,
		Usage:  device.DefaultUsage,
	}
}

// halfToFloats expands little-endian binary16 pixels to host floats.
func halfToFloats(raw []byte) []float32 {
	out := make([]float32, len(raw)/2)
	for i := range out {
		out[i] = device.Float16ToFloat32(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}
	return out
}
