// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gogpu/vfx/cache"
	"github.com/gogpu/vfx/device"
)

// TicksPerSecond is the time quantization grid for frame cache keys.
// 60000 divides evenly by every common frame rate (24, 25, 30, 60 and
// their 1.001-adjusted variants land within one tick), so two request
// times for the same sample collapse to the same key.
const TicksPerSecond = 60000

// DefaultFallbackFPS is assumed when the caller passes no frame rate
// and the container carries no usable timing.
const DefaultFallbackFPS = 24.0

// specialtyStillExtensions are still formats outside the standard
// codecs, decoded through a bounded external process.
var specialtyStillExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
	".exr":  true,
}

type frameKey struct {
	asset string
	tick  int64
	w, h  int
}

type sizedKey struct {
	asset string
	w, h  int
}

// cachedFrame is one cache entry: decoded pixels plus the lazily
// created upload texture.
type cachedFrame struct {
	pixels []byte
	tex    device.TextureID
}

// SourceStats is a snapshot of FrameSource instrumentation.
type SourceStats struct {
	// Restarts counts decoder restarts (seeks that could not be
	// served by reading forward).
	Restarts uint64

	// FrameCache is the frame cache hit/miss/eviction snapshot.
	FrameCache cache.Stats
}

// FrameSource serves time-addressed frames from video and still
// assets, decoding on demand and caching recent results.
//
// All decoder and cache state is owned by a single internal goroutine;
// public methods marshal requests to it and wait. This makes the
// forward-only decoder cursors safe without per-cursor locking and
// keeps eviction deterministic. Timing probes are the exception: they
// run on the requesting goroutine so a slow probe never blocks frames
// for other assets.
type FrameSource struct {
	adapter device.Adapter
	opener  Opener

	reqs chan func()
	done chan struct{}

	mu     sync.Mutex
	closed bool

	prober *timingProber

	// Goroutine-confined state below.
	frames   *cache.FIFO[frameKey, *cachedFrame]
	stills   map[sizedKey]*cachedFrame
	cursors  map[sizedKey]*cursor
	evicted  []device.TextureID
	restarts uint64
}

// SourceOption configures a FrameSource.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	opener       Opener
	cacheEntries int
}

// WithOpener substitutes the decoder factory. The default shells out
// to ffmpeg.
func WithOpener(o Opener) SourceOption {
	return func(c *sourceConfig) { c.opener = o }
}

// WithCacheEntries bounds the frame cache. Non-positive values keep
// the default.
func WithCacheEntries(n int) SourceOption {
	return func(c *sourceConfig) { c.cacheEntries = n }
}

// NewFrameSource creates a FrameSource over the adapter and starts its
// owner goroutine.
func NewFrameSource(adapter device.Adapter, opts ...SourceOption) *FrameSource {
	cfg := sourceConfig{
		opener:       &FFmpegOpener{},
		cacheEntries: cache.DefaultCapacity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &FrameSource{
		adapter: adapter,
		opener:  cfg.opener,
		reqs:    make(chan func(), 16),
		done:    make(chan struct{}),
		frames:  cache.NewFIFO[frameKey, *cachedFrame](cfg.cacheEntries),
		stills:  make(map[sizedKey]*cachedFrame),
		cursors: make(map[sizedKey]*cursor),
		prober:  newTimingProber(cfg.opener),
	}
	go s.run()
	return s
}

func (s *FrameSource) run() {
	defer close(s.done)
	for fn := range s.reqs {
		fn()
	}
	s.cleanup()
}

// call runs fn on the owner goroutine and waits for it, honoring ctx.
func (s *FrameSource) call(ctx context.Context, fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	s.mu.Unlock()

	donech := make(chan struct{})
	wrapped := func() {
		defer close(donech)
		fn()
	}

	select {
	case s.reqs <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-donech:
		return nil
	case <-ctx.Done():
		// fn still runs; its result is discarded.
		return ctx.Err()
	}
}

// Close shuts down the owner goroutine and releases all decoders,
// cached textures, and memoized state.
func (s *FrameSource) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.reqs)
	<-s.done
}

func (s *FrameSource) cleanup() {
	for _, entry := range s.frames.Clear() {
		if entry.tex != device.InvalidID {
			s.adapter.DestroyTexture(entry.tex)
		}
	}
	for _, entry := range s.stills {
		if entry.tex != device.InvalidID {
			s.adapter.DestroyTexture(entry.tex)
		}
	}
	for _, id := range s.evicted {
		s.adapter.DestroyTexture(id)
	}
	for _, c := range s.cursors {
		c.close()
	}
	s.cursors = make(map[sizedKey]*cursor)
	s.stills = make(map[sizedKey]*cachedFrame)
	s.evicted = nil
	s.prober.clear()
}

// Texture returns a texture holding the asset's frame nearest to
// timeSeconds, sized w x h. The texture is owned by the frame cache;
// callers must not destroy it. Cache eviction keeps the texture alive
// until the next Reclaim, so textures handed out during a frame stay
// valid for the whole frame.
func (s *FrameSource) Texture(ctx context.Context, asset string, timeSeconds float64, w, h int, fallbackFPS float64) (*device.Texture, error) {
	adjusted := s.adjustTime(ctx, asset, timeSeconds, fallbackFPS)
	var (
		tex *device.Texture
		err error
	)
	callErr := s.call(ctx, func() {
		tex, err = s.textureLocked(ctx, asset, adjusted, w, h, fallbackFPS)
	})
	if callErr != nil {
		return nil, callErr
	}
	return tex, err
}

// Pixels returns the RGBA bytes of the asset's frame nearest to
// timeSeconds. The returned slice is shared with the cache and must be
// treated as read-only.
func (s *FrameSource) Pixels(ctx context.Context, asset string, timeSeconds float64, w, h int, fallbackFPS float64) ([]byte, error) {
	adjusted := s.adjustTime(ctx, asset, timeSeconds, fallbackFPS)
	var (
		pix []byte
		err error
	)
	callErr := s.call(ctx, func() {
		var entry *cachedFrame
		entry, err = s.frameLocked(ctx, asset, adjusted, w, h, fallbackFPS)
		if err == nil {
			pix = entry.pixels
		}
	})
	if callErr != nil {
		return nil, callErr
	}
	return pix, err
}

// Prefetch warms the cache for an upcoming request without blocking.
// Errors are swallowed; the real request will surface them.
func (s *FrameSource) Prefetch(asset string, timeSeconds float64, w, h int, fallbackFPS float64) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.reqs <- func() {
		adjusted := s.adjustTime(context.Background(), asset, timeSeconds, fallbackFPS)
		if _, err := s.frameLocked(context.Background(), asset, adjusted, w, h, fallbackFPS); err != nil {
			logger().Debug("prefetch failed", "asset", asset, "time", timeSeconds, "error", err)
		}
	}:
	default:
		// Queue full: skip rather than stall the caller.
	}
}

// Reclaim destroys upload textures evicted from the frame cache since
// the last call. Eviction defers destruction because a caller may
// still have the texture bound in recorded but unsubmitted GPU work;
// call Reclaim once the device has gone idle.
func (s *FrameSource) Reclaim() {
	_ = s.call(context.Background(), func() {
		for _, id := range s.evicted {
			s.adapter.DestroyTexture(id)
		}
		s.evicted = s.evicted[:0]
	})
}

// adjustTime resolves the asset's timing decision and maps t onto it.
// Runs on the caller's goroutine; concurrent first uses of one asset
// share a single probe.
func (s *FrameSource) adjustTime(ctx context.Context, asset string, t, fps float64) float64 {
	ext := strings.ToLower(filepath.Ext(asset))
	if stillExtensions[ext] || specialtyStillExtensions[ext] {
		return t
	}
	if fps <= 0 {
		fps = DefaultFallbackFPS
	}
	return s.prober.decide(ctx, asset).Adjust(t, fps)
}

// ClearCaches drops all cached frames, stills, decoder cursors, and
// timing decisions. Used under memory pressure and between unrelated
// render jobs.
func (s *FrameSource) ClearCaches() {
	_ = s.call(context.Background(), func() {
		s.cleanup()
		s.frames = cache.NewFIFO[frameKey, *cachedFrame](s.frames.Capacity())
	})
}

// Stats returns current instrumentation counters.
func (s *FrameSource) Stats() SourceStats {
	var st SourceStats
	_ = s.call(context.Background(), func() {
		st = SourceStats{
			Restarts:   s.restarts,
			FrameCache: s.frames.Stats(),
		}
	})
	return st
}

// textureLocked resolves the frame and its upload texture. Runs on the
// owner goroutine.
func (s *FrameSource) textureLocked(ctx context.Context, asset string, t float64, w, h int, fps float64) (*device.Texture, error) {
	entry, err := s.frameLocked(ctx, asset, t, w, h, fps)
	if err != nil {
		return nil, err
	}
	desc := device.TextureDescriptor{
		Width:  w,
		Height: h,
		Format: device.FormatRGBA8,
		Usage:  device.UsageSampled | device.UsageCopyDst,
	}
	if entry.tex == device.InvalidID {
		id, err := s.adapter.CreateTexture(desc, "source:"+filepath.Base(asset))
		if err != nil {
			return nil, fmt.Errorf("media: source texture: %w", err)
		}
		if err := s.adapter.WriteTexture(id, entry.pixels); err != nil {
			s.adapter.DestroyTexture(id)
			return nil, fmt.Errorf("media: source upload: %w", err)
		}
		entry.tex = id
	}
	return device.NewTexture(entry.tex, desc), nil
}

// frameLocked resolves decoded pixels through the caches. Runs on the
// owner goroutine; t has already been through the asset's timing
// decision.
func (s *FrameSource) frameLocked(ctx context.Context, asset string, t float64, w, h int, fps float64) (*cachedFrame, error) {
	ext := strings.ToLower(filepath.Ext(asset))

	if stillExtensions[ext] || specialtyStillExtensions[ext] {
		return s.stillLocked(ctx, asset, w, h, ext)
	}

	if fps <= 0 {
		fps = DefaultFallbackFPS
	}

	key := frameKey{asset: asset, tick: int64(t*TicksPerSecond + 0.5), w: w, h: h}

	if entry, ok := s.frames.Get(key); ok {
		return entry, nil
	}

	ck := sizedKey{asset: asset, w: w, h: h}
	cur, ok := s.cursors[ck]
	if !ok {
		dec, err := s.opener.OpenVideo(asset, w, h, fps)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrDecodeFailed, asset, err)
		}
		cur = newCursor(dec, w, h, &s.restarts)
		s.cursors[ck] = cur
	}

	frame, err := cur.frameAt(t)
	if err != nil {
		return nil, err
	}

	entry := &cachedFrame{pixels: frame.RGBA}
	if evicted, ok := s.frames.Set(key, entry); ok && evicted.tex != device.InvalidID {
		// Deferred to Reclaim: the evicted texture may still be bound
		// in work recorded this frame.
		s.evicted = append(s.evicted, evicted.tex)
	}
	return entry, nil
}

// stillLocked decodes a still once per (asset, w, h) and serves the
// memo thereafter. Stills never evict: a timeline references few of
// them and they are re-requested every frame they are visible.
func (s *FrameSource) stillLocked(ctx context.Context, asset string, w, h int, ext string) (*cachedFrame, error) {
	key := sizedKey{asset: asset, w: w, h: h}
	if entry, ok := s.stills[key]; ok {
		return entry, nil
	}

	var (
		pix []byte
		err error
	)
	if stillExtensions[ext] {
		pix, err = decodeStillFile(ctx, asset, w, h)
	} else {
		// Specialty formats decode out of process under a deadline.
		stillCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		pix, err = s.opener.DecodeStill(stillCtx, asset, w, h)
	}
	if err != nil {
		return nil, err
	}
	if len(pix) != w*h*4 {
		return nil, fmt.Errorf("%w: still %d bytes for %dx%d", ErrSizeMismatch, len(pix), w, h)
	}

	entry := &cachedFrame{pixels: pix}
	s.stills[key] = entry
	return entry, nil
}
