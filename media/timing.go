// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package media

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Probe bounds. The probe reads leading timestamps only; it must never
// scan a whole file.
const (
	// probeMaxSamples caps the number of timestamps examined.
	probeMaxSamples = 120

	// probeWindowSeconds caps the probed stretch of the asset.
	probeWindowSeconds = 2.0

	// probeTimeout bounds the probe subprocess.
	probeTimeout = 5 * time.Second
)

// vfrJitter is the spacing deviation above which timestamps are
// treated as variable rate rather than encoder rounding noise.
const vfrJitter = 1e-3

// TimingDecision records how request times map onto an asset's sample
// times.
//
// Assets with irregular sample spacing are normalized: request times
// snap onto a constant-rate grid so nearby requests resolve to the
// same sample regardless of where the native timestamps happen to
// fall. Evenly spaced assets (and assets whose probe failed) pass
// request times through untouched; tick quantization already collapses
// their cache keys.
type TimingDecision struct {
	// Normalize is true when the leading samples are unevenly spaced.
	Normalize bool

	// FPS is the average rate detected over the probed window. Zero
	// when no rate could be derived; Adjust then uses the caller's
	// fallback rate.
	FPS float64
}

// Adjust maps a request time to the time actually asked of the
// decoder. fallbackFPS supplies the grid rate when the probe detected
// irregular timing but no usable average.
func (d TimingDecision) Adjust(t, fallbackFPS float64) float64 {
	if !d.Normalize {
		return t
	}
	r := d.FPS
	if r <= 0 {
		r = fallbackFPS
	}
	if r <= 0 {
		return t
	}
	frame := int64(t*r + 0.5)
	return float64(frame) / r
}

// DecideTiming classifies a sequence of leading presentation times.
// Evenly spaced samples need no normalization; uneven spacing (or
// non-monotonic garbage timestamps) yields normalization at the
// window's average rate. Fewer than two samples is inconclusive and
// yields pass-through.
func DecideTiming(pts []float64) TimingDecision {
	if len(pts) < 2 {
		return TimingDecision{}
	}
	first := pts[1] - pts[0]
	regular := first > 0
	for i := 2; i < len(pts) && regular; i++ {
		delta := pts[i] - pts[i-1]
		if delta <= 0 || delta-first > vfrJitter || first-delta > vfrJitter {
			regular = false
		}
	}
	if regular {
		return TimingDecision{}
	}

	d := TimingDecision{Normalize: true}
	if span := pts[len(pts)-1] - pts[0]; span > 0 {
		d.FPS = float64(len(pts)-1) / span
	}
	return d
}

// timingProber memoizes per-asset timing decisions. A failed probe is
// memoized too, as a pass-through decision: probing is advisory and
// must not fail a render or run repeatedly against a broken asset.
//
// The prober is safe for concurrent use: decisions are resolved on the
// requesting goroutine so a slow probe never stalls the FrameSource
// owner, and concurrent first uses of one asset share a single probe
// via singleflight.
type timingProber struct {
	opener Opener
	group  singleflight.Group

	mu        sync.Mutex
	decisions map[string]TimingDecision
}

func newTimingProber(opener Opener) *timingProber {
	return &timingProber{
		opener:    opener,
		decisions: make(map[string]TimingDecision),
	}
}

// decide returns the timing decision for an asset, probing on first
// use.
func (p *timingProber) decide(ctx context.Context, path string) TimingDecision {
	p.mu.Lock()
	d, ok := p.decisions[path]
	p.mu.Unlock()
	if ok {
		return d
	}

	v, _, _ := p.group.Do(path, func() (any, error) {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		d, err := p.opener.ProbeTiming(probeCtx, path)
		if err != nil {
			logger().Warn("timing probe failed", "asset", path, "error", err)
			return TimingDecision{}, nil
		}
		return d, nil
	})

	d = v.(TimingDecision)
	p.mu.Lock()
	p.decisions[path] = d
	p.mu.Unlock()
	return d
}

func (p *timingProber) clear() {
	p.mu.Lock()
	p.decisions = make(map[string]TimingDecision)
	p.mu.Unlock()
}
