// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package media

import (
	"errors"
	"fmt"
	"io"
)

// maxForwardGap is the largest forward seek served by reading ahead.
// Anything larger restarts the decode near the target instead of
// churning through the intervening frames.
const maxForwardGap = 3.0

// cursor drives one VideoDecoder forward-only. It keeps the bracketing
// sample pair around the last request so consecutive nearby requests
// reuse already-decoded frames.
//
// cursor is confined to the FrameSource goroutine.
type cursor struct {
	dec  VideoDecoder
	w, h int

	prev *Frame // last frame with PTS <= target
	next *Frame // first frame with PTS > target

	lastTarget float64
	started    bool

	restarts *uint64 // shared restart counter, owned by FrameSource
}

func newCursor(dec VideoDecoder, w, h int, restarts *uint64) *cursor {
	return &cursor{dec: dec, w: w, h: h, restarts: restarts}
}

// frameAt returns the decoded frame nearest to t.
//
// Seeking backward, or forward by more than maxForwardGap, restarts
// the decode at t. If a restart window turns out to hold no samples
// the cursor restarts once more from zero before giving up.
func (c *cursor) frameAt(t float64) (*Frame, error) {
	if c.started {
		pos := c.lastTarget
		if c.prev != nil && c.prev.PTS > pos {
			pos = c.prev.PTS
		}
		if t < c.lastTarget || t-pos > maxForwardGap {
			if err := c.restart(t); err != nil {
				return nil, err
			}
		}
	}
	c.started = true
	c.lastTarget = t

	if err := c.advanceTo(t); err != nil {
		return nil, err
	}

	if c.prev == nil && c.next == nil {
		// The restart window was empty. Retry once from the start of
		// the asset; a stream with no frames at all is a hard failure.
		if err := c.restart(0); err != nil {
			return nil, err
		}
		if err := c.advanceTo(t); err != nil {
			return nil, err
		}
		if c.prev == nil && c.next == nil {
			return nil, fmt.Errorf("%w: no samples decoded", ErrDecodeFailed)
		}
	}

	return c.nearest(t), nil
}

// advanceTo reads frames until the bracketing pair around t is held.
func (c *cursor) advanceTo(t float64) error {
	// The previously read "next" frame may already bracket t.
	if c.next != nil && c.next.PTS > t {
		return nil
	}
	if c.next != nil {
		c.prev = c.next
		c.next = nil
	}

	for {
		f, err := c.dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
		}
		if err := f.validate(c.w, c.h); err != nil {
			return err
		}
		if f.PTS > t {
			c.next = f
			return nil
		}
		c.prev = f
	}
}

// nearest picks the bracketing frame with the closer presentation time.
func (c *cursor) nearest(t float64) *Frame {
	switch {
	case c.prev == nil:
		return c.next
	case c.next == nil:
		return c.prev
	case t-c.prev.PTS <= c.next.PTS-t:
		return c.prev
	default:
		return c.next
	}
}

func (c *cursor) restart(at float64) error {
	*c.restarts++
	c.prev = nil
	c.next = nil
	if err := c.dec.Restart(at); err != nil {
		return fmt.Errorf("%w: restart: %v", ErrDecodeFailed, err)
	}
	return nil
}

func (c *cursor) close() {
	if c.dec != nil {
		_ = c.dec.Close()
	}
}
