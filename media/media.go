// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package media decodes video and still assets into frames the engine
// can upload as source textures.
//
// The entry point is FrameSource, which owns all decoder state on a
// single goroutine and serves time-addressed frame requests through a
// bounded cache. Decoding itself is pluggable: the default opener
// shells out to ffmpeg for video and uses the standard image codecs
// for stills.
package media

import (
	"context"
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrDecodeFailed is returned when an asset cannot be decoded at
	// the requested time.
	ErrDecodeFailed = errors.New("media: decode failed")

	// ErrSizeMismatch is returned when a decoder that contracts to an
	// exact output size produces different dimensions.
	ErrSizeMismatch = errors.New("media: decoded size mismatch")

	// ErrSourceClosed is returned when requesting from a closed
	// FrameSource.
	ErrSourceClosed = errors.New("media: frame source closed")
)

// Frame is one decoded video frame: tightly packed RGBA bytes at the
// decode resolution, stamped with its presentation time.
type Frame struct {
	// PTS is the presentation time in seconds from asset start.
	PTS float64

	// RGBA holds Width*Height*4 bytes.
	RGBA []byte

	// Width and Height are the decoded dimensions.
	Width  int
	Height int
}

func (f *Frame) validate(w, h int) error {
	if f.Width != w || f.Height != h {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrSizeMismatch, f.Width, f.Height, w, h)
	}
	if len(f.RGBA) != w*h*4 {
		return fmt.Errorf("%w: %d bytes for %dx%d", ErrSizeMismatch, len(f.RGBA), w, h)
	}
	return nil
}

// VideoDecoder reads frames in presentation order. Implementations
// contract to the exact output size given at open time; the cursor
// treats any size deviation as a fatal decode error.
type VideoDecoder interface {
	// ReadFrame returns the next frame, or io.EOF past the end.
	ReadFrame() (*Frame, error)

	// Restart repositions the stream so the next ReadFrame returns a
	// frame at or before the given time. Implementations may restart
	// the underlying decode from scratch.
	Restart(at float64) error

	// Close releases decoder resources.
	Close() error
}

// Opener creates decoders for assets. It is the seam the tests use to
// substitute in-memory decoders for real ffmpeg processes.
type Opener interface {
	// OpenVideo opens a video asset scaled to w x h.
	// fps is the frame rate to assume when the container does not
	// carry usable timestamps.
	OpenVideo(path string, w, h int, fps float64) (VideoDecoder, error)

	// DecodeStill decodes a still image asset scaled to w x h.
	// The context bounds the decode; implementations must fail rather
	// than hang.
	DecodeStill(ctx context.Context, path string, w, h int) ([]byte, error)

	// ProbeTiming samples the asset's leading timestamps to decide how
	// request times map to sample times.
	ProbeTiming(ctx context.Context, path string) (TimingDecision, error)
}
