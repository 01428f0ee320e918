// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package timeline holds the read-only editing model the compiler
// consumes and the compiler that turns a timeline snapshot at a given
// time into a render graph.
package timeline

import (
	"github.com/gogpu/vfx/graph"
)

// TrackKind classifies a track's payload. Only video tracks produce
// render graph nodes.
type TrackKind uint8

const (
	// TrackVideo carries picture clips.
	TrackVideo TrackKind = iota

	// TrackAudio is recognized but never compiled.
	TrackAudio

	// TrackData carries non-media payloads (markers, captions).
	TrackData
)

// EncodingClass selects the input color transform for a clip's asset.
type EncodingClass uint8

const (
	// EncodedVideo is conventional display-encoded video.
	EncodedVideo EncodingClass = iota

	// LinearStill is a scene-referred/linear still format.
	LinearStill
)

// TransitionType selects the compositor kernel between two clips.
type TransitionType uint8

const (
	// TransitionNone blends by active weight ratio.
	TransitionNone TransitionType = iota

	// TransitionCrossfade dissolves between the two clips.
	TransitionCrossfade

	// TransitionWipe reveals the incoming clip along a direction.
	TransitionWipe

	// TransitionDipToColor fades through a solid color.
	TransitionDipToColor
)

// Wipe directions.
const (
	WipeLeftToRight = 0
	WipeRightToLeft = 1
	WipeTopToBottom = 2
	WipeBottomToTop = 3
)

// Transition describes how a clip blends in over the clip before it.
// The window starts at the clip's start time.
type Transition struct {
	Type      TransitionType
	Duration  float64
	Direction int
	Color     [3]float64
}

// Shape is one normalized mask rectangle (coordinates in [0,1]).
type Shape struct {
	X, Y, W, H float64
}

// EffectInstance is one effect applied to a clip, resolved through the
// feature registry at compile time.
type EffectInstance struct {
	// Feature is the registry id.
	Feature string

	// Params override the effect's defaults.
	Params map[string]graph.Value
}

// Clip is one placed asset on a track. Asset may be a decodable path
// or a scheme-qualified generator reference like "generator://noise".
type Clip struct {
	Asset    string
	Start    float64
	Duration float64

	// In is the offset into the asset where playback starts.
	In float64

	Encoding   EncodingClass
	Effects    []EffectInstance
	Transition Transition

	// MaskShapes is per-clip geometry for effects that declare a mask
	// input port.
	MaskShapes []Shape
}

// End returns the exclusive end time of the clip's span.
func (c *Clip) End() float64 { return c.Start + c.Duration }

// ActiveWeight returns the clip's presence at time t: 0 outside the
// span, a linear ramp inside the transition window at the head of the
// clip, 1 in the body.
func (c *Clip) ActiveWeight(t float64) float64 {
	if t < c.Start || t >= c.End() {
		return 0
	}
	if d := c.Transition.Duration; c.Transition.Type != TransitionNone && d > 0 {
		if ramp := (t - c.Start) / d; ramp < 1 {
			return ramp
		}
	}
	return 1
}

// Track is an ordered sequence of clips of one kind.
type Track struct {
	Kind  TrackKind
	Clips []Clip
}

// Timeline is the read-only snapshot the compiler consumes.
type Timeline struct {
	Tracks []Track
}
