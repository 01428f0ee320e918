// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package timeline

import (
	"errors"
	"fmt"

	"github.com/gogpu/vfx/graph"
)

// Registry errors.
var (
	// ErrUnknownFeature is returned when an effect references a feature
	// id no registry entry covers. Unknown features are fatal at compile
	// time: the timeline explicitly asked for something that does not
	// exist.
	ErrUnknownFeature = errors.New("timeline: unknown feature")

	// ErrUnsupportedPort is returned when a feature declares an input
	// port the compiler cannot wire.
	ErrUnsupportedPort = errors.New("timeline: unsupported input port")
)

// Manifest describes one registered feature: what domain it operates
// in, which input ports it consumes, and how to expand it into graph
// nodes.
type Manifest struct {
	// Domain scopes the feature. Only "video" features compile into the
	// picture graph; others are skipped.
	Domain string

	// InputPorts names the ports the feature consumes, in binding
	// order. The compiler wires "source"/"input" to the clip's running
	// output and "mask" to rasterized clip geometry.
	InputPorts []string

	// CompileNodes appends the feature's nodes to g, wired to the
	// resolved inputs, and returns the feature's output node.
	CompileNodes func(g *graph.Graph, inputs map[string]graph.NodeID, params map[string]graph.Value) (graph.NodeID, error)
}

// FeatureRegistry resolves feature ids to manifests.
type FeatureRegistry interface {
	// Lookup returns the manifest for a feature id, or an error wrapping
	// ErrUnknownFeature.
	Lookup(id string) (Manifest, error)
}

// StaticRegistry is a map-backed FeatureRegistry.
type StaticRegistry map[string]Manifest

// Lookup implements FeatureRegistry.
func (r StaticRegistry) Lookup(id string) (Manifest, error) {
	m, ok := r[id]
	if !ok {
		return Manifest{}, fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	return m, nil
}
