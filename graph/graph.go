// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package graph defines the render graph: the DAG of GPU operations
// produced per frame by the timeline compiler and consumed by the
// execution engine.
//
// Nodes are addressed by opaque integer handles into an arena-style
// node table rather than pointers. Handles keep reference counting and
// acyclicity checks cheap: a graph built through Add can only reference
// nodes that already exist, so a valid graph is topologically ordered
// by construction.
package graph

import (
	"errors"
	"fmt"
)

// Graph errors.
var (
	// ErrUnresolvedInput is returned when a node input references a
	// handle that is not present in the node table.
	ErrUnresolvedInput = errors.New("graph: input references unknown node")

	// ErrForwardInput is returned when a node input references a node
	// added after it, which would break the compiler's topological
	// ordering contract (and is the only way to encode a cycle).
	ErrForwardInput = errors.New("graph: input references a later node")

	// ErrNoRoot is returned when validating a graph without a root.
	ErrNoRoot = errors.New("graph: no root node designated")
)

// NodeID is an opaque handle to a node within one graph. Handles are
// only meaningful within the graph that issued them. The zero NodeID
// is invalid.
type NodeID int32

// InvalidNode is the zero, never-issued handle.
const InvalidNode NodeID = 0

// NodeKind classifies how the engine executes a node. The enumeration
// is closed: kinds with special execution shapes (two-pass analysis,
// source decode) are dispatched by kind, never by matching kernel name
// strings.
type NodeKind uint8

const (
	// KindCompute is a single-dispatch compute node, the common case.
	KindCompute NodeKind = iota

	// KindSource decodes an asset frame via the frame source; it has
	// no dispatch of its own.
	KindSource

	// KindGenerator synthesizes pixels procedurally (gradient, noise,
	// bars, solid) with a single dispatch and no inputs.
	KindGenerator

	// KindClear fills the output with a constant color.
	KindClear

	// KindScatterGather is a two-pass analysis node (histogram,
	// waveform): a scatter dispatch into a shared accumulation buffer,
	// then a resolve dispatch that rasterizes a fixed-size output.
	KindScatterGather
)

// String returns a human-readable name for the kind.
func (k NodeKind) String() string {
	switch k {
	case KindCompute:
		return "Compute"
	case KindSource:
		return "Source"
	case KindGenerator:
		return "Generator"
	case KindClear:
		return "Clear"
	case KindScatterGather:
		return "ScatterGather"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Node is one operation in a render graph.
//
// Kernel names the GPU program to run; it must be resolvable by the
// engine's kernel library at execution time, and an unresolvable kernel
// is a soft failure (the node is skipped with a warning), not a fatal
// one.
type Node struct {
	// ID is the handle assigned by Graph.Add. Zero until added.
	ID NodeID

	// Name is a human-readable label used in warnings and logs.
	Name string

	// Kernel is the id of the GPU program to run.
	Kernel string

	// Kind selects the execution shape. See NodeKind.
	Kind NodeKind

	// Inputs maps named input ports to upstream node handles.
	Inputs map[string]NodeID

	// Params maps parameter names to typed values, serialized into the
	// kernel's uniform layout at dispatch time.
	Params map[string]Value

	// Asset is the logical asset id for KindSource nodes.
	Asset string

	// Time is the local media time in seconds for KindSource nodes.
	Time float64
}

// Graph is an ordered list of nodes plus a designated root. The node
// order is the execution order: the compiler emits nodes topologically
// sorted and the engine trusts that order without re-deriving it.
type Graph struct {
	nodes []Node
	root  NodeID
}

// New returns an empty graph with capacity for n nodes.
func New(n int) *Graph {
	return &Graph{nodes: make([]Node, 0, n)}
}

// Add appends a node, assigns it a handle, and returns the handle.
// Input references must name nodes already added; Validate rejects
// anything else.
func (g *Graph) Add(n Node) NodeID {
	id := NodeID(len(g.nodes) + 1)
	n.ID = id
	g.nodes = append(g.nodes, n)
	return id
}

// SetRoot designates the node whose output is the frame result.
func (g *Graph) SetRoot(id NodeID) { g.root = id }

// Root returns the designated root handle.
func (g *Graph) Root() NodeID { return g.root }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Nodes returns the node table in execution order. The slice is the
// graph's backing storage; callers must not modify it.
func (g *Graph) Nodes() []Node { return g.nodes }

// Node returns the node for a handle, or false for an invalid handle.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	if id < 1 || int(id) > len(g.nodes) {
		return nil, false
	}
	return &g.nodes[id-1], true
}

// Validate checks structural invariants: a root is set, every input
// reference resolves within the node table, and no node references a
// node added after it. Because handles are issued in append order, the
// latter check is also an acyclicity proof.
func (g *Graph) Validate() error {
	if g.root == InvalidNode {
		return ErrNoRoot
	}
	if _, ok := g.Node(g.root); !ok {
		return fmt.Errorf("%w: root %d", ErrUnresolvedInput, g.root)
	}
	for i := range g.nodes {
		n := &g.nodes[i]
		for port, ref := range n.Inputs {
			if _, ok := g.Node(ref); !ok {
				return fmt.Errorf("%w: node %q port %q -> %d", ErrUnresolvedInput, n.Name, port, ref)
			}
			if ref >= n.ID {
				return fmt.Errorf("%w: node %q port %q -> %d", ErrForwardInput, n.Name, port, ref)
			}
		}
	}
	return nil
}

// UseCounts returns, for every node handle, the number of times it
// appears as an input value across the graph. The engine uses this to
// drive reference-counted texture reuse: a node's output returns to
// the pool when its count reaches zero.
//
// Index 0 of the returned slice is unused (handles start at 1).
func (g *Graph) UseCounts() []int {
	counts := make([]int, len(g.nodes)+1)
	for i := range g.nodes {
		for _, ref := range g.nodes[i].Inputs {
			if ref >= 1 && int(ref) <= len(g.nodes) {
				counts[ref]++
			}
		}
	}
	return counts
}
