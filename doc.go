// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vfx is the execution backbone of a video compositing engine.
//
// vfx turns an editing timeline into GPU work and runs that work each
// frame. The pipeline has four stages:
//
//   - timeline: compiles a timeline snapshot at a target time into a
//     render graph (a DAG of GPU operations).
//   - engine: walks the graph, resolves inputs and outputs through the
//     texture pool and frame source, and dispatches compute kernels in
//     compiler order on a single GPU queue.
//   - device: the GPU abstraction: adapter interface, texture pool,
//     kernel library, wgpu and software backends.
//   - media: decodes video and still assets into GPU-visible images,
//     with a bounded frame cache and forward-only decode cursors.
//
// The root package carries only cross-cutting concerns: the shared
// logger and engine configuration.
//
// # Rendering a frame
//
//	comp := timeline.NewCompiler(registry)
//	req, err := comp.Compile(tl, t, graph.QualityHigh)
//	if err != nil {
//	    // unrenderable timeline: unknown effect or unsupported port
//	}
//	result, err := eng.Render(ctx, req)
//	// result.Warnings lists soft failures; the frame is always produced
//
// # Failure model
//
// Compile-time errors (unknown feature, unsupported input port) are
// fatal: they indicate an unrenderable timeline and surface before any
// GPU work is scheduled. Execution-time errors (missing kernel, decode
// failure, allocation failure) are soft: the engine substitutes blank
// placeholders, records a warning, and always returns a frame.
package vfx
