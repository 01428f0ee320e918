// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gogpu/vfx"
	"github.com/gogpu/vfx/device"
	"github.com/gogpu/vfx/graph"
)

// analysisBins is the accumulation buffer length shared by the
// scatter/gather kernels. Must match the bin count compiled into the
// histogram shaders.
const analysisBins = 256

// resolveKernels pairs each scatter kernel with its second-pass
// resolve kernel.
var resolveKernels = map[string]string{
	graph.KernelHistogramScatter: graph.KernelHistogramResolve,
}

// frame holds the per-frame walk state: node outputs, remaining use
// counts, and accumulated warnings.
type frame struct {
	e   *Engine
	req *graph.Request
	dst *device.Texture

	w, h int

	// uses[id] is the remaining downstream consumer count for node id.
	uses []int

	// outputs[id] is the texture node id produced, nil when the node
	// was skipped or already returned to the pool.
	outputs []*device.Texture

	warnings []string
	id       uuid.UUID

	// zero is the reusable blank upload block, sized for the working
	// descriptor.
	zero []byte
}

func (f *frame) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	f.warnings = append(f.warnings, msg)
	vfx.Logger().Warn(msg, "render", f.id)
}

// run walks the graph in compiler order, encoding one dispatch per
// node (two for scatter/gather) and recycling textures whose last
// consumer has been encoded.
func (f *frame) run(ctx context.Context) {
	nodes := f.req.Graph.Nodes()
	root := f.req.Graph.Root()

	for i := range nodes {
		n := &nodes[i]
		switch n.Kind {
		case graph.KindSource:
			f.execSource(ctx, n)
		case graph.KindScatterGather:
			f.execScatterGather(n)
		default:
			f.execCompute(n)
		}

		for _, ref := range n.Inputs {
			f.uses[ref]--
			if f.uses[ref] == 0 && ref != root {
				if t := f.outputs[ref]; t != nil {
					f.e.pool.Checkin(t)
					f.outputs[ref] = nil
				}
			}
		}
	}

	// When every path to the root failed, the frame still delivers the
	// deterministic blank. The destination is already in hand, so this
	// needs no allocation: clear it directly.
	if f.outputs[root] == nil {
		if err := f.e.adapter.WriteTexture(f.dst.ID(), f.zeroBlock()); err != nil {
			f.warnf("destination clear failed: %v", err)
		}
	}
}

// release returns every surviving non-destination texture to the pool.
// Foreign textures (frame cache images, the caller's destination) pass
// through Checkin untouched.
func (f *frame) release() {
	for i, t := range f.outputs {
		if t != nil && t != f.dst {
			f.e.pool.Checkin(t)
		}
		f.outputs[i] = nil
	}
}

// execSource resolves the asset and fetches its frame from the source
// cache. Decode failure substitutes a blank placeholder.
func (f *frame) execSource(ctx context.Context, n *graph.Node) {
	loc := n.Asset
	if mapped, ok := f.req.ResolveAsset(n.Asset); ok {
		loc = mapped
	}

	tex, err := f.e.source.Texture(ctx, loc, n.Time, f.w, f.h, 0)
	if err != nil {
		f.warnf("decode %q at %.3fs failed (%v); substituted blank", loc, n.Time, err)
		f.outputs[n.ID] = f.blank()
		return
	}
	f.outputs[n.ID] = tex
}

// execCompute encodes a single dispatch for the node. The dispatch is
// skipped outright when any declared input cannot be bound, even as a
// placeholder; a kernel run against fewer inputs than it consumes
// reads unbound slots.
func (f *frame) execCompute(n *graph.Node) {
	pipeline, err := f.e.kernels.Load(n.Kernel)
	if err != nil {
		f.warnf("node %q: kernel %q unavailable (%v); skipped", n.Name, n.Kernel, err)
		return
	}

	ins, temps, ok := f.resolveInputs(n)
	if !ok {
		f.checkinAll(temps)
		return
	}
	out := f.nodeOutput(n)
	if out == nil {
		f.checkinAll(temps)
		return
	}

	pass := f.e.adapter.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.BindTexture(0, out.ID())
	for i, tex := range ins {
		pass.BindTexture(uint32(i+1), tex.ID())
	}
	pass.SetUniforms(packUniforms(n))
	pass.Dispatch(groups(out.Width()), groups(out.Height()), 1)
	pass.End()

	f.checkinAll(temps)
	f.outputs[n.ID] = out
}

// execScatterGather encodes the two-pass analysis shape: clear the
// shared accumulation buffer, scatter the input into it, then resolve
// the buffer into the node's output.
func (f *frame) execScatterGather(n *graph.Node) {
	resolveID, ok := resolveKernels[n.Kernel]
	if !ok {
		f.warnf("node %q: no resolve pass for kernel %q; skipped", n.Name, n.Kernel)
		return
	}
	scatter, err := f.e.kernels.Load(n.Kernel)
	if err != nil {
		f.warnf("node %q: kernel %q unavailable (%v); skipped", n.Name, n.Kernel, err)
		return
	}
	resolve, err := f.e.kernels.Load(resolveID)
	if err != nil {
		f.warnf("node %q: kernel %q unavailable (%v); skipped", n.Name, resolveID, err)
		return
	}

	if f.e.accum == device.InvalidID {
		id, err := f.e.adapter.CreateBuffer(analysisBins*4,
			device.BufferUsageStorage|device.BufferUsageCopyDst, "analysis accum")
		if err != nil {
			f.warnf("node %q: accumulation buffer (%v); skipped", n.Name, err)
			return
		}
		f.e.accum = id
	}
	if err := f.e.adapter.WriteBuffer(f.e.accum, 0, make([]byte, analysisBins*4)); err != nil {
		f.warnf("node %q: accumulation clear (%v); skipped", n.Name, err)
		return
	}

	in, temp := f.resolveInput(n, graph.PortSource)
	if in == nil {
		return
	}

	pass := f.e.adapter.BeginComputePass()
	pass.SetPipeline(scatter)
	pass.BindBuffer(0, f.e.accum)
	pass.BindTexture(1, in.ID())
	pass.Dispatch(groups(in.Width()), groups(in.Height()), 1)
	pass.End()

	if temp {
		f.e.pool.Checkin(in)
	}

	out := f.nodeOutput(n)
	if out == nil {
		return
	}
	pass = f.e.adapter.BeginComputePass()
	pass.SetPipeline(resolve)
	pass.BindTexture(0, out.ID())
	pass.BindBuffer(0, f.e.accum)
	pass.SetUniforms(packUniforms(n))
	pass.Dispatch(groups(out.Width()), groups(out.Height()), 1)
	pass.End()

	f.outputs[n.ID] = out
}

// applyWatermark overlays the stripe pattern onto the destination
// after the main pass.
func (f *frame) applyWatermark(wm *WatermarkSpec) {
	pipeline, err := f.e.kernels.Load(graph.KernelWatermark)
	if err != nil {
		f.warnf("watermark kernel unavailable (%v); skipped", err)
		return
	}

	pass := f.e.adapter.BeginComputePass()
	pass.SetPipeline(pipeline)
	pass.BindTexture(0, f.dst.ID())
	pass.SetUniforms(packWords([]float32{
		float32(wm.Opacity),
		float32(wm.Stripe),
		float32(wm.Pitch),
		float32(wm.Style),
	}))
	pass.Dispatch(groups(f.w), groups(f.h), 1)
	pass.End()
}

// nodeOutput checks out the node's output texture: the caller's
// destination for the root, a pooled working texture otherwise.
func (f *frame) nodeOutput(n *graph.Node) *device.Texture {
	if n.ID == f.req.Graph.Root() {
		return f.dst
	}
	out, err := f.e.pool.Checkout(workingDesc(f.w, f.h))
	if err != nil {
		f.warnf("node %q: allocation failed (%v); skipped", n.Name, err)
		return nil
	}
	return out
}

// resolveInputs gathers the node's input textures in binding order:
// slot 0 is the output, primaries follow in fixed order, auxiliary
// ports after them sorted by name. Missing upstreams are substituted
// with blank placeholders, returned in temps for checkin after
// encoding. ok is false when a slot could not be filled at all; the
// node must not dispatch.
func (f *frame) resolveInputs(n *graph.Node) (ins, temps []*device.Texture, ok bool) {
	for _, port := range orderedPorts(n.Inputs) {
		tex, temp := f.resolveInput(n, port)
		if tex == nil {
			return ins, temps, false
		}
		if temp {
			temps = append(temps, tex)
		}
		ins = append(ins, tex)
	}
	return ins, temps, true
}

func (f *frame) checkinAll(temps []*device.Texture) {
	for _, t := range temps {
		f.e.pool.Checkin(t)
	}
}

// resolveInput returns the upstream texture for a port, or a blank
// placeholder (temp=true) when the upstream was skipped. A nil return
// means even the placeholder could not be allocated; the warning is
// already recorded.
func (f *frame) resolveInput(n *graph.Node, port string) (tex *device.Texture, temp bool) {
	ref, ok := n.Inputs[port]
	if ok {
		if t := f.outputs[ref]; t != nil {
			return t, false
		}
	}
	f.warnf("node %q: input %q missing; substituted blank", n.Name, port)
	ph := f.blank()
	return ph, ph != nil
}

// blank checks out a zero-filled working texture, the deterministic
// placeholder for every soft failure.
func (f *frame) blank() *device.Texture {
	tex, err := f.e.pool.Checkout(workingDesc(f.w, f.h))
	if err != nil {
		f.warnf("placeholder allocation failed: %v", err)
		return nil
	}
	if err := f.e.adapter.WriteTexture(tex.ID(), f.zeroBlock()); err != nil {
		f.e.pool.Checkin(tex)
		f.warnf("placeholder clear failed: %v", err)
		return nil
	}
	return tex
}

// zeroBlock returns the reusable blank upload sized for the working
// descriptor.
func (f *frame) zeroBlock() []byte {
	if f.zero == nil {
		f.zero = make([]byte, workingDesc(f.w, f.h).ByteSize())
	}
	return f.zero
}

// groups converts a pixel extent to an 8-wide workgroup count.
func groups(extent int) uint32 {
	return uint32((extent + 7) / 8)
}
