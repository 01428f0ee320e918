// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package timeline

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gogpu/vfx/graph"
)

// defaultClearColor fills the frame when nothing is active.
var defaultClearColor = [3]float64{0, 0, 0}

// generatorScheme marks procedural assets.
const generatorScheme = "generator://"

// Compiler turns a timeline snapshot at one time into a render graph.
// A Compiler is stateless apart from its registry and safe for
// concurrent use.
type Compiler struct {
	registry FeatureRegistry
}

// NewCompiler returns a compiler resolving effects through reg. A nil
// registry compiles timelines without effects; any effect reference
// then fails with ErrUnknownFeature.
func NewCompiler(reg FeatureRegistry) *Compiler {
	return &Compiler{registry: reg}
}

// activeClip pairs a clip with its weight at the compile time.
type activeClip struct {
	clip   *Clip
	weight float64
}

// Compile builds the render graph for tl at time t. The output is
// deterministic: the same timeline and time always produce the same
// node sequence.
//
// The returned request carries no asset mapping; callers resolving
// logical ids to concrete locations fill Request.Assets themselves.
func (c *Compiler) Compile(tl *Timeline, t float64, q graph.Quality) (*graph.Request, error) {
	active := collectActive(tl, t)

	g := graph.New(4 * (len(active) + 1))

	if len(active) == 0 {
		root := g.Add(graph.Node{
			Name:   "clear",
			Kernel: graph.KernelClear,
			Kind:   graph.KindClear,
			Params: map[string]graph.Value{
				graph.ParamColor: graph.Vec3(defaultClearColor[0], defaultClearColor[1], defaultClearColor[2]),
			},
		})
		return c.finish(g, root, t, q)
	}

	chains := make([]graph.NodeID, len(active))
	for i, ac := range active {
		id, err := c.compileClip(g, ac.clip, t)
		if err != nil {
			return nil, err
		}
		chains[i] = id
	}

	var root graph.NodeID
	switch len(active) {
	case 1:
		root = chains[0]
	case 2:
		root = compileTransition(g, active, chains, t)
	default:
		root = compileStack(g, active, chains)
	}

	return c.finish(g, root, t, q)
}

// finish appends the output transform, validates, and wraps.
func (c *Compiler) finish(g *graph.Graph, root graph.NodeID, t float64, q graph.Quality) (*graph.Request, error) {
	out := g.Add(graph.Node{
		Name:   "display out",
		Kernel: graph.KernelODTDisplay,
		Kind:   graph.KindCompute,
		Inputs: map[string]graph.NodeID{graph.PortSource: root},
	})
	g.SetRoot(out)
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("timeline: compiled graph invalid: %w", err)
	}
	return &graph.Request{Graph: g, Time: t, Quality: q}, nil
}

// collectActive gathers video clips present at t, ordered by track then
// by clip position within the track.
func collectActive(tl *Timeline, t float64) []activeClip {
	var out []activeClip
	for ti := range tl.Tracks {
		track := &tl.Tracks[ti]
		if track.Kind != TrackVideo {
			continue
		}
		for ci := range track.Clips {
			clip := &track.Clips[ci]
			if w := clip.ActiveWeight(t); w > 0 {
				out = append(out, activeClip{clip: clip, weight: w})
			}
		}
	}
	return out
}

// compileClip emits the per-clip chain: source, input transform, then
// each effect in order. Returns the chain's output node.
func (c *Compiler) compileClip(g *graph.Graph, clip *Clip, t float64) (graph.NodeID, error) {
	cur := compileSource(g, clip, t)

	idt := graph.KernelIDTVideo
	if clip.Encoding == LinearStill {
		idt = graph.KernelIDTLinear
	}
	cur = g.Add(graph.Node{
		Name:   "input transform " + filepath.Base(clip.Asset),
		Kernel: idt,
		Kind:   graph.KindCompute,
		Inputs: map[string]graph.NodeID{graph.PortSource: cur},
	})

	for i := range clip.Effects {
		next, err := c.compileEffect(g, clip, &clip.Effects[i], cur)
		if err != nil {
			return graph.InvalidNode, err
		}
		cur = next
	}
	return cur, nil
}

// compileSource emits the clip's pixel origin: a procedural generator
// for generator:// assets, otherwise a decode node at the clip's local
// media time.
func compileSource(g *graph.Graph, clip *Clip, t float64) graph.NodeID {
	if strings.HasPrefix(clip.Asset, generatorScheme) {
		name := clip.Asset[len(generatorScheme):]
		return g.Add(graph.Node{
			Name:   "generate " + name,
			Kernel: generatorKernel(name),
			Kind:   graph.KindGenerator,
			Params: map[string]graph.Value{graph.ParamGenerator: graph.String(name)},
		})
	}
	return g.Add(graph.Node{
		Name:   "decode " + filepath.Base(clip.Asset),
		Kernel: graph.KernelSourceDecode,
		Kind:   graph.KindSource,
		Asset:  clip.Asset,
		Time:   t - clip.Start + clip.In,
	})
}

// generatorKernel maps a generator name to its kernel by substring, so
// "noise-fine" and "film_noise" both select the noise kernel. Unknown
// names fall back to a solid fill rather than failing the frame.
func generatorKernel(name string) string {
	switch {
	case strings.Contains(name, "gradient"):
		return graph.KernelGenGradient
	case strings.Contains(name, "noise"):
		return graph.KernelGenNoise
	case strings.Contains(name, "bars"):
		return graph.KernelGenBars
	default:
		return graph.KernelGenSolid
	}
}

// compileEffect resolves one effect through the registry and threads it
// into the clip chain.
func (c *Compiler) compileEffect(g *graph.Graph, clip *Clip, eff *EffectInstance, cur graph.NodeID) (graph.NodeID, error) {
	if c.registry == nil {
		return graph.InvalidNode, fmt.Errorf("%w: %q (no registry)", ErrUnknownFeature, eff.Feature)
	}
	man, err := c.registry.Lookup(eff.Feature)
	if err != nil {
		return graph.InvalidNode, fmt.Errorf("timeline: effect %q: %w", eff.Feature, err)
	}
	if man.Domain != "video" {
		// Audio and data features have no place in the picture graph.
		return cur, nil
	}

	inputs := make(map[string]graph.NodeID, len(man.InputPorts))
	for _, port := range man.InputPorts {
		switch port {
		case graph.PortSource, "input":
			inputs[port] = cur
		case graph.PortMask:
			inputs[port] = compileMask(g, clip)
		default:
			return graph.InvalidNode, fmt.Errorf("%w: feature %q port %q", ErrUnsupportedPort, eff.Feature, port)
		}
	}

	root, err := man.CompileNodes(g, inputs, eff.Params)
	if err != nil {
		return graph.InvalidNode, fmt.Errorf("timeline: effect %q: %w", eff.Feature, err)
	}
	return root, nil
}

// compileMask rasterizes the clip's mask rectangles into a node the
// effect can sample.
func compileMask(g *graph.Graph, clip *Clip) graph.NodeID {
	flat := make([]float64, 0, 4*len(clip.MaskShapes))
	for _, sh := range clip.MaskShapes {
		flat = append(flat, sh.X, sh.Y, sh.W, sh.H)
	}
	return g.Add(graph.Node{
		Name:   "mask " + filepath.Base(clip.Asset),
		Kernel: graph.KernelMaskShape,
		Kind:   graph.KindCompute,
		Params: map[string]graph.Value{graph.ParamShapes: graph.Floats(flat)},
	})
}

// compileTransition emits the two-clip compositor. The incoming clip
// (later start) selects the kernel; progress runs over its transition
// window, or falls back to the weight ratio when the clips merely
// overlap without a declared transition.
func compileTransition(g *graph.Graph, active []activeClip, chains []graph.NodeID, t float64) graph.NodeID {
	a, b := 0, 1
	if active[b].clip.Start < active[a].clip.Start {
		a, b = b, a
	}
	incoming := active[b].clip

	var progress float64
	tr := incoming.Transition
	if tr.Type != TransitionNone && tr.Duration > 0 {
		progress = clamp01((t - incoming.Start) / tr.Duration)
	} else if sum := active[a].weight + active[b].weight; sum > 0 {
		progress = active[b].weight / sum
	}

	node := graph.Node{
		Kind: graph.KindCompute,
		Inputs: map[string]graph.NodeID{
			graph.PortFirst:  chains[a],
			graph.PortSecond: chains[b],
		},
		Params: map[string]graph.Value{},
	}
	switch tr.Type {
	case TransitionWipe:
		node.Name = "wipe"
		node.Kernel = graph.KernelCompWipe
		node.Params[graph.ParamProgress] = graph.Float(progress)
		node.Params[graph.ParamDirection] = graph.Float(float64(tr.Direction))
	case TransitionDipToColor:
		node.Name = "dip to color"
		node.Kernel = graph.KernelCompDip
		node.Params[graph.ParamProgress] = graph.Float(smoothstep(progress))
		node.Params[graph.ParamColor] = graph.Vec3(tr.Color[0], tr.Color[1], tr.Color[2])
	default:
		node.Name = "crossfade"
		node.Kernel = graph.KernelCompCrossfade
		node.Params[graph.ParamProgress] = graph.Float(smoothstep(progress))
	}
	return g.Add(node)
}

// compileStack left-folds three or more clips with the weighted over
// compositor, in start order.
func compileStack(g *graph.Graph, active []activeClip, chains []graph.NodeID) graph.NodeID {
	order := make([]int, len(active))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return active[order[i]].clip.Start < active[order[j]].clip.Start
	})

	acc := chains[order[0]]
	accWeight := active[order[0]].weight
	for _, i := range order[1:] {
		acc = g.Add(graph.Node{
			Name:   "stack over",
			Kernel: graph.KernelCompOver,
			Kind:   graph.KindCompute,
			Inputs: map[string]graph.NodeID{
				graph.PortFirst:  acc,
				graph.PortSecond: chains[i],
			},
			Params: map[string]graph.Value{
				graph.ParamWeightFirst:  graph.Float(accWeight),
				graph.ParamWeightSecond: graph.Float(active[i].weight),
			},
		})
		accWeight += active[i].weight
	}
	return acc
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// smoothstep is the ease applied to dissolve-style transitions. Wipes
// stay linear so the edge tracks the pointer in scrub previews.
func smoothstep(p float64) float64 {
	return p * p * (3 - 2*p)
}
