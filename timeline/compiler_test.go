package timeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/vfx/graph"
)

// testRegistry covers the port shapes the compiler has to wire.
func testRegistry() StaticRegistry {
	passthrough := func(kernel string) func(g *graph.Graph, inputs map[string]graph.NodeID, params map[string]graph.Value) (graph.NodeID, error) {
		return func(g *graph.Graph, inputs map[string]graph.NodeID, params map[string]graph.Value) (graph.NodeID, error) {
			return g.Add(graph.Node{
				Name:   kernel,
				Kernel: kernel,
				Kind:   graph.KindCompute,
				Inputs: inputs,
				Params: params,
			}), nil
		}
	}
	return StaticRegistry{
		"fx.blur": {
			Domain:       "video",
			InputPorts:   []string{graph.PortSource},
			CompileNodes: passthrough("fx.blur"),
		},
		"fx.vignette": {
			Domain:       "video",
			InputPorts:   []string{graph.PortSource, graph.PortMask},
			CompileNodes: passthrough("fx.vignette"),
		},
		"fx.keylight": {
			Domain:     "video",
			InputPorts: []string{"key"},
			CompileNodes: func(g *graph.Graph, inputs map[string]graph.NodeID, params map[string]graph.Value) (graph.NodeID, error) {
				return graph.InvalidNode, errors.New("unreachable")
			},
		},
		"fx.reverb": {
			Domain:     "audio",
			InputPorts: []string{graph.PortSource},
			CompileNodes: func(g *graph.Graph, inputs map[string]graph.NodeID, params map[string]graph.Value) (graph.NodeID, error) {
				return graph.InvalidNode, errors.New("audio feature must be skipped")
			},
		},
	}
}

func videoClip(asset string, start, dur float64) Clip {
	return Clip{Asset: asset, Start: start, Duration: dur}
}

func singleTrack(clips ...Clip) *Timeline {
	return &Timeline{Tracks: []Track{{Kind: TrackVideo, Clips: clips}}}
}

func findKernel(t *testing.T, g *graph.Graph, kernel string) *graph.Node {
	t.Helper()
	nodes := g.Nodes()
	for i := range nodes {
		if nodes[i].Kernel == kernel {
			return &nodes[i]
		}
	}
	t.Fatalf("no %q node in graph", kernel)
	return nil
}

func floatParam(t *testing.T, n *graph.Node, name string) float64 {
	t.Helper()
	v, ok := n.Params[name].AsFloat()
	if !ok {
		t.Fatalf("node %q param %q is %v, want Float", n.Name, name, n.Params[name])
	}
	return v
}

func TestCompileEmptyTimeline(t *testing.T) {
	c := NewCompiler(nil)
	req, err := c.Compile(&Timeline{}, 1.0, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g := req.Graph
	if g.Len() != 2 {
		t.Fatalf("graph has %d nodes, want clear + output", g.Len())
	}

	clear := findKernel(t, g, graph.KernelClear)
	if clear.Kind != graph.KindClear {
		t.Errorf("clear kind = %v", clear.Kind)
	}
	root, _ := g.Node(g.Root())
	if root.Kernel != graph.KernelODTDisplay {
		t.Errorf("root kernel = %q, want %q", root.Kernel, graph.KernelODTDisplay)
	}
	if root.Inputs[graph.PortSource] != clear.ID {
		t.Error("output is not wired to the clear node")
	}
}

func TestCompileSingleClip(t *testing.T) {
	clip := videoClip("shot.mp4", 1.0, 4.0)
	clip.In = 2.5
	c := NewCompiler(nil)

	req, err := c.Compile(singleTrack(clip), 1.5, graph.QualityHigh)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g := req.Graph
	if g.Len() != 3 {
		t.Fatalf("graph has %d nodes, want decode + transform + output", g.Len())
	}

	src := findKernel(t, g, graph.KernelSourceDecode)
	if src.Asset != "shot.mp4" {
		t.Errorf("source asset = %q", src.Asset)
	}
	// Local media time: 1.5s timeline minus 1.0s start plus 2.5s in-point.
	if src.Time != 3.0 {
		t.Errorf("source time = %v, want 3.0", src.Time)
	}

	idt := findKernel(t, g, graph.KernelIDTVideo)
	if idt.Inputs[graph.PortSource] != src.ID {
		t.Error("input transform not wired to the source")
	}
	root, _ := g.Node(g.Root())
	if root.Inputs[graph.PortSource] != idt.ID {
		t.Error("output not wired to the input transform")
	}
}

func TestCompileLinearStillTransform(t *testing.T) {
	clip := videoClip("matte.exr", 0, 10)
	clip.Encoding = LinearStill
	c := NewCompiler(nil)

	req, err := c.Compile(singleTrack(clip), 1, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	findKernel(t, req.Graph, graph.KernelIDTLinear)
}

func TestCompileGeneratorSelection(t *testing.T) {
	tests := []struct {
		asset  string
		kernel string
	}{
		{"generator://gradient", graph.KernelGenGradient},
		{"generator://film_noise", graph.KernelGenNoise},
		{"generator://smpte-bars", graph.KernelGenBars},
		{"generator://solid", graph.KernelGenSolid},
		{"generator://mystery", graph.KernelGenSolid},
	}
	c := NewCompiler(nil)
	for _, tt := range tests {
		t.Run(tt.asset, func(t *testing.T) {
			req, err := c.Compile(singleTrack(videoClip(tt.asset, 0, 5)), 1, graph.QualityDraft)
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			n := findKernel(t, req.Graph, tt.kernel)
			if n.Kind != graph.KindGenerator {
				t.Errorf("kind = %v, want Generator", n.Kind)
			}
		})
	}
}

func TestCompileCrossfadeWindow(t *testing.T) {
	a := videoClip("a.mp4", 0, 2)
	b := videoClip("b.mp4", 1.5, 2)
	b.Transition = Transition{Type: TransitionCrossfade, Duration: 0.5}
	tl := singleTrack(a, b)
	c := NewCompiler(nil)

	// Halfway through the 0.5s window starting at 1.5s.
	req, err := c.Compile(tl, 1.75, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	fade := findKernel(t, req.Graph, graph.KernelCompCrossfade)
	if got := floatParam(t, fade, graph.ParamProgress); got != smoothstep(0.5) {
		t.Errorf("progress = %v, want %v", got, smoothstep(0.5))
	}

	// The outgoing clip is the first operand, the incoming the second.
	first, _ := req.Graph.Node(fade.Inputs[graph.PortFirst])
	second, _ := req.Graph.Node(fade.Inputs[graph.PortSecond])
	firstSrc, _ := req.Graph.Node(first.Inputs[graph.PortSource])
	secondSrc, _ := req.Graph.Node(second.Inputs[graph.PortSource])
	if firstSrc.Asset != "a.mp4" || secondSrc.Asset != "b.mp4" {
		t.Errorf("operand order: first=%q second=%q", firstSrc.Asset, secondSrc.Asset)
	}

	// Before the overlap only one clip is active: no compositor at all.
	req, err = c.Compile(tl, 0.5, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if req.Graph.Len() != 3 {
		t.Errorf("single-clip graph has %d nodes, want 3", req.Graph.Len())
	}
	for _, n := range req.Graph.Nodes() {
		if n.Kernel == graph.KernelCompCrossfade {
			t.Error("single-clip graph contains a compositor")
		}
	}
}

func TestCompileWipeIsLinear(t *testing.T) {
	a := videoClip("a.mp4", 0, 2)
	b := videoClip("b.mp4", 1.0, 2)
	b.Transition = Transition{Type: TransitionWipe, Duration: 1.0, Direction: WipeTopToBottom}
	c := NewCompiler(nil)

	req, err := c.Compile(singleTrack(a, b), 1.25, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	wipe := findKernel(t, req.Graph, graph.KernelCompWipe)
	// A quarter into the window, exactly: wipes do not ease.
	if got := floatParam(t, wipe, graph.ParamProgress); got != 0.25 {
		t.Errorf("progress = %v, want 0.25", got)
	}
	if got := floatParam(t, wipe, graph.ParamDirection); got != WipeTopToBottom {
		t.Errorf("direction = %v, want %d", got, WipeTopToBottom)
	}
}

func TestCompileDipEasesAndCarriesColor(t *testing.T) {
	a := videoClip("a.mp4", 0, 2)
	b := videoClip("b.mp4", 1.0, 2)
	b.Transition = Transition{Type: TransitionDipToColor, Duration: 1.0, Color: [3]float64{1, 1, 1}}
	c := NewCompiler(nil)

	req, err := c.Compile(singleTrack(a, b), 1.25, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	dip := findKernel(t, req.Graph, graph.KernelCompDip)
	if got := floatParam(t, dip, graph.ParamProgress); got != smoothstep(0.25) {
		t.Errorf("progress = %v, want %v", got, smoothstep(0.25))
	}
	if col, ok := dip.Params[graph.ParamColor].AsVec3(); !ok || col != [3]float64{1, 1, 1} {
		t.Errorf("color = %v", dip.Params[graph.ParamColor])
	}
}

func TestCompileOverlapWithoutTransition(t *testing.T) {
	// Two clips overlap with no declared transition: blend by weight
	// ratio through the default dissolve.
	a := videoClip("a.mp4", 0, 3)
	b := videoClip("b.mp4", 1, 3)
	c := NewCompiler(nil)

	req, err := c.Compile(singleTrack(a, b), 2, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	fade := findKernel(t, req.Graph, graph.KernelCompCrossfade)
	// Both clips carry weight 1, so the ratio is an even split.
	if got := floatParam(t, fade, graph.ParamProgress); got != smoothstep(0.5) {
		t.Errorf("progress = %v, want %v", got, smoothstep(0.5))
	}
}

func TestCompileThreeClipStack(t *testing.T) {
	tl := singleTrack(
		videoClip("a.mp4", 0, 5),
		videoClip("b.mp4", 1, 5),
		videoClip("c.mp4", 2, 5),
	)
	c := NewCompiler(nil)

	req, err := c.Compile(tl, 3, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var overs []*graph.Node
	nodes := req.Graph.Nodes()
	for i := range nodes {
		if nodes[i].Kernel == graph.KernelCompOver {
			overs = append(overs, &nodes[i])
		}
	}
	if len(overs) != 2 {
		t.Fatalf("stack emitted %d over nodes, want 2", len(overs))
	}

	// The second fold's first operand is the first fold, and its first
	// weight is the accumulated weight of the two clips already folded.
	if overs[1].Inputs[graph.PortFirst] != overs[0].ID {
		t.Error("folds are not chained")
	}
	if got := floatParam(t, overs[1], graph.ParamWeightFirst); got != 2 {
		t.Errorf("accumulated weight = %v, want 2", got)
	}
	if got := floatParam(t, overs[1], graph.ParamWeightSecond); got != 1 {
		t.Errorf("incoming weight = %v, want 1", got)
	}
}

func TestCompileEffectChain(t *testing.T) {
	clip := videoClip("shot.mp4", 0, 5)
	clip.Effects = []EffectInstance{
		{Feature: "fx.blur", Params: map[string]graph.Value{"radius": graph.Float(3)}},
		{Feature: "fx.reverb"}, // audio domain, skipped
		{Feature: "fx.vignette"},
	}
	clip.MaskShapes = []Shape{{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}}
	c := NewCompiler(testRegistry())

	req, err := c.Compile(singleTrack(clip), 1, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	g := req.Graph

	blur := findKernel(t, g, "fx.blur")
	idt := findKernel(t, g, graph.KernelIDTVideo)
	if blur.Inputs[graph.PortSource] != idt.ID {
		t.Error("blur not wired to the input transform")
	}
	if v, _ := blur.Params["radius"].AsFloat(); v != 3 {
		t.Errorf("blur radius = %v", v)
	}

	vignette := findKernel(t, g, "fx.vignette")
	if vignette.Inputs[graph.PortSource] != blur.ID {
		t.Error("vignette not chained after blur (audio effect should be skipped)")
	}

	mask, ok := g.Node(vignette.Inputs[graph.PortMask])
	if !ok || mask.Kernel != graph.KernelMaskShape {
		t.Fatal("vignette mask port not wired to rasterized geometry")
	}
	shapes, _ := mask.Params[graph.ParamShapes].AsFloats()
	want := []float64{0.25, 0.25, 0.5, 0.5}
	if len(shapes) != len(want) {
		t.Fatalf("shapes = %v", shapes)
	}
	for i := range want {
		if shapes[i] != want[i] {
			t.Errorf("shapes[%d] = %v, want %v", i, shapes[i], want[i])
		}
	}
}

func TestCompileUnknownFeature(t *testing.T) {
	clip := videoClip("shot.mp4", 0, 5)
	clip.Effects = []EffectInstance{{Feature: "fx.nonexistent"}}
	c := NewCompiler(testRegistry())

	if _, err := c.Compile(singleTrack(clip), 1, graph.QualityDraft); !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("err = %v, want ErrUnknownFeature", err)
	}
}

func TestCompileUnsupportedPort(t *testing.T) {
	clip := videoClip("shot.mp4", 0, 5)
	clip.Effects = []EffectInstance{{Feature: "fx.keylight"}}
	c := NewCompiler(testRegistry())

	if _, err := c.Compile(singleTrack(clip), 1, graph.QualityDraft); !errors.Is(err, ErrUnsupportedPort) {
		t.Errorf("err = %v, want ErrUnsupportedPort", err)
	}
}

func TestCompileSkipsNonVideoTracks(t *testing.T) {
	tl := &Timeline{Tracks: []Track{
		{Kind: TrackAudio, Clips: []Clip{videoClip("song.wav", 0, 10)}},
		{Kind: TrackVideo, Clips: []Clip{videoClip("shot.mp4", 0, 10)}},
	}}
	c := NewCompiler(nil)

	req, err := c.Compile(tl, 1, graph.QualityDraft)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if req.Graph.Len() != 3 {
		t.Errorf("graph has %d nodes, want 3 (audio track must not compile)", req.Graph.Len())
	}
}

func TestCompileDeterministic(t *testing.T) {
	clipA := videoClip("a.mp4", 0, 2)
	clipB := videoClip("generator://noise", 1.5, 2)
	clipB.Transition = Transition{Type: TransitionCrossfade, Duration: 0.5}
	clipB.Effects = []EffectInstance{{Feature: "fx.vignette"}}
	clipB.MaskShapes = []Shape{{X: 0, Y: 0, W: 1, H: 0.5}}
	tl := singleTrack(clipA, clipB)
	c := NewCompiler(testRegistry())

	sig := func() string {
		req, err := c.Compile(tl, 1.75, graph.QualityHigh)
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		s := ""
		for _, n := range req.Graph.Nodes() {
			s += fmt.Sprintf("%d:%s:%s:%d|", n.ID, n.Kernel, n.Name, len(n.Inputs))
		}
		return s + fmt.Sprint(req.Graph.Root())
	}

	first := sig()
	for i := 0; i < 10; i++ {
		if got := sig(); got != first {
			t.Fatalf("compile %d diverged:\n%s\nvs\n%s", i, got, first)
		}
	}
}

func TestActiveWeight(t *testing.T) {
	clip := videoClip("a.mp4", 1, 2)
	clip.Transition = Transition{Type: TransitionCrossfade, Duration: 0.5}

	tests := []struct {
		t    float64
		want float64
	}{
		{0.5, 0},    // before start
		{1.0, 0},    // window opens at 0
		{1.25, 0.5}, // mid-ramp
		{1.5, 1},    // window closed
		{2.5, 1},    // body
		{3.0, 0},    // exclusive end
	}
	for _, tt := range tests {
		if got := clip.ActiveWeight(tt.t); got != tt.want {
			t.Errorf("ActiveWeight(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}

	// Without a transition the clip is fully present from its start.
	plain := videoClip("b.mp4", 1, 2)
	if got := plain.ActiveWeight(1.0); got != 1 {
		t.Errorf("plain ActiveWeight(1.0) = %v, want 1", got)
	}
}
