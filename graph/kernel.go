package graph

// Kernel ids for the operations the engine itself emits. Effect
// kernels compiled by the feature registry are opaque strings outside
// this vocabulary.
const (
	// KernelSourceDecode marks a node whose output comes from the
	// frame source rather than a dispatch.
	KernelSourceDecode = "source.decode"

	// Procedural generators.
	KernelGenGradient = "generator.gradient"
	KernelGenNoise    = "generator.noise"
	KernelGenBars     = "generator.bars"
	KernelGenSolid    = "generator.solid"

	// Input device transforms: encoded video vs. linear stills.
	KernelIDTVideo  = "idt.video"
	KernelIDTLinear = "idt.linear"

	// KernelODTDisplay converts the working representation back to a
	// display encoding. Always the graph root.
	KernelODTDisplay = "odt.display"

	// KernelClear fills the frame with the default color.
	KernelClear = "clear.color"

	// Compositors.
	KernelCompCrossfade = "composite.crossfade"
	KernelCompWipe      = "composite.wipe"
	KernelCompDip       = "composite.dip"
	KernelCompOver      = "composite.over"

	// KernelMaskShape rasterizes per-clip mask geometry.
	KernelMaskShape = "mask.shape"

	// Two-pass analysis kernels.
	KernelHistogramScatter = "analysis.histogram.scatter"
	KernelHistogramResolve = "analysis.histogram.resolve"

	// KernelWatermark overlays the watermark stripe pattern.
	KernelWatermark = "overlay.watermark"
)

// Input port names bound by the engine's fixed slot convention: the
// primary input binds first, compositor operands bind as first/second,
// auxiliary ports (masks and the like) bind after the primaries in
// sorted port-name order.
const (
	PortSource = "source"
	PortFirst  = "first"
	PortSecond = "second"
	PortMask   = "mask"
)

// Parameter names for engine-emitted nodes.
const (
	ParamProgress     = "progress"
	ParamDirection    = "direction"
	ParamColor        = "color"
	ParamWeightFirst  = "weightFirst"
	ParamWeightSecond = "weightSecond"
	ParamShapes       = "shapes"
	ParamGenerator    = "generator"
)
