// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package engine

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/gogpu/vfx/graph"
)

// maxMaskShapes bounds mask geometry to what fits the kernels' uniform
// block (16 vec4s: one count word plus 15 four-word rectangles).
const maxMaskShapes = 15

// packUniforms serializes a node's parameters into the uniform layout
// its kernel expects: little-endian float32 words.
func packUniforms(n *graph.Node) []byte {
	return packWords(uniformWords(n))
}

// uniformWords lays out the parameter words per kernel. Kernels
// outside the engine vocabulary (registry effects) get a generic
// layout: parameters in sorted name order, scalars as one word,
// vectors as three, float arrays verbatim.
func uniformWords(n *graph.Node) []float32 {
	switch n.Kernel {
	case graph.KernelClear, graph.KernelGenSolid:
		c := vec3Param(n, graph.ParamColor, [3]float64{0, 0, 0})
		return []float32{float32(c[0]), float32(c[1]), float32(c[2])}

	case graph.KernelGenGradient:
		// Unparameterized gradients ramp to white.
		c := vec3Param(n, graph.ParamColor, [3]float64{1, 1, 1})
		return []float32{float32(c[0]), float32(c[1]), float32(c[2])}

	case graph.KernelCompCrossfade:
		return []float32{floatParam(n, graph.ParamProgress, 0)}

	case graph.KernelCompWipe:
		return []float32{
			floatParam(n, graph.ParamProgress, 0),
			floatParam(n, graph.ParamDirection, 0),
		}

	case graph.KernelCompDip:
		c := vec3Param(n, graph.ParamColor, [3]float64{0, 0, 0})
		return []float32{
			floatParam(n, graph.ParamProgress, 0),
			float32(c[0]), float32(c[1]), float32(c[2]),
		}

	case graph.KernelCompOver:
		return []float32{
			floatParam(n, graph.ParamWeightFirst, 1),
			floatParam(n, graph.ParamWeightSecond, 1),
		}

	case graph.KernelMaskShape:
		shapes, _ := n.Params[graph.ParamShapes].AsFloats()
		count := len(shapes) / 4
		if count > maxMaskShapes {
			count = maxMaskShapes
		}
		words := make([]float32, 0, 1+count*4)
		words = append(words, float32(count))
		for _, v := range shapes[:count*4] {
			words = append(words, float32(v))
		}
		return words

	case graph.KernelSourceDecode, graph.KernelGenNoise, graph.KernelGenBars,
		graph.KernelIDTVideo, graph.KernelIDTLinear, graph.KernelODTDisplay,
		graph.KernelHistogramScatter, graph.KernelHistogramResolve:
		return nil

	default:
		return genericWords(n.Params)
	}
}

// genericWords serializes a parameter bag in sorted name order.
// Strings and blobs carry no uniform representation and are skipped.
func genericWords(params map[string]graph.Value) []float32 {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var words []float32
	for _, name := range names {
		v := params[name]
		switch v.Kind() {
		case graph.ValueFloat:
			f, _ := v.AsFloat()
			words = append(words, float32(f))
		case graph.ValueVec3:
			vec, _ := v.AsVec3()
			words = append(words, float32(vec[0]), float32(vec[1]), float32(vec[2]))
		case graph.ValueFloats:
			fs, _ := v.AsFloats()
			for _, f := range fs {
				words = append(words, float32(f))
			}
		}
	}
	return words
}

func packWords(words []float32) []byte {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(w))
	}
	return buf
}

func floatParam(n *graph.Node, name string, def float64) float32 {
	if v, ok := n.Params[name].AsFloat(); ok {
		return float32(v)
	}
	return float32(def)
}

func vec3Param(n *graph.Node, name string, def [3]float64) [3]float64 {
	if v, ok := n.Params[name].AsVec3(); ok {
		return v
	}
	return def
}

// orderedPorts returns a node's input ports in binding order: the
// primary ports first in their fixed positions, then auxiliary ports
// sorted by name.
func orderedPorts(inputs map[string]graph.NodeID) []string {
	out := make([]string, 0, len(inputs))
	for _, p := range []string{graph.PortSource, "input", graph.PortFirst, graph.PortSecond} {
		if _, ok := inputs[p]; ok {
			out = append(out, p)
		}
	}
	var aux []string
	for p := range inputs {
		switch p {
		case graph.PortSource, "input", graph.PortFirst, graph.PortSecond:
		default:
			aux = append(aux, p)
		}
	}
	sort.Strings(aux)
	return append(out, aux...)
}
