package device

import (
	"encoding/binary"
	"math"
)

// Kernel ids interpreted by the software backend. These mirror the
// engine's kernel vocabulary; the strings are duplicated here rather
// than imported to keep device free of graph dependencies.
const (
	swKernelClear            = "clear.color"
	swKernelGenGradient      = "generator.gradient"
	swKernelGenNoise         = "generator.noise"
	swKernelGenBars          = "generator.bars"
	swKernelGenSolid         = "generator.solid"
	swKernelIDTVideo         = "idt.video"
	swKernelIDTLinear        = "idt.linear"
	swKernelODTDisplay       = "odt.display"
	swKernelCompCrossfade    = "composite.crossfade"
	swKernelCompWipe         = "composite.wipe"
	swKernelCompDip          = "composite.dip"
	swKernelCompOver         = "composite.over"
	swKernelMaskShape        = "mask.shape"
	swKernelHistogramScatter = "analysis.histogram.scatter"
	swKernelHistogramResolve = "analysis.histogram.resolve"
	swKernelWatermark        = "overlay.watermark"
)

// Display gamma approximation used by the host IDT/ODT kernels.
const swGamma = 2.2

// histogramBins is the accumulation buffer length for analysis kernels.
const histogramBins = 256

// execKernel interprets one dispatch. Output is the slot-0 texture;
// inputs are the slot >= 1 textures in slot order. Unknown kernels
// copy their first input (or clear), so a registry effect bound to a
// host pipeline degrades visibly instead of crashing.
func (a *SoftwareAdapter) execKernel(p *softwarePass) {
	// Scatter has no texture output; handle it before resolving slot 0.
	if p.kernel == swKernelHistogramScatter {
		a.execScatter(p)
		return
	}

	out, err := a.texture(p.textures[0])
	if err != nil {
		return
	}
	ins := p.inputTextures()
	w, h := out.desc.Width, out.desc.Height

	switch p.kernel {
	case swKernelClear, swKernelGenSolid:
		r, g, b := p.u(0), p.u(1), p.u(2)
		for i := 0; i < w*h; i++ {
			out.pix[i*4], out.pix[i*4+1], out.pix[i*4+2], out.pix[i*4+3] = r, g, b, 1
		}

	case swKernelGenGradient:
		r, g, b := p.u(0), p.u(1), p.u(2)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				t := float32(0)
				if w > 1 {
					t = float32(x) / float32(w-1)
				}
				i := (y*w + x) * 4
				out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = r*t, g*t, b*t, 1
			}
		}

	case swKernelGenNoise:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := hashNoise(uint32(x), uint32(y))
				i := (y*w + x) * 4
				out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = v, v, v, 1
			}
		}

	case swKernelGenBars:
		bars := [7][3]float32{
			{0.75, 0.75, 0.75}, {0.75, 0.75, 0}, {0, 0.75, 0.75},
			{0, 0.75, 0}, {0.75, 0, 0.75}, {0.75, 0, 0}, {0, 0, 0.75},
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := bars[x*7/max(w, 1)%7]
				i := (y*w + x) * 4
				out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = c[0], c[1], c[2], 1
			}
		}

	case swKernelIDTVideo:
		forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
			s := in[0]
			return [4]float32{gammaDecode(s[0]), gammaDecode(s[1]), gammaDecode(s[2]), s[3]}
		})

	case swKernelIDTLinear:
		forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
			return in[0]
		})

	case swKernelODTDisplay:
		forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
			s := in[0]
			return [4]float32{gammaEncode(s[0]), gammaEncode(s[1]), gammaEncode(s[2]), clamp01(s[3])}
		})

	case swKernelCompCrossfade:
		prog := clamp01(p.u(0))
		forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
			return lerp4(in[0], in[1], prog)
		})

	case swKernelCompWipe:
		prog := clamp01(p.u(0))
		dir := int(p.u(1))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var frac float32
				switch dir {
				case 1:
					frac = 1 - float32(x)/float32(max(w-1, 1))
				case 2:
					frac = float32(y) / float32(max(h-1, 1))
				case 3:
					frac = 1 - float32(y)/float32(max(h-1, 1))
				default:
					frac = float32(x) / float32(max(w-1, 1))
				}
				src := in0or(ins, 0)
				if frac < prog {
					src = in0or(ins, 1)
				}
				i := (y*w + x) * 4
				s := src.sample(x, y, w, h)
				out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = s[0], s[1], s[2], s[3]
			}
		}

	case swKernelCompDip:
		prog := clamp01(p.u(0))
		dip := [4]float32{p.u(1), p.u(2), p.u(3), 1}
		forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
			if prog < 0.5 {
				return lerp4(in[0], dip, prog*2)
			}
			return lerp4(dip, in[1], prog*2-1)
		})

	case swKernelCompOver:
		wf, ws := p.u(0), p.u(1)
		total := wf + ws
		if total <= 0 {
			total = 1
		}
		forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
			return lerp4(in[0], in[1], ws/total)
		})

	case swKernelMaskShape:
		n := int(p.u(0))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				fx := float32(x) / float32(max(w-1, 1))
				fy := float32(y) / float32(max(h-1, 1))
				var v float32
				for s := 0; s < n; s++ {
					rx, ry := p.u(1+s*4), p.u(2+s*4)
					rw, rh := p.u(3+s*4), p.u(4+s*4)
					if fx >= rx && fx <= rx+rw && fy >= ry && fy <= ry+rh {
						v = 1
						break
					}
				}
				i := (y*w + x) * 4
				out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = v, v, v, 1
			}
		}

	case swKernelHistogramResolve:
		a.execResolve(p, out)

	case swKernelWatermark:
		opacity := clamp01(p.u(0))
		stripe := int(p.u(1))
		pitch := int(p.u(2))
		if stripe <= 0 {
			stripe = 8
		}
		if pitch <= stripe {
			pitch = stripe * 4
		}
		diagonal := p.u(3) == 0
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				d := y
				if diagonal {
					d = x + y
				}
				if d%pitch >= stripe {
					continue
				}
				i := (y*w + x) * 4
				for c := 0; c < 3; c++ {
					out.pix[i+c] = out.pix[i+c]*(1-opacity) + opacity
				}
			}
		}

	default:
		// Unknown kernel: pass the first input through, or leave the
		// output untouched when there is none.
		if len(ins) > 0 {
			forEachPixel(out, ins, func(i int, in [][4]float32) [4]float32 {
				return in[0]
			})
		}
	}
}

// execScatter accumulates a luminance histogram of the slot-1 input
// into the slot-0 buffer (uint32 bins, little endian).
func (a *SoftwareAdapter) execScatter(p *softwarePass) {
	in, err := a.texture(p.textures[1])
	if err != nil {
		return
	}
	a.mu.Lock()
	buf, ok := a.buffers[p.bufs[0]]
	a.mu.Unlock()
	if !ok || len(buf) < histogramBins*4 {
		return
	}
	for i := 0; i < in.desc.Width*in.desc.Height; i++ {
		luma := 0.2126*in.pix[i*4] + 0.7152*in.pix[i*4+1] + 0.0722*in.pix[i*4+2]
		bin := int(clamp01(luma) * (histogramBins - 1))
		v := binary.LittleEndian.Uint32(buf[bin*4:])
		binary.LittleEndian.PutUint32(buf[bin*4:], v+1)
	}
}

// execResolve rasterizes the slot-0 buffer histogram into the output
// as a bar chart normalized to the fullest bin.
func (a *SoftwareAdapter) execResolve(p *softwarePass, out *softwareTexture) {
	a.mu.Lock()
	buf, ok := a.buffers[p.bufs[0]]
	a.mu.Unlock()
	if !ok || len(buf) < histogramBins*4 {
		return
	}
	var peak uint32 = 1
	bins := make([]uint32, histogramBins)
	for i := range bins {
		bins[i] = binary.LittleEndian.Uint32(buf[i*4:])
		if bins[i] > peak {
			peak = bins[i]
		}
	}
	w, h := out.desc.Width, out.desc.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bin := x * histogramBins / max(w, 1)
			level := float32(bins[bin]) / float32(peak)
			var v float32
			if 1-float32(y)/float32(max(h-1, 1)) <= level {
				v = 1
			}
			i := (y*w + x) * 4
			out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = v, v, v, 1
		}
	}
}

// forEachPixel applies fn over the output extent, sampling every input
// at the corresponding (extent-remapped) coordinate.
func forEachPixel(out *softwareTexture, ins []*softwareTexture, fn func(i int, in [][4]float32) [4]float32) {
	w, h := out.desc.Width, out.desc.Height
	samples := make([][4]float32, len(ins))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k, in := range ins {
				samples[k] = in.sample(x, y, w, h)
			}
			i := (y*w + x) * 4
			v := fn(i, samples)
			out.pix[i], out.pix[i+1], out.pix[i+2], out.pix[i+3] = v[0], v[1], v[2], v[3]
		}
	}
}

// in0or returns input k, falling back to the first input.
func in0or(ins []*softwareTexture, k int) *softwareTexture {
	if k < len(ins) {
		return ins[k]
	}
	return ins[0]
}

func lerp4(a, b [4]float32, t float32) [4]float32 {
	return [4]float32{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		a[3] + (b[3]-a[3])*t,
	}
}

func gammaDecode(v float32) float32 {
	return float32(math.Pow(float64(clamp01(v)), swGamma))
}

func gammaEncode(v float32) float32 {
	return float32(math.Pow(float64(clamp01(v)), 1/swGamma))
}

// hashNoise is a deterministic per-pixel hash in [0, 1).
func hashNoise(x, y uint32) float32 {
	n := x*1619 + y*31337
	n = (n << 13) ^ n
	n = n*(n*n*15731+789221) + 1376312589
	return float32(n&0x7fffffff) / float32(0x80000000)
}
