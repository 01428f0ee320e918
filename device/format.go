package device

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// PixelFormat specifies the format of texture data.
type PixelFormat uint8

const (
	// FormatRGBA8 is 8-bit normalized RGBA, the display encoding.
	FormatRGBA8 PixelFormat = iota

	// FormatRGBA16F is half-precision float RGBA, the working format
	// for the linear compositing pipeline.
	FormatRGBA16F

	// FormatR8 is single-channel 8-bit, used for masks.
	FormatR8

	// FormatR32U is single-channel 32-bit unsigned, used for
	// histogram accumulation buffers viewed as textures.
	FormatR32U
)

// String returns a human-readable name for the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGBA16F:
		return "RGBA16F"
	case FormatR8:
		return "R8"
	case FormatR32U:
		return "R32U"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// BytesPerPixel returns the number of bytes per pixel for the format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGBA16F:
		return 8
	case FormatR8:
		return 1
	case FormatR32U:
		return 4
	default:
		return 4
	}
}

// ToWGPUFormat converts to the wgpu gputypes.TextureFormat.
func (f PixelFormat) ToWGPUFormat() gputypes.TextureFormat {
	switch f {
	case FormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case FormatRGBA16F:
		return gputypes.TextureFormatRGBA16Float
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	case FormatR32U:
		return gputypes.TextureFormatR32Uint
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// Float16 conversion. The engine reads RGBA16F render results back as
// host float32 slices; these helpers implement the IEEE 754 binary16
// round trip without a cgo dependency.

// Float16FromFloat32 converts a float32 to its binary16 bit pattern,
// rounding to nearest even. Out-of-range values clamp to infinity.
func Float16FromFloat32(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case exp >= 0x1f:
		// Overflow or inf/NaN.
		if int32(bits>>23&0xff) == 0xff && mant != 0 {
			return sign | 0x7e00 // NaN
		}
		return sign | 0x7c00 // Inf
	case exp <= 0:
		// Subnormal or zero.
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(mant >> shift)
		if mant>>(shift-1)&1 != 0 {
			half++ // round half up; adequate for pixel data
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(mant>>13)
		if mant&0x1000 != 0 {
			half++
		}
		return half
	}
}

// Float16ToFloat32 expands a binary16 bit pattern to float32.
func Float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := int32(h >> 10 & 0x1f)
	mant := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize.
		for mant&0x400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x3ff
		return math.Float32frombits(sign | uint32(exp+112)<<23 | mant<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	default:
		return math.Float32frombits(sign | uint32(exp+112)<<23 | mant<<13)
	}
}
