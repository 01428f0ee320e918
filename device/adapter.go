// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device is the GPU abstraction for the vfx engine.
//
// The engine never talks to a GPU API directly. It dispatches through
// the Adapter interface, which hides the backend (gogpu/wgpu or the
// deterministic software fallback) behind opaque resource handles.
// Each adapter implementation maintains the mapping between handles
// and actual backend resources.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
package device

import (
	"errors"
	"fmt"
)

// Adapter errors.
var (
	// ErrNoGPU is returned when no GPU adapter can be acquired.
	ErrNoGPU = errors.New("device: no suitable GPU adapter found")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("device: backend not initialized")

	// ErrInvalidDimensions is returned for non-positive texture sizes.
	ErrInvalidDimensions = errors.New("device: invalid texture dimensions")

	// ErrResourceNotFound is returned when a handle does not resolve.
	ErrResourceNotFound = errors.New("device: resource not found")
)

// Opaque resource handles. Handles are uint64 to accommodate various
// backend handle sizes; the zero value is always invalid.
type (
	// TextureID is an opaque handle to a GPU texture.
	TextureID uint64

	// BufferID is an opaque handle to a GPU buffer.
	BufferID uint64

	// ShaderModuleID is an opaque handle to a compiled shader module.
	ShaderModuleID uint64

	// PipelineID is an opaque handle to a compute pipeline.
	PipelineID uint64
)

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// Usage is a bitmask specifying how a texture will be used.
type Usage uint32

// Texture usage flags.
const (
	// UsageSampled allows the texture to be read in a shader binding.
	UsageSampled Usage = 1 << iota

	// UsageStorage allows the texture to be written as a storage binding.
	UsageStorage

	// UsageCopySrc allows the texture to be a copy/readback source.
	UsageCopySrc

	// UsageCopyDst allows the texture to be a copy/upload destination.
	UsageCopyDst
)

// DefaultUsage covers the working textures the engine allocates.
const DefaultUsage = UsageSampled | UsageStorage | UsageCopySrc | UsageCopyDst

// StorageClass selects where a texture's memory lives.
type StorageClass uint8

const (
	// StorageDevice is device-local memory, fastest for dispatch.
	StorageDevice StorageClass = iota

	// StorageShared is host-visible memory, used for readback targets
	// and caller-owned destination buffers.
	StorageShared
)

// String returns a human-readable name for the storage class.
func (s StorageClass) String() string {
	switch s {
	case StorageDevice:
		return "Device"
	case StorageShared:
		return "Shared"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// TextureDescriptor fully describes a texture for allocation purposes.
// It is a comparable value: two textures are interchangeable for pool
// reuse if and only if their descriptors are equal.
type TextureDescriptor struct {
	// Width is the texture width in pixels.
	Width int

	// Height is the texture height in pixels.
	Height int

	// Format is the pixel format.
	Format PixelFormat

	// Usage specifies how the texture will be used.
	Usage Usage

	// Storage selects the memory class.
	Storage StorageClass
}

// ByteSize returns the texture's memory footprint in bytes.
func (d TextureDescriptor) ByteSize() uint64 {
	return uint64(d.Width) * uint64(d.Height) * uint64(d.Format.BytesPerPixel())
}

// String returns a compact description for logs.
func (d TextureDescriptor) String() string {
	return fmt.Sprintf("%dx%d %s %s", d.Width, d.Height, d.Format, d.Storage)
}

// Texture pairs a handle with its descriptor. The pool tags textures it
// allocated with an owner marker at allocation time, so Checkin can
// reject foreign textures without an auxiliary identity set.
type Texture struct {
	id        TextureID
	desc      TextureDescriptor
	poolOwned bool
}

// NewTexture wraps an adapter-allocated handle. Textures created this
// way are not pool-owned; TexturePool.Checkin ignores them.
func NewTexture(id TextureID, desc TextureDescriptor) *Texture {
	return &Texture{id: id, desc: desc}
}

// ID returns the adapter handle.
func (t *Texture) ID() TextureID { return t.id }

// Desc returns the full descriptor.
func (t *Texture) Desc() TextureDescriptor { return t.desc }

// Width returns the width in pixels.
func (t *Texture) Width() int { return t.desc.Width }

// Height returns the height in pixels.
func (t *Texture) Height() int { return t.desc.Height }

// Format returns the pixel format.
func (t *Texture) Format() PixelFormat { return t.desc.Format }

// PoolOwned reports whether the texture was allocated by a TexturePool.
func (t *Texture) PoolOwned() bool { return t.poolOwned }

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageUniform indicates a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << iota

	// BufferUsageStorage indicates a storage buffer.
	BufferUsageStorage

	// BufferUsageCopySrc indicates the buffer can be a copy source.
	BufferUsageCopySrc

	// BufferUsageCopyDst indicates the buffer can be a copy destination.
	BufferUsageCopyDst
)

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Module is the compiled shader module, or InvalidID for backends
	// that execute kernels on the host (the software adapter).
	Module ShaderModuleID

	// EntryPoint is the shader entry function name.
	EntryPoint string

	// Kernel is the semantic kernel id the pipeline implements.
	// Host-executing backends dispatch on it; GPU backends treat it as
	// a debug label.
	Kernel string

	// Label is an optional debug label.
	Label string
}

// Capabilities describes what a backend can do.
type Capabilities struct {
	// MaxTextureSize is the maximum texture dimension supported.
	MaxTextureSize int

	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// SupportsCompute indicates if compute dispatch is supported.
	SupportsCompute bool

	// DeviceName is the device name for logs.
	DeviceName string
}

// Adapter abstracts over GPU backend implementations.
//
// One engine instance owns one adapter, which models a single logical
// GPU command queue: all work recorded between two Submit calls
// executes in submission order. That total ordering is what makes
// same-frame texture reuse safe without per-resource hazard tracking.
//
// Implementations must be safe for concurrent resource creation, but
// command recording (BeginComputePass through Submit) is single-caller:
// the engine records one frame at a time.
type Adapter interface {
	// Name returns the backend identifier (e.g. "wgpu", "software").
	Name() string

	// Init acquires the underlying device. Idempotent.
	Init() error

	// Close releases all backend resources.
	Close()

	// Capabilities returns device capabilities. Valid after Init.
	Capabilities() Capabilities

	// SupportsCompute reports whether kernels run on a real device.
	// When false, pipelines need no shader module and the backend
	// interprets kernels on the host.
	SupportsCompute() bool

	// CreateTexture allocates a texture. The contents are undefined
	// until written.
	CreateTexture(desc TextureDescriptor, label string) (TextureID, error)

	// DestroyTexture releases a texture.
	DestroyTexture(id TextureID)

	// WriteTexture uploads pixel data covering the full extent.
	// len(data) must equal the descriptor's ByteSize.
	WriteTexture(id TextureID, data []byte) error

	// ReadTexture downloads the full texture contents. This stalls
	// until outstanding GPU work touching the texture completes.
	ReadTexture(id TextureID) ([]byte, error)

	// CreateBuffer allocates a buffer of size bytes.
	CreateBuffer(size int, usage BufferUsage, label string) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data at a byte offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer reads size bytes at a byte offset.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// CreateShaderModule creates a shader module from SPIR-V words.
	CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (PipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id PipelineID)

	// BeginComputePass begins recording compute commands.
	BeginComputePass() ComputePass

	// Submit submits all recorded work to the queue as one ordered
	// batch.
	Submit()

	// WaitIdle blocks until the device reports completion of all
	// submitted work.
	WaitIdle()
}

// ComputePass records compute commands.
//
// Usage:
//  1. Obtain the pass from Adapter.BeginComputePass()
//  2. Per node: SetPipeline, bind resources, SetUniforms, Dispatch
//  3. Call End() to finish recording
//  4. Call Adapter.Submit() to execute
//
// The pass is single-use and must not be used after End().
type ComputePass interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(id PipelineID)

	// BindTexture binds a texture at a slot. Slot 0 is by convention
	// the output; inputs follow.
	BindTexture(slot uint32, id TextureID)

	// BindBuffer binds a storage buffer at a slot.
	BindBuffer(slot uint32, id BufferID)

	// SetUniforms supplies the serialized parameter block for the next
	// dispatch.
	SetUniforms(data []byte)

	// Dispatch dispatches workgroups covering the bound output extent.
	Dispatch(x, y, z uint32)

	// End finishes recording.
	End()
}
