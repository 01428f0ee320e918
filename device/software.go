package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// init registers the software backend on package import.
func init() {
	Register(BackendSoftware, func() Adapter {
		return NewSoftwareAdapter()
	})
}

// SoftwareAdapter is a deterministic CPU implementation of Adapter.
//
// It exists for two reasons: as the fallback when no GPU device can be
// acquired, and as the reference implementation the engine's tests run
// against. Kernels are interpreted on the host per pixel, textures
// live as float32 RGBA planes, and dispatches execute immediately in
// recording order, which trivially satisfies the queue's
// total-submission-order contract.
//
// SoftwareAdapter is safe for concurrent resource creation; command
// recording is single-caller, matching the Adapter contract.
type SoftwareAdapter struct {
	mu          sync.Mutex
	nextID      uint64
	textures    map[TextureID]*softwareTexture
	buffers     map[BufferID][]byte
	pipelines   map[PipelineID]string // pipeline -> kernel id
	initialized bool
}

// softwareTexture stores pixels as float32 RGBA regardless of format;
// the declared format governs the byte encoding on read and write.
type softwareTexture struct {
	desc TextureDescriptor
	pix  []float32 // len = Width*Height*4
}

// NewSoftwareAdapter creates an uninitialized software adapter.
func NewSoftwareAdapter() *SoftwareAdapter {
	return &SoftwareAdapter{
		textures:  make(map[TextureID]*softwareTexture),
		buffers:   make(map[BufferID][]byte),
		pipelines: make(map[PipelineID]string),
	}
}

// Name returns the backend identifier.
func (a *SoftwareAdapter) Name() string { return BackendSoftware }

// Init marks the adapter ready. It cannot fail.
func (a *SoftwareAdapter) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = true
	return nil
}

// Close drops all resources.
func (a *SoftwareAdapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.textures = make(map[TextureID]*softwareTexture)
	a.buffers = make(map[BufferID][]byte)
	a.pipelines = make(map[PipelineID]string)
	a.initialized = false
}

// Capabilities reports generous host-side limits.
func (a *SoftwareAdapter) Capabilities() Capabilities {
	return Capabilities{
		MaxTextureSize:  16384,
		MaxBufferSize:   1 << 30,
		SupportsCompute: false,
		DeviceName:      "vfx software rasterizer",
	}
}

// SupportsCompute returns false: kernels are interpreted on the host,
// so pipelines carry kernel ids instead of shader modules.
func (a *SoftwareAdapter) SupportsCompute() bool { return false }

func (a *SoftwareAdapter) allocID() uint64 {
	a.nextID++
	return a.nextID
}

// CreateTexture allocates a zeroed texture.
func (a *SoftwareAdapter) CreateTexture(desc TextureDescriptor, label string) (TextureID, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return InvalidID, ErrInvalidDimensions
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return InvalidID, ErrNotInitialized
	}
	id := TextureID(a.allocID())
	a.textures[id] = &softwareTexture{
		desc: desc,
		pix:  make([]float32, desc.Width*desc.Height*4),
	}
	return id, nil
}

// DestroyTexture releases a texture. Unknown handles are ignored.
func (a *SoftwareAdapter) DestroyTexture(id TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.textures, id)
}

func (a *SoftwareAdapter) texture(id TextureID) (*softwareTexture, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: texture %d", ErrResourceNotFound, id)
	}
	return t, nil
}

// WriteTexture uploads pixel data covering the full extent.
func (a *SoftwareAdapter) WriteTexture(id TextureID, data []byte) error {
	t, err := a.texture(id)
	if err != nil {
		return err
	}
	want := int(t.desc.ByteSize())
	if len(data) != want {
		return fmt.Errorf("device: write of %d bytes into %s texture (want %d)", len(data), t.desc, want)
	}
	n := t.desc.Width * t.desc.Height
	switch t.desc.Format {
	case FormatRGBA8:
		for i := 0; i < n; i++ {
			for c := 0; c < 4; c++ {
				t.pix[i*4+c] = float32(data[i*4+c]) / 255
			}
		}
	case FormatRGBA16F:
		for i := 0; i < n; i++ {
			for c := 0; c < 4; c++ {
				h := binary.LittleEndian.Uint16(data[(i*4+c)*2:])
				t.pix[i*4+c] = Float16ToFloat32(h)
			}
		}
	case FormatR8:
		for i := 0; i < n; i++ {
			v := float32(data[i]) / 255
			t.pix[i*4] = v
		}
	case FormatR32U:
		for i := 0; i < n; i++ {
			t.pix[i*4] = float32(binary.LittleEndian.Uint32(data[i*4:]))
		}
	}
	return nil
}

// ReadTexture downloads the full texture, encoded per its format.
func (a *SoftwareAdapter) ReadTexture(id TextureID) ([]byte, error) {
	t, err := a.texture(id)
	if err != nil {
		return nil, err
	}
	n := t.desc.Width * t.desc.Height
	out := make([]byte, t.desc.ByteSize())
	switch t.desc.Format {
	case FormatRGBA8:
		for i := 0; i < n; i++ {
			for c := 0; c < 4; c++ {
				out[i*4+c] = byte(clamp01(t.pix[i*4+c])*255 + 0.5)
			}
		}
	case FormatRGBA16F:
		for i := 0; i < n; i++ {
			for c := 0; c < 4; c++ {
				binary.LittleEndian.PutUint16(out[(i*4+c)*2:], Float16FromFloat32(t.pix[i*4+c]))
			}
		}
	case FormatR8:
		for i := 0; i < n; i++ {
			out[i] = byte(clamp01(t.pix[i*4])*255 + 0.5)
		}
	case FormatR32U:
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(t.pix[i*4]))
		}
	}
	return out, nil
}

// CreateBuffer allocates a zeroed buffer.
func (a *SoftwareAdapter) CreateBuffer(size int, usage BufferUsage, label string) (BufferID, error) {
	if size <= 0 {
		return InvalidID, fmt.Errorf("device: invalid buffer size %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return InvalidID, ErrNotInitialized
	}
	id := BufferID(a.allocID())
	a.buffers[id] = make([]byte, size)
	return id, nil
}

// DestroyBuffer releases a buffer. Unknown handles are ignored.
func (a *SoftwareAdapter) DestroyBuffer(id BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, id)
}

// WriteBuffer writes data at a byte offset.
func (a *SoftwareAdapter) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrResourceNotFound, id)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("device: buffer write out of range")
	}
	copy(buf[offset:], data)
	return nil
}

// ReadBuffer reads size bytes at a byte offset.
func (a *SoftwareAdapter) ReadBuffer(id BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrResourceNotFound, id)
	}
	if offset+size > uint64(len(buf)) {
		return nil, fmt.Errorf("device: buffer read out of range")
	}
	out := make([]byte, size)
	copy(out, buf[offset:offset+size])
	return out, nil
}

// CreateShaderModule accepts and discards SPIR-V: host execution has
// no use for it, but returning a valid handle lets shared code treat
// both backends uniformly.
func (a *SoftwareAdapter) CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ShaderModuleID(a.allocID()), nil
}

// DestroyShaderModule is a no-op.
func (a *SoftwareAdapter) DestroyShaderModule(id ShaderModuleID) {}

// CreateComputePipeline records the kernel id for host dispatch.
func (a *SoftwareAdapter) CreateComputePipeline(desc *ComputePipelineDesc) (PipelineID, error) {
	if desc == nil || desc.Kernel == "" {
		return InvalidID, fmt.Errorf("device: pipeline needs a kernel id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	id := PipelineID(a.allocID())
	a.pipelines[id] = desc.Kernel
	return id, nil
}

// DestroyComputePipeline releases a pipeline.
func (a *SoftwareAdapter) DestroyComputePipeline(id PipelineID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pipelines, id)
}

// BeginComputePass returns a pass that executes each dispatch
// immediately.
func (a *SoftwareAdapter) BeginComputePass() ComputePass {
	return &softwarePass{
		adapter:  a,
		textures: make(map[uint32]TextureID),
		bufs:     make(map[uint32]BufferID),
	}
}

// Submit is a no-op: dispatches already executed in order.
func (a *SoftwareAdapter) Submit() {}

// WaitIdle is a no-op: there is nothing in flight.
func (a *SoftwareAdapter) WaitIdle() {}

// softwarePass records bindings and interprets kernels at Dispatch.
type softwarePass struct {
	adapter  *SoftwareAdapter
	kernel   string
	textures map[uint32]TextureID
	bufs     map[uint32]BufferID
	uniforms []float32
	ended    bool
}

func (p *softwarePass) SetPipeline(id PipelineID) {
	p.adapter.mu.Lock()
	p.kernel = p.adapter.pipelines[id]
	p.adapter.mu.Unlock()
}

func (p *softwarePass) BindTexture(slot uint32, id TextureID) { p.textures[slot] = id }
func (p *softwarePass) BindBuffer(slot uint32, id BufferID)   { p.bufs[slot] = id }

func (p *softwarePass) SetUniforms(data []byte) {
	p.uniforms = p.uniforms[:0]
	for i := 0; i+4 <= len(data); i += 4 {
		p.uniforms = append(p.uniforms, math.Float32frombits(binary.LittleEndian.Uint32(data[i:])))
	}
}

func (p *softwarePass) End() { p.ended = true }

// u returns uniform word i, or 0 when the block is shorter.
func (p *softwarePass) u(i int) float32 {
	if i >= len(p.uniforms) {
		return 0
	}
	return p.uniforms[i]
}

// Dispatch interprets the bound kernel over the output extent. The
// workgroup counts are ignored: the host loop always covers the full
// output, matching how the engine sizes its dispatches.
func (p *softwarePass) Dispatch(x, y, z uint32) {
	if p.ended || p.kernel == "" {
		return
	}
	p.adapter.execKernel(p)
}

// inputTextures returns bound input textures (slot >= 1) ordered by slot.
func (p *softwarePass) inputTextures() []*softwareTexture {
	slots := make([]int, 0, len(p.textures))
	for s := range p.textures {
		if s >= 1 {
			slots = append(slots, int(s))
		}
	}
	sort.Ints(slots)
	ins := make([]*softwareTexture, 0, len(slots))
	for _, s := range slots {
		if t, err := p.adapter.texture(p.textures[uint32(s)]); err == nil {
			ins = append(ins, t)
		}
	}
	return ins
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sample reads a texture at pixel coordinates with edge clamping,
// remapping from the destination extent when sizes differ.
func (t *softwareTexture) sample(x, y, dstW, dstH int) [4]float32 {
	sx := x
	sy := y
	if t.desc.Width != dstW && dstW > 1 {
		sx = x * (t.desc.Width - 1) / (dstW - 1)
	}
	if t.desc.Height != dstH && dstH > 1 {
		sy = y * (t.desc.Height - 1) / (dstH - 1)
	}
	if sx < 0 {
		sx = 0
	} else if sx >= t.desc.Width {
		sx = t.desc.Width - 1
	}
	if sy < 0 {
		sy = 0
	} else if sy >= t.desc.Height {
		sy = t.desc.Height - 1
	}
	i := (sy*t.desc.Width + sx) * 4
	return [4]float32{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}
