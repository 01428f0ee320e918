// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gogpu/naga"
)

//go:embed shaders/generate.wgsl
var generateShaderWGSL string

//go:embed shaders/color.wgsl
var colorShaderWGSL string

//go:embed shaders/composite.wgsl
var compositeShaderWGSL string

//go:embed shaders/mask.wgsl
var maskShaderWGSL string

//go:embed shaders/histogram.wgsl
var histogramShaderWGSL string

//go:embed shaders/watermark.wgsl
var watermarkShaderWGSL string

// ErrKernelMissing is returned when a kernel id has no catalog entry.
var ErrKernelMissing = errors.New("device: kernel not in catalog")

// KernelMode selects how the library treats shader sources.
type KernelMode int

const (
	// KernelProduction compiles embedded sources once and caches
	// pipelines for the process lifetime.
	KernelProduction KernelMode = iota

	// KernelDevelopment prefers .wgsl files from SourceDir over the
	// embedded sources and recompiles on every cache miss, so edited
	// shaders take effect after ReloadAll without a rebuild.
	KernelDevelopment
)

// kernelSpec ties a kernel id to its WGSL translation unit and entry
// point. The file name is used for development-mode disk lookup.
type kernelSpec struct {
	source *string
	file   string
	entry  string
}

// catalog is the closed set of kernels the engine can dispatch.
var catalog = map[string]kernelSpec{
	swKernelClear:            {&generateShaderWGSL, "generate.wgsl", "clear_color"},
	swKernelGenSolid:         {&generateShaderWGSL, "generate.wgsl", "clear_color"},
	swKernelGenGradient:      {&generateShaderWGSL, "generate.wgsl", "gen_gradient"},
	swKernelGenNoise:         {&generateShaderWGSL, "generate.wgsl", "gen_noise"},
	swKernelGenBars:          {&generateShaderWGSL, "generate.wgsl", "gen_bars"},
	swKernelIDTVideo:         {&colorShaderWGSL, "color.wgsl", "idt_video"},
	swKernelIDTLinear:        {&colorShaderWGSL, "color.wgsl", "idt_linear"},
	swKernelODTDisplay:       {&colorShaderWGSL, "color.wgsl", "odt_display"},
	swKernelCompCrossfade:    {&compositeShaderWGSL, "composite.wgsl", "comp_crossfade"},
	swKernelCompWipe:         {&compositeShaderWGSL, "composite.wgsl", "comp_wipe"},
	swKernelCompDip:          {&compositeShaderWGSL, "composite.wgsl", "comp_dip"},
	swKernelCompOver:         {&compositeShaderWGSL, "composite.wgsl", "comp_over"},
	swKernelMaskShape:        {&maskShaderWGSL, "mask.wgsl", "mask_shape"},
	swKernelHistogramScatter: {&histogramShaderWGSL, "histogram.wgsl", "hist_scatter"},
	swKernelHistogramResolve: {&histogramShaderWGSL, "histogram.wgsl", "hist_resolve"},
	swKernelWatermark:        {&watermarkShaderWGSL, "watermark.wgsl", "watermark_apply"},
}

// Kernels returns the ids of all cataloged kernels.
func Kernels() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	return ids
}

// KernelLibrary compiles and caches compute pipelines per kernel id.
//
// On backends that report SupportsCompute, Load compiles the kernel's
// WGSL translation unit to SPIR-V through naga and builds a real
// pipeline. On host backends the pipeline only carries the kernel id;
// the backend interprets it at dispatch time. Either way the engine
// sees one PipelineID per kernel.
//
// KernelLibrary is safe for concurrent use.
type KernelLibrary struct {
	mu      sync.Mutex
	adapter Adapter
	mode    KernelMode

	// SourceDir is the development-mode shader override directory.
	// Empty means embedded sources only.
	SourceDir string

	pipelines map[string]PipelineID
	modules   map[string]ShaderModuleID // keyed by translation unit file
}

// NewKernelLibrary creates a library over the adapter.
func NewKernelLibrary(adapter Adapter, mode KernelMode) *KernelLibrary {
	return &KernelLibrary{
		adapter:   adapter,
		mode:      mode,
		pipelines: make(map[string]PipelineID),
		modules:   make(map[string]ShaderModuleID),
	}
}

// Load returns the pipeline for a kernel id, compiling it on first
// use. Unknown ids return ErrKernelMissing.
func (l *KernelLibrary) Load(kernel string) (PipelineID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.pipelines[kernel]; ok {
		return id, nil
	}

	spec, ok := catalog[kernel]
	if !ok {
		return InvalidID, fmt.Errorf("%w: %q", ErrKernelMissing, kernel)
	}

	desc := &ComputePipelineDesc{
		EntryPoint: spec.entry,
		Kernel:     kernel,
		Label:      kernel,
	}

	if l.adapter.SupportsCompute() {
		module, err := l.moduleLocked(spec)
		if err != nil {
			return InvalidID, err
		}
		desc.Module = module
	}

	id, err := l.adapter.CreateComputePipeline(desc)
	if err != nil {
		return InvalidID, fmt.Errorf("device: pipeline for %q: %w", kernel, err)
	}
	l.pipelines[kernel] = id
	return id, nil
}

// moduleLocked compiles the spec's translation unit once and caches
// the shader module. Caller must hold mu.
func (l *KernelLibrary) moduleLocked(spec kernelSpec) (ShaderModuleID, error) {
	if id, ok := l.modules[spec.file]; ok {
		return id, nil
	}

	source := *spec.source
	if l.mode == KernelDevelopment && l.SourceDir != "" {
		if data, err := os.ReadFile(filepath.Join(l.SourceDir, spec.file)); err == nil {
			source = string(data)
		}
	}

	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return InvalidID, fmt.Errorf("device: compile %s: %w", spec.file, err)
	}

	// SPIR-V is little-endian 32-bit words.
	spirv := make([]uint32, len(spirvBytes)/4)
	for i := range spirv {
		spirv[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	id, err := l.adapter.CreateShaderModule(spirv, spec.file)
	if err != nil {
		return InvalidID, fmt.Errorf("device: module %s: %w", spec.file, err)
	}
	l.modules[spec.file] = id
	return id, nil
}

// ReloadAll drops every cached pipeline and module so the next Load
// recompiles from source. Intended for development mode.
func (l *KernelLibrary) ReloadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked()
}

// Close releases all pipelines and modules.
func (l *KernelLibrary) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked()
}

func (l *KernelLibrary) releaseLocked() {
	for _, id := range l.pipelines {
		l.adapter.DestroyComputePipeline(id)
	}
	for _, id := range l.modules {
		l.adapter.DestroyShaderModule(id)
	}
	l.pipelines = make(map[string]PipelineID)
	l.modules = make(map[string]ShaderModuleID)
}
