package device

import (
	"errors"
	"testing"
)

func TestKernelLibraryLoad(t *testing.T) {
	a := newTestAdapter(t)
	lib := NewKernelLibrary(a, KernelProduction)
	defer lib.Close()

	id, err := lib.Load("composite.crossfade")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if id == InvalidID {
		t.Fatal("Load returned invalid pipeline")
	}

	// Second load hits the cache and returns the same pipeline.
	id2, err := lib.Load("composite.crossfade")
	if err != nil {
		t.Fatalf("Load (cached): %v", err)
	}
	if id2 != id {
		t.Errorf("cached load = %d, want %d", id2, id)
	}
}

func TestKernelLibraryMissing(t *testing.T) {
	a := newTestAdapter(t)
	lib := NewKernelLibrary(a, KernelProduction)
	defer lib.Close()

	if _, err := lib.Load("no.such.kernel"); !errors.Is(err, ErrKernelMissing) {
		t.Errorf("err = %v, want ErrKernelMissing", err)
	}
}

func TestKernelLibraryReload(t *testing.T) {
	a := newTestAdapter(t)
	lib := NewKernelLibrary(a, KernelDevelopment)
	defer lib.Close()

	id, err := lib.Load("clear.color")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lib.ReloadAll()
	id2, err := lib.Load("clear.color")
	if err != nil {
		t.Fatalf("Load after reload: %v", err)
	}
	if id2 == id {
		t.Error("reload should produce a fresh pipeline")
	}
}

func TestKernelsCatalogComplete(t *testing.T) {
	want := []string{
		"clear.color",
		"generator.solid", "generator.gradient", "generator.noise", "generator.bars",
		"idt.video", "idt.linear", "odt.display",
		"composite.crossfade", "composite.wipe", "composite.dip", "composite.over",
		"mask.shape",
		"analysis.histogram.scatter", "analysis.histogram.resolve",
		"overlay.watermark",
	}
	have := make(map[string]bool)
	for _, id := range Kernels() {
		have[id] = true
	}
	for _, id := range want {
		if !have[id] {
			t.Errorf("catalog missing %q", id)
		}
	}
}

func TestShaderSourcesEmbedded(t *testing.T) {
	sources := map[string]string{
		"generate.wgsl":  generateShaderWGSL,
		"color.wgsl":     colorShaderWGSL,
		"composite.wgsl": compositeShaderWGSL,
		"mask.wgsl":      maskShaderWGSL,
		"histogram.wgsl": histogramShaderWGSL,
		"watermark.wgsl": watermarkShaderWGSL,
	}
	for name, src := range sources {
		if src == "" {
			t.Errorf("%s is empty", name)
		}
	}
}
