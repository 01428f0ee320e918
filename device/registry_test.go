package device

import "testing"

func TestRegistryGetSoftware(t *testing.T) {
	a, err := Get(BackendSoftware)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Name() != BackendSoftware {
		t.Errorf("Name = %q, want %q", a.Name(), BackendSoftware)
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	if _, err := Get("vulkan-direct"); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestRegistryAvailable(t *testing.T) {
	found := false
	for _, name := range Available() {
		if name == BackendSoftware {
			found = true
		}
	}
	if !found {
		t.Error("software backend not registered")
	}
}

func TestRegistryDefault(t *testing.T) {
	a, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	defer a.Close()
	// Whatever won the priority race must be initialized and usable.
	if _, err := a.CreateTexture(testDesc(4, 4), "probe"); err != nil {
		t.Errorf("default adapter unusable: %v", err)
	}
}
