package device

import (
	"fmt"
	"sync"
)

// Backend name constants.
const (
	// BackendWGPU is the name of the Pure Go GPU backend (gogpu/wgpu).
	BackendWGPU = "wgpu"

	// BackendSoftware is the name of the deterministic CPU backend.
	BackendSoftware = "software"
)

// AdapterFactory creates a new adapter instance.
type AdapterFactory func() Adapter

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]AdapterFactory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendWGPU, BackendSoftware}
)

// Register registers an adapter factory with the given name.
// This is typically called from init() functions in backend files.
// If a backend with the same name is already registered, it is replaced.
func Register(name string, factory AdapterFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the names of all registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	return names
}

// Get returns a new adapter by backend name.
func Get(name string) (Adapter, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("device: backend %q not registered", name)
	}
	return factory(), nil
}

// Default returns an initialized adapter for the best available
// backend: each backend in priority order is constructed and
// initialized, and the first that succeeds wins. The software backend
// always succeeds, so Default only fails when nothing is registered.
func Default() (Adapter, error) {
	registryMu.RLock()
	order := make([]AdapterFactory, 0, len(backendPriority))
	for _, name := range backendPriority {
		if factory, ok := backends[name]; ok {
			order = append(order, factory)
		}
	}
	registryMu.RUnlock()

	var lastErr error
	for _, factory := range order {
		a := factory()
		if err := a.Init(); err != nil {
			lastErr = err
			continue
		}
		return a, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoGPU, lastErr)
	}
	return nil, ErrNoGPU
}
