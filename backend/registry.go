package backend

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gogpu/sprite/gpucore"
)

// Factory creates a new backend instance.
type Factory func() (gpucore.Backend, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	// Explicit binding is preferred, the legacy context is the fallback.
	backendPriority = []string{NameExplicit, NameLegacy}
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the sorted names of registered backends.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Get creates a backend instance by name.
func Get(name string) (gpucore.Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return create(name, factory)
}

// Default returns the best available backend based on priority.
// Priority order: explicit > legacy > any other registered backend.
// Factory errors are skipped; the last one is returned if nothing succeeds.
func Default() (gpucore.Backend, error) {
	registryMu.RLock()
	order := make([]string, 0, len(factories))
	seen := make(map[string]bool, len(factories))
	for _, name := range backendPriority {
		if _, ok := factories[name]; ok {
			order = append(order, name)
			seen[name] = true
		}
	}
	rest := make([]string, 0, len(factories))
	for name := range factories {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)
	snapshot := make(map[string]Factory, len(order))
	for _, name := range order {
		snapshot[name] = factories[name]
	}
	registryMu.RUnlock()

	lastErr := ErrBackendNotAvailable
	for _, name := range order {
		b, err := create(name, snapshot[name])
		if err != nil {
			slogger().Warn("backend unavailable", "name", name, "err", err)
			lastErr = err
			continue
		}
		return b, nil
	}
	return nil, lastErr
}

// MustDefault returns the default backend or panics.
func MustDefault() gpucore.Backend {
	b, err := Default()
	if err != nil {
		panic("backend: no backend available: " + err.Error())
	}
	return b
}

func create(name string, factory Factory) (gpucore.Backend, error) {
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %q returned nil", ErrBackendNotAvailable, name)
	}
	if ls, ok := b.(interface{ SetLogger(*slog.Logger) }); ok {
		ls.SetLogger(slogger())
	}
	slogger().Info("backend selected", "name", b.Name())
	return b, nil
}
