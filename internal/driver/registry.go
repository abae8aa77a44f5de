package driver

import (
	"fmt"
	"sync"
)

// Registry is a process-wide, lazily-initialized catalog of driver
// factories. Registration is additive-only and idempotent by name:
// registering a factory whose name already exists is a no-op. There is
// no runtime unregister.
//
// Mirrors the reference implementation's OnceLock<DriverRegistry>, minus
// the manual init-once dance Go's sync.Once already gives us for free.
type Registry struct {
	mu        sync.Mutex
	factories []Factory
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it (and
// pre-registering the "fs" factory) on first call.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = &Registry{}
		defaultRegistry.Register(fsFactory{})
	})
	return defaultRegistry
}

// Register adds factory to the registry unless a factory with the same
// name is already present.
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := factory.Name()
	for _, f := range r.factories {
		if f.Name() == name {
			return
		}
	}
	r.factories = append(r.factories, factory)
}

// List returns the names of all registered factories, a snapshot taken
// under the lock. The registry is effectively frozen after startup, so
// callers don't need stability guarantees across calls.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.factories))
	for i, f := range r.factories {
		names[i] = f.Name()
	}
	return names
}

// Get locates the first factory whose name exactly (case-sensitively)
// matches name and constructs a Driver from it.
func (r *Registry) Get(name string, config Config) (Driver, error) {
	r.mu.Lock()
	var found Factory
	for _, f := range r.factories {
		if f.Name() == name {
			found = f
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		return Driver{}, fmt.Errorf("driver not found: %s", name)
	}

	impl, err := found.Construct(config)
	if err != nil {
		return Driver{}, fmt.Errorf("constructing driver %q: %w", name, err)
	}
	return NewDriver(impl), nil
}
