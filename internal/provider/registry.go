package provider

import (
	"fmt"
	"sync"
)

// Registry manages the lifecycle of provider adapters. Factories are
// registered up front; adapters are instantiated lazily on first load.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	adapters  map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// Register makes a factory available under the given name. Registering
// the same name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Load instantiates and caches the named adapter. Loading an already
// loaded provider is a no-op.
func (r *Registry) Load(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[name]; exists {
		return nil
	}
	f, ok := r.factories[name]
	if !ok {
		return fmt.Errorf("unknown provider: %s", name)
	}
	a, err := f()
	if err != nil {
		return fmt.Errorf("failed to initialize provider %s: %w", name, err)
	}
	r.adapters[name] = a
	return nil
}

// Get returns a loaded adapter.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return a, nil
}
