package upscale

import (
	"fmt"
	"sync"
)

// Upscaler enlarges raw image bytes by an integer scale factor. The engine
// behind it (external binary, remote service) is a black box to the
// pipeline; it is invoked only after a still has been produced.
type Upscaler interface {
	Upscale(imageBytes []byte, scale int) ([]byte, error)
}

// Registry maps model names to upscaler instances. Owned by the caller and
// passed by reference; lifetime is tied to the process, not package state.
type Registry struct {
	mu        sync.RWMutex
	upscalers map[string]Upscaler
}

func NewRegistry() *Registry {
	return &Registry{
		upscalers: make(map[string]Upscaler),
	}
}

// Register adds or replaces an upscaler under a model name.
func (r *Registry) Register(name string, u Upscaler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upscalers[name] = u
}

// Get returns the upscaler registered under name.
func (r *Registry) Get(name string) (Upscaler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.upscalers[name]
	if !ok {
		return nil, fmt.Errorf("no upscaler registered for model %q", name)
	}
	return u, nil
}

// Names lists the registered model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.upscalers))
	for name := range r.upscalers {
		names = append(names, name)
	}
	return names
}
