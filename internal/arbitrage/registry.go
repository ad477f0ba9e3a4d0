package arbitrage

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named detectors. The scanner runs every registered detector
// for each eligible symbol.
type Registry struct {
	detectors map[string]Detector
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry. Call Register to add detectors.
func NewRegistry() *Registry {
	return &Registry{detectors: make(map[string]Detector)}
}

// DefaultRegistry returns a registry with the spatial and triangular
// detectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Spatial{})
	r.Register(Triangular{})
	return r
}

// Register adds d under its own name, replacing any previous entry.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors[d.Name()] = d
}

// Get returns the detector by name, or an error if not found.
func (r *Registry) Get(name string) (Detector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	if !ok {
		return nil, fmt.Errorf("arbitrage: detector %q not found", name)
	}
	return d, nil
}

// List returns all registered detector names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

// All returns the registered detectors ordered by name.
func (r *Registry) All() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, 0, len(r.detectors))
	for _, n := range r.namesLocked() {
		out = append(out, r.detectors[n])
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.detectors))
	for n := range r.detectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
