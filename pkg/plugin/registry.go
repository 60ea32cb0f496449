package plugin

import (
	"fmt"
	"sync"
)

// Registry maps scanner names to scanners and auto-detects collection
// types in registration order. It is populated at program start and
// read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	byNam map[string]Scanner
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byNam: make(map[string]Scanner)}
}

// Register adds s under its name. Re-registering the same name is
// idempotent: the existing entry and its position are kept.
func (r *Registry) Register(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := s.Name()
	if _, exists := r.byNam[name]; exists {
		return
	}
	r.byNam[name] = s
	r.order = append(r.order, name)
}

// Get resolves a scanner by name.
func (r *Registry) Get(name string) (Scanner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byNam[name]
	if !ok {
		return nil, fmt.Errorf("no scanner registered for collection type %q", name)
	}
	return s, nil
}

// Names lists registered scanner names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AutoDetect returns the first scanner, in registration order, whose
// Detect is true for root. Register the fallback scanner last so a
// detection pass always resolves.
func (r *Registry) AutoDetect(root string) (Scanner, bool) {
	r.mu.RLock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	r.mu.RUnlock()

	for _, name := range names {
		r.mu.RLock()
		s := r.byNam[name]
		r.mu.RUnlock()
		if s.Detect(root) {
			return s, true
		}
	}
	return nil, false
}

var defaultRegistry = NewRegistry()

// Default returns the process-global registry.
func Default() *Registry { return defaultRegistry }

// Register adds s to the process-global registry.
func Register(s Scanner) { defaultRegistry.Register(s) }
