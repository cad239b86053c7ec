package param

import (
	"fmt"
	"sort"
)

// Registry holds the descriptor for every controllable parameter path.
// Immutable after construction; safe for concurrent lookup.
type Registry struct {
	descriptors map[string]*Descriptor
	paths       []string // sorted for deterministic iteration
}

// NewRegistry builds a registry from descriptors.
// Fails on duplicate paths and on defaults that violate their own
// descriptor, so a bad registry is caught at load time rather than on
// the first validation.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]*Descriptor, len(descs)),
		paths:       make([]string, 0, len(descs)),
	}
	for i := range descs {
		d := descs[i]
		if d.Path == "" {
			return nil, fmt.Errorf("descriptor %d: empty path", i)
		}
		if _, exists := r.descriptors[d.Path]; exists {
			return nil, fmt.Errorf("duplicate parameter path %q", d.Path)
		}
		if d.Default == nil {
			return nil, fmt.Errorf("parameter %s: missing default", d.Path)
		}
		if err := d.CheckValue(d.Default); err != nil {
			return nil, fmt.Errorf("parameter %s: default rejected: %w", d.Path, err)
		}
		r.descriptors[d.Path] = &d
		r.paths = append(r.paths, d.Path)
	}
	sort.Strings(r.paths)
	return r, nil
}

// Lookup returns the descriptor for a path.
func (r *Registry) Lookup(path string) (*Descriptor, bool) {
	d, ok := r.descriptors[path]
	return d, ok
}

// Paths returns all registered paths in sorted order.
func (r *Registry) Paths() []string {
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	return len(r.paths)
}

// Defaults returns the initial value for every path.
// Used to seed CanonicalState at process start.
func (r *Registry) Defaults() map[string]Value {
	out := make(map[string]Value, len(r.descriptors))
	for path, d := range r.descriptors {
		out[path] = d.Default
	}
	return out
}

// Merge returns a registry containing every descriptor from base,
// with overlay descriptors replacing same-path entries and adding new
// ones. Used to extend the built-in registry from an external CUE file.
func Merge(base, overlay *Registry) (*Registry, error) {
	merged := make([]Descriptor, 0, len(base.paths)+len(overlay.paths))
	for _, path := range base.paths {
		if _, shadowed := overlay.descriptors[path]; shadowed {
			continue
		}
		merged = append(merged, *base.descriptors[path])
	}
	for _, path := range overlay.paths {
		merged = append(merged, *overlay.descriptors[path])
	}
	return NewRegistry(merged)
}
