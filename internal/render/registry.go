package render

import (
	"fmt"
	"sort"
	"strings"
)

// Factory creates a renderer instance.
type Factory func() (Renderer, error)

// Registry maps renderer names to factory functions.
// It is not safe for concurrent use; registration should happen at startup.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a Registry with the built-in renderers
// registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("halfblock", func() (Renderer, error) { return HalfBlock{}, nil })
	r.Register("solid", func() (Renderer, error) { return Solid{}, nil })
	return r
}

// Register adds a named renderer factory. Overwrites if name already exists.
// Panics if name is empty or f is nil (programmer error).
func (r *Registry) Register(name string, f Factory) {
	if name == "" {
		panic("render: Register called with empty name")
	}
	if f == nil {
		panic("render: Register called with nil factory")
	}
	r.factories[name] = f
}

// NewRenderer instantiates a renderer by name.
// Returns an error if the name is not registered or the factory fails.
func (r *Registry) NewRenderer(name string) (Renderer, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, &UnknownRendererError{
			Name:      name,
			Available: r.AvailableRenderers(),
		}
	}
	rd, err := f()
	if err != nil {
		return nil, fmt.Errorf("renderer factory %q: %w", name, err)
	}
	return rd, nil
}

// AvailableRenderers returns registered renderer names in sorted order.
func (r *Registry) AvailableRenderers() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownRendererError indicates a renderer name is not registered.
type UnknownRendererError struct {
	Name      string
	Available []string
}

func (e *UnknownRendererError) Error() string {
	return fmt.Sprintf("unknown renderer %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}
