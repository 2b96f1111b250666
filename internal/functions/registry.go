package functions

import (
	"sort"
	"sync"
)

// Registry holds loaded functions by function id.
type Registry struct {
	functions map[string]*FunctionDefinition
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		functions: make(map[string]*FunctionDefinition),
	}
}

// Register stores def under its id, replacing any previous definition.
// It reports whether a definition was replaced.
func (r *Registry) Register(def *FunctionDefinition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, replaced := r.functions[def.ID]
	r.functions[def.ID] = def
	return replaced
}

// Get returns a function definition by id.
func (r *Registry) Get(id string) (*FunctionDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.functions[id]
	return def, ok
}

// List returns all loaded functions ordered by name.
func (r *Registry) List() []*FunctionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*FunctionDefinition, 0, len(r.functions))
	for _, def := range r.functions {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Count returns the number of loaded functions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.functions)
}

// Remove drops a function. It reports whether the id was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.functions[id]
	delete(r.functions, id)
	return ok
}
