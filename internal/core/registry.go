package core

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry holds table definitions by key. The package-level functions
// operate on a default Registry that table packages fill from init.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]TableDefinition
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]TableDefinition)}
}

var defaultRegistry = NewRegistry()

// Register adds def. It panics on an incomplete definition or a duplicate key.
func (r *Registry) Register(def TableDefinition) {
	if def.Info.Key == "" || def.Bind == nil {
		panic(fmt.Sprintf("incomplete table definition: %+v", def.Info))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.Info.Key]; dup {
		panic("table already registered: " + def.Info.Key)
	}
	r.defs[def.Info.Key] = def
}

// Get looks up a definition by key.
func (r *Registry) Get(key string) (TableDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[key]
	return def, ok
}

// All returns every definition ordered by group, then key.
func (r *Registry) All() []TableDefinition {
	r.mu.RLock()
	defs := slices.Collect(maps.Values(r.defs))
	r.mu.RUnlock()

	slices.SortFunc(defs, func(a, b TableDefinition) int {
		return cmp.Or(cmp.Compare(a.Info.Group, b.Info.Group), cmp.Compare(a.Info.Key, b.Info.Key))
	})
	return defs
}

// ByGroup returns the definitions in group ordered by key.
func (r *Registry) ByGroup(group string) []TableDefinition {
	return slices.DeleteFunc(r.All(), func(def TableDefinition) bool {
		return def.Info.Group != group
	})
}

// Groups returns the distinct group names, sorted.
func (r *Registry) Groups() []string {
	var groups []string
	for _, def := range r.All() {
		if len(groups) == 0 || groups[len(groups)-1] != def.Info.Group {
			groups = append(groups, def.Info.Group)
		}
	}
	return groups
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// Reset removes every definition.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.defs)
}

// Register adds def to the default registry.
func Register(def TableDefinition) { defaultRegistry.Register(def) }

// Get looks up a definition in the default registry.
func Get(key string) (TableDefinition, bool) { return defaultRegistry.Get(key) }

// All returns the default registry's definitions ordered by group, then key.
func All() []TableDefinition { return defaultRegistry.All() }

// ByGroup returns the default registry's definitions in group.
func ByGroup(group string) []TableDefinition { return defaultRegistry.ByGroup(group) }

// Groups returns the default registry's group names.
func Groups() []string { return defaultRegistry.Groups() }

// TableCount returns the number of tables in the default registry.
func TableCount() int { return defaultRegistry.Len() }

// Clear empties the default registry. Used by tests.
func Clear() { defaultRegistry.Reset() }
