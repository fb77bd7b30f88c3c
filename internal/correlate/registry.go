package correlate

import (
	"fmt"
	"sync"
)

// Registry maps correlation rule identifiers to implementations. Rules are
// registered at process start; configuration references them by name.
//
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Rule)}
}

// Register adds a named rule. Duplicate names are a configuration error.
func (r *Registry) Register(name string, rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("correlation rule %q already registered", name)
	}
	r.byName[name] = rule
	return nil
}

// Lookup returns the named rule.
func (r *Registry) Lookup(name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.byName[name]
	return rule, ok
}
