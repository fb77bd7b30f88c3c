package mapping

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Direction distinguishes outbound (internal to external) from inbound
// (external to internal) transformer application.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// Transformer rewrites a single attribute value. Implementations must be
// pure: same input, same output, no side effects.
//
// Invertible transformers declare that applying them outbound and then
// inbound round-trips the value. Validation uses this declaration to reject
// bidirectional mapping items whose chains would drift on round trips.
type Transformer interface {
	Apply(value string, dir Direction) string
	Invertible() bool
}

// Func adapts a plain function into a Transformer.
type Func struct {
	Fn        func(value string, dir Direction) string
	Symmetric bool
}

// Apply implements Transformer.
func (f Func) Apply(value string, dir Direction) string { return f.Fn(value, dir) }

// Invertible implements Transformer.
func (f Func) Invertible() bool { return f.Symmetric }

// Registry maps transformer identifiers to implementations. Identifiers
// come from mapping configuration; implementations are registered at
// process start, never loaded dynamically.
//
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Transformer
}

// NewRegistry creates a registry preloaded with the built-in transformers:
// lower, upper, trim, and nfc.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Transformer)}

	lower := cases.Lower(language.Und)
	upper := cases.Upper(language.Und)

	// Case folding loses the original casing, so neither is invertible.
	r.byName["lower"] = Func{Fn: func(v string, _ Direction) string { return lower.String(v) }}
	r.byName["upper"] = Func{Fn: func(v string, _ Direction) string { return upper.String(v) }}
	r.byName["trim"] = Func{Fn: func(v string, _ Direction) string { return strings.TrimSpace(v) }}

	// NFC normalization is idempotent in both directions; round trips are
	// stable once normalized, so it counts as invertible.
	r.byName["nfc"] = Func{
		Fn:        func(v string, _ Direction) string { return norm.NFC.String(v) },
		Symmetric: true,
	}

	return r
}

// Register adds a named transformer. Registering an already-taken name is
// a configuration error.
func (r *Registry) Register(name string, t Transformer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("transformer %q already registered", name)
	}
	r.byName[name] = t
	return nil
}

// Lookup returns the named transformer.
func (r *Registry) Lookup(name string) (Transformer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// chain resolves a list of transformer names, failing on the first unknown.
func (r *Registry) chain(resource string, item Item) ([]Transformer, error) {
	out := make([]Transformer, 0, len(item.Transformers))
	for _, name := range item.Transformers {
		t, ok := r.Lookup(name)
		if !ok {
			return nil, &ConfigError{
				Resource: resource,
				Item:     item.IntName,
				Message:  fmt.Sprintf("unknown transformer %q", name),
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// applyChain runs a transformer chain over every value. Outbound applies
// transformers in declaration order; inbound applies them in reverse so a
// fully invertible chain round-trips.
func applyChain(chain []Transformer, values []string, dir Direction) []string {
	if len(chain) == 0 || len(values) == 0 {
		return values
	}
	out := make([]string, len(values))
	copy(out, values)
	for i := range out {
		if dir == Outbound {
			for _, t := range chain {
				out[i] = t.Apply(out[i], Outbound)
			}
		} else {
			for j := len(chain) - 1; j >= 0; j-- {
				out[i] = chain[j].Apply(out[i], Inbound)
			}
		}
	}
	return out
}
