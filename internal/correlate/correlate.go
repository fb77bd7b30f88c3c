// Package correlate maps external records to at most one internal subject.
package correlate

import (
	"context"
	"errors"
	"fmt"

	"github.com/mreiling/idprov/internal/subject"
)

// Query identifies internal subjects. When Key is set the lookup is by
// immutable subject key; otherwise by exact match on a plain attribute.
type Query struct {
	Key   string
	Attr  string
	Value string
}

// String renders the query for diagnostics.
func (q Query) String() string {
	if q.Key != "" {
		return fmt.Sprintf("key=%s", q.Key)
	}
	return fmt.Sprintf("%s=%s", q.Attr, q.Value)
}

// Finder is the internal-store search surface the engine needs. FindAll
// returns every match; the engine enforces the at-most-one contract.
type Finder interface {
	Get(ctx context.Context, key string) (*subject.Subject, error)
	FindAll(ctx context.Context, kind subject.Kind, attr, value string) ([]*subject.Subject, error)
}

// Rule builds a correlation query from an inbound-resolved partial subject.
// Custom rules are registered by name at process start and referenced from
// reconciliation task configuration.
type Rule interface {
	Query(p *subject.Partial) (Query, error)
}

// RuleFunc adapts a function into a Rule.
type RuleFunc func(p *subject.Partial) (Query, error)

// Query implements Rule.
func (f RuleFunc) Query(p *subject.Partial) (Query, error) { return f(p) }

// AmbiguousError reports more than one internal match for one external
// record. The record is skipped and counted as a failure, never fatal for
// the surrounding run.
type AmbiguousError struct {
	Kind  subject.Kind
	Query Query
	Count int
}

// Error implements the error interface.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous correlation: %d %s subjects match %s", e.Count, e.Kind, e.Query)
}

// IsAmbiguous reports whether err is (or wraps) an AmbiguousError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousError
	return errors.As(err, &ae)
}

// Engine resolves external records to internal subjects.
type Engine struct {
	finder Finder
	rules  *Registry
}

// New creates a correlation engine over the given store surface.
func New(finder Finder, rules *Registry) *Engine {
	if rules == nil {
		rules = NewRegistry()
	}
	return &Engine{finder: finder, rules: rules}
}

// Correlate finds the internal subject matching an inbound-resolved
// partial.
//
// With ruleName empty the default rule applies: look the subject up by the
// key item's internal equivalent — the subject key itself when keyAttr is
// empty, otherwise the named plain attribute. A named rule overrides the
// default entirely.
//
// Returns (nil, nil) for no match, the single subject for one match, and
// AmbiguousError for several. The same record and rule always yield the
// same result.
func (e *Engine) Correlate(ctx context.Context, kind subject.Kind, p *subject.Partial, keyAttr, ruleName string) (*subject.Subject, error) {
	q, err := e.buildQuery(p, keyAttr, ruleName)
	if err != nil {
		return nil, err
	}

	if q.Key != "" {
		return e.finder.Get(ctx, q.Key)
	}
	if q.Value == "" {
		// Nothing to correlate on: treat as unmatched rather than
		// matching every subject with an empty attribute.
		return nil, nil
	}

	matches, err := e.finder.FindAll(ctx, kind, q.Attr, q.Value)
	if err != nil {
		return nil, fmt.Errorf("correlation query %s: %w", q, err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, &AmbiguousError{Kind: kind, Query: q, Count: len(matches)}
	}
}

func (e *Engine) buildQuery(p *subject.Partial, keyAttr, ruleName string) (Query, error) {
	if ruleName != "" {
		rule, ok := e.rules.Lookup(ruleName)
		if !ok {
			return Query{}, fmt.Errorf("unknown correlation rule %q", ruleName)
		}
		return rule.Query(p)
	}
	if keyAttr == "" {
		return Query{Key: p.Key}, nil
	}
	value := p.Attr(keyAttr)
	if value == "" {
		value = p.Key
	}
	return Query{Attr: keyAttr, Value: value}, nil
}
