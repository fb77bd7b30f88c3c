package mapping

import (
	"fmt"
	"strings"
)

// Condition decides whether a mandatory-value check applies to a subject.
// The engine treats it as opaque; richer evaluators can be plugged in by
// implementing this interface.
type Condition interface {
	Evaluate(attrs map[string][]string) bool
}

// ParseCondition compiles a minimal boolean expression over attribute
// presence:
//
//	""             never mandatory
//	"true"         always mandatory
//	"false"        never mandatory
//	"attr"         mandatory when attr has at least one value
//	"!attr"        mandatory when attr has no value
//	"a && b"       conjunction
//	"a || b"       disjunction
//
// && binds tighter than ||. Parentheses are not supported; conditions that
// need them should register a custom Condition instead.
func ParseCondition(expr string) (Condition, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "false" {
		return constCondition(false), nil
	}
	if expr == "true" {
		return constCondition(true), nil
	}

	var or orCondition
	for _, disjunct := range strings.Split(expr, "||") {
		var and andCondition
		for _, conjunct := range strings.Split(disjunct, "&&") {
			term := strings.TrimSpace(conjunct)
			negate := false
			for strings.HasPrefix(term, "!") {
				negate = !negate
				term = strings.TrimSpace(term[1:])
			}
			if term == "" || strings.ContainsAny(term, " \t()") {
				return nil, fmt.Errorf("bad condition term %q in %q", conjunct, expr)
			}
			and = append(and, presenceCondition{attr: term, negate: negate})
		}
		or = append(or, and)
	}
	return or, nil
}

type constCondition bool

func (c constCondition) Evaluate(map[string][]string) bool { return bool(c) }

type presenceCondition struct {
	attr   string
	negate bool
}

func (c presenceCondition) Evaluate(attrs map[string][]string) bool {
	present := false
	for _, v := range attrs[c.attr] {
		if v != "" {
			present = true
			break
		}
	}
	if c.negate {
		return !present
	}
	return present
}

type andCondition []Condition

func (c andCondition) Evaluate(attrs map[string][]string) bool {
	for _, sub := range c {
		if !sub.Evaluate(attrs) {
			return false
		}
	}
	return true
}

type orCondition []Condition

func (c orCondition) Evaluate(attrs map[string][]string) bool {
	for _, sub := range c {
		if sub.Evaluate(attrs) {
			return true
		}
	}
	return false
}
