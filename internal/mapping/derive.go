package mapping

import (
	"strings"
)

// Derivation computes a derived attribute from a subject's plain
// attributes. Templates use ${name} references, everything else is
// literal:
//
//	"${surname}, ${firstname}"
//	"${uid}@example.org"
//
// A reference to an absent or empty attribute makes the whole derivation
// yield no value. Multi-valued source attributes contribute their first
// value.
type Derivation struct {
	Template string
}

// Resolve expands the template against attrs. The second return value is
// false when any referenced attribute is missing.
func (d Derivation) Resolve(attrs map[string][]string) (string, bool) {
	var b strings.Builder
	rest := d.Template
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			b.WriteString(rest)
			return b.String(), true
		}
		b.WriteString(rest[:start])
		name := rest[start+2 : start+end]
		vs := attrs[name]
		if len(vs) == 0 || vs[0] == "" {
			return "", false
		}
		b.WriteString(vs[0])
		rest = rest[start+end+1:]
	}
}

// Derivations maps derived internal attribute names to their templates,
// typically loaded from resource configuration.
type Derivations map[string]Derivation
