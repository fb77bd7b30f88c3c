package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivation_Resolve(t *testing.T) {
	attrs := map[string][]string{
		"firstname": {"Jane"},
		"surname":   {"Doe"},
		"uid":       {"jdoe", "jane.doe"},
		"empty":     {""},
	}

	tests := []struct {
		name     string
		template string
		want     string
		ok       bool
	}{
		{"literal only", "static", "static", true},
		{"single reference", "${surname}", "Doe", true},
		{"mixed", "${surname}, ${firstname}", "Doe, Jane", true},
		{"suffix", "${uid}@example.org", "jdoe@example.org", true},
		{"first value of multivalued", "${uid}", "jdoe", true},
		{"missing reference", "${nickname}", "", false},
		{"empty reference", "x${empty}y", "", false},
		{"unterminated reference kept literal", "${uid", "${uid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Derivation{Template: tt.template}.Resolve(attrs)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
