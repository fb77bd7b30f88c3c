package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCondition_Evaluate(t *testing.T) {
	attrs := map[string][]string{
		"email":  {"j@example.org"},
		"mobile": {""},
		"dept":   {"eng"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"", false},
		{"false", false},
		{"true", true},
		{"email", true},
		{"mobile", false}, // empty value counts as absent
		{"missing", false},
		{"!missing", true},
		{"!email", false},
		{"email && dept", true},
		{"email && missing", false},
		{"missing || dept", true},
		{"missing || mobile", false},
		{"missing || mobile && email", false},
		{"email && dept || missing", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			cond, err := ParseCondition(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cond.Evaluate(attrs))
		})
	}
}

func TestParseCondition_BadTerms(t *testing.T) {
	for _, expr := range []string{"a b", "&&", "a &&", "(a)", "a || "} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseCondition(expr)
			assert.Error(t, err)
		})
	}
}

func TestParseCondition_DoubleNegation(t *testing.T) {
	cond, err := ParseCondition("!!dept")
	require.NoError(t, err)
	assert.True(t, cond.Evaluate(map[string][]string{"dept": {"eng"}}))
	assert.False(t, cond.Evaluate(map[string][]string{}))
}
