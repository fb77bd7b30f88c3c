package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_GenerateSatisfiesClasses(t *testing.T) {
	p := Policy{Length: 20, RequireUpper: true, RequireLower: true, RequireDigit: true, RequireSymbol: true}

	for i := 0; i < 50; i++ {
		pw, err := p.Generate()
		require.NoError(t, err)
		assert.Len(t, pw, 20)
		assert.True(t, strings.ContainsAny(pw, upperChars), "missing upper in %q", pw)
		assert.True(t, strings.ContainsAny(pw, lowerChars), "missing lower in %q", pw)
		assert.True(t, strings.ContainsAny(pw, digitChars), "missing digit in %q", pw)
		assert.True(t, strings.ContainsAny(pw, symbolChars), "missing symbol in %q", pw)
	}
}

func TestPolicy_GenerateDefaultLength(t *testing.T) {
	pw, err := Policy{}.Generate()
	require.NoError(t, err)
	assert.Len(t, pw, DefaultPolicy.Length)
}

func TestPolicy_Unsatisfiable(t *testing.T) {
	p := Policy{Length: 3, RequireUpper: true, RequireLower: true, RequireDigit: true, RequireSymbol: true}
	_, err := p.Generate()
	assert.Error(t, err)
}

func TestPolicy_GenerateVaries(t *testing.T) {
	p := DefaultPolicy
	a, err := p.Generate()
	require.NoError(t, err)
	b, err := p.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
