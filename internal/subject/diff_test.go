package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffAttrs(t *testing.T) {
	before := map[string][]string{
		"email":  {"old@example.org"},
		"phone":  {"555"},
		"groups": {"a", "b"},
	}
	after := map[string][]string{
		"email":  {"new@example.org"},
		"groups": {"a", "b"},
		"title":  {"engineer"},
	}

	d := DiffAttrs(before, after)

	assert.Equal(t, []AttrChange{{Name: "title", After: []string{"engineer"}}}, d.Added)
	assert.Equal(t, []AttrChange{{Name: "phone", Before: []string{"555"}}}, d.Removed)
	assert.Equal(t, []AttrChange{{
		Name:   "email",
		Before: []string{"old@example.org"},
		After:  []string{"new@example.org"},
	}}, d.Changed)
	assert.False(t, d.Empty())
}

func TestDiffAttrs_Identical(t *testing.T) {
	attrs := map[string][]string{"a": {"1"}, "b": {"2", "3"}}
	assert.True(t, DiffAttrs(attrs, attrs).Empty())
}

func TestDiffAttrs_ValueOrderMatters(t *testing.T) {
	d := DiffAttrs(
		map[string][]string{"groups": {"a", "b"}},
		map[string][]string{"groups": {"b", "a"}},
	)
	assert.Len(t, d.Changed, 1)
}

func TestDiffAttrs_SortedOutput(t *testing.T) {
	d := DiffAttrs(
		map[string][]string{},
		map[string][]string{"z": {"1"}, "a": {"1"}, "m": {"1"}},
	)
	var names []string
	for _, c := range d.Added {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"a", "m", "z"}, names)
}
