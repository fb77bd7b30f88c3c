package subject

import "sort"

// AttrChange records one attribute whose values differ between two subjects.
type AttrChange struct {
	Name   string
	Before []string
	After  []string
}

// Diff is an explicit structural comparison of two attribute sets. Added
// holds attributes present only in after, Removed those present only in
// before, Changed those present in both with different value sets.
type Diff struct {
	Added   []AttrChange
	Removed []AttrChange
	Changed []AttrChange
}

// Empty reports whether the two attribute sets were identical.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffAttrs compares two attribute maps field by field. Attribute names in
// each bucket come out sorted so the result is deterministic regardless of
// map iteration order.
//
// Value comparison is order-sensitive: connectors and mappings preserve
// value order, so a reordering counts as a change.
func DiffAttrs(before, after map[string][]string) Diff {
	var d Diff
	names := make(map[string]bool, len(before)+len(after))
	for n := range before {
		names[n] = true
	}
	for n := range after {
		names[n] = true
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, n := range sorted {
		b, inBefore := before[n]
		a, inAfter := after[n]
		switch {
		case inBefore && !inAfter:
			d.Removed = append(d.Removed, AttrChange{Name: n, Before: b})
		case !inBefore && inAfter:
			d.Added = append(d.Added, AttrChange{Name: n, After: a})
		case !equalValues(b, a):
			d.Changed = append(d.Changed, AttrChange{Name: n, Before: b, After: a})
		}
	}
	return d
}

func equalValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
