package subject

// MergeInbound writes inbound-resolved attributes into the subject, then
// overlays the template. Template values win over inbound data when both
// set the same attribute: generated values such as passwords must not be
// clobbered by whatever the resource happens to report.
//
// Attributes absent from both inputs are left untouched on the subject.
// Returns the set of attribute names that actually changed.
func MergeInbound(s *Subject, inbound *Partial, template *Partial) []string {
	var changed []string

	apply := func(name string, values []string) {
		if equalValues(s.Attrs[name], values) {
			return
		}
		s.SetAttr(name, values...)
		changed = append(changed, name)
	}

	if inbound != nil {
		for name, values := range inbound.Attrs {
			if template != nil {
				if _, override := template.Attrs[name]; override {
					continue
				}
			}
			apply(name, values)
		}
	}
	if template != nil {
		for name, values := range template.Attrs {
			apply(name, values)
		}
	}
	return changed
}

// FromTemplate builds a new subject from an inbound partial and an optional
// template, with template precedence. Used when an unmatched external
// record provisions a brand-new subject.
func FromTemplate(key string, kind Kind, inbound, template *Partial) *Subject {
	s := New(key, kind)
	MergeInbound(s, inbound, template)
	return s
}
