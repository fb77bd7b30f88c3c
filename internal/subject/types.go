package subject

// Kind distinguishes the classes of internally managed entities.
type Kind string

const (
	KindUser  Kind = "USER"
	KindGroup Kind = "GROUP"
	KindAny   Kind = "ANY"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindGroup, KindAny:
		return true
	}
	return false
}

// Subject is one internally managed entity: a user, a group, or another
// managed object. Attributes are multi-valued. Resources lists the external
// systems the subject is linked to.
//
// Version implements optimistic concurrency in the store: a save with a
// stale version fails rather than silently overwriting a concurrent write.
type Subject struct {
	Key       string
	Kind      Kind
	Attrs     map[string][]string
	Resources []string
	Version   int64
}

// New creates an empty subject of the given kind.
func New(key string, kind Kind) *Subject {
	return &Subject{
		Key:   key,
		Kind:  kind,
		Attrs: make(map[string][]string),
	}
}

// Attr returns the first value of the named attribute, or "".
func (s *Subject) Attr(name string) string {
	if vs := s.Attrs[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// SetAttr replaces all values of the named attribute.
func (s *Subject) SetAttr(name string, values ...string) {
	if s.Attrs == nil {
		s.Attrs = make(map[string][]string)
	}
	s.Attrs[name] = append([]string(nil), values...)
}

// HasResource reports whether the subject is linked to the named resource.
func (s *Subject) HasResource(resource string) bool {
	for _, r := range s.Resources {
		if r == resource {
			return true
		}
	}
	return false
}

// LinkResource adds a resource link; linking twice is a no-op.
func (s *Subject) LinkResource(resource string) {
	if !s.HasResource(resource) {
		s.Resources = append(s.Resources, resource)
	}
}

// UnlinkResource removes a resource link; unlinking an absent link is a
// no-op.
func (s *Subject) UnlinkResource(resource string) {
	for i, r := range s.Resources {
		if r == resource {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return
		}
	}
}

// Clone returns a deep copy. Engines clone before mutating so that working
// copies never alias store-owned state.
func (s *Subject) Clone() *Subject {
	out := &Subject{
		Key:     s.Key,
		Kind:    s.Kind,
		Attrs:   make(map[string][]string, len(s.Attrs)),
		Version: s.Version,
	}
	for name, vs := range s.Attrs {
		out.Attrs[name] = append([]string(nil), vs...)
	}
	out.Resources = append([]string(nil), s.Resources...)
	return out
}

// Partial is an incomplete subject produced by inbound mapping resolution
// or declared as a template. Key is set only when the inbound key item
// resolved to a value.
type Partial struct {
	Key   string
	Kind  Kind
	Attrs map[string][]string
}

// NewPartial creates an empty partial of the given kind.
func NewPartial(kind Kind) *Partial {
	return &Partial{Kind: kind, Attrs: make(map[string][]string)}
}

// Attr returns the first value of the named attribute, or "".
func (p *Partial) Attr(name string) string {
	if vs := p.Attrs[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// SetAttr replaces all values of the named attribute.
func (p *Partial) SetAttr(name string, values ...string) {
	if p.Attrs == nil {
		p.Attrs = make(map[string][]string)
	}
	p.Attrs[name] = append([]string(nil), values...)
}
