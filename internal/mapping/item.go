package mapping

// ItemKind identifies where a mapping item's internal value comes from.
// Resolution switches exhaustively on the kind; there are no boolean
// type flags to cross-check.
type ItemKind string

const (
	// KindPlain reads a stored multi-valued attribute of the subject.
	KindPlain ItemKind = "PLAIN"
	// KindDerived evaluates a derivation template over other attributes.
	KindDerived ItemKind = "DERIVED"
	// KindVirtual queries the owning resource live, through the cache.
	KindVirtual ItemKind = "VIRTUAL"
	// KindKey resolves to the subject's immutable internal identifier.
	KindKey ItemKind = "KEY"
	// KindPassword resolves to the cleartext password of the current
	// mutation, never to stored state.
	KindPassword ItemKind = "PASSWORD"
	// KindSchemaMeta resolves to metadata such as the subject kind.
	KindSchemaMeta ItemKind = "SCHEMA_META"
)

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	switch k {
	case KindPlain, KindDerived, KindVirtual, KindKey, KindPassword, KindSchemaMeta:
		return true
	}
	return false
}

// Purpose restricts the directions a mapping item participates in.
type Purpose string

const (
	PurposePropagation Purpose = "PROPAGATION"
	PurposeSync        Purpose = "SYNCHRONIZATION"
	PurposeBoth        Purpose = "BOTH"
	// PurposeNone items are resolved for display only and never cross the
	// connector boundary in either direction.
	PurposeNone Purpose = "NONE"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposePropagation, PurposeSync, PurposeBoth, PurposeNone:
		return true
	}
	return false
}

// ForPropagation reports whether items with this purpose are pushed out.
func (p Purpose) ForPropagation() bool {
	return p == PurposePropagation || p == PurposeBoth
}

// ForSync reports whether items with this purpose are read back in.
func (p Purpose) ForSync() bool {
	return p == PurposeSync || p == PurposeBoth
}

// Item maps one internal attribute to one external attribute.
//
// Mandatory, when non-empty, is a condition expression evaluated against
// the subject's resolved attributes; if it evaluates true and the item
// resolves to no value, outbound resolution fails.
type Item struct {
	IntName      string
	Kind         ItemKind
	ExtName      string
	Purpose      Purpose
	Key          bool
	Password     bool
	Mandatory    string
	Transformers []string
}

// ResourceMapping is the ordered mapping configuration one resource owns
// for one object class.
type ResourceMapping struct {
	Resource    string
	ObjectClass string
	Items       []Item

	// EnforceMandatoryOnDerived extends mandatory-condition checking to
	// derived items, which is off by default because a derivation with no
	// source values legitimately yields nothing.
	EnforceMandatoryOnDerived bool
}

// KeyItem returns the mapping's key item, or nil when the mapping has none.
// Validation guarantees at most one.
func (m *ResourceMapping) KeyItem() *Item {
	for i := range m.Items {
		if m.Items[i].Key {
			return &m.Items[i]
		}
	}
	return nil
}

// PasswordItem returns the mapping's password item, or nil.
func (m *ResourceMapping) PasswordItem() *Item {
	for i := range m.Items {
		if m.Items[i].Password {
			return &m.Items[i]
		}
	}
	return nil
}
