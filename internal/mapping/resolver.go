package mapping

import (
	"context"
	"fmt"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/subject"
)

// VirtualLookup fetches a virtual attribute's current values from the
// owning resource. Implemented by the virtual attribute cache.
type VirtualLookup interface {
	Lookup(ctx context.Context, resource, objectClass, subjectKey, attrName string) ([]string, error)
}

// Payload is the external representation of one subject for one resource,
// produced by outbound resolution. Attrs preserves mapping declaration
// order. The key item contributes AccountID only; its external name is
// never sent. Display holds purpose-none items, resolved for inspection
// but never propagated.
type Payload struct {
	AccountID string
	Attrs     []connector.Attr
	Display   []connector.Attr

	// Password carries the transformed password value and its external
	// attribute name. MissingPassword is set when the mapping declares a
	// password item but no password accompanied the mutation; the
	// propagation engine decides whether to generate one or mark the task
	// unsubmitted.
	Password        string
	PasswordAttr    string
	MissingPassword bool
}

// Resolver translates between internal subjects and external payloads
// according to per-resource mapping configuration.
type Resolver struct {
	registry    *Registry
	virtual     VirtualLookup
	derivations Derivations
}

// NewResolver builds a resolver. virtual may be nil when no mapping uses
// virtual items; a virtual item resolved without a lookup is a
// configuration error.
func NewResolver(registry *Registry, virtual VirtualLookup, derivations Derivations) *Resolver {
	if derivations == nil {
		derivations = Derivations{}
	}
	return &Resolver{registry: registry, virtual: virtual, derivations: derivations}
}

// Outbound resolves the external payload for one subject on one resource.
// password is the cleartext accompanying the current mutation, empty when
// none was supplied.
//
// Items are processed in mapping order. A mandatory condition that holds
// against the subject while the item resolves to nothing fails the whole
// resolution with RequiredValuesError naming every such item; derived items
// are exempt unless the mapping opts in.
func (r *Resolver) Outbound(ctx context.Context, sub *subject.Subject, password string, m *ResourceMapping) (*Payload, error) {
	if err := Validate(m, r.registry); err != nil {
		return nil, err
	}

	p := &Payload{}
	var missing []string

	for _, item := range m.Items {
		if item.Purpose == PurposeNone {
			values, err := r.resolveInternal(ctx, sub, password, m, item)
			if err != nil {
				return nil, err
			}
			chain, _ := r.registry.chain(m.Resource, item)
			p.Display = append(p.Display, connector.Attr{Name: displayName(item), Values: applyChain(chain, values, Outbound)})
			continue
		}
		if !item.Purpose.ForPropagation() {
			continue
		}

		values, err := r.resolveInternal(ctx, sub, password, m, item)
		if err != nil {
			return nil, err
		}
		chain, err := r.registry.chain(m.Resource, item)
		if err != nil {
			return nil, err
		}
		values = applyChain(chain, values, Outbound)

		if len(values) == 0 && r.mandatoryApplies(sub, m, item) {
			missing = append(missing, displayName(item))
			continue
		}

		switch {
		case item.Key:
			if len(values) > 0 {
				p.AccountID = values[0]
			}
		case item.Kind == KindPassword:
			p.PasswordAttr = item.ExtName
			if len(values) > 0 {
				p.Password = values[0]
			} else {
				p.MissingPassword = true
			}
		default:
			if item.ExtName != "" && len(values) > 0 {
				p.Attrs = append(p.Attrs, connector.Attr{Name: item.ExtName, Values: values})
			}
		}
	}

	if len(missing) > 0 {
		return nil, &RequiredValuesError{Resource: m.Resource, Attributes: missing}
	}
	return p, nil
}

// Inbound resolves an external record into a partial subject using the
// synchronization side of the mapping. The key item fills the partial's
// Key with the internal equivalent of the external identifier; password
// and schema-meta items are never read back.
func (r *Resolver) Inbound(rec connector.Record, m *ResourceMapping) (*subject.Partial, error) {
	if err := Validate(m, r.registry); err != nil {
		return nil, err
	}

	p := subject.NewPartial("")
	for _, item := range m.Items {
		if !item.Purpose.ForSync() || item.ExtName == "" {
			continue
		}
		values := rec.AttrValues(item.ExtName)
		if item.Key && len(values) == 0 && rec.Key != "" {
			// Some connectors expose the identifier only as the record
			// key, not as a named attribute.
			values = []string{rec.Key}
		}
		if len(values) == 0 {
			continue
		}
		chain, err := r.registry.chain(m.Resource, item)
		if err != nil {
			return nil, err
		}
		values = applyChain(chain, values, Inbound)

		switch item.Kind {
		case KindPassword, KindSchemaMeta:
			// never read back
		case KindKey:
			p.Key = values[0]
		default:
			if item.Key {
				p.Key = values[0]
			}
			if item.IntName != "" {
				p.SetAttr(item.IntName, values...)
			}
		}
	}
	return p, nil
}

// resolveInternal fetches an item's raw internal values, before
// transformers.
func (r *Resolver) resolveInternal(ctx context.Context, sub *subject.Subject, password string, m *ResourceMapping, item Item) ([]string, error) {
	switch item.Kind {
	case KindPlain:
		return sub.Attrs[item.IntName], nil

	case KindDerived:
		d, ok := r.derivations[item.IntName]
		if !ok {
			return nil, &ConfigError{
				Resource: m.Resource,
				Item:     item.IntName,
				Message:  "no derivation template configured",
			}
		}
		v, ok := d.Resolve(sub.Attrs)
		if !ok {
			return nil, nil
		}
		return []string{v}, nil

	case KindVirtual:
		if r.virtual == nil {
			return nil, &ConfigError{
				Resource: m.Resource,
				Item:     item.IntName,
				Message:  "virtual item resolved without a virtual attribute lookup",
			}
		}
		values, err := r.virtual.Lookup(ctx, m.Resource, m.ObjectClass, sub.Key, item.IntName)
		if err != nil {
			return nil, fmt.Errorf("virtual attribute %s on %s: %w", item.IntName, m.Resource, err)
		}
		return values, nil

	case KindKey:
		return []string{sub.Key}, nil

	case KindPassword:
		if password == "" {
			return nil, nil
		}
		return []string{password}, nil

	case KindSchemaMeta:
		switch item.IntName {
		case "key":
			return []string{sub.Key}, nil
		default:
			return []string{string(sub.Kind)}, nil
		}
	}
	return nil, &ConfigError{Resource: m.Resource, Item: item.IntName, Message: fmt.Sprintf("unknown kind %q", item.Kind)}
}

// mandatoryApplies evaluates the item's mandatory condition against the
// subject. Derived items are exempt unless the mapping enforces them;
// password items are handled by the propagation engine, not here.
func (r *Resolver) mandatoryApplies(sub *subject.Subject, m *ResourceMapping, item Item) bool {
	if item.Kind == KindPassword {
		return false
	}
	if item.Kind == KindDerived && !m.EnforceMandatoryOnDerived {
		return false
	}
	cond, err := ParseCondition(item.Mandatory)
	if err != nil {
		return false
	}
	return cond.Evaluate(sub.Attrs)
}

func displayName(item Item) string {
	if item.IntName != "" {
		return item.IntName
	}
	return item.ExtName
}
