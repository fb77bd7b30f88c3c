package mapping

import (
	"fmt"
)

// Validate checks a mapping against the structural invariants:
//
//   - every item names at least one side and carries known kind/purpose
//   - at most one key item, at most one password item
//   - the key item is never sourced from a derived, virtual, or password
//     value, and must participate in propagation
//   - a password item has password kind and vice versa
//   - all transformer references resolve, and bidirectional items only use
//     invertible transformers (an asymmetric chain would drift on round
//     trips)
//
// Called at configuration load and again by the resolver before use, so a
// mapping that bypassed load-time validation still fails fast.
func Validate(m *ResourceMapping, reg *Registry) error {
	keys, passwords := 0, 0
	for i := range m.Items {
		item := &m.Items[i]
		name := item.IntName
		if name == "" {
			name = item.ExtName
		}

		if item.IntName == "" && item.ExtName == "" {
			return &ConfigError{Resource: m.Resource, Message: fmt.Sprintf("item %d names neither side", i)}
		}
		if !item.Kind.Valid() {
			return &ConfigError{Resource: m.Resource, Item: name, Message: fmt.Sprintf("unknown kind %q", item.Kind)}
		}
		if !item.Purpose.Valid() {
			return &ConfigError{Resource: m.Resource, Item: name, Message: fmt.Sprintf("unknown purpose %q", item.Purpose)}
		}

		if item.Key {
			keys++
			switch item.Kind {
			case KindDerived, KindVirtual, KindPassword:
				return &ConfigError{
					Resource: m.Resource,
					Item:     name,
					Message:  fmt.Sprintf("key item cannot be sourced from %s value", item.Kind),
				}
			}
			if !item.Purpose.ForPropagation() {
				return &ConfigError{
					Resource: m.Resource,
					Item:     name,
					Message:  "key item must be resolvable for propagation",
				}
			}
		}

		if item.Password != (item.Kind == KindPassword) {
			return &ConfigError{
				Resource: m.Resource,
				Item:     name,
				Message:  "password flag and password kind must agree",
			}
		}
		if item.Password {
			passwords++
		}

		if _, err := ParseCondition(item.Mandatory); err != nil {
			return &ConfigError{Resource: m.Resource, Item: name, Message: err.Error()}
		}

		chain, err := reg.chain(m.Resource, *item)
		if err != nil {
			return err
		}
		if item.Purpose == PurposeBoth {
			for j, t := range chain {
				if !t.Invertible() {
					return &ConfigError{
						Resource: m.Resource,
						Item:     name,
						Message: fmt.Sprintf("transformer %q is not invertible; bidirectional items need symmetric chains",
							item.Transformers[j]),
					}
				}
			}
		}
	}

	if keys > 1 {
		return &ConfigError{Resource: m.Resource, Message: fmt.Sprintf("%d key items, at most one allowed", keys)}
	}
	if passwords > 1 {
		return &ConfigError{Resource: m.Resource, Message: fmt.Sprintf("%d password items, at most one allowed", passwords)}
	}
	return nil
}
