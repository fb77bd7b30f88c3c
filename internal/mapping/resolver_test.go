package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/subject"
)

// stubLookup serves virtual attributes from a fixed map.
type stubLookup struct {
	values map[string][]string
	err    error
}

func (s *stubLookup) Lookup(_ context.Context, _, _, _, attrName string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.values[attrName], nil
}

func makeTestSubject() *subject.Subject {
	sub := &subject.Subject{Key: "u-100", Kind: subject.KindUser, Attrs: map[string][]string{}}
	sub.SetAttr("username", "JDoe")
	sub.SetAttr("email", "JDoe@Example.org")
	sub.SetAttr("firstname", "Jane")
	sub.SetAttr("surname", "Doe")
	return sub
}

func makeResolverMapping() *ResourceMapping {
	return &ResourceMapping{
		Resource:    "crm",
		ObjectClass: "account",
		Items: []Item{
			{IntName: "username", ExtName: "uid", Kind: KindPlain, Purpose: PurposeBoth, Key: true, Mandatory: "true"},
			{IntName: "email", ExtName: "mail", Kind: KindPlain, Purpose: PurposeBoth, Transformers: []string{"nfc"}},
			{IntName: "displayName", ExtName: "cn", Kind: KindDerived, Purpose: PurposePropagation},
			{IntName: "groups", ExtName: "memberOf", Kind: KindVirtual, Purpose: PurposePropagation},
			{IntName: "secret", ExtName: "userPassword", Kind: KindPassword, Purpose: PurposePropagation, Password: true},
		},
	}
}

func makeResolver(lookup VirtualLookup) *Resolver {
	return NewResolver(NewRegistry(), lookup, Derivations{
		"displayName": {Template: "${surname}, ${firstname}"},
	})
}

func TestResolver_Outbound(t *testing.T) {
	lookup := &stubLookup{values: map[string][]string{"groups": {"staff", "eng"}}}
	r := makeResolver(lookup)

	p, err := r.Outbound(context.Background(), makeTestSubject(), "s3cret", makeResolverMapping())
	require.NoError(t, err)

	assert.Equal(t, "JDoe", p.AccountID)
	assert.Equal(t, []connector.Attr{
		{Name: "mail", Values: []string{"JDoe@Example.org"}},
		{Name: "cn", Values: []string{"Doe, Jane"}},
		{Name: "memberOf", Values: []string{"staff", "eng"}},
	}, p.Attrs)
	assert.Equal(t, "s3cret", p.Password)
	assert.Equal(t, "userPassword", p.PasswordAttr)
	assert.False(t, p.MissingPassword)
}

func TestResolver_OutboundMissingPassword(t *testing.T) {
	r := makeResolver(&stubLookup{})

	p, err := r.Outbound(context.Background(), makeTestSubject(), "", makeResolverMapping())
	require.NoError(t, err)
	assert.True(t, p.MissingPassword)
	assert.Empty(t, p.Password)
}

func TestResolver_OutboundMandatoryMissing(t *testing.T) {
	r := makeResolver(&stubLookup{})
	sub := makeTestSubject()
	sub.Attrs["username"] = nil

	_, err := r.Outbound(context.Background(), sub, "", makeResolverMapping())
	require.Error(t, err)
	assert.True(t, IsRequiredValues(err))
	var reqErr *RequiredValuesError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, []string{"username"}, reqErr.Attributes)
}

func TestResolver_OutboundConditionalMandatory(t *testing.T) {
	m := makeResolverMapping()
	// mobile is only mandatory for subjects that carry a pager.
	m.Items = append(m.Items, Item{
		IntName: "mobile", ExtName: "mobile",
		Kind: KindPlain, Purpose: PurposePropagation,
		Mandatory: "pager",
	})
	r := makeResolver(&stubLookup{})

	sub := makeTestSubject()
	_, err := r.Outbound(context.Background(), sub, "x", m)
	assert.NoError(t, err)

	sub.SetAttr("pager", "555")
	_, err = r.Outbound(context.Background(), sub, "x", m)
	assert.True(t, IsRequiredValues(err))
}

func TestResolver_OutboundDerivedExemptFromMandatory(t *testing.T) {
	m := makeResolverMapping()
	m.Items[2].Mandatory = "true"
	r := makeResolver(&stubLookup{})

	sub := makeTestSubject()
	sub.Attrs["surname"] = nil // derivation yields nothing

	_, err := r.Outbound(context.Background(), sub, "x", m)
	assert.NoError(t, err)

	m.EnforceMandatoryOnDerived = true
	_, err = r.Outbound(context.Background(), sub, "x", m)
	assert.True(t, IsRequiredValues(err))
}

func TestResolver_OutboundVirtualLookupError(t *testing.T) {
	r := makeResolver(&stubLookup{err: assert.AnError})

	_, err := r.Outbound(context.Background(), makeTestSubject(), "x", makeResolverMapping())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestResolver_OutboundVirtualWithoutLookup(t *testing.T) {
	r := NewResolver(NewRegistry(), nil, nil)
	m := makeResolverMapping()

	_, err := r.Outbound(context.Background(), makeTestSubject(), "x", m)
	assert.True(t, IsConfigError(err))
}

func TestResolver_OutboundPurposeNoneGoesToDisplay(t *testing.T) {
	m := makeResolverMapping()
	m.Items = append(m.Items, Item{
		IntName: "surname", ExtName: "sn",
		Kind: KindPlain, Purpose: PurposeNone,
	})
	r := makeResolver(&stubLookup{})

	p, err := r.Outbound(context.Background(), makeTestSubject(), "x", m)
	require.NoError(t, err)

	assert.Equal(t, []connector.Attr{{Name: "surname", Values: []string{"Doe"}}}, p.Display)
	for _, a := range p.Attrs {
		assert.NotEqual(t, "sn", a.Name)
	}
}

func TestResolver_Inbound(t *testing.T) {
	r := makeResolver(&stubLookup{})
	rec := connector.Record{
		Class: "account",
		Key:   "cn=jdoe",
		Attrs: []connector.Attr{
			{Name: "uid", Values: []string{"jdoe"}},
			{Name: "mail", Values: []string{"jdoe@example.org"}},
			{Name: "userPassword", Values: []string{"hash"}},
		},
	}

	p, err := r.Inbound(rec, makeResolverMapping())
	require.NoError(t, err)

	assert.Equal(t, "jdoe", p.Key)
	assert.Equal(t, []string{"jdoe@example.org"}, p.Attrs["email"])
	// password flows outbound only
	assert.NotContains(t, p.Attrs, "secret")
	// propagation-only items never sync back
	assert.NotContains(t, p.Attrs, "displayName")
	assert.NotContains(t, p.Attrs, "groups")
}

func TestResolver_InboundKeyFallsBackToRecordKey(t *testing.T) {
	r := makeResolver(&stubLookup{})
	rec := connector.Record{
		Class: "account",
		Key:   "jdoe",
		Attrs: []connector.Attr{{Name: "mail", Values: []string{"jdoe@example.org"}}},
	}

	p, err := r.Inbound(rec, makeResolverMapping())
	require.NoError(t, err)
	assert.Equal(t, "jdoe", p.Key)
}

func TestResolver_InvalidMappingFailsBothDirections(t *testing.T) {
	r := makeResolver(&stubLookup{})
	m := makeResolverMapping()
	m.Items[0].Kind = KindDerived // derived key item

	_, err := r.Outbound(context.Background(), makeTestSubject(), "", m)
	assert.True(t, IsConfigError(err))

	_, err = r.Inbound(connector.Record{}, m)
	assert.True(t, IsConfigError(err))
}
