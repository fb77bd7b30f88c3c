package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeInbound_TemplateWins(t *testing.T) {
	s := New("u-1", KindUser)
	s.SetAttr("email", "old@example.org")

	inbound := NewPartial(KindUser)
	inbound.SetAttr("email", "remote@example.org")
	inbound.SetAttr("dept", "eng")

	template := NewPartial(KindUser)
	template.SetAttr("email", "forced@example.org")

	changed := MergeInbound(s, inbound, template)

	assert.Equal(t, "forced@example.org", s.Attr("email"))
	assert.Equal(t, "eng", s.Attr("dept"))
	assert.ElementsMatch(t, []string{"email", "dept"}, changed)
}

func TestMergeInbound_NoChangesReported(t *testing.T) {
	s := New("u-1", KindUser)
	s.SetAttr("email", "same@example.org")

	inbound := NewPartial(KindUser)
	inbound.SetAttr("email", "same@example.org")

	assert.Empty(t, MergeInbound(s, inbound, nil))
}

func TestMergeInbound_UntouchedAttrsSurvive(t *testing.T) {
	s := New("u-1", KindUser)
	s.SetAttr("local", "kept")

	inbound := NewPartial(KindUser)
	inbound.SetAttr("dept", "eng")

	MergeInbound(s, inbound, nil)
	assert.Equal(t, "kept", s.Attr("local"))
}

func TestFromTemplate(t *testing.T) {
	inbound := NewPartial(KindUser)
	inbound.SetAttr("email", "remote@example.org")

	template := NewPartial(KindUser)
	template.SetAttr("status", "active")

	s := FromTemplate("u-9", KindUser, inbound, template)
	require.Equal(t, "u-9", s.Key)
	assert.Equal(t, KindUser, s.Kind)
	assert.Equal(t, "remote@example.org", s.Attr("email"))
	assert.Equal(t, "active", s.Attr("status"))
	assert.Zero(t, s.Version)
}

func TestSubject_ResourceLinks(t *testing.T) {
	s := New("u-1", KindUser)
	assert.False(t, s.HasResource("crm"))

	s.LinkResource("crm")
	s.LinkResource("crm") // idempotent
	assert.True(t, s.HasResource("crm"))
	assert.Len(t, s.Resources, 1)

	s.UnlinkResource("crm")
	assert.False(t, s.HasResource("crm"))
}

func TestSubject_CloneIsDeep(t *testing.T) {
	s := New("u-1", KindUser)
	s.SetAttr("groups", "a", "b")
	s.LinkResource("crm")

	c := s.Clone()
	c.Attrs["groups"][0] = "mutated"
	c.LinkResource("ldap")

	assert.Equal(t, "a", s.Attrs["groups"][0])
	assert.False(t, s.HasResource("ldap"))
}
