package virattr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreiling/idprov/internal/connector"
)

func TestLookup_ReadsThroughConnector(t *testing.T) {
	mem := connector.NewMemory("ldap")
	mem.Seed("account", connector.Record{
		Key:   "u-1",
		Attrs: []connector.Attr{{Name: "memberOf", Values: []string{"staff", "eng"}}},
	})

	l := NewLookup(New(time.Minute), map[string]connector.Connector{"ldap": mem})

	got, err := l.Lookup(context.Background(), "ldap", "account", "u-1", "memberOf")
	require.NoError(t, err)
	assert.Equal(t, []string{"staff", "eng"}, got)
}

func TestLookup_AbsentObjectYieldsNoValues(t *testing.T) {
	mem := connector.NewMemory("ldap")
	l := NewLookup(New(time.Minute), map[string]connector.Connector{"ldap": mem})

	got, err := l.Lookup(context.Background(), "ldap", "account", "ghost", "memberOf")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookup_UnknownResource(t *testing.T) {
	l := NewLookup(New(time.Minute), nil)
	_, err := l.Lookup(context.Background(), "nowhere", "account", "u-1", "memberOf")
	assert.Error(t, err)
}
