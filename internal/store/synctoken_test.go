package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncToken_EmptyBeforeFirstPass(t *testing.T) {
	st := makeTestStore(t)

	token, err := st.SyncToken(context.Background(), "ldap", "account")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestSyncToken_SetAndOverwrite(t *testing.T) {
	ctx := context.Background()
	st := makeTestStore(t)

	require.NoError(t, st.SetSyncToken(ctx, "ldap", "account", "1000"))
	token, err := st.SyncToken(ctx, "ldap", "account")
	require.NoError(t, err)
	assert.Equal(t, "1000", token)

	require.NoError(t, st.SetSyncToken(ctx, "ldap", "account", "2000"))
	token, _ = st.SyncToken(ctx, "ldap", "account")
	assert.Equal(t, "2000", token)
}

func TestSyncToken_KeyedPerResourceAndClass(t *testing.T) {
	ctx := context.Background()
	st := makeTestStore(t)

	require.NoError(t, st.SetSyncToken(ctx, "ldap", "account", "10"))
	require.NoError(t, st.SetSyncToken(ctx, "ldap", "group", "20"))
	require.NoError(t, st.SetSyncToken(ctx, "crm", "account", "30"))

	token, _ := st.SyncToken(ctx, "ldap", "group")
	assert.Equal(t, "20", token)
	token, _ = st.SyncToken(ctx, "crm", "account")
	assert.Equal(t, "30", token)
}
