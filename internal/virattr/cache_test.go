package virattr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLoader returns preset values and counts invocations.
type countingLoader struct {
	values []string
	err    error
	calls  int
}

func (l *countingLoader) load(context.Context) ([]string, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.values, nil
}

func makeTestCache(ttl time.Duration) (*Cache, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(ttl, WithNow(func() time.Time { return now }))
	return c, &now
}

func TestCache_ServesStaleWithinTTL(t *testing.T) {
	c, _ := makeTestCache(time.Minute)
	loader := &countingLoader{values: []string{"staff"}}

	got, err := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, got)

	// Upstream changed, but the entry is still live: the stale value
	// must come back without a second load.
	loader.values = []string{"staff", "eng"}
	got, err = c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, got)
	assert.Equal(t, 1, loader.calls)
}

func TestCache_ReloadsAfterExpiry(t *testing.T) {
	c, now := makeTestCache(time.Minute)
	loader := &countingLoader{values: []string{"staff"}}

	_, err := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	require.NoError(t, err)

	*now = now.Add(time.Minute + time.Second)
	loader.values = []string{"eng"}

	got, err := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	require.NoError(t, err)
	assert.Equal(t, []string{"eng"}, got)
	assert.Equal(t, 2, loader.calls)
}

func TestCache_InvalidateIsPerResource(t *testing.T) {
	c, _ := makeTestCache(time.Hour)
	ldap := &countingLoader{values: []string{"a"}}
	crm := &countingLoader{values: []string{"b"}}

	_, _ = c.Get(context.Background(), "ldap", "account", "u-1", "groups", ldap.load)
	_, _ = c.Get(context.Background(), "crm", "account", "u-1", "groups", crm.load)
	require.Equal(t, 2, c.Len())

	c.Invalidate("ldap")
	assert.Equal(t, 1, c.Len())

	_, _ = c.Get(context.Background(), "ldap", "account", "u-1", "groups", ldap.load)
	_, _ = c.Get(context.Background(), "crm", "account", "u-1", "groups", crm.load)
	assert.Equal(t, 2, ldap.calls)
	assert.Equal(t, 1, crm.calls)
}

func TestCache_FailedLoadCachesNothing(t *testing.T) {
	c, _ := makeTestCache(time.Minute)
	loader := &countingLoader{err: errors.New("resource down")}

	_, err := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())

	loader.err = nil
	loader.values = []string{"staff"}
	got, err := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, got)
}

func TestCache_ReturnedSliceIsACopy(t *testing.T) {
	c, _ := makeTestCache(time.Minute)
	loader := &countingLoader{values: []string{"staff"}}

	first, _ := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	first[0] = "mutated"

	second, _ := c.Get(context.Background(), "ldap", "account", "u-1", "groups", loader.load)
	assert.Equal(t, []string{"staff"}, second)
}
