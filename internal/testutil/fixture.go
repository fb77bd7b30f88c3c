// Package testutil holds shared test plumbing: a deterministic clock
// and a fully wired in-memory provisioning fixture.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/correlate"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/propagation"
	"github.com/mreiling/idprov/internal/reconcile"
	"github.com/mreiling/idprov/internal/store"
	"github.com/mreiling/idprov/internal/subject"
	"github.com/mreiling/idprov/internal/virattr"
)

// Fixture wires a complete in-memory system: SQLite store, one memory
// connector per resource, resolver, propagation manager, and the
// reconciliation engine. Everything is torn down via t.Cleanup.
type Fixture struct {
	Store      *store.Store
	Connectors map[string]*connector.Memory
	Resources  []*propagation.Resource
	Resolver   *mapping.Resolver
	Cache      *virattr.Cache
	Clock      *Clock
	Manager    *propagation.Manager
	Engine     *reconcile.Engine
	Rules      *correlate.Registry
}

// NewFixture builds a fixture around the given resource definitions.
// Each resource gets a fresh memory connector; any Connector already on
// the definition is replaced. Derivations may be nil.
func NewFixture(t *testing.T, derivations mapping.Derivations, resources ...*propagation.Resource) *Fixture {
	t.Helper()

	st, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	f := &Fixture{
		Store:      st,
		Connectors: make(map[string]*connector.Memory, len(resources)),
		Resources:  resources,
		Clock:      NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Rules:      correlate.NewRegistry(),
	}

	conns := make(map[string]connector.Connector, len(resources))
	for _, res := range resources {
		mem := connector.NewMemory(res.Name)
		res.Connector = mem
		f.Connectors[res.Name] = mem
		conns[res.Name] = mem
	}

	f.Cache = virattr.New(time.Minute, virattr.WithNow(f.Clock.Now))
	lookup := virattr.NewLookup(f.Cache, conns)
	f.Resolver = mapping.NewResolver(mapping.NewRegistry(), lookup, derivations)

	exec := propagation.NewExecutor(2)
	f.Manager = propagation.NewManager(f.Resolver, exec, resources, st)

	correlator := correlate.New(st, f.Rules)
	f.Engine = reconcile.New(st, f.Resolver, correlator, f.Manager)

	return f
}

// Save persists a subject and returns the stored version.
func (f *Fixture) Save(t *testing.T, sub *subject.Subject) *subject.Subject {
	t.Helper()
	saved, err := f.Store.Save(context.Background(), sub)
	require.NoError(t, err)
	return saved
}

// SeedRecord places a record on a resource's memory connector.
func (f *Fixture) SeedRecord(t *testing.T, resource, class string, rec connector.Record) {
	t.Helper()
	mem, ok := f.Connectors[resource]
	require.True(t, ok, "unknown resource %s", resource)
	mem.Seed(class, rec)
}
