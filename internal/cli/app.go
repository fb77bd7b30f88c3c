package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mreiling/idprov/internal/config"
	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/connector/ldapconn"
	"github.com/mreiling/idprov/internal/connector/pgtable"
	"github.com/mreiling/idprov/internal/correlate"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/password"
	"github.com/mreiling/idprov/internal/propagation"
	"github.com/mreiling/idprov/internal/reconcile"
	"github.com/mreiling/idprov/internal/store"
	"github.com/mreiling/idprov/internal/virattr"
)

// App bundles the wired runtime: store, connectors, resolver, and the
// two engines. Built once per command invocation, closed on the way out.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Connectors map[string]connector.Connector
	Resources  []*propagation.Resource
	Resolver   *mapping.Resolver
	Cache      *virattr.Cache
	Manager    *propagation.Manager
	Engine     *reconcile.Engine
	Rules      *correlate.Registry

	closers []func() error
}

// configureLogging installs the process logger. Verbose lifts the level
// to debug; everything goes to stderr so stdout stays machine-readable.
func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// buildApp loads the config and wires every component. Connectors are
// dialed eagerly so a dead resource fails the command up front.
func buildApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}

	app := &App{
		Config:     cfg,
		Connectors: make(map[string]connector.Connector, len(cfg.Resources)),
		Rules:      correlate.NewRegistry(),
	}

	var storeOpts []store.Option
	if cfg.Store.SecretKey != "" {
		enc, err := password.NewEncryptor(cfg.Store.SecretKey)
		if err != nil {
			app.Close()
			return nil, WrapExitError(ExitCommandError, "building encryptor", err)
		}
		storeOpts = append(storeOpts, store.WithSealer(enc))
	}
	st, err := store.Open(cfg.Store.Path, storeOpts...)
	if err != nil {
		app.Close()
		return nil, WrapExitError(ExitCommandError, "opening store", err)
	}
	app.Store = st
	app.closers = append(app.closers, st.Close)

	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		conn, err := app.dialConnector(ctx, rc)
		if err != nil {
			app.Close()
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("connecting resource %s", rc.Name), err)
		}
		app.Connectors[rc.Name] = conn

		res, err := cfg.BuildResource(rc, conn)
		if err != nil {
			app.Close()
			return nil, WrapExitError(ExitCommandError, "building resource", err)
		}
		app.Resources = append(app.Resources, res)
	}

	app.Cache = virattr.New(cfg.VirtualTTL())
	lookup := virattr.NewLookup(app.Cache, app.Connectors)
	app.Resolver = mapping.NewResolver(mapping.NewRegistry(), lookup, cfg.BuildDerivations())

	exec := propagation.NewExecutor(propagation.DefaultWorkers)
	app.Manager = propagation.NewManager(app.Resolver, exec, app.Resources, st)

	correlator := correlate.New(st, app.Rules)
	app.Engine = reconcile.New(st, app.Resolver, correlator, app.Manager)

	return app, nil
}

func (a *App) dialConnector(ctx context.Context, rc *config.ResourceConfig) (connector.Connector, error) {
	switch rc.Connector {
	case "ldap":
		conn, err := ldapconn.Dial(ldapconn.Config{
			Resource:     rc.Name,
			URL:          rc.LDAP.URL,
			BindDN:       rc.LDAP.BindDN,
			BindPassword: rc.LDAP.BindPassword,
			BaseDN:       rc.LDAP.BaseDN,
			KeyAttr:      rc.LDAP.KeyAttr,
			PageSize:     uint32(rc.LDAP.PageSize),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		return conn, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, rc.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		return pgtable.New(pool, pgtable.Config{
			Resource:       rc.Name,
			Table:          rc.Postgres.Table,
			KeyColumn:      rc.Postgres.KeyColumn,
			Columns:        rc.Postgres.Columns,
			RevisionColumn: rc.Postgres.RevisionColumn,
			PageSize:       rc.Postgres.PageSize,
		})
	case "memory":
		return connector.NewMemory(rc.Name), nil
	default:
		return nil, fmt.Errorf("unknown connector kind %q", rc.Connector)
	}
}

// Close releases everything buildApp acquired, last-in first-out.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Error("closing resource", "error", err)
		}
	}
	a.closers = nil
}
