package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/mreiling/idprov/internal/correlate"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/propagation"
	"github.com/mreiling/idprov/internal/store"
)

// ErrAlreadyRunning is returned when a task is triggered while an
// execution of the same task is still in flight.
var ErrAlreadyRunning = errors.New("reconciliation task already running")

// Engine drives reconciliation runs. Safe for concurrent use; runs for
// different tasks proceed in parallel, runs for the same task are
// rejected while one is active.
type Engine struct {
	store      *store.Store
	resolver   *mapping.Resolver
	correlator *correlate.Engine
	propagator *propagation.Manager

	mu      sync.Mutex
	running map[string]bool
}

// New creates a reconciliation engine.
func New(st *store.Store, resolver *mapping.Resolver, correlator *correlate.Engine, propagator *propagation.Manager) *Engine {
	return &Engine{
		store:      st,
		resolver:   resolver,
		correlator: correlator,
		propagator: propagator,
		running:    make(map[string]bool),
	}
}

// Run executes one reconciliation pass for the task and returns its
// report. The returned error covers run-fatal conditions only: invalid
// configuration, an unknown resource, a concurrent execution of the same
// task, or a connector failure that prevents fetching any records.
// Per-record problems are counted in the report instead.
func (e *Engine) Run(ctx context.Context, cfg *TaskConfig) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !e.tryAcquire(cfg.Name) {
		return nil, fmt.Errorf("task %s: %w", cfg.Name, ErrAlreadyRunning)
	}
	defer e.release(cfg.Name)

	res, ok := e.propagator.Resource(cfg.Resource)
	if !ok {
		return nil, fmt.Errorf("task %s: resource %q has no definition", cfg.Name, cfg.Resource)
	}

	runKey := uuid.Must(uuid.NewV7()).String()
	report := &Report{Task: cfg.Name, Resource: cfg.Resource, DryRun: cfg.DryRun}

	slog.Info("reconciliation started",
		"run", runKey,
		"task", cfg.Name,
		"resource", cfg.Resource,
		"mode", cfg.Mode,
		"dry_run", cfg.DryRun,
	)

	var stopped bool
	var nextToken string

	switch cfg.Mode {
	case ModeIncremental:
		token, err := e.store.SyncToken(ctx, cfg.Resource, cfg.ObjectClass)
		if err != nil {
			return nil, err
		}
		recs, next, err := res.Connector.Changes(ctx, cfg.ObjectClass, token)
		if err != nil {
			return nil, fmt.Errorf("task %s: pull changes: %w", cfg.Name, err)
		}
		nextToken = next
		for _, rec := range recs {
			if ctx.Err() != nil {
				stopped = true
				break
			}
			e.processRecord(ctx, cfg, res, rec, report)
		}

	default: // ModeFull, ModeFiltered
		filter := cfg.Filter
		if cfg.Mode == ModeFull {
			filter = connectorFilterNone
		}
		cookie := ""
		for {
			page, err := res.Connector.Search(ctx, cfg.ObjectClass, filter, cookie)
			if err != nil {
				return nil, fmt.Errorf("task %s: search: %w", cfg.Name, err)
			}
			for _, rec := range page.Records {
				if ctx.Err() != nil {
					stopped = true
					break
				}
				e.processRecord(ctx, cfg, res, rec, report)
			}
			if stopped || page.Cookie == "" {
				break
			}
			cookie = page.Cookie
		}
	}

	e.finishRun(ctx, cfg, res, report, stopped, nextToken)

	slog.Info("reconciliation finished",
		"run", runKey,
		"task", cfg.Name,
		"success", report.Success(),
		"summary", report.Summary(),
	)
	return report, nil
}

// finishRun advances the sync token when the pass earned it and fills in
// the report message.
func (e *Engine) finishRun(ctx context.Context, cfg *TaskConfig, res *propagation.Resource, report *Report, stopped bool, nextToken string) {
	advance := !cfg.DryRun && !stopped && report.Success() &&
		(cfg.Mode == ModeFull || cfg.Mode == ModeIncremental)
	if advance {
		token := nextToken
		if cfg.Mode == ModeFull {
			latest, err := res.Connector.LatestToken(ctx, cfg.ObjectClass)
			if err != nil {
				slog.Warn("sync token not advanced", "task", cfg.Name, "error", err)
				token = ""
			} else {
				token = latest
			}
		}
		if token != "" {
			if err := e.store.SetSyncToken(ctx, cfg.Resource, cfg.ObjectClass, token); err != nil {
				slog.Warn("sync token not advanced", "task", cfg.Name, "error", err)
			}
		}
	}

	switch {
	case stopped:
		report.Message = "stopped by cancellation: " + report.Summary()
	case report.Success():
		report.Message = report.Summary()
	default:
		report.Message = fmt.Sprintf("completed with %d failures: %s", report.Failures, report.Summary())
	}
}

func (e *Engine) tryAcquire(task string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[task] {
		return false
	}
	e.running[task] = true
	return true
}

func (e *Engine) release(task string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, task)
}
