package reconcile

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/propagation"
	"github.com/mreiling/idprov/internal/subject"
)

var connectorFilterNone = connector.Filter{}

// processRecord walks one external record through resolution, correlation,
// decision and application, and appends its outcome to the report.
func (e *Engine) processRecord(ctx context.Context, cfg *TaskConfig, res *propagation.Resource, rec connector.Record, report *Report) {
	result := RecordResult{Key: rec.Key}

	inbound, err := e.resolver.Inbound(rec, res.Mapping)
	if err != nil {
		result.Action = ActionFailed
		result.Reason = err.Error()
		e.record(report, result)
		return
	}

	matched, err := e.correlator.Correlate(ctx, cfg.Kind, inbound, keyAttrFor(res.Mapping), cfg.CorrelationRule)
	if err != nil {
		// Ambiguous matches and broken rules skip the record, never the
		// pass.
		result.Action = ActionFailed
		result.Reason = err.Error()
		e.record(report, result)
		return
	}

	if matched == nil {
		result = e.applyUnmatched(ctx, cfg, rec, inbound)
	} else {
		result = e.applyMatched(ctx, cfg, res, rec, inbound, matched)
	}
	e.record(report, result)
}

func (e *Engine) record(report *Report, result RecordResult) {
	report.Records = append(report.Records, result)
	report.count(result.Action)
	if result.Action == ActionFailed {
		slog.Warn("reconciliation record failed",
			"task", report.Task,
			"record", result.Key,
			"reason", result.Reason,
		)
	}
}

// applyUnmatched handles a record with no correlated subject.
func (e *Engine) applyUnmatched(ctx context.Context, cfg *TaskConfig, rec connector.Record, inbound *subject.Partial) RecordResult {
	result := RecordResult{Key: rec.Key}

	switch cfg.UnmatchingRule {
	case UnmatchIgnore:
		result.Action = ActionIgnored
		return result
	case UnmatchAssign, UnmatchProvision:
		if !cfg.PerformCreate {
			result.Action = ActionIgnored
			result.Reason = "creates disabled"
			return result
		}
	}

	key := inbound.Key
	if key == "" {
		key = uuid.Must(uuid.NewV7()).String()
	}
	sub := subject.FromTemplate(key, cfg.Kind, inbound, cfg.Template())
	sub.LinkResource(cfg.Resource)
	result.Subject = sub.Key
	result.Action = ActionCreated

	if !cfg.DryRun {
		saved, err := e.store.Save(ctx, sub)
		if err != nil {
			result.Action = ActionFailed
			result.Reason = err.Error()
			return result
		}
		sub = saved
	}

	if cfg.UnmatchingRule == UnmatchProvision {
		// The source resource already holds the data; push only to the
		// subject's other resources.
		e.cascade(ctx, cfg, sub, propagation.OpCreate, propagation.Options{Exclude: []string{cfg.Resource}}, &result)
	}
	return result
}

// applyMatched handles a record that correlated to exactly one subject.
func (e *Engine) applyMatched(ctx context.Context, cfg *TaskConfig, res *propagation.Resource, rec connector.Record, inbound *subject.Partial, matched *subject.Subject) RecordResult {
	result := RecordResult{Key: rec.Key, Subject: matched.Key}

	switch cfg.MatchingRule {
	case MatchIgnore:
		result.Action = ActionIgnored

	case MatchUpdate:
		if !cfg.PerformUpdate {
			result.Action = ActionIgnored
			result.Reason = "updates disabled"
			return result
		}
		work := matched.Clone()
		changed := subject.MergeInbound(work, inbound, cfg.Template())
		linkAdded := !work.HasResource(cfg.Resource)
		if linkAdded {
			work.LinkResource(cfg.Resource)
		}
		if len(changed) == 0 && !linkAdded {
			result.Action = ActionIgnored
			result.Reason = "no changes"
			return result
		}
		if !cfg.DryRun {
			saved, err := e.store.Save(ctx, work)
			if err != nil {
				result.Action = ActionFailed
				result.Reason = err.Error()
				return result
			}
			work = saved
		}
		if linkAdded && len(changed) == 0 {
			result.Action = ActionLinked
		} else {
			result.Action = ActionUpdated
		}
		if len(changed) > 0 {
			diff := subject.DiffAttrs(matched.Attrs, work.Attrs)
			slog.Debug("subject merged from resource",
				"task", cfg.Name,
				"subject", work.Key,
				"added", len(diff.Added),
				"removed", len(diff.Removed),
				"changed", len(diff.Changed),
			)
			e.cascade(ctx, cfg, work, propagation.OpUpdate, propagation.Options{
				Exclude:  []string{cfg.Resource},
				Previous: matched,
			}, &result)
		}

	case MatchDeprovision:
		if !cfg.PerformDelete {
			result.Action = ActionIgnored
			result.Reason = "deletes disabled"
			return result
		}
		if !cfg.DryRun {
			if err := res.Connector.Delete(ctx, cfg.ObjectClass, rec.Key); err != nil {
				result.Action = ActionFailed
				result.Reason = err.Error()
				return result
			}
		}
		result.Action = ActionDeleted

	case MatchUnassign:
		work := matched.Clone()
		work.UnlinkResource(cfg.Resource)
		if !cfg.DryRun {
			if _, err := e.store.Save(ctx, work); err != nil {
				result.Action = ActionFailed
				result.Reason = err.Error()
				return result
			}
			if cfg.PerformDelete {
				if err := res.Connector.Delete(ctx, cfg.ObjectClass, rec.Key); err != nil {
					result.Action = ActionFailed
					result.Reason = err.Error()
					return result
				}
			}
		}
		result.Action = ActionUnlinked

	case MatchUnlink:
		work := matched.Clone()
		work.UnlinkResource(cfg.Resource)
		if !cfg.DryRun {
			if _, err := e.store.Save(ctx, work); err != nil {
				result.Action = ActionFailed
				result.Reason = err.Error()
				return result
			}
		}
		result.Action = ActionUnlinked
	}
	return result
}

// cascade propagates a decided change to the subject's other resources.
// In dry runs only the task derivation happens, so would-be payloads are
// still computed and validated without touching any connector.
func (e *Engine) cascade(ctx context.Context, cfg *TaskConfig, sub *subject.Subject, op propagation.Operation, opts propagation.Options, result *RecordResult) {
	if cfg.DryRun {
		if _, _, err := e.propagator.DeriveTasks(ctx, sub, op, opts); err != nil {
			result.Reason = appendReason(result.Reason, "propagation derivation: "+err.Error())
		}
		return
	}

	statuses, err := e.propagator.Propagate(ctx, sub, op, opts)
	if err != nil {
		result.Reason = appendReason(result.Reason, "propagation: "+err.Error())
		return
	}
	for _, st := range statuses {
		if st.Status == propagation.StatusFailure {
			result.Reason = appendReason(result.Reason, st.Resource+": "+st.FailureReason)
			slog.Warn("cascade propagation failed",
				"task", cfg.Name,
				"subject", sub.Key,
				"resource", st.Resource,
				"reason", st.FailureReason,
			)
		}
	}
}

// keyAttrFor returns the internal attribute the default correlation rule
// matches on: the key item's internal name for plain-sourced keys, or ""
// when the external identifier is the subject key itself.
func keyAttrFor(m *mapping.ResourceMapping) string {
	item := m.KeyItem()
	if item == nil {
		return ""
	}
	if item.Kind == mapping.KindPlain {
		return item.IntName
	}
	return ""
}

func appendReason(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + "; " + add
}
