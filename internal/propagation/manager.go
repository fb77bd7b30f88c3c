package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/subject"
)

// MembershipAttr is the subject attribute holding the keys of the groups a
// subject belongs to. Resources linked to those groups are inherited for
// propagation.
const MembershipAttr = "memberships"

// Finder loads subjects for membership expansion. Implemented by the
// store; nil disables inheritance.
type Finder interface {
	Get(ctx context.Context, key string) (*subject.Subject, error)
}

// Options tune one propagation run.
type Options struct {
	// Password is the cleartext accompanying the mutation, empty if none.
	Password string

	// Exclude removes resources from the derived set for this operation,
	// typically the resource a reconciliation pass pulled the change from.
	Exclude []string

	// Previous is the subject as it was before the mutation; when set, a
	// changed account identifier on a resource is propagated as a rename
	// via the task's PrevAccountID.
	Previous *subject.Subject
}

// Manager derives and executes propagation tasks.
type Manager struct {
	resolver  *mapping.Resolver
	resources map[string]*Resource
	finder    Finder
	exec      *Executor
}

// NewManager builds a manager over a fixed resource set. finder may be nil
// when group-inherited resources are not used.
func NewManager(resolver *mapping.Resolver, exec *Executor, resources []*Resource, finder Finder) *Manager {
	byName := make(map[string]*Resource, len(resources))
	for _, r := range resources {
		byName[r.Name] = r
	}
	return &Manager{resolver: resolver, resources: byName, finder: finder, exec: exec}
}

// Resource returns the named resource definition.
func (m *Manager) Resource(name string) (*Resource, bool) {
	r, ok := m.resources[name]
	return r, ok
}

// Propagate fans one subject change out to its resources and returns one
// status per derived task, in task order. The only error returned is the
// run-fatal kind: a linked resource with no definition at all. Everything
// else is reported per-resource in the statuses.
func (m *Manager) Propagate(ctx context.Context, sub *subject.Subject, op Operation, opts Options) ([]Status, error) {
	tasks, pre, err := m.DeriveTasks(ctx, sub, op, opts)
	if err != nil {
		return nil, err
	}
	statuses := m.exec.Execute(ctx, tasks)
	return append(pre, statuses...), nil
}

// DeriveTasks builds the ordered task list for one subject change.
//
// The resource set is the subject's linked resources plus resources
// inherited through group membership, minus exclusions. A resource whose
// mapping has no key item yields nothing to push and is skipped entirely.
// A resource whose payload cannot be resolved (missing mandatory values,
// bad mapping, absent password without generation) contributes an
// Unsubmitted status instead of a task.
func (m *Manager) DeriveTasks(ctx context.Context, sub *subject.Subject, op Operation, opts Options) ([]Task, []Status, error) {
	names, err := m.resourceSet(ctx, sub, opts)
	if err != nil {
		return nil, nil, err
	}

	var tasks []Task
	var pre []Status
	for _, name := range names {
		res, ok := m.resources[name]
		if !ok {
			return nil, nil, fmt.Errorf("resource %q has no definition", name)
		}
		if res.Mapping.KeyItem() == nil {
			slog.Debug("skipping resource without key mapping", "resource", name)
			continue
		}

		payload, err := m.resolver.Outbound(ctx, sub, opts.Password, res.Mapping)
		if err != nil {
			pre = append(pre, Status{
				Resource:      name,
				Operation:     op,
				Status:        StatusUnsubmitted,
				FailureReason: err.Error(),
			})
			continue
		}

		if payload.MissingPassword && op == OpCreate {
			if res.RandomPwdIfNotProvided {
				pw, err := res.PasswordPolicy.Generate()
				if err != nil {
					return nil, nil, fmt.Errorf("generate password for %s: %w", name, err)
				}
				payload.Password = pw
				payload.MissingPassword = false
			} else {
				pre = append(pre, Status{
					Resource:      name,
					Operation:     op,
					Status:        StatusUnsubmitted,
					FailureReason: fmt.Sprintf("resource %s requires a password and none was provided", name),
				})
				continue
			}
		}

		attrs := payload.Attrs
		if payload.Password != "" && payload.PasswordAttr != "" {
			attrs = append(attrs, payloadPasswordAttr(payload))
		}

		t := Task{
			Resource:    name,
			ObjectClass: res.ObjectClass,
			Operation:   op,
			AccountID:   payload.AccountID,
			Attrs:       attrs,
			Mode:        res.Mode,
			Primary:     res.Primary,
			Priority:    res.Priority,
			res:         res,
		}
		if opts.Previous != nil && op != OpCreate {
			if prev, err := m.resolver.Outbound(ctx, opts.Previous, "", res.Mapping); err == nil {
				if prev.AccountID != "" && prev.AccountID != payload.AccountID {
					t.PrevAccountID = prev.AccountID
				}
			}
		}
		tasks = append(tasks, t)
	}

	orderTasks(tasks)
	return tasks, pre, nil
}

// resourceSet returns the sorted union of linked and inherited resources,
// minus exclusions.
func (m *Manager) resourceSet(ctx context.Context, sub *subject.Subject, opts Options) ([]string, error) {
	set := make(map[string]bool)
	for _, r := range sub.Resources {
		set[r] = true
	}

	if m.finder != nil {
		for _, groupKey := range sub.Attrs[MembershipAttr] {
			group, err := m.finder.Get(ctx, groupKey)
			if err != nil {
				return nil, fmt.Errorf("expand membership %s: %w", groupKey, err)
			}
			if group == nil {
				continue
			}
			for _, r := range group.Resources {
				set[r] = true
			}
		}
	}

	for _, r := range opts.Exclude {
		delete(set, r)
	}

	names := make([]string, 0, len(set))
	for r := range set {
		names = append(names, r)
	}
	sort.Strings(names)
	return names, nil
}

// orderTasks sorts primary resources first, then ascending priority, ties
// broken by resource name so runs are deterministic.
func orderTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Primary != tasks[j].Primary {
			return tasks[i].Primary
		}
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority < tasks[j].Priority
		}
		return tasks[i].Resource < tasks[j].Resource
	})
}
