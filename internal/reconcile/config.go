package reconcile

import (
	"fmt"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/subject"
)

// Mode selects how records are pulled from the resource.
type Mode string

const (
	// ModeFull processes every object on the resource and, on a fully
	// successful live pass, records the resource's current change cursor.
	ModeFull Mode = "FULL"
	// ModeFiltered processes only records matching the task filter; the
	// sync token is left untouched.
	ModeFiltered Mode = "FILTERED"
	// ModeIncremental pulls the resource's change log bounded by the
	// stored sync token and advances it after a fully successful pass.
	ModeIncremental Mode = "INCREMENTAL"
)

// MatchingRule is the policy for records that correlate to an existing
// subject.
type MatchingRule string

const (
	// MatchUpdate merges inbound data and template into the subject.
	MatchUpdate MatchingRule = "UPDATE"
	// MatchIgnore records the match and does nothing.
	MatchIgnore MatchingRule = "IGNORE"
	// MatchDeprovision deletes the external account but keeps the subject
	// and its resource link.
	MatchDeprovision MatchingRule = "DEPROVISION"
	// MatchUnassign removes the resource link and deletes the external
	// account.
	MatchUnassign MatchingRule = "UNASSIGN"
	// MatchUnlink removes the resource link only.
	MatchUnlink MatchingRule = "UNLINK"
)

// UnmatchingRule is the policy for records with no correlated subject.
type UnmatchingRule string

const (
	// UnmatchAssign creates the subject and links it to the source
	// resource without propagating anywhere: the data already lives on
	// the source.
	UnmatchAssign UnmatchingRule = "ASSIGN"
	// UnmatchProvision creates and links like assign, then propagates the
	// new subject to its other resources.
	UnmatchProvision UnmatchingRule = "PROVISION"
	// UnmatchIgnore records the miss and does nothing.
	UnmatchIgnore UnmatchingRule = "IGNORE"
)

// TaskConfig is one reconciliation task definition. Read-only to the
// engine during a run.
type TaskConfig struct {
	Name        string
	Resource    string
	ObjectClass string
	Kind        subject.Kind

	Mode   Mode
	Filter connector.Filter

	MatchingRule    MatchingRule
	UnmatchingRule  UnmatchingRule
	CorrelationRule string

	Templates map[subject.Kind]*subject.Partial

	PerformCreate bool
	PerformUpdate bool
	PerformDelete bool
	DryRun        bool
}

// Validate checks the task configuration for values the engine knows.
func (c *TaskConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("task has no name")
	}
	if c.Resource == "" {
		return fmt.Errorf("task %s names no resource", c.Name)
	}
	switch c.Mode {
	case ModeFull, ModeFiltered, ModeIncremental:
	default:
		return fmt.Errorf("task %s: unknown mode %q", c.Name, c.Mode)
	}
	switch c.MatchingRule {
	case MatchUpdate, MatchIgnore, MatchDeprovision, MatchUnassign, MatchUnlink:
	default:
		return fmt.Errorf("task %s: unknown matching rule %q", c.Name, c.MatchingRule)
	}
	switch c.UnmatchingRule {
	case UnmatchAssign, UnmatchProvision, UnmatchIgnore:
	default:
		return fmt.Errorf("task %s: unknown unmatching rule %q", c.Name, c.UnmatchingRule)
	}
	if c.Mode == ModeFiltered && c.Filter.Attr == "" {
		return fmt.Errorf("task %s: filtered mode needs a filter", c.Name)
	}
	return nil
}

// Template returns the template partial for the task's subject kind, or
// nil.
func (c *TaskConfig) Template() *subject.Partial {
	if c.Templates == nil {
		return nil
	}
	return c.Templates[c.Kind]
}
