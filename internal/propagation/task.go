package propagation

import (
	"time"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/password"
)

// Operation is the kind of subject change being propagated.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Mode selects how a task's connector call is confirmed.
type Mode string

const (
	// ModeOneWay fires the connector call and records acceptance without
	// waiting for external confirmation.
	ModeOneWay Mode = "ONE_WAY"
	// ModeTwoPhase reads the object back after the call and reports
	// success only once the write is visible.
	ModeTwoPhase Mode = "TWO_PHASE"
)

// Resource is the propagation-relevant view of one external system:
// its connector, mapping, ordering hints, and password policy.
type Resource struct {
	Name        string
	ObjectClass string
	Mapping     *mapping.ResourceMapping
	Connector   connector.Connector
	Primary     bool
	Priority    int
	Mode        Mode
	Timeout     time.Duration

	// RandomPwdIfNotProvided makes create tasks that need a password but
	// got none generate one under PasswordPolicy instead of staying
	// unsubmitted.
	RandomPwdIfNotProvided bool
	PasswordPolicy         password.Policy
}

// Task is one unit of work against one resource. Tasks are immutable once
// built and consumed exactly once by the executor.
type Task struct {
	Resource      string
	ObjectClass   string
	Operation     Operation
	AccountID     string
	PrevAccountID string
	Attrs         []connector.Attr
	Mode          Mode
	Primary       bool
	Priority      int

	res *Resource
}

// StatusKind classifies the outcome of one task.
type StatusKind string

const (
	StatusSuccess     StatusKind = "SUCCESS"
	StatusSubmitted   StatusKind = "SUBMITTED"
	StatusUnsubmitted StatusKind = "UNSUBMITTED"
	StatusFailure     StatusKind = "FAILURE"
)

// Status is the outcome of one task: one per executed (or deliberately
// unexecuted) task, appended to the run result and never mutated after
// creation.
type Status struct {
	Resource      string
	Operation     Operation
	Status        StatusKind
	FailureReason string
	Before        *connector.Record
	After         *connector.Record
}
