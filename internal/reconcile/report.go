package reconcile

import "fmt"

// Action names what the engine decided for one record.
type Action string

const (
	ActionCreated  Action = "CREATED"
	ActionUpdated  Action = "UPDATED"
	ActionDeleted  Action = "DELETED"
	ActionLinked   Action = "LINKED"
	ActionUnlinked Action = "UNLINKED"
	ActionIgnored  Action = "IGNORED"
	ActionFailed   Action = "FAILED"
)

// RecordResult is the per-record line of a report: which external record,
// which subject it correlated to (empty for none), what was decided, and
// the failure reason when the record failed.
type RecordResult struct {
	Key     string `json:"key"`
	Subject string `json:"subject,omitempty"`
	Action  Action `json:"action"`
	Reason  string `json:"reason,omitempty"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	Task     string         `json:"task"`
	Resource string         `json:"resource"`
	DryRun   bool           `json:"dry_run,omitempty"`
	Created  int            `json:"created"`
	Updated  int            `json:"updated"`
	Deleted  int            `json:"deleted"`
	Linked   int            `json:"linked"`
	Unlinked int            `json:"unlinked"`
	Ignored  int            `json:"ignored"`
	Failures int            `json:"failures"`
	Records  []RecordResult `json:"records,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Success reports whether the run completed without record failures.
func (r *Report) Success() bool {
	return r.Failures == 0
}

// Summary renders the counters in one line.
func (r *Report) Summary() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d linked=%d unlinked=%d ignored=%d failures=%d",
		r.Created, r.Updated, r.Deleted, r.Linked, r.Unlinked, r.Ignored, r.Failures)
}

func (r *Report) count(a Action) {
	switch a {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionDeleted:
		r.Deleted++
	case ActionLinked:
		r.Linked++
	case ActionUnlinked:
		r.Unlinked++
	case ActionIgnored:
		r.Ignored++
	case ActionFailed:
		r.Failures++
	}
}
