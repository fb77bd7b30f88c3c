package propagation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/mapping"
)

// DefaultWorkers is the executor pool size when none is configured.
const DefaultWorkers = 4

// Executor runs propagation tasks on a worker pool.
//
// Tasks are handed to workers in submission order, so the manager's
// ordering decides attempt order. Tasks for the same (resource, account)
// pair are serialized by a keyed lock held for the duration of the task;
// independent tasks run concurrently.
type Executor struct {
	workers int
	locks   *keyedLocks
}

// NewExecutor creates an executor with the given pool size; zero or
// negative selects DefaultWorkers.
func NewExecutor(workers int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Executor{workers: workers, locks: newKeyedLocks()}
}

// Execute runs every task and returns one status per task, in task order.
//
// Cancellation is cooperative: it is observed between tasks, and tasks not
// yet started when the context dies are reported Unsubmitted. A task
// already in flight is allowed to complete.
func (e *Executor) Execute(ctx context.Context, tasks []Task) []Status {
	statuses := make([]Status, len(tasks))
	if len(tasks) == 0 {
		return statuses
	}

	workers := e.workers
	if workers > len(tasks) {
		workers = len(tasks)
	}

	feed := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range feed {
				statuses[i] = e.run(ctx, tasks[i])
			}
		}()
	}

feeding:
	for i := range tasks {
		// Checked explicitly first: select alone would sometimes hand a
		// task to an idle worker even after cancellation.
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feeding
		case feed <- i:
		}
	}
	close(feed)
	wg.Wait()

	// Anything the feeder never handed out stays unsubmitted.
	for i := range statuses {
		if statuses[i].Status == "" {
			statuses[i] = Status{
				Resource:      tasks[i].Resource,
				Operation:     tasks[i].Operation,
				Status:        StatusUnsubmitted,
				FailureReason: "execution stopped before task was attempted",
			}
		}
	}
	return statuses
}

// run executes one task under its account lock and classifies the outcome.
func (e *Executor) run(ctx context.Context, t Task) Status {
	lockKey := t.Resource + "\x00" + t.AccountID
	e.locks.acquire(lockKey)
	defer e.locks.release(lockKey)

	status := Status{Resource: t.Resource, Operation: t.Operation}

	callCtx := ctx
	if t.res.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.res.Timeout)
		defer cancel()
	}

	conn := t.res.Connector

	// Snapshot the object before mutating it; best effort, a read failure
	// here is not a task failure.
	if t.Operation != OpCreate {
		key := t.AccountID
		if t.PrevAccountID != "" {
			key = t.PrevAccountID
		}
		if before, err := conn.Get(callCtx, t.ObjectClass, key); err == nil {
			status.Before = before
		}
	}

	var err error
	switch t.Operation {
	case OpCreate:
		_, err = conn.Create(callCtx, t.ObjectClass, t.AccountID, t.Attrs)
	case OpUpdate:
		key := t.AccountID
		if t.PrevAccountID != "" {
			// Rename: locate the object under its previous identifier.
			key = t.PrevAccountID
		}
		_, err = conn.Update(callCtx, t.ObjectClass, key, t.Attrs)
	case OpDelete:
		err = conn.Delete(callCtx, t.ObjectClass, t.AccountID)
		if errors.Is(err, connector.ErrNotFound) {
			// Already gone: the desired state holds.
			err = nil
		}
	}

	if err != nil {
		status.Status = StatusFailure
		status.FailureReason = err.Error()
		slog.Warn("propagation task failed",
			"resource", t.Resource,
			"operation", t.Operation,
			"account", t.AccountID,
			"error", err,
		)
		return status
	}

	switch t.Mode {
	case ModeTwoPhase:
		after, err := conn.Get(callCtx, t.ObjectClass, t.AccountID)
		if err != nil {
			status.Status = StatusFailure
			status.FailureReason = "confirmation read failed: " + err.Error()
			return status
		}
		status.After = after
		if t.Operation == OpDelete && after != nil {
			status.Status = StatusFailure
			status.FailureReason = "object still present after delete"
			return status
		}
		if t.Operation != OpDelete && after == nil {
			status.Status = StatusFailure
			status.FailureReason = "object not visible after write"
			return status
		}
		status.Status = StatusSuccess
	default:
		status.Status = StatusSubmitted
	}

	slog.Debug("propagation task done",
		"resource", t.Resource,
		"operation", t.Operation,
		"account", t.AccountID,
		"status", status.Status,
	)
	return status
}

func payloadPasswordAttr(p *mapping.Payload) connector.Attr {
	return connector.Attr{Name: p.PasswordAttr, Values: []string{p.Password}}
}
