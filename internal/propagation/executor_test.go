package propagation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mreiling/idprov/internal/connector"
)

func makeTask(res *Resource, op Operation, accountID string, attrs []connector.Attr) Task {
	return Task{
		Resource:    res.Name,
		ObjectClass: res.ObjectClass,
		Operation:   op,
		AccountID:   accountID,
		Attrs:       attrs,
		Mode:        res.Mode,
		Primary:     res.Primary,
		Priority:    res.Priority,
		res:         res,
	}
}

func TestExecute_TwoPhaseCreateConfirmed(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	exec := NewExecutor(1)

	attrs := []connector.Attr{{Name: "mail", Values: []string{"a@example.org"}}}
	statuses := exec.Execute(context.Background(), []Task{makeTask(res, OpCreate, "u-1", attrs)})

	require.Len(t, statuses, 1)
	assert.Equal(t, StatusSuccess, statuses[0].Status)
	require.NotNil(t, statuses[0].After)
	assert.Equal(t, []string{"a@example.org"}, statuses[0].After.AttrValues("mail"))
	assert.Nil(t, statuses[0].Before)
}

func TestExecute_OneWayIsSubmittedOnly(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	res.Mode = ModeOneWay
	exec := NewExecutor(1)

	statuses := exec.Execute(context.Background(), []Task{makeTask(res, OpCreate, "u-1", nil)})

	require.Len(t, statuses, 1)
	assert.Equal(t, StatusSubmitted, statuses[0].Status)
	assert.Nil(t, statuses[0].After)
}

func TestExecute_FailureCarriesVerbatimReason(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	mem := res.Connector.(*connector.Memory)
	cause := connector.Permanent("crm", "create", assert.AnError)
	mem.FailNext(cause)
	exec := NewExecutor(1)

	statuses := exec.Execute(context.Background(), []Task{makeTask(res, OpCreate, "u-1", nil)})

	require.Len(t, statuses, 1)
	assert.Equal(t, StatusFailure, statuses[0].Status)
	assert.Equal(t, cause.Error(), statuses[0].FailureReason)
}

func TestExecute_UpdateSnapshotsBefore(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	mem := res.Connector.(*connector.Memory)
	mem.Seed("account", connector.Record{
		Key:   "u-1",
		Attrs: []connector.Attr{{Name: "mail", Values: []string{"old@example.org"}}},
	})
	exec := NewExecutor(1)

	attrs := []connector.Attr{{Name: "mail", Values: []string{"new@example.org"}}}
	statuses := exec.Execute(context.Background(), []Task{makeTask(res, OpUpdate, "u-1", attrs)})

	require.Len(t, statuses, 1)
	assert.Equal(t, StatusSuccess, statuses[0].Status)
	require.NotNil(t, statuses[0].Before)
	assert.Equal(t, []string{"old@example.org"}, statuses[0].Before.AttrValues("mail"))
	assert.Equal(t, []string{"new@example.org"}, statuses[0].After.AttrValues("mail"))
}

func TestExecute_DeleteMissingObjectIsDesiredState(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	exec := NewExecutor(1)

	statuses := exec.Execute(context.Background(), []Task{makeTask(res, OpDelete, "ghost", nil)})

	require.Len(t, statuses, 1)
	assert.Equal(t, StatusSuccess, statuses[0].Status)
	assert.Empty(t, statuses[0].FailureReason)
}

func TestExecute_RenameUpdatesUnderPreviousKey(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	mem := res.Connector.(*connector.Memory)
	mem.Seed("account", connector.Record{Key: "old-id"})
	exec := NewExecutor(1)

	task := makeTask(res, OpUpdate, "new-id", nil)
	task.PrevAccountID = "old-id"
	statuses := exec.Execute(context.Background(), []Task{task})

	require.Len(t, statuses, 1)
	// The memory connector updates in place: the write lands under the
	// previous key, and the two-phase read against the new identifier
	// reports it not yet visible.
	assert.Equal(t, StatusFailure, statuses[0].Status)
	assert.Contains(t, statuses[0].FailureReason, "not visible")
	require.NotNil(t, statuses[0].Before)
	assert.Equal(t, "old-id", statuses[0].Before.Key)
}

func TestExecute_CancelledContextLeavesTasksUnsubmitted(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	exec := NewExecutor(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks := []Task{
		makeTask(res, OpCreate, "u-1", nil),
		makeTask(res, OpCreate, "u-2", nil),
	}
	statuses := exec.Execute(ctx, tasks)

	require.Len(t, statuses, 2)
	for _, s := range statuses {
		assert.Equal(t, StatusUnsubmitted, s.Status)
	}
	assert.Equal(t, 0, res.Connector.(*connector.Memory).Len("account"))
}

func TestExecute_EmptyTaskList(t *testing.T) {
	assert.Empty(t, NewExecutor(1).Execute(context.Background(), nil))
}

func TestExecute_ConcurrentTasksAllComplete(t *testing.T) {
	res := makeTestResource("crm", false, 0)
	exec := NewExecutor(4)

	var tasks []Task
	for _, key := range []string{"u-1", "u-2", "u-3", "u-4", "u-5", "u-6"} {
		tasks = append(tasks, makeTask(res, OpCreate, key, nil))
	}
	statuses := exec.Execute(context.Background(), tasks)

	require.Len(t, statuses, 6)
	for _, s := range statuses {
		assert.Equal(t, StatusSuccess, s.Status)
	}
	assert.Equal(t, 6, res.Connector.(*connector.Memory).Len("account"))
}
