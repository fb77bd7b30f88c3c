// Package sched provides the trigger/cancel surface for reconciliation
// tasks: named runnables that can be fired once, put on an interval, and
// cancelled cooperatively.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Runner is one schedulable unit of work. Cancellation arrives through
// the context; runners observe it between records or tasks.
type Runner func(ctx context.Context) error

// Execution is a handle on one triggered run.
type Execution struct {
	Key  string
	Task string

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// Done is closed when the run finishes.
func (x *Execution) Done() <-chan struct{} { return x.done }

// Err returns the run's outcome; valid once Done is closed.
func (x *Execution) Err() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

// Wait blocks for completion and returns the run's outcome.
func (x *Execution) Wait() error {
	<-x.done
	return x.Err()
}

type taskState struct {
	runner     Runner
	cancel     context.CancelFunc
	stopTicker chan struct{}
}

// Scheduler owns registered tasks. Safe for concurrent use.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*taskState
	wg     sync.WaitGroup
	closed bool
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{tasks: make(map[string]*taskState)}
}

// Register adds a named task. Duplicate names are rejected.
func (s *Scheduler) Register(task string, runner Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("scheduler closed")
	}
	if _, dup := s.tasks[task]; dup {
		return fmt.Errorf("task %q already registered", task)
	}
	s.tasks[task] = &taskState{runner: runner}
	return nil
}

// Trigger fires one run of the task and returns its execution handle.
// The run is asynchronous; the runner itself decides whether concurrent
// executions are allowed.
func (s *Scheduler) Trigger(task string) (*Execution, error) {
	s.mu.Lock()
	st, ok := s.tasks[task]
	if !ok || s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown task %q", task)
	}
	ctx, cancel := context.WithCancel(context.Background())
	st.cancel = cancel
	s.mu.Unlock()

	x := &Execution{
		Key:  uuid.Must(uuid.NewV7()).String(),
		Task: task,
		done: make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		err := st.runner(ctx)
		x.mu.Lock()
		x.err = err
		x.mu.Unlock()
		close(x.done)
		if err != nil {
			slog.Warn("scheduled run failed", "task", task, "execution", x.Key, "error", err)
		}
	}()
	return x, nil
}

// Schedule fires the task on a fixed interval until Cancel or Close.
// Overlapping runs are prevented by the runner's own single-execution
// guard; a rejected trigger is logged, not retried.
func (s *Scheduler) Schedule(task string, every time.Duration) error {
	s.mu.Lock()
	st, ok := s.tasks[task]
	if !ok || s.closed {
		s.mu.Unlock()
		return fmt.Errorf("unknown task %q", task)
	}
	if st.stopTicker != nil {
		s.mu.Unlock()
		return fmt.Errorf("task %q already scheduled", task)
	}
	stop := make(chan struct{})
	st.stopTicker = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := s.Trigger(task); err != nil {
					slog.Warn("scheduled trigger rejected", "task", task, "error", err)
				}
			}
		}
	}()
	return nil
}

// Cancel stops the task's interval schedule and delivers a cooperative
// stop to a run in flight.
func (s *Scheduler) Cancel(task string) {
	s.mu.Lock()
	st, ok := s.tasks[task]
	if ok {
		if st.stopTicker != nil {
			close(st.stopTicker)
			st.stopTicker = nil
		}
		if st.cancel != nil {
			st.cancel()
		}
	}
	s.mu.Unlock()
}

// Close cancels everything and waits for in-flight runs to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.Cancel(name)
	}
	s.wg.Wait()
}
