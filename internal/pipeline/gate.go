package pipeline

import (
	"context"
	"time"

	"github.com/wcgan7/agentctl/internal/store"
	"github.com/wcgan7/agentctl/internal/task"
)

const defaultGatePollInterval = 3 * time.Second

// TaskGateWaiter is the production GateWaiter (spec.md §4.4 step 2,
// "Suspension points"). It persists the pending gate onto the task record,
// where any process that mutates the Tasks collection can see and clear it
// (the waiter receives no direct signal), then polls
// the same record until the gate clears, the task is cancelled out from
// under it, or timeout elapses.
type TaskGateWaiter struct {
	Tasks        *store.TaskRepository
	PollInterval time.Duration
}

// NewTaskGateWaiter constructs a TaskGateWaiter polling every
// defaultGatePollInterval.
func NewTaskGateWaiter(tasks *store.TaskRepository) *TaskGateWaiter {
	return &TaskGateWaiter{Tasks: tasks, PollInterval: defaultGatePollInterval}
}

var _ GateWaiter = (*TaskGateWaiter)(nil)

// WaitForGate implements GateWaiter.
func (w *TaskGateWaiter) WaitForGate(ctx context.Context, taskID, gate string, timeout time.Duration) bool {
	if err := w.Tasks.Mutate(func(items []task.Task) ([]task.Task, error) {
		for i := range items {
			if items[i].ID == taskID {
				items[i].PendingGate = gate
			}
		}
		return items, nil
	}); err != nil {
		return false
	}

	interval := w.PollInterval
	if interval <= 0 {
		interval = defaultGatePollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-ticker.C:
			t, ok, err := w.Tasks.Get(taskID)
			if err != nil || !ok {
				continue
			}
			if t.Status == task.StatusCancelled {
				return false
			}
			if t.PendingGate == "" {
				return true
			}
		}
	}
}
