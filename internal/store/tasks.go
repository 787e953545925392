package store

import (
	"sort"

	"github.com/wcgan7/agentctl/internal/task"
)

// TaskRepository wraps a Collection[task.Task] with the one operation that
// needs a cross-item view of the collection: ClaimNextRunnable.
type TaskRepository struct {
	*Collection[task.Task]
}

// NewTaskRepository opens the tasks collection at path.
func NewTaskRepository(path string) (*TaskRepository, error) {
	col, err := NewCollection[task.Task](path, "tasks")
	if err != nil {
		return nil, err
	}
	return &TaskRepository{Collection: col}, nil
}

// CountInProgress returns the number of tasks currently in_progress.
func (r *TaskRepository) CountInProgress() (int, error) {
	items, err := r.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range items {
		if t.Status == task.StatusInProgress {
			n++
		}
	}
	return n, nil
}

// ClaimNextRunnable selects the highest-priority runnable task (ready,
// pending_gate empty, all blockers terminal) and atomically flips it to
// in_progress, all within one locked read-modify-write span
// (spec.md §4.1). Priority order is P0<P1<P2<P3, then retry_count
// ascending, then created_at ascending — the literal ordering from
// original_source/.../file_repos.py _priority_rank.
//
// Returns ok=false (no error) if maxInProgress is already reached or no
// task is runnable.
func (r *TaskRepository) ClaimNextRunnable(maxInProgress int) (claimed task.Task, ok bool, err error) {
	err = r.Mutate(func(items []task.Task) ([]task.Task, error) {
		inProgress := 0
		byID := make(map[string]task.Task, len(items))
		for _, t := range items {
			byID[t.ID] = t
			if t.Status == task.StatusInProgress {
				inProgress++
			}
		}
		if inProgress >= maxInProgress {
			return items, nil
		}

		var candidates []int
		for i, t := range items {
			if t.IsRunnable(byID) {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return items, nil
		}

		sort.Slice(candidates, func(a, b int) bool {
			ta, tb := items[candidates[a]], items[candidates[b]]
			if ta.Priority.Rank() != tb.Priority.Rank() {
				return ta.Priority.Rank() < tb.Priority.Rank()
			}
			if ta.RetryCount != tb.RetryCount {
				return ta.RetryCount < tb.RetryCount
			}
			return ta.CreatedAt.Before(tb.CreatedAt)
		})

		idx := candidates[0]
		items[idx].Status = task.StatusInProgress
		claimed = items[idx]
		ok = true
		return items, nil
	})
	return claimed, ok, err
}
