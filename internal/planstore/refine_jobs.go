package planstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wcgan7/agentctl/internal/store"
	"github.com/wcgan7/agentctl/internal/task"
)

// RefineJobStore wraps a Collection[task.PlanRefineJob], enforcing spec.md
// §5's concurrency rule: at most one queued|running plan-refine job per
// task, checked under the same lock span the enqueue write uses.
type RefineJobStore struct {
	*store.Collection[task.PlanRefineJob]
}

// NewRefineJobStore opens the plan_refine_jobs collection at path.
func NewRefineJobStore(path string) (*RefineJobStore, error) {
	col, err := store.NewCollection[task.PlanRefineJob](path, "plan_refine_jobs")
	if err != nil {
		return nil, err
	}
	return &RefineJobStore{Collection: col}, nil
}

// ErrRefineJobInFlight is returned by Enqueue when taskID already has a
// queued or running refine job.
var ErrRefineJobInFlight = fmt.Errorf("planstore: task already has a queued or running plan-refine job")

// Enqueue creates a new queued PlanRefineJob for taskID against baseRevisionID
// with the given human feedback, refusing if one is already
// queued|running for the same task (spec.md §5).
func (s *RefineJobStore) Enqueue(taskID, baseRevisionID, feedback string) (task.PlanRefineJob, error) {
	job := task.PlanRefineJob{
		ID:             uuid.NewString(),
		TaskID:         taskID,
		BaseRevisionID: baseRevisionID,
		Feedback:       feedback,
		Status:         task.RefineQueued,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	var created task.PlanRefineJob
	var conflict bool
	err := s.Mutate(func(items []task.PlanRefineJob) ([]task.PlanRefineJob, error) {
		for _, j := range items {
			if j.TaskID == taskID && (j.Status == task.RefineQueued || j.Status == task.RefineRunning) {
				conflict = true
				return items, nil
			}
		}
		created = job
		return append(items, job), nil
	})
	if err != nil {
		return task.PlanRefineJob{}, err
	}
	if conflict {
		return task.PlanRefineJob{}, ErrRefineJobInFlight
	}
	return created, nil
}

// ClaimNext atomically selects the oldest queued job and flips it to
// running, mirroring store.TaskRepository.ClaimNextRunnable's
// claim-under-lock pattern.
func (s *RefineJobStore) ClaimNext() (job task.PlanRefineJob, ok bool, err error) {
	err = s.Mutate(func(items []task.PlanRefineJob) ([]task.PlanRefineJob, error) {
		idx := -1
		for i, j := range items {
			if j.Status != task.RefineQueued {
				continue
			}
			if idx == -1 || j.CreatedAt.Before(items[idx].CreatedAt) {
				idx = i
			}
		}
		if idx == -1 {
			return items, nil
		}
		items[idx].Status = task.RefineRunning
		items[idx].UpdatedAt = time.Now().UTC()
		job = items[idx]
		ok = true
		return items, nil
	})
	return job, ok, err
}

// Complete marks jobID completed and records the resulting revision id.
func (s *RefineJobStore) Complete(jobID, resultRevisionID string) error {
	return s.Mutate(func(items []task.PlanRefineJob) ([]task.PlanRefineJob, error) {
		for i := range items {
			if items[i].ID == jobID {
				items[i].Status = task.RefineCompleted
				items[i].ResultRevisionID = resultRevisionID
				items[i].UpdatedAt = time.Now().UTC()
			}
		}
		return items, nil
	})
}

// Fail marks jobID failed with the given error message.
func (s *RefineJobStore) Fail(jobID, errMsg string) error {
	return s.Mutate(func(items []task.PlanRefineJob) ([]task.PlanRefineJob, error) {
		for i := range items {
			if items[i].ID == jobID {
				items[i].Status = task.RefineFailed
				items[i].Error = errMsg
				items[i].UpdatedAt = time.Now().UTC()
			}
		}
		return items, nil
	})
}

// ForTask returns every refine job recorded for taskID.
func (s *RefineJobStore) ForTask(taskID string) ([]task.PlanRefineJob, error) {
	items, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []task.PlanRefineJob
	for _, j := range items {
		if j.TaskID == taskID {
			out = append(out, j)
		}
	}
	return out, nil
}
