// Package planstore implements the plan-revision lineage and async
// plan-refine job queue (spec.md §3, §4.1, §5 "Plan-refine jobs: at most one
// queued|running job per task"). It layers on top of internal/store's
// generic Collection[T], the same way internal/store/tasks.go does for
// tasks.
package planstore

import (
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/wcgan7/agentctl/internal/store"
	"github.com/wcgan7/agentctl/internal/task"
)

// RevisionStore wraps a Collection[task.PlanRevision], enforcing that at
// most one revision per task carries Status=committed (spec.md §3 "Lineage
// forms a DAG via ParentRevisionID; at most one revision per task has
// Status=committed").
type RevisionStore struct {
	*store.Collection[task.PlanRevision]
}

// NewRevisionStore opens the plan_revisions collection at path.
func NewRevisionStore(path string) (*RevisionStore, error) {
	col, err := store.NewCollection[task.PlanRevision](path, "plan_revisions")
	if err != nil {
		return nil, err
	}
	return &RevisionStore{Collection: col}, nil
}

// ContentHash returns the xxhash64 of content, hex-encoded, used as
// PlanRevision.ContentHash. xxhash trades cryptographic strength (the
// original Python implementation used sha256) for speed on a value that is
// never used as a security boundary, only as a cheap equality/dedup check
// against the prior committed revision.
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

// Draft records a new draft revision for taskID, deriving its content hash
// and stamping CreatedAt. It does not touch the task's committed lineage.
func (s *RevisionStore) Draft(taskID string, source task.PlanSource, parentRevisionID, step, feedback, provider, model, content string) (task.PlanRevision, error) {
	rev := task.PlanRevision{
		ID:               uuid.NewString(),
		TaskID:           taskID,
		CreatedAt:        time.Now().UTC(),
		Source:           source,
		ParentRevisionID: parentRevisionID,
		Step:             step,
		FeedbackNote:     feedback,
		Provider:         provider,
		Model:            model,
		Content:          content,
		ContentHash:      ContentHash(content),
		Status:           task.PlanRevisionDraft,
	}
	if err := s.Upsert(rev); err != nil {
		return task.PlanRevision{}, err
	}
	return rev, nil
}

// Commit promotes revisionID to Status=committed, demoting any other
// committed revision belonging to the same task back to draft so the
// "at most one committed revision per task" invariant holds even under
// concurrent callers (spec.md §3).
func (s *RevisionStore) Commit(revisionID string) (task.PlanRevision, error) {
	var committed task.PlanRevision
	err := s.Mutate(func(items []task.PlanRevision) ([]task.PlanRevision, error) {
		idx := -1
		for i, r := range items {
			if r.ID == revisionID {
				idx = i
			}
		}
		if idx == -1 {
			return items, fmt.Errorf("planstore: revision %s not found", revisionID)
		}
		taskID := items[idx].TaskID
		for i := range items {
			if items[i].TaskID == taskID && items[i].Status == task.PlanRevisionCommitted {
				items[i].Status = task.PlanRevisionDraft
			}
		}
		items[idx].Status = task.PlanRevisionCommitted
		committed = items[idx]
		return items, nil
	})
	return committed, err
}

// Committed returns the current committed revision for taskID, if any.
func (s *RevisionStore) Committed(taskID string) (task.PlanRevision, bool, error) {
	items, err := s.List()
	if err != nil {
		return task.PlanRevision{}, false, err
	}
	for _, r := range items {
		if r.TaskID == taskID && r.Status == task.PlanRevisionCommitted {
			return r, true, nil
		}
	}
	return task.PlanRevision{}, false, nil
}

// Lineage walks ParentRevisionID links backward from revisionID to the
// root, returning the chain oldest-first.
func (s *RevisionStore) Lineage(revisionID string) ([]task.PlanRevision, error) {
	items, err := s.List()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]task.PlanRevision, len(items))
	for _, r := range items {
		byID[r.ID] = r
	}

	var chain []task.PlanRevision
	seen := make(map[string]bool)
	for id := revisionID; id != ""; {
		if seen[id] {
			return nil, fmt.Errorf("planstore: cycle detected in plan lineage at %s", id)
		}
		seen[id] = true
		rev, ok := byID[id]
		if !ok {
			break
		}
		chain = append(chain, rev)
		id = rev.ParentRevisionID
	}
	// reverse to oldest-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ForTask returns every revision recorded for taskID, newest first.
func (s *RevisionStore) ForTask(taskID string) ([]task.PlanRevision, error) {
	items, err := s.List()
	if err != nil {
		return nil, err
	}
	var out []task.PlanRevision
	for _, r := range items {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
