package pipeline

import (
	"context"
	"time"

	"github.com/wcgan7/agentctl/internal/task"
)

// StepResult is what a StepExecutor returns for one step invocation: the
// data the engine needs to record a StepOutcome, decide the FSM event, and
// populate previous_results for downstream conditions.
type StepResult struct {
	Status       string // "success", "skipped", "blocked", "failed"
	Event        task.EventKind
	Summary      string
	ChangedFiles []string
	Artifacts    map[string]any
	Commit       string
	Err          error
}

// StepExecutor invokes one concrete pipeline step (plan, implement, verify,
// review, commit, ...) against a task running in projectDir, using prior
// step results as prompt context. Implementations wrap internal/worker's
// supervisor + classifier for worker-backed steps, and do the step's own
// thing (git commit, report generation, dependency-analyzer call) for
// steps that are not a worker invocation.
type StepExecutor interface {
	Execute(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult
}

// GateWaiter polls task.PendingGate until cleared, the task is cancelled, or
// timeout elapses (spec §4.4 step 2, §5 "Suspension points").
type GateWaiter interface {
	// WaitForGate blocks until the gate clears (returns true) or timeout /
	// cancellation (returns false).
	WaitForGate(ctx context.Context, taskID, gate string, timeout time.Duration) bool
}
