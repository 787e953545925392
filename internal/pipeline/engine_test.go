package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wcgan7/agentctl/internal/task"
)

type stubExecutor struct {
	results map[string]StepResult
}

func (s *stubExecutor) Execute(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult {
	if r, ok := s.results[stepName]; ok {
		return r
	}
	return StepResult{Status: "success", Event: task.EventWorkerSucceeded}
}

type stubGate struct{}

func (stubGate) WaitForGate(ctx context.Context, taskID, gate string, timeout time.Duration) bool {
	return true
}

func TestEngine_HappyFeaturePath(t *testing.T) {
	exec := &stubExecutor{results: map[string]StepResult{}}
	e := NewEngine(exec, stubGate{})

	tk := task.Task{
		ID:           "t1",
		Title:        "Add endpoint",
		Type:         task.TypeFeature,
		Priority:     task.PriorityP2,
		ApprovalMode: task.ApprovalAutoApprove,
		HITLMode:     task.HITLAutopilot,
	}

	out := e.Run(context.Background(), tk, "/tmp/project")

	require.NotEqual(t, task.StatusBlocked, out.Task.Status)
	assert.Equal(t, task.StatusDone, out.Task.Status)

	var names []string
	for _, s := range out.Steps {
		names = append(names, s.Step)
	}
	assert.Equal(t, []string{"plan", "plan_impl", "implement", "verify", "review", "commit"}, names)
}

func TestEngine_ConditionSkipsStep(t *testing.T) {
	exec := &stubExecutor{results: map[string]StepResult{}}
	e := NewEngine(exec, stubGate{})
	tpl := steps("implement", "verify")
	tpl[1].Condition = `task_type == "skip_me"`

	origResolve := builtinTemplates[task.TypeChore]
	builtinTemplates[task.TypeChore] = tpl
	defer func() { builtinTemplates[task.TypeChore] = origResolve }()

	tk := task.Task{ID: "t2", Type: task.TypeChore, ApprovalMode: task.ApprovalAutoApprove, HITLMode: task.HITLAutopilot}
	out := e.Run(context.Background(), tk, "/tmp/project")

	require.Len(t, out.Steps, 2)
	assert.Equal(t, "implement", out.Steps[0].Step)
	assert.Equal(t, "skipped", out.Steps[1].Status)
}

func TestEngine_WorkerFailureBlocksAfterMaxAttempts(t *testing.T) {
	exec := &stubExecutor{results: map[string]StepResult{
		"implement": {Status: "failed", Event: task.EventWorkerFailed, Summary: "boom"},
	}}
	e := NewEngine(exec, stubGate{})
	e.Caps.MaxWorkerAttempts = 2

	tk := task.Task{ID: "t3", Type: task.TypeChore, ApprovalMode: task.ApprovalAutoApprove, HITLMode: task.HITLAutopilot}
	out := e.Run(context.Background(), tk, "/tmp/project")

	assert.Equal(t, task.StatusBlocked, out.Task.Status)
	assert.Equal(t, "codex_exit", out.Task.ErrorType)
}

func TestEngine_ReviewApprovedAdvancesToCommit(t *testing.T) {
	exec := &stubExecutor{results: map[string]StepResult{
		"review": {Status: "success", Event: task.EventWorkerSucceeded, Artifacts: map[string]any{"findings": []task.ReviewFinding{}}},
	}}
	e := NewEngine(exec, stubGate{})
	tk := task.Task{ID: "t4", Type: task.TypeChore, ApprovalMode: task.ApprovalAutoApprove, HITLMode: task.HITLAutopilot}
	origTpl := builtinTemplates[task.TypeChore]
	builtinTemplates[task.TypeChore] = steps("review", "commit")
	defer func() { builtinTemplates[task.TypeChore] = origTpl }()

	out := e.Run(context.Background(), tk, "/tmp/project")
	assert.Equal(t, task.StatusDone, out.Task.Status)
	require.Len(t, out.ReviewCycles, 1)
	assert.Equal(t, task.DecisionApproved, out.ReviewCycles[0].Decision)
}

func TestEngine_ReviewChangesNeededRunsFixAndReReviews(t *testing.T) {
	reviewCall := 0
	calls := []string{}
	e := &Engine{Gate: stubGate{}, Caps: task.DefaultCaps()}
	e.Executor = executorFunc(func(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult {
		calls = append(calls, stepName)
		if stepName == "review" {
			reviewCall++
			if reviewCall == 1 {
				return StepResult{Status: "success", Artifacts: map[string]any{"findings": []task.ReviewFinding{
					{Severity: task.SeverityCritical, Summary: "bug", Status: task.FindingOpen},
				}}}
			}
			return StepResult{Status: "success", Artifacts: map[string]any{"findings": []task.ReviewFinding{}}}
		}
		return StepResult{Status: "success", Event: task.EventWorkerSucceeded}
	})

	tk := task.Task{ID: "t5", Type: task.TypeChore, ApprovalMode: task.ApprovalAutoApprove, HITLMode: task.HITLAutopilot}
	origTpl := builtinTemplates[task.TypeChore]
	builtinTemplates[task.TypeChore] = steps("review", "commit")
	defer func() { builtinTemplates[task.TypeChore] = origTpl }()

	out := e.Run(context.Background(), tk, "/tmp/project")
	assert.Equal(t, task.StatusDone, out.Task.Status)
	assert.Contains(t, calls, "implement_fix")
	assert.Contains(t, calls, "verify")
	require.Len(t, out.ReviewCycles, 2)
	assert.Equal(t, task.DecisionChangesRequested, out.ReviewCycles[0].Decision)
	assert.Equal(t, task.DecisionApproved, out.ReviewCycles[1].Decision)
}

type executorFunc func(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult

func (f executorFunc) Execute(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult {
	return f(ctx, t, stepName, projectDir, previousResults)
}
