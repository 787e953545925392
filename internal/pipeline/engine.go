package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wcgan7/agentctl/internal/task"
)

// Engine walks a task's resolved step template end to end (spec §4.4),
// embedding the review loop (spec §4.5) whenever the template contains a
// review step.
type Engine struct {
	Executor StepExecutor
	Gate     GateWaiter
	Caps     task.Caps
	Logger   *log.Logger
}

// NewEngine constructs an Engine with default caps.
func NewEngine(executor StepExecutor, gate GateWaiter) *Engine {
	return &Engine{Executor: executor, Gate: gate, Caps: task.DefaultCaps()}
}

// Outcome is the result of walking a task's template to completion, a block,
// or a gate timeout.
type Outcome struct {
	Task     task.Task
	Steps    []task.StepOutcome
	ReviewCycles []task.ReviewCycle
}

// hitlRequiresGate reports whether mode requires stopping at gate (spec §4.4
// step 2). autopilot never stops; review_only only stops at the
// after_implement gate, checked before the review step runs; supervised and
// collaborative stop at every mapped gate.
func hitlRequiresGate(mode task.HITLMode, gate string) bool {
	switch mode {
	case task.HITLAutopilot:
		return false
	case task.HITLReviewOnly:
		return gate == task.GateAfterImplement
	default:
		return true
	}
}

// Run walks t's resolved template starting at t.CurrentStep (or the first
// step if empty), returning the task's final state and the recorded step
// outcomes.
func (e *Engine) Run(ctx context.Context, t task.Task, projectDir string) Outcome {
	tpl := Resolve(t)
	names := tpl.Names()

	startIdx := 0
	if t.CurrentStep != "" {
		for i, n := range names {
			if n == t.CurrentStep {
				startIdx = i
				break
			}
		}
	}

	out := Outcome{Task: t}
	previousResults := map[string]any{}

	for idx := startIdx; idx < len(tpl); idx++ {
		sd := tpl[idx]

		if ctx.Err() != nil {
			out.Task.CurrentStep = sd.Name
			return out
		}

		ns := buildNamespace(out.Task, sd.Config, previousResults)
		if !EvalCondition(sd.Condition, ns) {
			out.Steps = append(out.Steps, task.StepOutcome{Step: sd.Name, Status: "skipped", Timestamp: time.Now().UTC()})
			continue
		}

		if gate, hasGate := gateForStep(sd.Name); hasGate && hitlRequiresGate(out.Task.HITLMode, gate) {
			out.Task.PendingGate = gate
			cleared := e.Gate.WaitForGate(ctx, out.Task.ID, gate, defaultGateWaitTimeout)
			if !cleared {
				out.Task.Status = task.StatusBlocked
				out.Task.Error = fmt.Sprintf("gate %q timed out or task cancelled", gate)
				out.Task.ErrorType = "invalid_step"
				return out
			}
			out.Task.PendingGate = ""
		}

		var res StepResult
		for {
			res = e.executeWithRetry(ctx, out.Task, sd, projectDir, previousResults)
			if res.Status != "blocked" && res.Status != "failed" {
				break
			}
			// Transient outcomes (heartbeat/shift timeout, non-transient worker
			// failure below its cap) are auto-resumed in-process: Reduce
			// advances attempt counters and either re-arms the same step or
			// escalates to blocked once its cap is hit.
			out.Task = task.Reduce(out.Task, res.Event, e.Caps)
			if out.Task.Status == task.StatusBlocked {
				out.Task.CurrentStep = sd.Name
				out.Steps = append(out.Steps, task.StepOutcome{
					Step: sd.Name, Status: "blocked", Timestamp: time.Now().UTC(), Summary: res.Summary,
				})
				return out
			}
		}
		previousResults[sd.Name] = res.Artifacts

		stepOut := task.StepOutcome{
			Step:      sd.Name,
			Status:    res.Status,
			Timestamp: time.Now().UTC(),
			Summary:   res.Summary,
			Commit:    res.Commit,
		}
		out.Steps = append(out.Steps, stepOut)

		if sd.Name == "review" {
			reviewOut := e.runReviewLoop(ctx, out.Task, sd, projectDir, previousResults, res)
			out.Task = reviewOut.Task
			out.Steps = append(out.Steps, reviewOut.Steps...)
			out.ReviewCycles = append(out.ReviewCycles, reviewOut.ReviewCycles...)
			if out.Task.Status == task.StatusBlocked {
				return out
			}
			out.Task.CurrentStep = advanceName(names, idx)
			continue
		}

		// Success/skipped bookkeeping is done directly here rather than via
		// task.Reduce: Reduce's generic stepOrder only recognizes the
		// canonical plan/plan_impl/implement/verify/review/commit names, not
		// every template's own step vocabulary (e.g. "reproduce",
		// "diagnose", "scan"), so advancement is driven by this template's
		// own index instead.
		out.Task.RetryCount = 0
		out.Task.NoProgressAttempts = 0
		out.Task.Error = ""
		out.Task.ErrorType = ""
		out.Task.CurrentStep = advanceName(names, idx)
	}

	finalizeTerminalTransition(&out.Task, tpl)
	return out
}

// advanceName returns the template's step name following idx, or "done" if
// idx was the last step.
func advanceName(names []string, idx int) string {
	if idx+1 < len(names) {
		return names[idx+1]
	}
	return "done"
}

// finalizeTerminalTransition applies spec §4.4's final transition rule once
// every step has advanced to "done": auto_approve -> done, human_review ->
// in_review, no commit step -> done directly.
func finalizeTerminalTransition(t *task.Task, tpl Template) {
	if t.Status == task.StatusBlocked {
		return
	}
	if !tpl.hasCommitStep() {
		t.Status = task.StatusDone
		t.CurrentStep = ""
		return
	}
	if t.ApprovalMode == task.ApprovalAutoApprove {
		t.Status = task.StatusDone
	} else {
		t.Status = task.StatusInReview
	}
	t.CurrentStep = ""
}

// executeWithRetry invokes the step up to sd.RetryLimit+1 times while it
// returns "failed" (spec §4.4 step 3: "Retry on failed up to retry_limit;
// treat blocked and success as terminal for this step").
func (e *Engine) executeWithRetry(ctx context.Context, t task.Task, sd StepDef, projectDir string, previousResults map[string]any) StepResult {
	var res StepResult
	for attempt := 0; attempt <= sd.RetryLimit; attempt++ {
		res = e.Executor.Execute(ctx, t, sd.Name, projectDir, previousResults)
		if res.Status != "failed" {
			return res
		}
		e.log("step failed, retrying", "step", sd.Name, "attempt", attempt)
	}
	return res
}

func (e *Engine) log(msg string, kvs ...any) {
	if e.Logger == nil {
		return
	}
	e.Logger.Warn(msg, kvs...)
}

// buildNamespace assembles the condition-evaluation namespace from task
// fields, step config, and the flat artifacts of previous steps (spec §4.4
// step 1).
func buildNamespace(t task.Task, stepConfig map[string]any, previousResults map[string]any) Namespace {
	ns := Namespace{
		"task_type":     string(t.Type),
		"priority":      string(t.Priority),
		"status":        string(t.Status),
		"retry_count":   t.RetryCount,
		"approval_mode": string(t.ApprovalMode),
		"hitl_mode":     string(t.HITLMode),
	}
	for k, v := range stepConfig {
		ns[k] = v
	}
	for _, artifacts := range previousResults {
		if m, ok := artifacts.(map[string]any); ok {
			for k, v := range m {
				ns[k] = v
			}
		}
	}
	return ns
}
