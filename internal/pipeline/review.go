package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wcgan7/agentctl/internal/task"
)

// reviewOutcome is the result of running the embedded review loop to
// completion (approved, attempts exhausted, or a fix/verify step blocking).
type reviewOutcome struct {
	Task         task.Task
	Steps        []task.StepOutcome
	ReviewCycles []task.ReviewCycle
}

// runReviewLoop implements spec §4.5. firstResult is the StepResult already
// produced by the initial "review" invocation in Engine.Run; findings are
// expected in firstResult.Artifacts["findings"].
func (e *Engine) runReviewLoop(ctx context.Context, t task.Task, reviewStep StepDef, projectDir string, previousResults map[string]any, firstResult StepResult) reviewOutcome {
	out := reviewOutcome{Task: t}
	result := firstResult

	for {
		findings := extractFindings(result.Artifacts)
		for i := range findings {
			findings[i].Status = task.FindingOpen
		}

		decision, openCounts := task.EvaluateGate(findings, out.Task.QualityGate, result.Status == "blocked")

		cycle := task.ReviewCycle{
			ID:         uuid.NewString(),
			TaskID:     out.Task.ID,
			Attempt:    out.Task.ReviewGenAttempts + 1,
			Findings:   findings,
			OpenCounts: openCounts,
			Decision:   decision,
			CreatedAt:  time.Now().UTC(),
			UpdatedAt:  time.Now().UTC(),
		}
		out.ReviewCycles = append(out.ReviewCycles, cycle)

		if decision == task.DecisionApproved {
			out.Task = task.Reduce(out.Task, task.EventReviewApproved, e.Caps)
			return out
		}

		out.Task.Metadata.ReviewFindings = openFindingsOf(findings)
		out.Task = task.Reduce(out.Task, task.EventReviewChangesNeeded, e.Caps)
		if out.Task.Status == task.StatusBlocked {
			out.Steps = append(out.Steps, task.StepOutcome{
				Step: "review", Status: "blocked", Timestamp: time.Now().UTC(),
				Summary: "review loop exhausted max attempts without approval", OpenCounts: openCounts,
			})
			return out
		}

		fixRes := e.executeWithRetry(ctx, out.Task, StepDef{Name: "implement_fix", TimeoutSeconds: reviewStep.TimeoutSeconds, RetryLimit: reviewStep.RetryLimit}, projectDir, previousResults)
		out.Steps = append(out.Steps, task.StepOutcome{Step: "implement_fix", Status: fixRes.Status, Timestamp: time.Now().UTC(), Summary: fixRes.Summary})
		if fixRes.Status == "blocked" || fixRes.Status == "failed" {
			out.Task = task.Reduce(out.Task, fixRes.Event, e.Caps)
			if out.Task.Status != task.StatusBlocked {
				out.Task.Status = task.StatusBlocked
				out.Task.Error = fmt.Sprintf("implement_fix step failed: %s", fixRes.Summary)
				out.Task.ErrorType = "codex_exit"
			}
			return out
		}
		previousResults["implement_fix"] = fixRes.Artifacts

		verifyRes := e.executeWithRetry(ctx, out.Task, StepDef{Name: "verify", TimeoutSeconds: reviewStep.TimeoutSeconds, RetryLimit: reviewStep.RetryLimit}, projectDir, previousResults)
		out.Steps = append(out.Steps, task.StepOutcome{Step: "verify", Status: verifyRes.Status, Timestamp: time.Now().UTC(), Summary: verifyRes.Summary})
		if verifyRes.Status == "blocked" || verifyRes.Status == "failed" {
			out.Task = task.Reduce(out.Task, verifyRes.Event, e.Caps)
			if out.Task.Status != task.StatusBlocked {
				out.Task.Status = task.StatusBlocked
				out.Task.Error = fmt.Sprintf("verify step failed: %s", verifyRes.Summary)
				out.Task.ErrorType = "test_timeout"
			}
			return out
		}
		previousResults["verify"] = verifyRes.Artifacts

		result = e.Executor.Execute(ctx, out.Task, "review", projectDir, previousResults)
		out.Steps = append(out.Steps, task.StepOutcome{Step: "review", Status: result.Status, Timestamp: time.Now().UTC(), Summary: result.Summary})
	}
}

// extractFindings reads the "findings" artifact the review step's executor
// is expected to populate.
func extractFindings(artifacts map[string]any) []task.ReviewFinding {
	raw, ok := artifacts["findings"]
	if !ok {
		return nil
	}
	findings, ok := raw.([]task.ReviewFinding)
	if !ok {
		return nil
	}
	return findings
}

func openFindingsOf(findings []task.ReviewFinding) []task.ReviewFinding {
	var open []task.ReviewFinding
	for _, f := range findings {
		if f.Status == task.FindingOpen {
			open = append(open, f)
		}
	}
	return open
}
