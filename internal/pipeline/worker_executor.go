package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wcgan7/agentctl/internal/config"
	"github.com/wcgan7/agentctl/internal/git"
	"github.com/wcgan7/agentctl/internal/gitwt"
	"github.com/wcgan7/agentctl/internal/jsonutil"
	"github.com/wcgan7/agentctl/internal/review"
	"github.com/wcgan7/agentctl/internal/task"
	"github.com/wcgan7/agentctl/internal/worker"
)

// Default heartbeat parameters for worker-backed steps. Spec.md §6 leaves
// these to the operator rather than fixing them in config.yaml's schema;
// these are the WorkerExecutor's built-in defaults, overridable per
// instance.
const (
	defaultHeartbeatInterval = 2 * time.Minute
	defaultHeartbeatGrace    = 5 * time.Minute
)

// WorkerExecutor is the concrete StepExecutor (spec.md §4.4 step 3 "Execute")
// bridging internal/config's provider routing, internal/worker's
// supervisor/dispatch/classifier, and the git/gitwt packages' commit and
// change-detection primitives.
type WorkerExecutor struct {
	Workers  config.WorkersConfig
	Defaults config.DefaultsConfig

	// ProjectLanguage selects the entry of Defaults.Languages the verify step
	// runs (config.Config.Project.Language).
	ProjectLanguage string

	// StateRoot is where per-run artifacts (prompt.txt, stdout.log, ...) are
	// written, independent of the task's worktree (spec.md §6 "runs/<run_id>/").
	StateRoot string

	Breakers   *worker.BreakerSet
	RateLimits *worker.RateLimitCoordinator

	Prompts      *PromptGenerator
	Capabilities *CapabilityDetector
	Git          *gitwt.Manager

	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration

	Logger *log.Logger
}

// NewWorkerExecutor constructs a WorkerExecutor with the given routing
// config and default heartbeat parameters. gitManager may be nil when the
// project is not under git (spec.md §4.6 step 1: "If no git, run in the
// project_dir directly" — the commit step then becomes a no-op success).
func NewWorkerExecutor(workers config.WorkersConfig, defaults config.DefaultsConfig, projectLanguage, stateRoot string, gitManager *gitwt.Manager) *WorkerExecutor {
	return &WorkerExecutor{
		Workers:           workers,
		Defaults:          defaults,
		ProjectLanguage:   projectLanguage,
		StateRoot:         stateRoot,
		Breakers:          worker.NewBreakerSet(),
		RateLimits:        worker.NewRateLimitCoordinator(worker.DefaultBackoffConfig()),
		Prompts:           mustDefaultPromptGenerator(),
		Capabilities:      NewCapabilityDetector(),
		Git:               gitManager,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatGrace:    defaultHeartbeatGrace,
	}
}

func mustDefaultPromptGenerator() *PromptGenerator {
	pg, err := NewPromptGenerator("")
	if err != nil {
		// NewPromptGenerator("") only fails on a malformed built-in template,
		// which is a compile-time constant checked by prompt_test.go.
		panic(err)
	}
	return pg
}

var _ StepExecutor = (*WorkerExecutor)(nil)

// Execute implements StepExecutor. "commit" and "verify" are internal
// side-effects (spec.md's "Step adapter" row); every other step name
// dispatches a worker (spec.md §4.3).
func (e *WorkerExecutor) Execute(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult {
	switch stepName {
	case "commit":
		return e.executeCommit(ctx, t, projectDir)
	case "verify":
		return e.executeVerify(ctx, t, projectDir)
	default:
		return e.executeWorkerStep(ctx, t, stepName, projectDir, previousResults)
	}
}

// executeCommit commits the worktree's changes (spec.md §4.9
// "Commit-in-worktree"). With no git manager configured the step succeeds
// without effect.
func (e *WorkerExecutor) executeCommit(ctx context.Context, t task.Task, projectDir string) StepResult {
	if e.Git == nil {
		return StepResult{Status: "success", Event: task.EventWorkerSucceeded, Summary: "no git repository; nothing to commit"}
	}
	sha, err := e.Git.CommitTask(ctx, projectDir, t.ID, t.Title)
	if err != nil {
		return StepResult{Status: "failed", Event: task.EventWorkerFailed, Summary: err.Error(), Err: err}
	}
	return StepResult{
		Status:  "success",
		Event:   task.EventWorkerSucceeded,
		Summary: fmt.Sprintf("committed %s", sha),
		Commit:  sha,
	}
}

// executeVerify runs the project's configured test/lint/typecheck commands
// (spec.md's "Step adapter": "internal test-command invocation").
func (e *WorkerExecutor) executeVerify(ctx context.Context, t task.Task, projectDir string) StepResult {
	lang := e.Defaults.Languages[e.languageFor(t)]
	var commands []string
	for _, c := range []string{lang.Test, lang.Lint, lang.Typecheck} {
		if strings.TrimSpace(c) != "" {
			commands = append(commands, c)
		}
	}
	if len(commands) == 0 {
		return StepResult{Status: "success", Event: task.EventVerificationSucceeded, Summary: "no verification commands configured"}
	}

	runner := review.NewVerificationRunner(commands, projectDir, 10*time.Minute, e.Logger)
	report, err := runner.Run(ctx, false)
	if err != nil {
		return StepResult{Status: "failed", Event: task.EventVerificationFailed, Summary: err.Error(), Err: err}
	}

	artifacts := map[string]any{"summary": fmt.Sprintf("%d/%d verification commands passed", report.Passed, report.Total)}
	if report.Status != review.VerificationPassed {
		return StepResult{Status: "failed", Event: task.EventVerificationFailed, Summary: failureSummary(report), Artifacts: artifacts}
	}
	return StepResult{Status: "success", Event: task.EventVerificationSucceeded, Summary: artifacts["summary"].(string), Artifacts: artifacts}
}

func failureSummary(report *review.VerificationReport) string {
	for _, r := range report.Results {
		if !r.Passed {
			tail := r.Stderr
			if tail == "" {
				tail = r.Stdout
			}
			return fmt.Sprintf("%q failed (exit %d): %s", r.Command, r.ExitCode, truncateTail(tail, 500))
		}
	}
	return "verification failed"
}

func truncateTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// languageFor resolves the language key used to look up per-language
// verification commands. Tasks do not carry their own language; the
// project's configured language applies uniformly.
func (e *WorkerExecutor) languageFor(t task.Task) string {
	return e.ProjectLanguage
}

// executeWorkerStep builds a prompt, resolves the provider, dispatches
// through the breaker, and classifies the outcome (spec.md §4.3, §4.4
// step 3, §6).
func (e *WorkerExecutor) executeWorkerStep(ctx context.Context, t task.Task, stepName string, projectDir string, previousResults map[string]any) StepResult {
	providerName, pc, ok := e.Workers.ResolveProvider(stepName)
	if !ok {
		return StepResult{Status: "failed", Event: task.EventWorkerFailed, Summary: fmt.Sprintf("no provider configured for step %q", stepName)}
	}

	runID := uuid.NewString()
	runDir := filepath.Join(e.StateRoot, "runs", runID)
	progressPath := filepath.Join(runDir, "progress.json")

	promptCtx := BuildStepPromptContext(t, stepName, projectDir, progressPath, runID, int(e.HeartbeatInterval.Seconds()), previousResults)
	prompt, err := e.Prompts.Generate(stepName, promptCtx)
	if err != nil {
		return StepResult{Status: "failed", Event: task.EventWorkerFailed, Summary: err.Error(), Err: err}
	}

	req := worker.Request{
		Provider:          providerName,
		Prompt:            prompt,
		ProjectDir:        projectDir,
		RunDir:            runDir,
		Timeout:           timeoutFor(t, stepName),
		HeartbeatInterval: e.HeartbeatInterval,
		HeartbeatGrace:    e.HeartbeatGrace,
		ProgressFilePath:  progressPath,
		ExpectedRunID:     runID,
	}

	if providerName == worker.ProviderOllama {
		req.Endpoint = pc.Endpoint
		req.Model = pc.Model
		req.Temperature = pc.Temperature
		req.NumCtx = pc.NumCtx
	} else {
		req.CommandTemplate = e.withCapabilityFlags(ctx, providerName, pc)
	}

	if e.RateLimits != nil {
		if err := e.RateLimits.WaitForReset(ctx, providerName); err != nil {
			return StepResult{Status: "failed", Event: task.EventRateLimited, Summary: err.Error(), Err: err}
		}
	}

	res, err := e.Breakers.Run(ctx, providerName, func(ctx context.Context) (*worker.Result, error) {
		return worker.Dispatch(ctx, req)
	})
	if err != nil {
		return StepResult{Status: "failed", Event: task.EventWorkerFailed, Summary: err.Error(), Err: err}
	}

	changed := e.changedFilesSince(ctx, projectDir)
	if violating, ok := pipelineAllowlistOK(changed, t.AllowedFiles, t.DisallowedFiles); !ok {
		return StepResult{
			Status: "failed", Event: task.EventAllowlistViolation,
			Summary: fmt.Sprintf("worker modified disallowed file %q", violating), ChangedFiles: changed,
		}
	}

	outcome, err := worker.Classify(res, changeProbeFor(stepName, res, changed))
	if err != nil {
		return StepResult{Status: "failed", Event: task.EventWorkerFailed, Summary: err.Error(), Err: err}
	}

	if e.RateLimits != nil {
		if outcome == worker.OutcomeRateLimited {
			info, _ := worker.ParseRateLimit(res.ResponseText)
			e.RateLimits.RecordRateLimit(providerName, info)
		} else if outcome == worker.OutcomeSucceeded {
			e.RateLimits.ClearRateLimit(providerName)
		}
	}

	return e.buildResult(stepName, outcome, res, changed)
}

// withCapabilityFlags appends --model / --reasoning-effort / --effort to
// pc.CommandTemplate when the provider's base command advertises the flag
// via --help (spec.md §6 "Worker command contract").
func (e *WorkerExecutor) withCapabilityFlags(ctx context.Context, providerName string, pc config.ProviderConfig) string {
	base := pc.CommandTemplate
	fields := strings.Fields(base)
	if len(fields) == 0 {
		return base
	}
	baseCmd := fields[0]

	var extra []string
	if pc.Model != "" && e.Capabilities.Supports(ctx, baseCmd, "--model") {
		extra = append(extra, "--model", pc.Model)
	}
	switch providerName {
	case worker.ProviderCodex:
		if pc.ReasoningEffort != "" && e.Capabilities.Supports(ctx, baseCmd, "--reasoning-effort") {
			extra = append(extra, "--reasoning-effort", pc.ReasoningEffort)
		}
	case worker.ProviderClaude:
		if pc.Effort != "" && e.Capabilities.Supports(ctx, baseCmd, "--effort") {
			extra = append(extra, "--effort", pc.Effort)
		}
	}
	if len(extra) == 0 {
		return base
	}
	return base + " " + strings.Join(extra, " ")
}

// changedFilesSince returns the working-tree file paths changed in
// projectDir, or nil when projectDir is not a git repository.
func (e *WorkerExecutor) changedFilesSince(ctx context.Context, projectDir string) []string {
	client, err := git.NewGitClient(projectDir)
	if err != nil {
		return nil
	}
	files, err := client.ChangedFiles(ctx)
	if err != nil {
		return nil
	}
	return files
}

func pipelineAllowlistOK(changed, allowed, disallowed []string) (string, bool) {
	if len(allowed) == 0 && len(disallowed) == 0 {
		return "", true
	}
	return CheckAllowlist(changed, allowed, disallowed)
}

// changeProbeFor builds the worker.ChangeProbe worker.Classify uses to
// detect a worker that exited 0 having produced nothing (spec.md §4.3 /
// §7 "plan_missing": "Plan step produced no plan document"). Plan steps are
// judged by their response text; implement steps are judged by whether they
// touched any tracked file.
func changeProbeFor(stepName string, res *worker.Result, changed []string) worker.ChangeProbe {
	switch stepName {
	case "plan", "plan_impl":
		return func() (bool, error) {
			return strings.TrimSpace(res.ResponseText) != "", nil
		}
	case "implement", "implement_fix":
		return func() (bool, error) {
			return len(changed) > 0, nil
		}
	default:
		return nil
	}
}

// buildResult maps a worker.Outcome onto a StepResult, parsing the
// provider's structured JSON output into the artifacts downstream steps and
// the review loop expect (spec.md §4.3 step 7 / §4.5 step 1).
func (e *WorkerExecutor) buildResult(stepName string, outcome worker.Outcome, res *worker.Result, changed []string) StepResult {
	artifacts := map[string]any{}
	var decoded map[string]any
	if err := jsonutil.ExtractInto(res.ResponseText, &decoded); err == nil {
		for k, v := range decoded {
			artifacts[k] = v
		}
	}
	if stepName == "review" {
		artifacts["findings"] = parseFindings(res.ResponseText)
	}
	if artifacts["summary"] == nil {
		artifacts["summary"] = summaryFromResponse(res.ResponseText)
	}

	base := StepResult{ChangedFiles: changed, Artifacts: artifacts}

	switch outcome {
	case worker.OutcomeSucceeded:
		base.Status = "success"
		base.Event = task.EventWorkerSucceeded
		base.Summary = summaryString(artifacts["summary"])
		return base
	case worker.OutcomeHumanBlocked:
		base.Status = "blocked"
		base.Event = task.EventHumanBlockers
		base.Summary = "worker reported human-blocking issues"
		return base
	case worker.OutcomeHeartbeatTimeout:
		base.Status = "failed"
		base.Event = task.EventHeartbeatTimeout
		base.Summary = "worker produced no heartbeat within grace"
		return base
	case worker.OutcomeShiftTimeout:
		base.Status = "failed"
		base.Event = task.EventShiftTimeout
		base.Summary = "worker exceeded wall-clock timeout"
		return base
	case worker.OutcomeRateLimited:
		base.Status = "failed"
		base.Event = task.EventRateLimited
		base.Summary = "worker provider reported a rate limit"
		return base
	case worker.OutcomeNonZeroExit:
		base.Status = "failed"
		base.Event = task.EventWorkerFailed
		base.Summary = "worker exited non-zero"
		return base
	case worker.OutcomeNoIntroducedChange:
		base.Status = "failed"
		base.Event = task.EventNoIntroducedChanges
		base.Summary = "worker made no introduced changes"
		return base
	default:
		base.Status = "failed"
		base.Event = task.EventWorkerFailed
		base.Summary = fmt.Sprintf("unrecognized worker outcome %q", outcome)
		return base
	}
}

// summaryString coerces an artifact value of unknown type (the worker's
// structured output is caller-controlled JSON) into a display string without
// risking a type-assertion panic.
func summaryString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func summaryFromResponse(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "worker produced no output"
	}
	const maxLen = 200
	if len(text) > maxLen {
		return text[:maxLen] + "..."
	}
	return text
}

func parseFindings(text string) []task.ReviewFinding {
	var payload struct {
		Findings []task.ReviewFinding `json:"findings"`
	}
	if err := jsonutil.ExtractInto(text, &payload); err != nil {
		return nil
	}
	return payload.Findings
}

// timeoutFor resolves the step's timeout from the task's pipeline template
// (spec.md §4.4 StepDef.timeout_seconds), falling back to
// defaultTimeoutSeconds for a step name not present in the resolved
// template (e.g. the review loop's synthetic "implement_fix" invocation).
func timeoutFor(t task.Task, stepName string) time.Duration {
	tpl := Resolve(t)
	for _, sd := range tpl {
		if sd.Name == stepName {
			return time.Duration(sd.TimeoutSeconds) * time.Second
		}
	}
	return time.Duration(defaultTimeoutSeconds) * time.Second
}
