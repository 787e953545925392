// Package orchestrator drives the main loop: startup recovery, claim and
// dispatch of runnable tasks, per-task pipeline execution inside a git
// worktree, and the optional dependency-analyzer sweep (spec.md §4.6).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/wcgan7/agentctl/internal/depgraph"
	"github.com/wcgan7/agentctl/internal/gitwt"
	"github.com/wcgan7/agentctl/internal/pipeline"
	"github.com/wcgan7/agentctl/internal/planstore"
	"github.com/wcgan7/agentctl/internal/store"
	"github.com/wcgan7/agentctl/internal/task"
)

// Repositories bundles one store per entity kind spec.md §4.1 names
// (tasks, runs, review_cycles, agents, quick_actions, plan_revisions,
// plan_refine_jobs). Tasks is required; the rest may be nil in tests that
// don't exercise the behavior backed by that collection.
type Repositories struct {
	Tasks          *store.TaskRepository
	Runs           *store.Collection[task.RunRecord]
	ReviewCycles   *store.Collection[task.ReviewCycle]
	Agents         *store.Collection[task.AgentRecord]
	QuickActions   *store.Collection[task.QuickAction]
	PlanRevisions  *planstore.RevisionStore
	PlanRefineJobs *planstore.RefineJobStore
}

// Config bounds the orchestrator's own behavior. It is populated from the
// ambient config.yaml's [orchestrator] section (config adaptation is
// tracked separately); the orchestrator itself depends only on these plain
// fields so it can be constructed and tested without the config package.
type Config struct {
	Concurrency   int
	AutoDeps      bool
	TickInterval  time.Duration
	DepSweepEvery time.Duration
	ProjectDir    string
}

// DefaultConfig returns conservative defaults (spec.md §5 default
// concurrency 3).
func DefaultConfig(projectDir string) Config {
	return Config{
		Concurrency:   3,
		AutoDeps:      false,
		TickInterval:  2 * time.Second,
		DepSweepEvery: 5 * time.Minute,
		ProjectDir:    projectDir,
	}
}

// StatusProvider reports whether the orchestrator should be actively
// claiming and running tasks (config.orchestrator.status == "running";
// spec.md §4.6 main loop step 2).
type StatusProvider interface {
	Running() bool
}

// AlwaysRunning is a StatusProvider that never idles, used by tests and by
// callers that don't yet wire a live config.
type AlwaysRunning struct{}

func (AlwaysRunning) Running() bool { return true }

// Analyzer is the subset of depgraph.Analyzer the orchestrator calls.
type Analyzer interface {
	Run(ctx context.Context, all []task.Task) ([]task.Task, depgraph.Result, error)
}

// Orchestrator owns the stores, pipeline engine, and worktree manager
// needed to claim and run tasks to completion.
type Orchestrator struct {
	Repositories

	Events   *store.EventLog
	Engine   *pipeline.Engine
	Worktree *gitwt.Manager
	Analyzer Analyzer
	Status   StatusProvider
	Config   Config
	Logger   *log.Logger
	Metrics  *Metrics

	pool *pool
}

// New wires an Orchestrator. pass nil for analyzer/status to disable
// dependency analysis / always treat the orchestrator as running; any
// Repositories field left nil disables the behavior backed by that
// collection (e.g. nil ReviewCycles means review cycles are computed but
// never persisted).
func New(repos Repositories, events *store.EventLog, engine *pipeline.Engine, wt *gitwt.Manager, analyzer Analyzer, status StatusProvider, cfg Config) *Orchestrator {
	if status == nil {
		status = AlwaysRunning{}
	}
	return &Orchestrator{
		Repositories: repos, Events: events, Engine: engine, Worktree: wt,
		Analyzer: analyzer, Status: status, Config: cfg,
		pool: newPool(cfg.Concurrency),
	}
}

// StartupRecovery implements spec.md §4.6 "Startup recovery". It must be
// called once before the main loop begins.
func (o *Orchestrator) StartupRecovery(ctx context.Context) error {
	if err := o.recoverInterruptedTasks(); err != nil {
		return fmt.Errorf("orchestrator: startup recovery: %w", err)
	}
	if o.Worktree != nil {
		for _, err := range o.Worktree.SweepOrphans(ctx) {
			o.log("startup recovery: worktree sweep error", "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) recoverInterruptedTasks() error {
	return o.Tasks.Mutate(func(items []task.Task) ([]task.Task, error) {
		for i, t := range items {
			if t.Status != task.StatusInProgress {
				continue
			}
			items[i].Status = task.StatusReady
			items[i].CurrentStep = ""
			items[i].CurrentAgentID = ""
			items[i].PendingGate = ""
			items[i].Error = "Recovered from interrupted run"
		}
		return items, nil
	})
}

// Run executes the main loop (spec.md §4.6 "Main loop") until ctx is
// cancelled, ticking every Config.TickInterval.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.Config.TickInterval)
	defer ticker.Stop()

	var lastDepSweep time.Time
	for {
		select {
		case <-ctx.Done():
			o.pool.wait()
			return ctx.Err()
		case <-ticker.C:
			o.pool.reapCompleted(o.logFailure)
			if o.Metrics != nil {
				o.Metrics.RunningTasks.Set(float64(o.pool.running()))
			}
			o.drainQuickActions()

			if !o.Status.Running() {
				continue
			}

			if o.Config.AutoDeps && o.Analyzer != nil && time.Since(lastDepSweep) >= o.Config.DepSweepEvery {
				if err := o.sweepDeps(ctx); err != nil {
					o.log("dependency analyzer sweep failed", "error", err)
				}
				lastDepSweep = time.Now()
			}

			o.claimAndDispatch(ctx)
		}
	}
}

func (o *Orchestrator) sweepDeps(ctx context.Context) error {
	all, err := o.Tasks.List()
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	updated, result, err := o.Analyzer.Run(ctx, all)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	for _, t := range updated {
		if err := o.Tasks.Upsert(t); err != nil {
			return fmt.Errorf("persist analyzed task %s: %w", t.ID, err)
		}
	}
	if o.Metrics != nil {
		o.Metrics.DepsAnalyzed.Inc()
	}
	o.emit(store.ChannelSystem, "deps.analyzed", "", map[string]any{
		"applied": len(result.Applied), "rejected": len(result.Rejected), "analyzed": len(result.Analyzed),
	})
	return nil
}

// claimAndDispatch claims up to (concurrency - running) runnable tasks and
// submits each to the pool (spec.md §4.6 main loop step 4).
func (o *Orchestrator) claimAndDispatch(ctx context.Context) {
	available := o.Config.Concurrency - o.pool.running()
	for i := 0; i < available; i++ {
		claimed, ok, err := o.Tasks.ClaimNextRunnable(o.Config.Concurrency)
		if err != nil {
			o.log("claim failed", "error", err)
			return
		}
		if !ok {
			return
		}
		if o.Metrics != nil {
			o.Metrics.TasksClaimed.Inc()
			o.Metrics.RunningTasks.Set(float64(o.pool.running() + 1))
		}
		o.emit(store.ChannelTasks, "task.claimed", claimed.ID, nil)
		o.pool.submit(claimed.ID, func() error { return o.executeTask(ctx, claimed) })
	}
}

// RunTask implements spec.md §4.6 "Explicit run": run_task(id). It
// validates, then synchronously executes and returns the updated task.
func (o *Orchestrator) RunTask(ctx context.Context, id string) (task.Task, error) {
	t, ok, err := o.Tasks.Get(id)
	if err != nil {
		return task.Task{}, fmt.Errorf("orchestrator: run_task: %w", err)
	}
	if !ok {
		return task.Task{}, fmt.Errorf("orchestrator: run_task: task %q not found", id)
	}
	if t.Status == task.StatusCancelled {
		return task.Task{}, fmt.Errorf("orchestrator: run_task: task %q is cancelled", id)
	}
	for _, dep := range t.BlockedBy {
		blocker, ok, err := o.Tasks.Get(dep)
		if err != nil {
			return task.Task{}, fmt.Errorf("orchestrator: run_task: %w", err)
		}
		if !ok || !blocker.Status.Terminal() {
			return task.Task{}, fmt.Errorf("orchestrator: run_task: task %q has unresolved blocker %q", id, dep)
		}
	}

	switch t.Status {
	case task.StatusInProgress:
		if err := o.pool.await(id); err != nil {
			return task.Task{}, err
		}
	case task.StatusInReview, task.StatusDone:
		return t, nil
	default:
		t.Status = task.StatusReady
		if err := o.Tasks.Upsert(t); err != nil {
			return task.Task{}, fmt.Errorf("orchestrator: run_task: %w", err)
		}
		if err := o.executeTask(ctx, t); err != nil {
			return task.Task{}, err
		}
	}

	updated, _, err := o.Tasks.Get(id)
	return updated, err
}

// executeTask implements spec.md §4.6 "_execute_task".
func (o *Orchestrator) executeTask(ctx context.Context, t task.Task) error {
	projectDir := o.Config.ProjectDir
	var worktreeDir, branch string
	usingWorktree := false

	if o.Worktree != nil {
		dir, br, err := o.Worktree.Create(ctx, t.ID)
		if err != nil {
			return o.blockOnInfraError(t, fmt.Sprintf("worktree create failed: %v", err))
		}
		worktreeDir, branch, usingWorktree = dir, br, true
		projectDir = dir
		t.Metadata.WorktreeDir = dir
	}

	run := task.RunRecord{
		ID: uuid.NewString(), TaskID: t.ID, Branch: branch,
		Status: task.RunInProgress, StartedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	t.Status = task.StatusInProgress
	t.RunIDs = append(t.RunIDs, run.ID)
	if err := o.Tasks.Upsert(t); err != nil {
		return fmt.Errorf("orchestrator: persist in_progress: %w", err)
	}
	if err := o.Runs.Upsert(run); err != nil {
		return fmt.Errorf("orchestrator: persist run record: %w", err)
	}

	out := o.Engine.Run(ctx, t, projectDir)
	run.Steps = append(run.Steps, out.Steps...)
	o.persistReviewCycles(out.ReviewCycles)

	mergeConflict := false
	if usingWorktree && containsCommit(out.Steps) {
		mergeConflict = o.mergeWorktree(ctx, &out.Task, branch)
	}

	run.Status = runStatusFor(out.Task.Status)
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.UpdatedAt = finished
	if err := o.Runs.Upsert(run); err != nil {
		return fmt.Errorf("orchestrator: persist run record: %w", err)
	}

	if usingWorktree {
		preserve := mergeConflict
		if err := o.Worktree.Cleanup(ctx, t.ID, branch, preserve); err != nil {
			o.log("worktree cleanup failed", "task", t.ID, "error", err)
		}
		if !preserve {
			out.Task.Metadata.WorktreeDir = ""
		}
	}

	if err := o.Tasks.Upsert(out.Task); err != nil {
		return fmt.Errorf("orchestrator: persist final task state: %w", err)
	}
	if o.Metrics != nil {
		o.Metrics.TasksCompleted.WithLabelValues(string(out.Task.Status)).Inc()
	}
	o.emit(store.ChannelTasks, "task."+string(out.Task.Status), out.Task.ID, nil)
	return nil
}

// persistReviewCycles implements spec.md §4.5 step 3 ("Persist a
// ReviewCycle..."): internal/pipeline/review.go already computes each
// cycle correctly in-memory (pipeline.Outcome.ReviewCycles); this is the
// only place that writes them to the review_cycles collection.
func (o *Orchestrator) persistReviewCycles(cycles []task.ReviewCycle) {
	if o.ReviewCycles == nil {
		return
	}
	for _, c := range cycles {
		if err := o.ReviewCycles.Upsert(c); err != nil {
			o.log("review cycle persist failed", "id", c.ID, "task", c.TaskID, "error", err)
			continue
		}
		o.emit(store.ChannelReview, "review_cycle."+string(c.Decision), c.TaskID, map[string]any{
			"review_cycle_id": c.ID, "attempt": c.Attempt,
		})
	}
}

// EnqueueQuickAction records a pending side-channel request against a task
// (spec.md §4.1 quick_actions, §4.2 "quick_actions" channel). It returns
// without waiting for the orchestrator's loop; drainQuickActions applies the
// action on a later tick.
func (o *Orchestrator) EnqueueQuickAction(kind task.QuickActionKind, taskID, note string) (task.QuickAction, error) {
	if o.QuickActions == nil {
		return task.QuickAction{}, fmt.Errorf("orchestrator: quick actions are not wired")
	}
	qa := task.QuickAction{
		ID: uuid.NewString(), TaskID: taskID, Kind: kind, Note: note,
		Status: task.QuickActionPending, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := o.QuickActions.Upsert(qa); err != nil {
		return task.QuickAction{}, fmt.Errorf("orchestrator: enqueue quick action: %w", err)
	}
	o.emit(store.ChannelQuickActions, "quick_action.pending", taskID, map[string]any{"kind": string(kind)})
	return qa, nil
}

// drainQuickActions applies every pending QuickAction against the task it
// targets, one mutation at a time under Tasks' own lock (spec.md §4.6 main
// loop). It is a no-op when QuickActions isn't wired.
func (o *Orchestrator) drainQuickActions() {
	if o.QuickActions == nil || o.Tasks == nil {
		return
	}
	pending, err := o.QuickActions.List()
	if err != nil {
		o.log("list quick actions failed", "error", err)
		return
	}
	for _, qa := range pending {
		if qa.Status != task.QuickActionPending {
			continue
		}
		if err := o.applyQuickAction(qa); err != nil {
			qa.Status = task.QuickActionFailed
			qa.Error = err.Error()
			o.log("quick action failed", "id", qa.ID, "kind", qa.Kind, "error", err)
		} else {
			qa.Status = task.QuickActionApplied
		}
		if uerr := o.QuickActions.Upsert(qa); uerr != nil {
			o.log("quick action persist failed", "id", qa.ID, "error", uerr)
		}
	}
}

func (o *Orchestrator) applyQuickAction(qa task.QuickAction) error {
	return o.Tasks.Mutate(func(items []task.Task) ([]task.Task, error) {
		for i, t := range items {
			if t.ID != qa.TaskID {
				continue
			}
			switch qa.Kind {
			case task.QuickActionGateApprove:
				items[i].PendingGate = ""
				items[i].Status = task.StatusReady
			case task.QuickActionGateReject:
				items[i].Status = task.StatusBlocked
				items[i].Error = qa.Note
				items[i].ErrorType = "gate_rejected"
			case task.QuickActionCancel:
				items[i].Status = task.StatusCancelled
			case task.QuickActionRetry:
				items[i].Status = task.StatusReady
				items[i].Error = ""
				items[i].ErrorType = ""
			case task.QuickActionPlanRefine:
				// Enqueued separately onto PlanRefineJobs by the caller; this
				// quick action only records intent on the task itself.
				items[i].Metadata.PlanRefineFeedback = qa.Note
			}
			return items, nil
		}
		return items, fmt.Errorf("orchestrator: quick action %s: task %q not found", qa.ID, qa.TaskID)
	})
}

func containsCommit(steps []task.StepOutcome) bool {
	for _, s := range steps {
		if s.Step == "commit" && s.Status == "success" {
			return true
		}
	}
	return false
}

// mergeWorktree merges the task branch into the run branch after a
// successful commit step (spec.md §4.6 step 4 / §4.9 "Merge"). It returns
// true if the merge is left unresolved (conflict) and the branch must be
// preserved.
func (o *Orchestrator) mergeWorktree(ctx context.Context, t *task.Task, branch string) bool {
	result, err := o.Worktree.Merge(ctx, branch)
	if err != nil {
		t.Status = task.StatusBlocked
		t.Error = fmt.Sprintf("merge failed: %v", err)
		t.ErrorType = "merge_conflict"
		return true
	}
	if result.Merged {
		return false
	}

	// spec.md §4.6 step 4: on conflict, dispatch a resolve_merge step; on
	// failure, block with merge_conflict=true and preserve the branch.
	t.Metadata.MergeConflictFiles = result.ConflictFiles
	prevWorktreeDir := t.Metadata.WorktreeDir
	t.Metadata.WorktreeDir = ""
	resolveResult := o.Engine.Executor.Execute(ctx, *t, "resolve_merge", o.Worktree.MainDir(), map[string]any{
		"conflict_files": result.ConflictFiles, "conflict_contents": result.ConflictedDirs,
	})
	t.Metadata.WorktreeDir = prevWorktreeDir

	if resolveResult.Status != "success" {
		_ = o.Worktree.AbortMerge(ctx)
		t.Status = task.StatusBlocked
		t.Error = "merge conflict could not be resolved"
		t.ErrorType = "merge_conflict"
		t.Metadata.MergeConflict = true
		return true
	}

	if _, err := o.Worktree.CommitMergeResolution(ctx, fmt.Sprintf("merge: resolve conflicts for %s", t.ID)); err != nil {
		t.Status = task.StatusBlocked
		t.Error = fmt.Sprintf("commit of resolved merge failed: %v", err)
		t.ErrorType = "merge_conflict"
		t.Metadata.MergeConflict = true
		return true
	}
	t.Metadata.MergeConflictFiles = nil
	t.Metadata.MergeConflict = false
	return false
}

func (o *Orchestrator) blockOnInfraError(t task.Task, reason string) error {
	t.Status = task.StatusBlocked
	t.Error = reason
	t.ErrorType = "infra_error"
	if err := o.Tasks.Upsert(t); err != nil {
		return fmt.Errorf("orchestrator: persist blocked task: %w", err)
	}
	return nil
}

func runStatusFor(s task.Status) task.RunStatus {
	switch s {
	case task.StatusDone:
		return task.RunDone
	case task.StatusInReview:
		return task.RunInReview
	case task.StatusBlocked:
		return task.RunBlocked
	default:
		return task.RunInProgress
	}
}

func (o *Orchestrator) emit(channel, eventType, entityID string, payload map[string]any) {
	if o.Events == nil {
		return
	}
	if err := o.Events.Append(store.Event{Channel: channel, Type: eventType, EntityID: entityID, Payload: payload}); err != nil {
		o.log("event append failed", "type", eventType, "error", err)
	}
}

func (o *Orchestrator) logFailure(taskID string, err error) {
	o.log("task execution failed", "task", taskID, "error", err)
}

func (o *Orchestrator) log(msg string, kvs ...any) {
	if o.Logger == nil {
		return
	}
	o.Logger.Warn(msg, kvs...)
}
