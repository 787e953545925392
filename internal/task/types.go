// Package task defines the durable task record and the pure reducer that
// advances it (spec.md §3, §4.7): Task, RunRecord, ReviewCycle,
// PlanRevision, PlanRefineJob, AgentRecord, QuickAction.
package task

import "time"

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusBacklog: true, StatusReady: true, StatusInProgress: true,
	StatusInReview: true, StatusBlocked: true, StatusDone: true, StatusCancelled: true,
}

// IsValid reports whether s is a recognized Status.
func (s Status) IsValid() bool { return validStatuses[s] }

// Terminal reports whether s is a status blockers must reach to unblock
// dependents (spec.md §8 "Dependency soundness").
func (s Status) Terminal() bool { return s == StatusDone || s == StatusCancelled }

// Type classifies the kind of work a task represents; it resolves the
// default pipeline template at creation time (spec.md §6).
type Type string

const (
	TypeFeature        Type = "feature"
	TypeBug            Type = "bug"
	TypeRefactor       Type = "refactor"
	TypeResearch       Type = "research"
	TypeDocs           Type = "docs"
	TypeTest           Type = "test"
	TypeHotfix         Type = "hotfix"
	TypeSpike          Type = "spike"
	TypeChore          Type = "chore"
	TypeRepoReview     Type = "repo_review"
	TypeSecurityAudit  Type = "security_audit"
	TypePerformance    Type = "performance"
	TypeReview         Type = "review"
	TypePlanOnly       Type = "plan_only"
	TypeDecompose      Type = "decompose"
	TypeVerifyOnly     Type = "verify_only"
)

// Priority ranks tasks for claim-ordering. Lower values claim first.
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// Rank returns the sort rank of p (0 highest priority), grounded on
// original_source/src/agent_orchestrator/runtime/storage/file_repos.py
// _priority_rank. Unknown priorities sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityP0:
		return 0
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	default:
		return 4
	}
}

// ApprovalMode governs how a completed run transitions after its final
// commit step.
type ApprovalMode string

const (
	ApprovalHumanReview ApprovalMode = "human_review"
	ApprovalAutoApprove ApprovalMode = "auto_approve"
)

// HITLMode declares which pipeline step boundaries require a human approval
// gate (spec.md §4.4 step 2).
type HITLMode string

const (
	HITLAutopilot     HITLMode = "autopilot"
	HITLSupervised    HITLMode = "supervised"
	HITLCollaborative HITLMode = "collaborative"
	HITLReviewOnly    HITLMode = "review_only"
)

// QualityGate is the per-severity cap on open findings required to
// transition out of review (spec.md §4.5).
type QualityGate struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
	Low      int `yaml:"low"`
}

// Metadata holds the well-known typed scratch fields the spec's Design Note
// (§9) calls for, plus a small generic Extra bucket for anything else — not
// a fully dynamic map.
type Metadata struct {
	ReviewFindings      []ReviewFinding `yaml:"review_findings,omitempty"`
	WorktreeDir         string          `yaml:"worktree_dir,omitempty"`
	HumanBlockingIssues []BlockingIssue `yaml:"human_blocking_issues,omitempty"`
	MergeConflictFiles  []string        `yaml:"merge_conflict_files,omitempty"`
	MergeConflict       bool            `yaml:"merge_conflict,omitempty"`
	InferredDeps        []string        `yaml:"inferred_deps,omitempty"`
	DepsAnalyzed        bool            `yaml:"deps_analyzed,omitempty"`
	Source              string          `yaml:"source,omitempty"`
	PlanRefineBaseRev    string         `yaml:"plan_refine_base_revision,omitempty"`
	PlanRefineFeedback   string         `yaml:"plan_refine_feedback,omitempty"`

	Extra map[string]any `yaml:"extra,omitempty"`
}

// BlockingIssue is one entry of Metadata.HumanBlockingIssues (spec.md §4.3
// item 6 / §6 progress-file contract).
type BlockingIssue struct {
	Summary    string `yaml:"summary"`
	Details    string `yaml:"details,omitempty"`
	Category   string `yaml:"category,omitempty"`
	Action     string `yaml:"action,omitempty"`
	BlockingOn string `yaml:"blocking_on,omitempty"`
	Severity   string `yaml:"severity,omitempty"`
}

// Gate names used in Task.PendingGate (spec.md §4.4 step 2).
const (
	GateBeforePlan      = "before_plan"
	GateBeforeImplement = "before_implement"
	GateBeforeCommit    = "before_commit"
	GateAfterImplement  = "after_implement"
	GateHumanIntervention = "human_intervention"
)

// Task is the unit of work (spec.md §3).
type Task struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`

	Type     Type     `yaml:"task_type"`
	Priority Priority `yaml:"priority"`
	Labels   []string `yaml:"labels,omitempty"`

	BlockedBy   []string `yaml:"blocked_by,omitempty"`
	Blocks      []string `yaml:"blocks,omitempty"`
	ParentID    string   `yaml:"parent_id,omitempty"`
	ChildrenIDs []string `yaml:"children_ids,omitempty"`

	PipelineTemplate []string `yaml:"pipeline_template,omitempty"`
	CurrentStep      string   `yaml:"current_step,omitempty"`
	CurrentAgentID   string   `yaml:"current_agent_id,omitempty"`
	RunIDs           []string `yaml:"run_ids,omitempty"`

	Status Status `yaml:"status"`

	PendingGate  string       `yaml:"pending_gate,omitempty"`
	ApprovalMode ApprovalMode `yaml:"approval_mode"`
	HITLMode     HITLMode     `yaml:"hitl_mode"`

	QualityGate QualityGate `yaml:"quality_gate"`

	RetryCount int    `yaml:"retry_count"`
	Error      string `yaml:"error,omitempty"`
	ErrorType  string `yaml:"error_type,omitempty"`

	// AllowedFiles / DisallowedFiles restore the older runner's allowlist
	// enforcement per SPEC_FULL.md §12 decision 2: glob patterns (doublestar
	// syntax) the implement step's diff must stay within / must not touch.
	AllowedFiles    []string `yaml:"allowed_files,omitempty"`
	DisallowedFiles []string `yaml:"disallowed_files,omitempty"`

	// Attempt counters consumed by Reduce (spec.md §4.7).
	WorkerAttempts          int `yaml:"worker_attempts"`
	PlanAttempts            int `yaml:"plan_attempts"`
	NoProgressAttempts      int `yaml:"no_progress_attempts"`
	ReviewGenAttempts       int `yaml:"review_gen_attempts"`
	ReviewFixAttempts       int `yaml:"review_fix_attempts"`
	AllowlistExpansionTries int `yaml:"allowlist_expansion_attempts"`

	Metadata Metadata `yaml:"metadata"`

	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// EntityID implements store.Identifiable.
func (t Task) EntityID() string { return t.ID }

// Touch implements store.Toucher.
func (t *Task) Touch(now time.Time) { t.UpdatedAt = now }

// IsRunnable reports whether t can be claimed: ready, no pending gate, and
// every blocker (looked up in byID) has reached a terminal status
// (spec.md §4.1 ClaimNextRunnable, §8 "Dependency soundness").
func (t Task) IsRunnable(byID map[string]Task) bool {
	if t.Status != StatusReady || t.PendingGate != "" {
		return false
	}
	for _, dep := range t.BlockedBy {
		blocker, ok := byID[dep]
		if !ok || !blocker.Status.Terminal() {
			return false
		}
	}
	return true
}

// RunStatus is the lifecycle state of a RunRecord.
type RunStatus string

const (
	RunQueued      RunStatus = "queued"
	RunInProgress  RunStatus = "in_progress"
	RunDone        RunStatus = "done"
	RunBlocked     RunStatus = "blocked"
	RunInReview    RunStatus = "in_review"
	RunInterrupted RunStatus = "interrupted"
)

// StepOutcome is one recorded step result within a RunRecord (spec.md §3).
type StepOutcome struct {
	Step      string    `yaml:"step"`
	Status    string    `yaml:"status"`
	Timestamp time.Time `yaml:"ts"`
	Summary   string    `yaml:"summary,omitempty"`
	OpenCounts map[string]int `yaml:"open_counts,omitempty"`
	Commit    string    `yaml:"commit,omitempty"`
}

// RunRecord is one execution attempt of a task (spec.md §3).
type RunRecord struct {
	ID         string        `yaml:"id"`
	TaskID     string        `yaml:"task_id"`
	Branch     string        `yaml:"branch,omitempty"`
	Status     RunStatus     `yaml:"status"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt *time.Time    `yaml:"finished_at,omitempty"`
	Steps      []StepOutcome `yaml:"steps,omitempty"`
	UpdatedAt  time.Time     `yaml:"updated_at"`
}

func (r RunRecord) EntityID() string  { return r.ID }
func (r *RunRecord) Touch(now time.Time) { r.UpdatedAt = now }

// Severity is a ReviewFinding's severity. The teacher's review.Severity
// carries a fifth value ("info") not present in spec.md §3's quality_gate
// keys; this narrower set is the one exposed on the public data model (see
// DESIGN.md "Verdict mapping").
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// FindingStatus is the lifecycle of a single ReviewFinding.
type FindingStatus string

const (
	FindingOpen     FindingStatus = "open"
	FindingResolved FindingStatus = "resolved"
)

// ReviewFinding is one issue raised by the review step.
type ReviewFinding struct {
	Severity     Severity      `yaml:"severity"`
	Category     string        `yaml:"category"`
	Summary      string        `yaml:"summary"`
	File         string        `yaml:"file,omitempty"`
	Line         int           `yaml:"line,omitempty"`
	SuggestedFix string        `yaml:"suggested_fix,omitempty"`
	Status       FindingStatus `yaml:"status"`
}

// Decision is the review cycle's final call (spec.md §3). Only two values
// are exposed publicly; see DESIGN.md for how the teacher's three-way
// Verdict (which additionally distinguishes a hard "blocking" severity
// class) maps onto this.
type Decision string

const (
	DecisionApproved         Decision = "approved"
	DecisionChangesRequested Decision = "changes_requested"
)

// ReviewCycle is one pass through the review step (spec.md §3).
type ReviewCycle struct {
	ID         string          `yaml:"id"`
	TaskID     string          `yaml:"task_id"`
	Attempt    int             `yaml:"attempt"`
	Findings   []ReviewFinding `yaml:"findings"`
	OpenCounts map[string]int  `yaml:"open_counts"`
	Decision   Decision        `yaml:"decision"`
	CreatedAt  time.Time       `yaml:"created_at"`
	UpdatedAt  time.Time       `yaml:"updated_at"`
}

func (c ReviewCycle) EntityID() string     { return c.ID }
func (c *ReviewCycle) Touch(now time.Time) { c.UpdatedAt = now }

// PlanSource names where a PlanRevision's content came from.
type PlanSource string

const (
	PlanSourceWorkerPlan   PlanSource = "worker_plan"
	PlanSourceWorkerRefine PlanSource = "worker_refine"
	PlanSourceHumanEdit    PlanSource = "human_edit"
	PlanSourceImport       PlanSource = "import"
)

// PlanRevisionStatus distinguishes the single committed lineage member.
type PlanRevisionStatus string

const (
	PlanRevisionDraft     PlanRevisionStatus = "draft"
	PlanRevisionCommitted PlanRevisionStatus = "committed"
)

// PlanRevision is an immutable snapshot of a task's plan (spec.md §3).
// Lineage forms a DAG via ParentRevisionID; at most one revision per task
// has Status=committed.
type PlanRevision struct {
	ID               string             `yaml:"id"`
	TaskID           string             `yaml:"task_id"`
	CreatedAt        time.Time          `yaml:"created_at"`
	Source           PlanSource         `yaml:"source"`
	ParentRevisionID string             `yaml:"parent_revision_id,omitempty"`
	Step             string             `yaml:"step,omitempty"`
	FeedbackNote     string             `yaml:"feedback_note,omitempty"`
	Provider         string             `yaml:"provider,omitempty"`
	Model            string             `yaml:"model,omitempty"`
	Content          string             `yaml:"content"`
	ContentHash      string             `yaml:"content_hash"`
	Status           PlanRevisionStatus `yaml:"status"`
}

func (p PlanRevision) EntityID() string { return p.ID }

// PlanRefineJobStatus is the lifecycle of an async plan-refine job.
type PlanRefineJobStatus string

const (
	RefineQueued    PlanRefineJobStatus = "queued"
	RefineRunning   PlanRefineJobStatus = "running"
	RefineCompleted PlanRefineJobStatus = "completed"
	RefineFailed    PlanRefineJobStatus = "failed"
	RefineCancelled PlanRefineJobStatus = "cancelled"
)

// PlanRefineJob is an async worker job producing a new PlanRevision from a
// base revision plus human feedback (spec.md §3).
type PlanRefineJob struct {
	ID              string              `yaml:"id"`
	TaskID          string              `yaml:"task_id"`
	BaseRevisionID  string              `yaml:"base_revision_id"`
	Feedback        string              `yaml:"feedback"`
	Status          PlanRefineJobStatus `yaml:"status"`
	ResultRevisionID string             `yaml:"result_revision_id,omitempty"`
	Error           string              `yaml:"error,omitempty"`
	CreatedAt       time.Time           `yaml:"created_at"`
	UpdatedAt       time.Time           `yaml:"updated_at"`
}

func (j PlanRefineJob) EntityID() string     { return j.ID }
func (j *PlanRefineJob) Touch(now time.Time) { j.UpdatedAt = now }

// AgentStatus is the lifecycle state of an AgentRecord.
type AgentStatus string

const (
	AgentIdle       AgentStatus = "idle"
	AgentRunning    AgentStatus = "running"
	AgentPaused     AgentStatus = "paused"
	AgentTerminated AgentStatus = "terminated"
	AgentFailed     AgentStatus = "failed"
)

// AgentRecord is a logical worker slot (spec.md §3).
type AgentRecord struct {
	ID               string      `yaml:"id"`
	Role             string      `yaml:"role"`
	Status           AgentStatus `yaml:"status"`
	Capacity         int         `yaml:"capacity"`
	OverrideProvider string      `yaml:"override_provider,omitempty"`
}

func (a AgentRecord) EntityID() string { return a.ID }

// QuickActionKind names a CLI-initiated side channel operation that the
// orchestrator loop picks up asynchronously instead of blocking the
// command that requested it (spec.md §4.1 quick_actions collection, §4.2
// quick_actions event channel).
type QuickActionKind string

const (
	QuickActionGateApprove  QuickActionKind = "gate_approve"
	QuickActionGateReject   QuickActionKind = "gate_reject"
	QuickActionCancel       QuickActionKind = "cancel"
	QuickActionRetry        QuickActionKind = "retry"
	QuickActionPlanRefine   QuickActionKind = "plan_refine"
)

// QuickActionStatus is the lifecycle of a QuickAction.
type QuickActionStatus string

const (
	QuickActionPending QuickActionStatus = "pending"
	QuickActionApplied QuickActionStatus = "applied"
	QuickActionFailed  QuickActionStatus = "failed"
)

// QuickAction is a small, out-of-band request queued against a task —
// enqueued through Orchestrator.EnqueueQuickAction and drained by the
// orchestrator's main loop rather than mutating task state directly from
// the requesting caller.
type QuickAction struct {
	ID        string            `yaml:"id"`
	TaskID    string            `yaml:"task_id"`
	Kind      QuickActionKind   `yaml:"kind"`
	Note      string            `yaml:"note,omitempty"`
	Status    QuickActionStatus `yaml:"status"`
	Error     string            `yaml:"error,omitempty"`
	CreatedAt time.Time         `yaml:"created_at"`
	UpdatedAt time.Time         `yaml:"updated_at"`
}

func (q QuickAction) EntityID() string     { return q.ID }
func (q *QuickAction) Touch(now time.Time) { q.UpdatedAt = now }
