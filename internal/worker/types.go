// Package worker implements the worker-supervision protocol (spec.md §4.3):
// spawn an external provider CLI, pipe a prompt in, stream output to disk,
// enforce timeout and heartbeat grace, and classify the outcome.
package worker

import "time"

// Provider names recognized by Dispatch (spec.md §6 "Worker command
// contract").
const (
	ProviderClaude = "claude"
	ProviderCodex  = "codex"
	ProviderOllama = "ollama"
)

// Request is the supervisor's input contract (spec.md §4.3).
type Request struct {
	// Provider selects the invocation shape: "claude"/"codex" (or empty) run
	// CommandTemplate as a one-shot subprocess via Supervise; "ollama"
	// streams an HTTP generate call via executeOllama (spec.md §6).
	Provider string

	CommandTemplate   string
	Prompt            string
	ProjectDir        string
	RunDir            string
	Timeout           time.Duration
	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration
	ProgressFilePath  string
	ExpectedRunID     string

	// Env is appended to the inherited process environment.
	Env []string

	// OnSpawn, if set, is called with the child PID immediately after the
	// process starts, so the orchestrator can record it into run state
	// (spec.md §4.3 step 3). Not called for the ollama provider, which has
	// no child process.
	OnSpawn func(pid int)

	// Ollama-only fields (spec.md §6 "ollama: HTTP POST to
	// {endpoint}/api/generate").
	Endpoint    string
	Model       string
	Temperature *float64
	NumCtx      *int
}

// Result is the supervisor's output contract (spec.md §4.3 step 7).
type Result struct {
	ExitCode            int
	TimedOut            bool
	NoHeartbeat         bool
	StartedAt           time.Time
	FinishedAt          time.Time
	Runtime             time.Duration
	LastHeartbeat       time.Time
	StdoutPath          string
	StderrPath          string
	ResponseText        string
	HumanBlockingIssues []BlockingIssue
}

// BlockingIssue mirrors task.BlockingIssue; the supervisor package does not
// import internal/task to avoid a dependency cycle with internal/pipeline,
// so callers convert at the boundary.
type BlockingIssue struct {
	Summary    string `json:"summary"`
	Details    string `json:"details,omitempty"`
	Category   string `json:"category,omitempty"`
	Action     string `json:"action,omitempty"`
	BlockingOn string `json:"blocking_on,omitempty"`
	Severity   string `json:"severity,omitempty"`
}

// maxBlockingIssues caps human_blocking_issues read from the progress file
// (spec.md §4.3 step 6: "at most 20 entries").
const maxBlockingIssues = 20
