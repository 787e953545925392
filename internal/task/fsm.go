package task

import "time"

// EventKind is the outcome produced by the worker supervisor or pipeline
// engine (spec.md §4.3/§4.4) that drives Reduce.
type EventKind string

const (
	EventWorkerSucceeded       EventKind = "worker_succeeded"
	EventWorkerFailed          EventKind = "worker_failed"
	EventHeartbeatTimeout      EventKind = "heartbeat_timeout"
	EventShiftTimeout          EventKind = "shift_timeout"
	EventRateLimited           EventKind = "rate_limited"
	EventAllowlistViolation    EventKind = "allowlist_violation"
	EventNoIntroducedChanges   EventKind = "no_introduced_changes"
	EventHumanBlockers         EventKind = "human_blockers"
	EventReviewApproved        EventKind = "review_approved"
	EventReviewChangesNeeded   EventKind = "review_changes_needed"
	EventVerificationSucceeded EventKind = "verification_succeeded"
	EventVerificationFailed    EventKind = "verification_failed"
)

// stepOrder is the canonical advancement order Reduce walks on success,
// independent of whatever the resolved pipeline template actually names at
// each position — the pipeline engine (internal/pipeline) is responsible
// for mapping a concrete template's step names onto this progression; the
// FSM only needs to know what follows "implement" conceptually.
var stepOrder = []string{"plan", "plan_impl", "implement", "verify", "review", "commit", "done"}

func nextStep(current string) string {
	for i, s := range stepOrder {
		if s == current && i+1 < len(stepOrder) {
			return stepOrder[i+1]
		}
	}
	return "done"
}

// Caps bounds the retry attempts Reduce enforces before escalating a task to
// blocked (spec.md §4.7).
type Caps struct {
	MaxWorkerAttempts     int
	MaxPlanAttempts       int
	MaxNoProgressAttempts int
	MaxReviewGenAttempts  int
	MaxReviewFixAttempts  int
	MaxAllowlistAttempts  int
}

// DefaultCaps mirrors original_source/constants.py's DEFAULT_MAX_ATTEMPTS
// and the review-specific attempt caps (MAX_REVIEW_ATTEMPTS,
// MAX_IMPL_PLAN_ATTEMPTS).
func DefaultCaps() Caps {
	return Caps{
		MaxWorkerAttempts:     5,
		MaxPlanAttempts:       3,
		MaxNoProgressAttempts: 3,
		MaxReviewGenAttempts:  3,
		MaxReviewFixAttempts:  3,
		MaxAllowlistAttempts:  3,
	}
}

// transientErrorTypes are auto-resumable per spec.md §7: they never consume
// a worker_attempts slot, matching
// original_source/constants.py AUTO_RESUME_ERROR_TYPES.
var transientErrorTypes = map[string]bool{
	"heartbeat_timeout": true,
	"shift_timeout":     true,
	"rate_limited":      true,
}

// Reduce is the pure function described in spec.md §4.7: it advances state
// in response to one event, incrementing attempt counters, advancing or
// re-queuing the current step, and escalating to blocked once the relevant
// cap is exceeded. It never performs I/O and never reads wall-clock time
// except to stamp UpdatedAt.
func Reduce(state Task, event EventKind, caps Caps) Task {
	s := state
	s.UpdatedAt = time.Now().UTC()

	switch event {
	case EventWorkerSucceeded, EventVerificationSucceeded:
		s.RetryCount = 0
		s.NoProgressAttempts = 0
		s.CurrentStep = nextStep(s.CurrentStep)
		if s.CurrentStep == "done" {
			s.Status = StatusDone
		} else {
			s.Status = StatusReady
		}
		s.Error = ""
		s.ErrorType = ""
		return s

	case EventReviewApproved:
		s.ReviewGenAttempts = 0
		s.ReviewFixAttempts = 0
		s.CurrentStep = nextStep("review")
		if s.CurrentStep == "done" {
			s.Status = StatusDone
		} else {
			s.Status = StatusReady
		}
		s.Error = ""
		s.ErrorType = ""
		return s

	case EventReviewChangesNeeded:
		s.ReviewGenAttempts++
		if s.ReviewGenAttempts >= caps.MaxReviewGenAttempts {
			return blockTask(s, "review_attempts_exhausted", "review loop exhausted max attempts without approval")
		}
		s.CurrentStep = "implement_fix"
		s.Status = StatusReady
		return s

	case EventHeartbeatTimeout, EventShiftTimeout, EventRateLimited:
		errType := string(event)
		if !transientErrorTypes[errType] {
			errType = "heartbeat_timeout"
		}
		// Auto-resumable: keep the task ready, do not consume a worker
		// attempt, but still guard against an infinite transient loop via
		// no_progress_attempts.
		s.NoProgressAttempts++
		if s.NoProgressAttempts >= caps.MaxNoProgressAttempts {
			return blockTask(s, errType, "worker produced no progress across repeated auto-resume attempts")
		}
		s.Status = StatusReady
		return s

	case EventWorkerFailed, EventVerificationFailed:
		s.WorkerAttempts++
		if s.WorkerAttempts >= caps.MaxWorkerAttempts {
			return blockTask(s, "codex_exit", "worker exited non-zero across max attempts")
		}
		s.Status = StatusReady
		return s

	case EventAllowlistViolation:
		s.AllowlistExpansionTries++
		return blockTask(s, "disallowed_files", "worker modified files outside the allowed set")

	case EventNoIntroducedChanges:
		s.PlanAttempts++
		if s.PlanAttempts >= caps.MaxPlanAttempts {
			return blockTask(s, "plan_missing", "plan step produced no usable plan document across max attempts")
		}
		s.Status = StatusReady
		return s

	case EventHumanBlockers:
		s.PendingGate = GateHumanIntervention
		s.Status = StatusBlocked
		s.Error = "human intervention requested"
		s.ErrorType = "blocking_issues"
		return s

	default:
		return s
	}
}

// blockTask sets the task to blocked with the given error classification,
// recording the current step so a later human resume can replay it
// (spec.md §4.7 "Records the blocked intent").
func blockTask(s Task, errType, message string) Task {
	s.Status = StatusBlocked
	s.Error = message
	s.ErrorType = errType
	return s
}
