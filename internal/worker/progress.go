package worker

import (
	"encoding/json"
	"os"
	"time"
)

// progressFile is the recognized shape of the progress file a worker
// writes to signal liveness and escalation (spec.md §6). Fields the worker
// omits are simply left zero.
type progressFile struct {
	RunID    string          `json:"run_id"`
	Heartbeat string         `json:"heartbeat"`
	Timestamp string         `json:"timestamp"`
	TaskID   string          `json:"task_id"`
	Step     string          `json:"step"`
	// HumanBlockingIssues may be a list of plain strings or of objects; both
	// are decoded via json.RawMessage and normalized in
	// parseBlockingIssues.
	HumanBlockingIssues []json.RawMessage `json:"human_blocking_issues"`
	HumanNextSteps      []string          `json:"human_next_steps"`
}

// readProgress loads and parses path. A missing file is not an error: it
// returns a zero progressFile and ok=false.
func readProgress(path string) (progressFile, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return progressFile{}, false
	}
	var pf progressFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return progressFile{}, false
	}
	return pf, true
}

// heartbeatTime parses pf.Heartbeat as RFC3339/ISO-8601. The zero time is
// returned if absent or unparsable.
func (pf progressFile) heartbeatTime() time.Time {
	if pf.Heartbeat == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, pf.Heartbeat)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseBlockingIssues normalizes human_blocking_issues: free-text string
// entries are promoted to {summary}, capped at maxBlockingIssues
// (spec.md §4.3 step 6).
func (pf progressFile) parseBlockingIssues() []BlockingIssue {
	var out []BlockingIssue
	for _, raw := range pf.HumanBlockingIssues {
		if len(out) >= maxBlockingIssues {
			break
		}
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			if asString != "" {
				out = append(out, BlockingIssue{Summary: asString})
			}
			continue
		}
		var issue BlockingIssue
		if err := json.Unmarshal(raw, &issue); err == nil && issue.Summary != "" {
			out = append(out, issue)
		}
	}
	return out
}
