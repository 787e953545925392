package task

// OpenCounts tallies open findings by severity.
func OpenCounts(findings []ReviewFinding) map[string]int {
	counts := map[string]int{
		string(SeverityCritical): 0,
		string(SeverityHigh):     0,
		string(SeverityMedium):   0,
		string(SeverityLow):      0,
	}
	for _, f := range findings {
		if f.Status != FindingOpen {
			continue
		}
		counts[string(f.Severity)]++
	}
	return counts
}

// EvaluateGate compares open findings against a task's quality gate
// (spec.md §4.5 step 2). blocking is true when any teacher-style BLOCKING
// finding is present (see DESIGN.md "Verdict mapping") — a blocking finding
// always forces changes_requested regardless of the gate thresholds.
func EvaluateGate(findings []ReviewFinding, gate QualityGate, blocking bool) (Decision, map[string]int) {
	counts := OpenCounts(findings)
	if blocking {
		return DecisionChangesRequested, counts
	}
	if counts[string(SeverityCritical)] > gate.Critical ||
		counts[string(SeverityHigh)] > gate.High ||
		counts[string(SeverityMedium)] > gate.Medium ||
		counts[string(SeverityLow)] > gate.Low {
		return DecisionChangesRequested, counts
	}
	return DecisionApproved, counts
}
