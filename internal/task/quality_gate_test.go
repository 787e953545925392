package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateGate_ApprovesWithinThreshold(t *testing.T) {
	findings := []ReviewFinding{
		{Severity: SeverityLow, Status: FindingOpen},
	}
	gate := QualityGate{Critical: 0, High: 0, Medium: 0, Low: 2}

	decision, counts := EvaluateGate(findings, gate, false)

	assert.Equal(t, DecisionApproved, decision)
	assert.Equal(t, 1, counts["low"])
}

func TestEvaluateGate_RequestsChangesOverThreshold(t *testing.T) {
	findings := []ReviewFinding{
		{Severity: SeverityHigh, Status: FindingOpen, Summary: "bad"},
	}
	gate := QualityGate{High: 0}

	decision, counts := EvaluateGate(findings, gate, false)

	assert.Equal(t, DecisionChangesRequested, decision)
	assert.Equal(t, 1, counts["high"])
}

func TestEvaluateGate_IgnoresResolvedFindings(t *testing.T) {
	findings := []ReviewFinding{
		{Severity: SeverityCritical, Status: FindingResolved},
	}
	gate := QualityGate{Critical: 0}

	decision, _ := EvaluateGate(findings, gate, false)

	assert.Equal(t, DecisionApproved, decision)
}

func TestEvaluateGate_BlockingForcesChangesRequested(t *testing.T) {
	gate := QualityGate{Critical: 100, High: 100, Medium: 100, Low: 100}

	decision, _ := EvaluateGate(nil, gate, true)

	assert.Equal(t, DecisionChangesRequested, decision)
}
