package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wcgan7/agentctl/internal/task"
)

func TestResolve_BuiltinByType(t *testing.T) {
	tpl := Resolve(task.Task{Type: task.TypeFeature})
	assert.Equal(t, []string{"plan", "plan_impl", "implement", "verify", "review", "commit"}, tpl.Names())
}

func TestResolve_OverrideWins(t *testing.T) {
	tpl := Resolve(task.Task{Type: task.TypeFeature, PipelineTemplate: []string{"implement", "verify"}})
	assert.Equal(t, []string{"implement", "verify"}, tpl.Names())
}

func TestResolve_UnknownTypeFallsBackToFeature(t *testing.T) {
	tpl := Resolve(task.Task{Type: task.Type("bogus")})
	assert.Equal(t, builtinTemplates[task.TypeFeature].Names(), tpl.Names())
}

func TestGateForStep(t *testing.T) {
	gate, ok := gateForStep("implement")
	assert.True(t, ok)
	assert.Equal(t, "before_implement", gate)

	_, ok = gateForStep("verify")
	assert.False(t, ok)
}

func TestTemplate_HasCommitAndReviewStep(t *testing.T) {
	tpl := Resolve(task.Task{Type: task.TypeFeature})
	assert.True(t, tpl.hasCommitStep())
	assert.True(t, tpl.hasReviewStep())

	research := Resolve(task.Task{Type: task.TypeResearch})
	assert.False(t, research.hasCommitStep())
	assert.False(t, research.hasReviewStep())
}
