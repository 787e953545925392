package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wcgan7/agentctl/internal/task"
)

func TestBuildStepPromptContext_IncludesReviewFindings(t *testing.T) {
	tk := task.Task{
		ID: "t1", Title: "Add endpoint", Type: task.TypeFeature, Priority: task.PriorityP1,
		Metadata: task.Metadata{ReviewFindings: []task.ReviewFinding{
			{Severity: task.SeverityHigh, Category: "correctness", Summary: "bad input handling"},
		}},
	}
	ctx := BuildStepPromptContext(tk, "implement_fix", "/work/t1", "/work/t1/progress.json", "run-1", 120, nil)

	assert.Equal(t, "t1", ctx.TaskID)
	assert.Equal(t, "implement_fix", ctx.StepName)
	require.Len(t, ctx.ReviewFindings, 1)
	assert.Equal(t, "bad input handling", ctx.ReviewFindings[0].Summary)
}

func TestBuildStepPromptContext_SummarizesPreviousResults(t *testing.T) {
	tk := task.Task{ID: "t1", Title: "Add endpoint", Type: task.TypeFeature}
	previous := map[string]any{
		"plan": map[string]any{"summary": "planned the change"},
	}
	ctx := BuildStepPromptContext(tk, "implement", "/work/t1", "/work/t1/progress.json", "run-1", 120, previous)

	assert.Equal(t, "planned the change", ctx.PreviousStepSummaries["plan"])
}

func TestPromptGenerator_GenerateDefaultTemplate(t *testing.T) {
	pg, err := NewPromptGenerator("")
	require.NoError(t, err)

	tk := task.Task{ID: "t1", Title: "Add endpoint", Type: task.TypeFeature, Priority: task.PriorityP1}
	ctx := BuildStepPromptContext(tk, "implement", "/work/t1", "/work/t1/progress.json", "run-1", 120, nil)

	out, err := pg.Generate("implement", ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "t1")
	assert.Contains(t, out, "Add endpoint")
	assert.Contains(t, out, "Implement the plan")
}

func TestPromptGenerator_CustomTemplateOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "implement.tmpl"), []byte("custom prompt for [[.TaskID]]"), 0o644))

	pg, err := NewPromptGenerator(dir)
	require.NoError(t, err)

	tk := task.Task{ID: "t9", Title: "x", Type: task.TypeFeature}
	ctx := BuildStepPromptContext(tk, "implement", "/work/t9", "/work/t9/progress.json", "run-1", 120, nil)

	out, err := pg.Generate("implement", ctx)
	require.NoError(t, err)
	assert.Equal(t, "custom prompt for t9", out)
}

func TestPromptGenerator_MissingCustomTemplateFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	pg, err := NewPromptGenerator(dir)
	require.NoError(t, err)

	tk := task.Task{ID: "t9", Title: "x", Type: task.TypeFeature}
	ctx := BuildStepPromptContext(tk, "review", "/work/t9", "/work/t9/progress.json", "run-1", 120, nil)

	out, err := pg.Generate("review", ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "findings")
}
