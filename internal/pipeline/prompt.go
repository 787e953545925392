package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/wcgan7/agentctl/internal/task"
)

// defaultStepTemplate is the built-in prompt rendered for a worker-backed
// step when no per-step override template is configured. It uses [[ and ]]
// as delimiters (grounded on the teacher's internal/loop/prompt.go) so that
// {{ and }} appearing in task titles, JSON artifacts, or shell snippets in
// previous step output are never misread as template actions.
const defaultStepTemplate = `You are the [[.StepName]] step of task [[.TaskID]]: [[.TaskTitle]]

## Task

Type: [[.TaskType]]
Priority: [[.Priority]]
[[if .Labels]]Labels: [[.Labels]]
[[end]]
## Project

Directory: [[.ProjectDir]]

[[if .ReviewFindings]]## Open Review Findings

Address every finding below before re-running verification:
[[range .ReviewFindings]]- [[.Severity]]/[[.Category]]: [[.Summary]][[if .File]] ([[.File]][[if .Line]]:[[.Line]][[end]])[[end]]
[[end]]
[[end]]
[[if .PreviousStepSummaries]]## Previous Steps

[[range $step, $summary := .PreviousStepSummaries]][[$step]]: [[$summary]]
[[end]]
[[end]]
## Progress Reporting

Write progress to [[.ProgressFilePath]] as JSON: {"run_id": "[[.RunID]]", "heartbeat": "<ISO-8601 timestamp>", "task_id": "[[.TaskID]]", "step": "[[.StepName]]"}. Update heartbeat at least once every [[.HeartbeatIntervalSeconds]] seconds. If you need a human to unblock you, add "human_blocking_issues": [{"summary": "...", "details": "...", "severity": "..."}].

## Instructions

[[.StepInstructions]]
`

// stepInstructions gives each built-in step name its own task-specific
// directive, appended to the shared template above.
var stepInstructions = map[string]string{
	"plan":          "Produce a written implementation plan covering the approach, affected files, and risks. Do not write code yet.",
	"plan_impl":     "Refine the plan into a concrete, ordered list of file-level changes ready to implement.",
	"implement":     "Implement the plan. Make the minimal changes needed; do not touch files outside the task's scope.",
	"implement_fix": "Address every open review finding listed above, then stop.",
	"reproduce":     "Write a minimal failing test or script that reproduces the reported bug.",
	"diagnose":      "Identify the root cause of the bug using the reproduction from the previous step.",
	"analyze":       "Analyze the existing code relevant to this task and summarize findings other steps will need.",
	"verify":        "Run the project's test, lint, and typecheck commands and report results.",
	"review":        "Review the diff introduced by this task. Return a JSON object with a \"findings\" array of {severity, category, summary, file?, line?, suggested_fix?}.",
	"commit":        "Changes are committed automatically; no worker action is required for this step.",
	"report":        "Summarize the outcome of this task's pipeline as a short written report.",
	"generate_tasks": "Return a JSON object with a \"generated_tasks\" array describing follow-up tasks.",
	"scan":          "Scan the repository and return a JSON object summarizing what you found.",
	"scan_deps":     "Scan the project's dependency manifests for known vulnerabilities and return a JSON report.",
	"scan_code":     "Scan the source tree for security issues and return a JSON report.",
	"gather":        "Gather the background material (docs, code, prior art) relevant to this task.",
	"summarize":     "Summarize the gathered material into actionable findings.",
	"profile":       "Profile the relevant code path and report the current performance baseline.",
	"benchmark":     "Run the project's benchmark commands and report before/after numbers.",
	"prototype":     "Build a throwaway prototype exploring the spike's question.",
	"resolve_merge": "Resolve the listed merge conflicts, preferring the incoming task branch's intent where the two diverge.",
	"analyze_deps":  "Return a JSON object with a \"dependency_edges\" array of {from, to, reason} describing task dependencies.",
}

func instructionsFor(stepName string) string {
	if s, ok := stepInstructions[stepName]; ok {
		return s
	}
	return "Complete this step and report back any blocking issues via the progress file."
}

// StepPromptContext holds the values substituted into a step's prompt
// template.
type StepPromptContext struct {
	TaskID    string
	TaskTitle string
	TaskType  string
	Priority  string
	Labels    string

	StepName         string
	StepInstructions string

	ProjectDir string

	ReviewFindings []task.ReviewFinding

	PreviousStepSummaries map[string]string

	ProgressFilePath         string
	RunID                    string
	HeartbeatIntervalSeconds int
}

// BuildStepPromptContext assembles a StepPromptContext from a task, the step
// about to run, and the prior steps' recorded results.
func BuildStepPromptContext(t task.Task, stepName, projectDir, progressFilePath, runID string, heartbeatInterval int, previousResults map[string]any) StepPromptContext {
	summaries := make(map[string]string, len(previousResults))
	for step, artifacts := range previousResults {
		if m, ok := artifacts.(map[string]any); ok {
			if s, ok := m["summary"].(string); ok && s != "" {
				summaries[step] = s
				continue
			}
		}
		summaries[step] = fmt.Sprintf("%v", artifacts)
	}

	return StepPromptContext{
		TaskID:    t.ID,
		TaskTitle: t.Title,
		TaskType:  string(t.Type),
		Priority:  string(t.Priority),
		Labels:    strings.Join(t.Labels, ", "),

		StepName:         stepName,
		StepInstructions: instructionsFor(stepName),

		ProjectDir: projectDir,

		ReviewFindings: t.Metadata.ReviewFindings,

		PreviousStepSummaries: summaries,

		ProgressFilePath:         progressFilePath,
		RunID:                    runID,
		HeartbeatIntervalSeconds: heartbeatInterval,
	}
}

// PromptGenerator renders step prompts from the built-in template or, when
// configured, a per-step override template file. It uses [[ and ]] as
// template delimiters throughout, matching the teacher's loop.PromptGenerator.
type PromptGenerator struct {
	templateDir string
	templates   map[string]*template.Template
	defaultTmpl *template.Template
}

// NewPromptGenerator constructs a PromptGenerator. templateDir may be empty,
// in which case every step uses the built-in default template.
func NewPromptGenerator(templateDir string) (*PromptGenerator, error) {
	if templateDir != "" {
		info, err := os.Stat(templateDir)
		if err != nil {
			return nil, fmt.Errorf("prompt generator: template directory %q: %w", templateDir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("prompt generator: template directory %q is not a directory", templateDir)
		}
	}

	defaultTmpl, err := template.New("default").Delims("[[", "]]").Parse(defaultStepTemplate)
	if err != nil {
		return nil, fmt.Errorf("prompt generator: parsing default template: %w", err)
	}

	return &PromptGenerator{
		templateDir: templateDir,
		templates:   make(map[string]*template.Template),
		defaultTmpl: defaultTmpl,
	}, nil
}

// loadTemplate loads and caches "<stepName>.tmpl" from the generator's
// templateDir, rejecting any path that would escape it.
func (pg *PromptGenerator) loadTemplate(stepName string) (*template.Template, error) {
	if tmpl, ok := pg.templates[stepName]; ok {
		return tmpl, nil
	}

	absDir, err := filepath.Abs(pg.templateDir)
	if err != nil {
		return nil, fmt.Errorf("loading template for step %q: resolving template directory: %w", stepName, err)
	}
	name := stepName + ".tmpl"
	candidate := filepath.Join(absDir, name)
	rel, err := filepath.Rel(absDir, candidate)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("loading template for step %q: path escapes template directory", stepName)
	}

	raw, err := os.ReadFile(candidate)
	if err != nil {
		return nil, fmt.Errorf("loading template for step %q: %w", stepName, err)
	}
	tmpl, err := template.New(name).Delims("[[", "]]").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("loading template for step %q: parsing: %w", stepName, err)
	}
	pg.templates[stepName] = tmpl
	return tmpl, nil
}

// Generate renders the prompt for one step invocation. If the generator has
// a templateDir and it contains "<stepName>.tmpl", that file wins; otherwise
// the built-in default template is used.
func (pg *PromptGenerator) Generate(stepName string, ctx StepPromptContext) (string, error) {
	tmpl := pg.defaultTmpl
	if pg.templateDir != "" {
		if custom, err := pg.loadTemplate(stepName); err == nil {
			tmpl = custom
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("rendering prompt for step %q: %w", stepName, err)
	}
	return buf.String(), nil
}
