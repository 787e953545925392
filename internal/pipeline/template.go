// Package pipeline resolves a task's step template, walks it step by step
// (condition evaluation, HITL gating, retry, recording), and embeds the
// review loop when the template contains a review step.
package pipeline

import (
	"time"

	"github.com/wcgan7/agentctl/internal/task"
)

// StepDef describes a single step of a pipeline template.
type StepDef struct {
	Name           string
	Required       bool
	Condition      string
	TimeoutSeconds int
	RetryLimit     int
	AgentRole      string
	Config         map[string]any
}

// Template is an ordered tuple of StepDef resolved from a task's task_type,
// or overridden explicitly on the task via PipelineTemplate.
type Template []StepDef

// Names returns the step names in order, matching the shape persisted on
// task.Task.PipelineTemplate.
func (t Template) Names() []string {
	names := make([]string, len(t))
	for i, s := range t {
		names[i] = s.Name
	}
	return names
}

const defaultTimeoutSeconds = 1800
const defaultRetryLimit = 2

func step(name string) StepDef {
	return StepDef{Name: name, Required: true, TimeoutSeconds: defaultTimeoutSeconds, RetryLimit: defaultRetryLimit}
}

func steps(names ...string) Template {
	t := make(Template, len(names))
	for i, n := range names {
		t[i] = step(n)
	}
	return t
}

// builtinTemplates maps task_type to its default step template (spec §6).
var builtinTemplates = map[task.Type]Template{
	task.TypeFeature:        steps("plan", "plan_impl", "implement", "verify", "review", "commit"),
	task.TypeBug:            steps("reproduce", "diagnose", "implement", "verify", "review", "commit"),
	task.TypeRefactor:       steps("analyze", "plan", "implement", "verify", "review", "commit"),
	task.TypeResearch:       steps("gather", "analyze", "summarize", "report"),
	task.TypeDocs:           steps("analyze", "implement", "review", "commit"),
	task.TypeTest:           steps("analyze", "implement", "verify", "review", "commit"),
	task.TypeRepoReview:     steps("scan", "analyze", "generate_tasks"),
	task.TypeSecurityAudit:  steps("scan_deps", "scan_code", "report", "generate_tasks"),
	task.TypeReview:         steps("analyze", "review", "report"),
	task.TypePerformance:    steps("profile", "plan", "implement", "benchmark", "review", "commit"),
	task.TypeHotfix:         steps("implement", "verify", "review", "commit"),
	task.TypeSpike:          steps("gather", "prototype", "summarize", "report"),
	task.TypeChore:          steps("implement", "verify", "commit"),
	task.TypePlanOnly:       steps("analyze", "plan", "report"),
	task.TypeDecompose:      steps("analyze", "plan", "generate_tasks"),
	task.TypeVerifyOnly:     steps("verify", "report"),
}

// Resolve returns the step template for t: the task's explicit override when
// set, otherwise the built-in template for its task_type.
func Resolve(t task.Task) Template {
	if len(t.PipelineTemplate) > 0 {
		out := make(Template, len(t.PipelineTemplate))
		for i, name := range t.PipelineTemplate {
			out[i] = step(name)
		}
		return out
	}
	if tpl, ok := builtinTemplates[t.Type]; ok {
		return tpl
	}
	return builtinTemplates[task.TypeFeature]
}

// gateForStep maps a step name to the HITL gate name it must clear before
// executing (spec §4.4 step 2). Steps with no entry require no gate.
func gateForStep(name string) (gate string, ok bool) {
	switch name {
	case "plan", "plan_impl":
		return "before_plan", true
	case "implement":
		return "before_implement", true
	case "commit":
		return "before_commit", true
	case "review":
		return "after_implement", true
	default:
		return "", false
	}
}

// hasCommitStep reports whether tpl contains a "commit" step.
func (t Template) hasCommitStep() bool {
	for _, s := range t {
		if s.Name == "commit" {
			return true
		}
	}
	return false
}

// hasReviewStep reports whether tpl contains a "review" step.
func (t Template) hasReviewStep() bool {
	for _, s := range t {
		if s.Name == "review" {
			return true
		}
	}
	return false
}

// defaultGateWaitTimeout is the HITL gate poll timeout (spec §5: "default
// 1 hour").
const defaultGateWaitTimeout = time.Hour
