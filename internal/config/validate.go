package config

import (
	"fmt"
)

// ValidationSeverity indicates whether a validation issue is an error or
// warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g. "orchestrator.concurrency"
	Message  string
}

// ValidationResult holds all validation findings.
type ValidationResult struct {
	Issues []ValidationIssue
}

func (vr *ValidationResult) HasErrors() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) HasWarnings() bool {
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

func (vr *ValidationResult) Warnings() []ValidationIssue {
	var warns []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == SeverityWarning {
			warns = append(warns, issue)
		}
	}
	return warns
}

var recognizedProviders = map[string]bool{
	"claude": true,
	"codex":  true,
	"ollama": true,
}

// Validate checks the configuration for correctness (spec.md §7: "invalid
// state schema" is one of the orchestrator CLI's nonzero-exit conditions).
func Validate(cfg *Config) *ValidationResult {
	vr := &ValidationResult{}
	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	if cfg.SchemaVersion > SchemaVersion {
		addError(vr, "schema_version", fmt.Sprintf("config targets schema_version %d, this binary understands up to %d", cfg.SchemaVersion, SchemaVersion))
	}

	validateOrchestrator(vr, &cfg.Orchestrator)
	validateWorkers(vr, &cfg.Workers)
	validateProject(vr, &cfg.Project)
	validatePinned(vr, cfg.Pinned)

	return vr
}

func validateOrchestrator(vr *ValidationResult, o *OrchestratorConfig) {
	if o.Concurrency < 1 {
		addError(vr, "orchestrator.concurrency", "must be at least 1")
	}
	if o.MaxReviewAttempts < 1 {
		addError(vr, "orchestrator.max_review_attempts", "must be at least 1")
	}
}

func validateWorkers(vr *ValidationResult, w *WorkersConfig) {
	if w.DefaultProvider != "" && !recognizedProviders[w.DefaultProvider] {
		addError(vr, "workers.default_provider", fmt.Sprintf("unrecognized provider %q; must be one of: claude, codex, ollama", w.DefaultProvider))
	}
	for step, provider := range w.StepOverrides {
		if !recognizedProviders[provider] {
			addError(vr, "workers.step_overrides."+step, fmt.Sprintf("unrecognized provider %q", provider))
		}
	}
	for name, pc := range w.Providers {
		prefix := "workers.providers." + name
		if !recognizedProviders[name] {
			addWarning(vr, prefix, fmt.Sprintf("provider name %q is not one of the built-in providers (claude, codex, ollama); it will be unreachable unless a step_override names it", name))
			continue
		}
		switch name {
		case "ollama":
			if pc.Endpoint == "" {
				addError(vr, prefix+".endpoint", "must not be empty for provider ollama")
			}
			if pc.Model == "" {
				addError(vr, prefix+".model", "must not be empty for provider ollama")
			}
			if pc.Temperature != nil && (*pc.Temperature < 0 || *pc.Temperature > 2) {
				addWarning(vr, prefix+".temperature", "outside the conventional 0-2 range")
			}
		default:
			if pc.CommandTemplate == "" {
				addError(vr, prefix+".command_template", fmt.Sprintf("must not be empty for provider %s", name))
			}
		}
	}
}

func validateProject(vr *ValidationResult, p *ProjectConfig) {
	if p.Name == "" {
		addError(vr, "project.name", "must not be empty")
	}
}

func validatePinned(vr *ValidationResult, pinned []PinnedProject) {
	seen := make(map[string]bool, len(pinned))
	for i, p := range pinned {
		prefix := fmt.Sprintf("pinned[%d]", i)
		if p.Name == "" {
			addError(vr, prefix+".name", "must not be empty")
			continue
		}
		if seen[p.Name] {
			addError(vr, prefix+".name", fmt.Sprintf("duplicate pinned project name %q", p.Name))
		}
		seen[p.Name] = true
		if p.Path == "" {
			addError(vr, prefix+".path", "must not be empty")
		}
	}
}

func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{Severity: SeverityError, Field: field, Message: message})
}

func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{Severity: SeverityWarning, Field: field, Message: message})
}
