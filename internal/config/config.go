// Package config is the ambient settings layer: config.yaml (schema_version
// + orchestrator/workers/defaults/project/pinned, spec.md §6), resolved
// against built-in defaults, environment variables, and CLI flags in that
// priority order, with hot-reload via fsnotify.
package config

import "github.com/wcgan7/agentctl/internal/task"

// SchemaVersion is the current config.yaml schema_version this binary
// understands; it matches the store's schema version, which store.Bootstrap
// checks against the same file. Validate reports an error for a file that
// declares a newer schema_version; LoadFromFile does not check it.
const SchemaVersion = 3

// Config is the top-level structure mapping to config.yaml.
type Config struct {
	SchemaVersion int                `yaml:"schema_version"`
	Orchestrator  OrchestratorConfig `yaml:"orchestrator"`
	Workers       WorkersConfig      `yaml:"workers"`
	Defaults      DefaultsConfig     `yaml:"defaults"`
	Project       ProjectConfig      `yaml:"project"`
	Pinned        []PinnedProject    `yaml:"pinned,omitempty"`
}

// OrchestratorConfig maps to the `orchestrator:` section (spec.md §3
// "Config — persistent project settings: orchestrator (concurrency,
// auto_deps, max_review_attempts)").
type OrchestratorConfig struct {
	Concurrency       int  `yaml:"concurrency"`
	AutoDeps          bool `yaml:"auto_deps"`
	MaxReviewAttempts int  `yaml:"max_review_attempts"`
}

// WorkersConfig maps to the `workers:` section: default provider, per-step
// routing overrides, and per-provider parameters.
type WorkersConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	StepOverrides   map[string]string         `yaml:"step_overrides,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig holds one provider's connection/invocation parameters. Not
// every field applies to every provider: CommandTemplate/ReasoningEffort/
// Effort are for the "codex"/"claude" subprocess providers; Endpoint/
// Temperature/NumCtx are for the "ollama" HTTP provider (spec.md §6).
type ProviderConfig struct {
	CommandTemplate string   `yaml:"command_template,omitempty"`
	Model           string   `yaml:"model,omitempty"`
	ReasoningEffort string   `yaml:"reasoning_effort,omitempty"`
	Effort          string   `yaml:"effort,omitempty"`
	Endpoint        string   `yaml:"endpoint,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	NumCtx          *int     `yaml:"num_ctx,omitempty"`
}

// DefaultsConfig maps to the `defaults:` section: the quality-gate
// thresholds new tasks inherit when they don't specify their own, plus the
// per-language command map used by verify/lint/typecheck/format steps.
type DefaultsConfig struct {
	QualityGate task.QualityGate          `yaml:"quality_gate"`
	Languages   map[string]LanguageConfig `yaml:"languages,omitempty"`
}

// LanguageConfig is one language's command map (spec.md §3 "per-language
// command map (test/lint/typecheck/format)").
type LanguageConfig struct {
	Test      string `yaml:"test,omitempty"`
	Lint      string `yaml:"lint,omitempty"`
	Typecheck string `yaml:"typecheck,omitempty"`
	Format    string `yaml:"format,omitempty"`
}

// ProjectConfig maps to the `project:` section: identity and location
// settings for the project agentctl is orchestrating work in.
type ProjectConfig struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
	RootDir  string `yaml:"root_dir,omitempty"`
}

// PinnedProject is one entry of the `pinned:` list: a shortcut letting the
// CLI switch between multiple projects' state directories by name.
type PinnedProject struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}
