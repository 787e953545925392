package config

import "github.com/wcgan7/agentctl/internal/task"

// NewDefaults returns a Config populated with agentctl's built-in defaults
// (spec.md §5 "default 3 concurrent" and §4.5 review-loop defaults).
func NewDefaults() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Orchestrator: OrchestratorConfig{
			Concurrency:       3,
			AutoDeps:          false,
			MaxReviewAttempts: 2,
		},
		Workers: WorkersConfig{
			DefaultProvider: "claude",
			StepOverrides:   map[string]string{},
			Providers: map[string]ProviderConfig{
				"claude": {CommandTemplate: "claude --print {prompt_file}", Effort: "medium"},
				"codex":  {CommandTemplate: "codex exec {prompt_file}", ReasoningEffort: "medium"},
				"ollama": {Endpoint: "http://localhost:11434", Model: "llama3"},
			},
		},
		Defaults: DefaultsConfig{
			QualityGate: task.QualityGate{Critical: 0, High: 0, Medium: 2, Low: 5},
			Languages:   map[string]LanguageConfig{},
		},
		Project: ProjectConfig{Language: "go"},
	}
}
