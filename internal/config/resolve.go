package config

import "errors"

var errNotANumber = errors.New("config: not a number")

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceFile    ConfigSource = "file"
	SourceEnv     ConfigSource = "env"
	SourceCLI     ConfigSource = "cli"
)

// ResolvedConfig holds the fully-resolved configuration with source
// tracking: CLI flags override environment variables, which override
// config.yaml, which overrides built-in defaults.
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource // dotted path, e.g. "orchestrator.concurrency"
	Path    string                  // path to the config file used (empty if none)
}

// CLIOverrides captures flag values that can override configuration. Nil
// fields mean "not set".
type CLIOverrides struct {
	Concurrency     *int
	AutoDeps        *bool
	DefaultProvider *string
	ProjectName     *string
}

// EnvFunc looks up environment variables. Default is os.LookupEnv, injected
// for testability.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration from all sources in priority order: CLI
// flags > environment variables > config file > defaults.
func Resolve(defaults *Config, fileConfig *Config, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{Config: &Config{}, Sources: make(map[string]ConfigSource)}

	if defaults == nil {
		defaults = NewDefaults()
	}
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	resolveFromDefaults(rc, defaults)
	if fileConfig != nil {
		resolveFromFile(rc, fileConfig)
	}
	resolveFromEnv(rc, envFn)
	resolveFromCLI(rc, overrides)

	return rc
}

func resolveFromDefaults(rc *ResolvedConfig, d *Config) {
	rc.Config.SchemaVersion = d.SchemaVersion
	rc.Config.Orchestrator = d.Orchestrator
	rc.Config.Defaults = d.Defaults
	rc.Config.Project = d.Project
	rc.Config.Pinned = append([]PinnedProject(nil), d.Pinned...)
	rc.Config.Workers = copyWorkers(d.Workers)

	rc.Sources["orchestrator.concurrency"] = SourceDefault
	rc.Sources["orchestrator.auto_deps"] = SourceDefault
	rc.Sources["orchestrator.max_review_attempts"] = SourceDefault
	rc.Sources["workers.default_provider"] = SourceDefault
	rc.Sources["project.name"] = SourceDefault
	rc.Sources["project.language"] = SourceDefault
}

func resolveFromFile(rc *ResolvedConfig, f *Config) {
	if f.SchemaVersion != 0 {
		rc.Config.SchemaVersion = f.SchemaVersion
	}

	o := &rc.Config.Orchestrator
	if f.Orchestrator.Concurrency != 0 {
		o.Concurrency = f.Orchestrator.Concurrency
		rc.Sources["orchestrator.concurrency"] = SourceFile
	}
	o.AutoDeps = f.Orchestrator.AutoDeps
	rc.Sources["orchestrator.auto_deps"] = SourceFile
	if f.Orchestrator.MaxReviewAttempts != 0 {
		o.MaxReviewAttempts = f.Orchestrator.MaxReviewAttempts
		rc.Sources["orchestrator.max_review_attempts"] = SourceFile
	}

	if f.Workers.DefaultProvider != "" {
		rc.Config.Workers.DefaultProvider = f.Workers.DefaultProvider
		rc.Sources["workers.default_provider"] = SourceFile
	}
	for step, provider := range f.Workers.StepOverrides {
		if rc.Config.Workers.StepOverrides == nil {
			rc.Config.Workers.StepOverrides = map[string]string{}
		}
		rc.Config.Workers.StepOverrides[step] = provider
		rc.Sources["workers.step_overrides."+step] = SourceFile
	}
	for name, pc := range f.Workers.Providers {
		if rc.Config.Workers.Providers == nil {
			rc.Config.Workers.Providers = map[string]ProviderConfig{}
		}
		merged := rc.Config.Workers.Providers[name]
		mergeProviderConfig(&merged, pc)
		rc.Config.Workers.Providers[name] = merged
		rc.Sources["workers.providers."+name] = SourceFile
	}

	if f.Defaults.QualityGate != (rc.Config.Defaults.QualityGate) {
		rc.Config.Defaults.QualityGate = f.Defaults.QualityGate
		rc.Sources["defaults.quality_gate"] = SourceFile
	}
	for lang, lc := range f.Defaults.Languages {
		if rc.Config.Defaults.Languages == nil {
			rc.Config.Defaults.Languages = map[string]LanguageConfig{}
		}
		rc.Config.Defaults.Languages[lang] = lc
		rc.Sources["defaults.languages."+lang] = SourceFile
	}

	if f.Project.Name != "" {
		rc.Config.Project.Name = f.Project.Name
		rc.Sources["project.name"] = SourceFile
	}
	if f.Project.Language != "" {
		rc.Config.Project.Language = f.Project.Language
		rc.Sources["project.language"] = SourceFile
	}
	if f.Project.RootDir != "" {
		rc.Config.Project.RootDir = f.Project.RootDir
		rc.Sources["project.root_dir"] = SourceFile
	}

	if len(f.Pinned) > 0 {
		rc.Config.Pinned = append([]PinnedProject(nil), f.Pinned...)
		rc.Sources["pinned"] = SourceFile
	}
}

// Environment variable mapping:
//
//	AGENTCTL_CONCURRENCY       -> orchestrator.concurrency
//	AGENTCTL_AUTO_DEPS         -> orchestrator.auto_deps
//	AGENTCTL_DEFAULT_PROVIDER -> workers.default_provider
//	AGENTCTL_PROJECT_NAME      -> project.name
func resolveFromEnv(rc *ResolvedConfig, envFn EnvFunc) {
	if val, ok := envFn("AGENTCTL_CONCURRENCY"); ok {
		if n, err := parsePositiveInt(val); err == nil {
			rc.Config.Orchestrator.Concurrency = n
			rc.Sources["orchestrator.concurrency"] = SourceEnv
		}
	}
	if val, ok := envFn("AGENTCTL_AUTO_DEPS"); ok {
		rc.Config.Orchestrator.AutoDeps = val == "true" || val == "1"
		rc.Sources["orchestrator.auto_deps"] = SourceEnv
	}
	if val, ok := envFn("AGENTCTL_DEFAULT_PROVIDER"); ok {
		rc.Config.Workers.DefaultProvider = val
		rc.Sources["workers.default_provider"] = SourceEnv
	}
	if val, ok := envFn("AGENTCTL_PROJECT_NAME"); ok {
		rc.Config.Project.Name = val
		rc.Sources["project.name"] = SourceEnv
	}
}

func resolveFromCLI(rc *ResolvedConfig, overrides *CLIOverrides) {
	if overrides.Concurrency != nil {
		rc.Config.Orchestrator.Concurrency = *overrides.Concurrency
		rc.Sources["orchestrator.concurrency"] = SourceCLI
	}
	if overrides.AutoDeps != nil {
		rc.Config.Orchestrator.AutoDeps = *overrides.AutoDeps
		rc.Sources["orchestrator.auto_deps"] = SourceCLI
	}
	if overrides.DefaultProvider != nil {
		rc.Config.Workers.DefaultProvider = *overrides.DefaultProvider
		rc.Sources["workers.default_provider"] = SourceCLI
	}
	if overrides.ProjectName != nil {
		rc.Config.Project.Name = *overrides.ProjectName
		rc.Sources["project.name"] = SourceCLI
	}
}

func copyWorkers(src WorkersConfig) WorkersConfig {
	out := WorkersConfig{DefaultProvider: src.DefaultProvider}
	if src.StepOverrides != nil {
		out.StepOverrides = make(map[string]string, len(src.StepOverrides))
		for k, v := range src.StepOverrides {
			out.StepOverrides[k] = v
		}
	}
	if src.Providers != nil {
		out.Providers = make(map[string]ProviderConfig, len(src.Providers))
		for k, v := range src.Providers {
			out.Providers[k] = v
		}
	}
	return out
}

// mergeProviderConfig overlays non-zero fields of src onto dst, field by
// field, so a partial [workers.providers.<name>] override in config.yaml
// doesn't blow away the rest of a provider's default parameters.
func mergeProviderConfig(dst *ProviderConfig, src ProviderConfig) {
	if src.CommandTemplate != "" {
		dst.CommandTemplate = src.CommandTemplate
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.ReasoningEffort != "" {
		dst.ReasoningEffort = src.ReasoningEffort
	}
	if src.Effort != "" {
		dst.Effort = src.Effort
	}
	if src.Endpoint != "" {
		dst.Endpoint = src.Endpoint
	}
	if src.Temperature != nil {
		dst.Temperature = src.Temperature
	}
	if src.NumCtx != nil {
		dst.NumCtx = src.NumCtx
	}
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errNotANumber
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
