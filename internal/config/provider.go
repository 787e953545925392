package config

// ResolveProvider returns the provider name and parameters that should run
// stepName, applying spec.md §3's routing precedence: a per-step override in
// workers.step_overrides wins, otherwise workers.default_provider. The
// second return value is false if the resolved provider has no entry under
// workers.providers (a misconfiguration Validate would already have
// flagged, but callers building a worker.Request still need to check).
func (w WorkersConfig) ResolveProvider(stepName string) (name string, pc ProviderConfig, ok bool) {
	name = w.DefaultProvider
	if override, has := w.StepOverrides[stepName]; has {
		name = override
	}
	pc, ok = w.Providers[name]
	return name, pc, ok
}
