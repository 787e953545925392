package pipeline

import "github.com/bmatcuk/doublestar/v4"

// CheckAllowlist enforces task.Task.AllowedFiles/DisallowedFiles against the
// files a step actually touched (SPEC_FULL.md §12 decision 2: restore the
// older runner's allowlist enforcement). A task with no AllowedFiles entries
// places no positive restriction; DisallowedFiles always applies.
func CheckAllowlist(changed []string, allowed, disallowed []string) (violatingFile string, ok bool) {
	for _, f := range changed {
		for _, pat := range disallowed {
			if matched, _ := doublestar.Match(pat, f); matched {
				return f, false
			}
		}
		if len(allowed) == 0 {
			continue
		}
		matched := false
		for _, pat := range allowed {
			if m, _ := doublestar.Match(pat, f); m {
				matched = true
				break
			}
		}
		if !matched {
			return f, false
		}
	}
	return "", true
}
