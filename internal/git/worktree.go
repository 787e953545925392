package git

import (
	"context"
	"fmt"
	"strings"
)

// WorktreeAdd runs `git worktree add <dir> -b <branch> <base>` in the
// GitClient's working directory, which must be the main worktree (spec.md
// §4.9 "Create").
func (g *GitClient) WorktreeAdd(ctx context.Context, dir, branch, base string) error {
	if _, err := g.run(ctx, "worktree", "add", dir, "-b", branch, base); err != nil {
		return fmt.Errorf("git: worktree add %s -b %s %s: %w", dir, branch, base, err)
	}
	return nil
}

// WorktreeRemove runs `git worktree remove --force <dir>`. A missing
// worktree is not an error: cleanup paths call this unconditionally (spec.md
// §4.9 "Cleanup").
func (g *GitClient) WorktreeRemove(ctx context.Context, dir string) error {
	if _, err := g.run(ctx, "worktree", "remove", "--force", dir); err != nil {
		if strings.Contains(err.Error(), "is not a working tree") || strings.Contains(err.Error(), "not a valid path") {
			return nil
		}
		return fmt.Errorf("git: worktree remove %s: %w", dir, err)
	}
	return nil
}

// DeleteBranch runs `git branch -D <name>`. A missing branch is not an
// error.
func (g *GitClient) DeleteBranch(ctx context.Context, name string) error {
	if _, err := g.run(ctx, "branch", "-D", name); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("git: branch -D %s: %w", name, err)
	}
	return nil
}

// CommitAllowEmpty runs `git add -A` followed by `git commit --allow-empty
// -m <message>` and returns the resulting commit SHA (spec.md §4.9
// "Commit-in-worktree").
func (g *GitClient) CommitAllowEmpty(ctx context.Context, message string) (string, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("git: add -A: %w", err)
	}
	if _, err := g.run(ctx, "commit", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("git: commit: %w", err)
	}
	return g.HeadCommit(ctx)
}

// MergeNoEdit runs `git merge <branch> --no-edit`. On conflict it returns a
// *MergeConflictError with the conflicted file list (spec.md §4.9 "Merge").
func (g *GitClient) MergeNoEdit(ctx context.Context, branch string) error {
	if _, err := g.run(ctx, "merge", branch, "--no-edit"); err != nil {
		files, listErr := g.conflictedFiles(ctx)
		if listErr == nil && len(files) > 0 {
			return &MergeConflictError{Branch: branch, Files: files, Err: err}
		}
		return fmt.Errorf("git: merge %s: %w", branch, err)
	}
	return nil
}

// MergeAbort runs `git merge --abort`.
func (g *GitClient) MergeAbort(ctx context.Context) error {
	if _, err := g.run(ctx, "merge", "--abort"); err != nil {
		return fmt.Errorf("git: merge --abort: %w", err)
	}
	return nil
}

// conflictedFiles runs `git diff --name-only --diff-filter=U`.
func (g *GitClient) conflictedFiles(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// MergeConflictError reports a failed merge along with the conflicted file
// list, so callers can capture their contents before deciding whether to
// dispatch a resolve_merge step.
type MergeConflictError struct {
	Branch string
	Files  []string
	Err    error
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("git: merge %s: conflict in %d file(s): %v", e.Branch, len(e.Files), e.Err)
}

func (e *MergeConflictError) Unwrap() error { return e.Err }
