// Package gitwt manages the per-task git worktrees the orchestrator runs
// each task's pipeline steps inside (spec.md §4.9). The teacher repo has no
// worktree code of its own; this package is grounded on
// internal/git/client.go's exec.Command plumbing style and
// internal/pipeline's deleted branch.go's template/slugify naming pattern.
package gitwt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wcgan7/agentctl/internal/git"
)

var nonAlphanumRE = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumRE.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// TaskBranch returns the branch name a task's worktree is created on
// (spec.md §4.9 "Create": `task-<task_id>`). The task id is slugified so
// free-form ids (titles, UUIDs with odd casing) always yield a valid git
// ref name.
func TaskBranch(taskID string) string { return "task-" + slugify(taskID) }

// RunBranchName returns the orchestrator's lazily-created run branch name
// (spec.md §4.9 "Create": `orchestrator-run-<epoch>`).
func RunBranchName(epoch int64) string { return fmt.Sprintf("orchestrator-run-%d", epoch) }

// Manager creates, commits to, merges, and tears down per-task worktrees
// under <state_root>/worktrees/<task_id>.
type Manager struct {
	mainRepo   *git.GitClient
	stateRoot  string
	runBranch  string
	nowFn      func() time.Time

	mu         sync.Mutex // protects lazy run-branch init
	mergeMu    sync.Mutex // global merge mutex (spec §5 "Shared-resource discipline")
}

// NewManager constructs a Manager. mainRepo must be a GitClient rooted at
// the project's main worktree.
func NewManager(mainRepo *git.GitClient, stateRoot string) *Manager {
	return &Manager{mainRepo: mainRepo, stateRoot: stateRoot, nowFn: time.Now}
}

// worktreeDir returns the filesystem path for a task's worktree.
func (m *Manager) worktreeDir(taskID string) string {
	return filepath.Join(m.stateRoot, "worktrees", taskID)
}

// MainDir returns the main worktree's filesystem path, used as the
// project_dir for steps that run against the merged run branch rather than
// a task's own worktree (e.g. resolve_merge).
func (m *Manager) MainDir() string { return m.mainRepo.WorkDir }

// EnsureRunBranch creates the orchestrator's run branch on first use,
// checked out in the main worktree (spec.md §4.9 "Create").
func (m *Manager) EnsureRunBranch(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runBranch != "" {
		return m.runBranch, nil
	}
	name := RunBranchName(m.nowFn().Unix())
	current, err := m.mainRepo.CurrentBranch(ctx)
	if err != nil {
		return "", fmt.Errorf("gitwt: ensure run branch: %w", err)
	}
	if err := m.mainRepo.CreateBranch(ctx, name, current); err != nil {
		return "", fmt.Errorf("gitwt: ensure run branch: %w", err)
	}
	m.runBranch = name
	return name, nil
}

// Create adds a worktree for taskID on branch task-<taskID> based off the
// run branch, returning the worktree's filesystem path.
func (m *Manager) Create(ctx context.Context, taskID string) (dir string, branch string, err error) {
	runBranch, err := m.EnsureRunBranch(ctx)
	if err != nil {
		return "", "", err
	}
	dir = m.worktreeDir(taskID)
	branch = TaskBranch(taskID)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", "", fmt.Errorf("gitwt: create worktree dir: %w", err)
	}
	if err := m.mainRepo.WorktreeAdd(ctx, dir, branch, runBranch); err != nil {
		return "", "", fmt.Errorf("gitwt: create worktree: %w", err)
	}
	return dir, branch, nil
}

// CommitTask commits all changes in the task's worktree with a message
// derived from the task id and title (spec.md §4.9 "Commit-in-worktree").
func (m *Manager) CommitTask(ctx context.Context, worktreeDir, taskID, title string) (sha string, err error) {
	wt := &git.GitClient{WorkDir: worktreeDir, GitBin: m.mainRepo.GitBin}
	message := fmt.Sprintf("task(%s): %s", taskID, truncate(title, 60))
	sha, err = wt.CommitAllowEmpty(ctx, message)
	if err != nil {
		return "", fmt.Errorf("gitwt: commit task %s: %w", taskID, err)
	}
	return sha, nil
}

// MergeResult is the outcome of merging a task branch into the run branch.
type MergeResult struct {
	Merged         bool
	ConflictFiles  []string
	ConflictedDirs map[string]string // file -> content at conflict time
}

// Merge merges the task's branch into the run branch under the global merge
// mutex. On conflict the conflicted files' contents are captured and
// returned (without resolving anything) so the caller can dispatch a
// resolve_merge step (spec.md §4.9 "Merge").
func (m *Manager) Merge(ctx context.Context, taskBranch string) (MergeResult, error) {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	runBranch, err := m.EnsureRunBranch(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	if err := m.mainRepo.Checkout(ctx, runBranch); err != nil {
		return MergeResult{}, fmt.Errorf("gitwt: merge: checkout run branch: %w", err)
	}

	err = m.mainRepo.MergeNoEdit(ctx, taskBranch)
	if err == nil {
		return MergeResult{Merged: true}, nil
	}

	var conflictErr *git.MergeConflictError
	if !asMergeConflict(err, &conflictErr) {
		return MergeResult{}, fmt.Errorf("gitwt: merge %s: %w", taskBranch, err)
	}

	contents := make(map[string]string, len(conflictErr.Files))
	for _, f := range conflictErr.Files {
		data, readErr := os.ReadFile(filepath.Join(m.mainRepo.WorkDir, f))
		if readErr == nil {
			contents[f] = string(data)
		}
	}
	return MergeResult{Merged: false, ConflictFiles: conflictErr.Files, ConflictedDirs: contents}, nil
}

func asMergeConflict(err error, target **git.MergeConflictError) bool {
	for err != nil {
		if mc, ok := err.(*git.MergeConflictError); ok {
			*target = mc
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// AbortMerge runs `git merge --abort` on the run branch after a failed
// resolve_merge attempt.
func (m *Manager) AbortMerge(ctx context.Context) error {
	return m.mainRepo.MergeAbort(ctx)
}

// CommitMergeResolution stages and commits manually resolved conflict
// files, completing a merge the resolve_merge step fixed.
func (m *Manager) CommitMergeResolution(ctx context.Context, message string) (string, error) {
	sha, err := m.mainRepo.CommitAllowEmpty(ctx, message)
	if err != nil {
		return "", fmt.Errorf("gitwt: commit merge resolution: %w", err)
	}
	return sha, nil
}

// Cleanup always removes the worktree directory; the branch is deleted only
// when preserveBranch is false (spec.md §4.9 "Cleanup": preserved only on
// unresolved merge conflict).
func (m *Manager) Cleanup(ctx context.Context, taskID, branch string, preserveBranch bool) error {
	dir := m.worktreeDir(taskID)
	if err := m.mainRepo.WorktreeRemove(ctx, dir); err != nil {
		return fmt.Errorf("gitwt: cleanup: remove worktree: %w", err)
	}
	if preserveBranch {
		return nil
	}
	if err := m.mainRepo.DeleteBranch(ctx, branch); err != nil {
		return fmt.Errorf("gitwt: cleanup: delete branch: %w", err)
	}
	return nil
}

// SweepOrphans removes every subdirectory of <state_root>/worktrees and
// deletes its matching task-<id> branch, used at orchestrator startup
// recovery (spec.md §4.6 "Startup recovery" (b)).
func (m *Manager) SweepOrphans(ctx context.Context) []error {
	root := filepath.Join(m.stateRoot, "worktrees")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return []error{fmt.Errorf("gitwt: sweep orphans: read dir: %w", err)}
	}

	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		taskID := e.Name()
		dir := filepath.Join(root, taskID)
		if err := m.mainRepo.WorktreeRemove(ctx, dir); err != nil {
			errs = append(errs, fmt.Errorf("gitwt: sweep %s: %w", taskID, err))
		}
		if err := m.mainRepo.DeleteBranch(ctx, TaskBranch(taskID)); err != nil {
			errs = append(errs, fmt.Errorf("gitwt: sweep %s branch: %w", taskID, err))
		}
	}
	return errs
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
