package e2e_test

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// testProject is an isolated project directory with .agentctl/config.yaml
// and a PATH-mounted mock worker binary.
type testProject struct {
	Dir        string
	BinaryPath string
	t          *testing.T
}

// newTestProject builds the agentctl binary, mounts mock worker scripts into
// a fresh temp directory's PATH, and returns a testProject ready for use.
func newTestProject(t *testing.T) *testProject {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("E2E tests with shell mock workers are not supported on Windows")
	}

	dir := t.TempDir()

	binary := filepath.Join(dir, "agentctl")
	build := exec.Command("go", "build", "-o", binary, "./cmd/agentctl")
	build.Dir = projectRoot()
	out, err := build.CombinedOutput()
	require.NoError(t, err, "building agentctl: %s", string(out))

	writeMockWorkers(t, filepath.Join(dir, "mock-agents"))

	return &testProject{Dir: dir, BinaryPath: binary, t: t}
}

// projectRoot returns the absolute path to the root of the repository. It
// uses runtime.Caller(0) to find this source file's location and navigates
// two directories up (tests/e2e/ -> tests/ -> repo root).
func projectRoot() string {
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(thisFile), "..", "..")
}

// mockWorkerScript is a stub worker binary understood by internal/worker's
// CLI dispatch: it echoes a fixed, recognisable line to stdout and exits 0,
// enough for pipeline steps to treat the step as having produced output.
const mockWorkerScript = `#!/bin/sh
echo "mock worker ok: $*"
exit 0
`

// writeMockWorkers writes one identical stub script under each of the
// provider names exercised by these tests (claude, codex) so config.yaml's
// command_template can resolve to a real, fast, deterministic executable.
func writeMockWorkers(t *testing.T, destDir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	for _, name := range []string{"claude", "codex"} {
		path := filepath.Join(destDir, name)
		require.NoError(t, os.WriteFile(path, []byte(mockWorkerScript), 0o755))
	}
}

// writeConfig writes content to .agentctl/config.yaml in tp.Dir.
func (tp *testProject) writeConfig(content string) {
	tp.t.Helper()
	dir := filepath.Join(tp.Dir, ".agentctl")
	require.NoError(tp.t, os.MkdirAll(dir, 0o755))
	err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644)
	require.NoError(tp.t, err)
}

// run creates an exec.Cmd for agentctl with the mock workers prepended to PATH.
func (tp *testProject) run(args ...string) *exec.Cmd {
	cmd := exec.Command(tp.BinaryPath, args...)
	cmd.Dir = tp.Dir
	mockPath := filepath.Join(tp.Dir, "mock-agents")
	cmd.Env = append(os.Environ(),
		"PATH="+mockPath+string(os.PathListSeparator)+os.Getenv("PATH"),
		"NO_COLOR=1",
		"AGENTCTL_LOG_FORMAT=json",
	)
	return cmd
}

// runExpectSuccess runs agentctl and asserts exit code 0. Returns combined
// stdout+stderr output.
func (tp *testProject) runExpectSuccess(args ...string) string {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.NoError(tp.t, err, "agentctl %v failed:\n%s", args, string(out))
	return string(out)
}

// runExpectFailure runs agentctl and asserts a non-zero exit code. Returns
// combined output and the exit code.
func (tp *testProject) runExpectFailure(args ...string) (string, int) {
	tp.t.Helper()
	cmd := tp.run(args...)
	out, err := cmd.CombinedOutput()
	require.Error(tp.t, err, "agentctl %v expected to fail but succeeded:\n%s", args, string(out))
	var exitErr *exec.ExitError
	require.True(tp.t, errors.As(err, &exitErr), "expected *exec.ExitError, got %T: %v", err, err)
	return string(out), exitErr.ExitCode()
}

// initGitRepo initialises a git repository in dir with an initial commit.
func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	setupCmds := [][]string{
		{"git", "init"},
		{"git", "config", "user.email", "test@example.com"},
		{"git", "config", "user.name", "Test User"},
	}
	for _, args := range setupCmds {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "%v failed: %s", args, string(out))
	}

	keepFile := filepath.Join(dir, ".gitkeep")
	require.NoError(t, os.WriteFile(keepFile, []byte(""), 0o644))
	for _, args := range [][]string{
		{"git", "add", ".gitkeep"},
		{"git", "commit", "-m", "init"},
	} {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "%v failed: %s", args, string(out))
	}
}

// minimalConfig returns a minimal config.yaml pointing at the mock claude
// worker mounted onto PATH by writeMockWorkers.
func minimalConfig() string {
	return `schema_version: 1
project:
  name: test-project
  language: go
  root_dir: .
orchestrator:
  concurrency: 1
  auto_deps: false
workers:
  default_provider: claude
  providers:
    claude:
      command_template: "claude {{.Prompt}}"
`
}

// invalidConfig returns a config.yaml with a YAML syntax error.
func invalidConfig() string {
	return "schema_version: [this is not valid\n"
}
