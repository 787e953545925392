package pipeline

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wcgan7/agentctl/internal/config"
	"github.com/wcgan7/agentctl/internal/git"
	"github.com/wcgan7/agentctl/internal/gitwt"
	"github.com/wcgan7/agentctl/internal/task"
	"github.com/wcgan7/agentctl/internal/worker"
)

func mustRunGit(t *testing.T, dir, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "command failed: %s %v\n%s", name, args, out)
}

// newTestRepo initializes a temporary git repository with one commit on
// main, matching the teacher's gitwt test fixture pattern.
func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustRunGit(t, dir, "git", "init", "-b", "main")
	mustRunGit(t, dir, "git", "config", "user.email", "test@example.com")
	mustRunGit(t, dir, "git", "config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# Test\n"), 0o644))
	mustRunGit(t, dir, "git", "add", ".")
	mustRunGit(t, dir, "git", "commit", "-m", "Initial commit")
	return dir
}

func testTask() task.Task {
	return task.Task{ID: "t1", Title: "Add endpoint", Type: task.TypeFeature, Priority: task.PriorityP1}
}

func newTestExecutor(t *testing.T, workers config.WorkersConfig, defaults config.DefaultsConfig, gitManager *gitwt.Manager) *WorkerExecutor {
	t.Helper()
	pg, err := NewPromptGenerator("")
	require.NoError(t, err)
	return &WorkerExecutor{
		Workers:           workers,
		Defaults:          defaults,
		ProjectLanguage:   "go",
		StateRoot:         t.TempDir(),
		Breakers:          worker.NewBreakerSet(),
		Prompts:           pg,
		Capabilities:      NewCapabilityDetector(),
		Git:               gitManager,
		HeartbeatInterval: 2 * time.Second,
		HeartbeatGrace:    5 * time.Second,
	}
}

func TestExecuteCommit_NoGitManagerIsNoopSuccess(t *testing.T) {
	e := newTestExecutor(t, config.WorkersConfig{}, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "commit", t.TempDir(), nil)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, task.EventWorkerSucceeded, res.Event)
}

func TestExecuteCommit_CommitsWorktreeChanges(t *testing.T) {
	repoDir := newTestRepo(t)
	client, err := git.NewGitClient(repoDir)
	require.NoError(t, err)
	mgr := gitwt.NewManager(client, t.TempDir())

	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "new.txt"), []byte("content\n"), 0o644))

	e := newTestExecutor(t, config.WorkersConfig{}, config.DefaultsConfig{}, mgr)
	res := e.Execute(context.Background(), testTask(), "commit", repoDir, nil)

	require.Equal(t, "success", res.Status)
	assert.Equal(t, task.EventWorkerSucceeded, res.Event)
	assert.NotEmpty(t, res.Commit)
}

func TestExecuteVerify_NoCommandsConfiguredSucceeds(t *testing.T) {
	e := newTestExecutor(t, config.WorkersConfig{}, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "verify", t.TempDir(), nil)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, task.EventVerificationSucceeded, res.Event)
}

func TestExecuteVerify_PassingCommandSucceeds(t *testing.T) {
	defaults := config.DefaultsConfig{Languages: map[string]config.LanguageConfig{
		"go": {Test: "true"},
	}}
	e := newTestExecutor(t, config.WorkersConfig{}, defaults, nil)
	res := e.Execute(context.Background(), testTask(), "verify", t.TempDir(), nil)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, task.EventVerificationSucceeded, res.Event)
	assert.Contains(t, res.Summary, "1/1")
}

func TestExecuteVerify_FailingCommandFails(t *testing.T) {
	defaults := config.DefaultsConfig{Languages: map[string]config.LanguageConfig{
		"go": {Test: "false"},
	}}
	e := newTestExecutor(t, config.WorkersConfig{}, defaults, nil)
	res := e.Execute(context.Background(), testTask(), "verify", t.TempDir(), nil)

	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, task.EventVerificationFailed, res.Event)
}

func TestExecuteWorkerStep_UnconfiguredProviderFails(t *testing.T) {
	workers := config.WorkersConfig{DefaultProvider: "claude"}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "implement", t.TempDir(), nil)

	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, task.EventWorkerFailed, res.Event)
}

func TestExecuteWorkerStep_SucceedsAndParsesArtifacts(t *testing.T) {
	workers := config.WorkersConfig{
		DefaultProvider: "claude",
		Providers: map[string]config.ProviderConfig{
			"claude": {CommandTemplate: `echo '{"summary":"did the work"}' > /dev/null; cat {prompt_file} > /dev/null; echo '{"summary":"did the work"}'`},
		},
	}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)
	projectDir := t.TempDir()
	res := e.Execute(context.Background(), testTask(), "analyze", projectDir, nil)

	require.Equal(t, "success", res.Status)
	assert.Equal(t, task.EventWorkerSucceeded, res.Event)
	assert.Equal(t, "did the work", res.Summary)
}

func TestExecuteWorkerStep_PlanWithEmptyResponseIsNoIntroducedChange(t *testing.T) {
	workers := config.WorkersConfig{
		DefaultProvider: "claude",
		Providers: map[string]config.ProviderConfig{
			"claude": {CommandTemplate: `cat {prompt_file} > /dev/null`},
		},
	}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "plan", t.TempDir(), nil)

	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, task.EventNoIntroducedChanges, res.Event)
}

func TestExecuteWorkerStep_NonZeroExitFails(t *testing.T) {
	workers := config.WorkersConfig{
		DefaultProvider: "claude",
		Providers: map[string]config.ProviderConfig{
			"claude": {CommandTemplate: `cat {prompt_file} > /dev/null; exit 1`},
		},
	}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "implement", t.TempDir(), nil)

	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, task.EventWorkerFailed, res.Event)
}

func TestBuildResult_MapsEveryOutcomeToItsEvent(t *testing.T) {
	e := newTestExecutor(t, config.WorkersConfig{}, config.DefaultsConfig{}, nil)
	res := &worker.Result{ResponseText: `{"summary":"ok"}`}

	cases := []struct {
		outcome    worker.Outcome
		wantStatus string
		wantEvent  task.EventKind
	}{
		{worker.OutcomeSucceeded, "success", task.EventWorkerSucceeded},
		{worker.OutcomeHumanBlocked, "blocked", task.EventHumanBlockers},
		{worker.OutcomeHeartbeatTimeout, "failed", task.EventHeartbeatTimeout},
		{worker.OutcomeShiftTimeout, "failed", task.EventShiftTimeout},
		{worker.OutcomeRateLimited, "failed", task.EventRateLimited},
		{worker.OutcomeNonZeroExit, "failed", task.EventWorkerFailed},
		{worker.OutcomeNoIntroducedChange, "failed", task.EventNoIntroducedChanges},
	}
	for _, tc := range cases {
		got := e.buildResult("implement", tc.outcome, res, nil)
		assert.Equal(t, tc.wantStatus, got.Status, "outcome %s", tc.outcome)
		assert.Equal(t, tc.wantEvent, got.Event, "outcome %s", tc.outcome)
	}
}

func TestBuildResult_SucceededSummaryComesFromParsedArtifact(t *testing.T) {
	e := newTestExecutor(t, config.WorkersConfig{}, config.DefaultsConfig{}, nil)
	res := &worker.Result{ResponseText: `{"summary":"parsed summary"}`}

	got := e.buildResult("implement", worker.OutcomeSucceeded, res, nil)
	assert.Equal(t, "parsed summary", got.Summary)
}

func TestBuildResult_NonStringSummaryArtifactDoesNotPanic(t *testing.T) {
	e := newTestExecutor(t, config.WorkersConfig{}, config.DefaultsConfig{}, nil)
	res := &worker.Result{ResponseText: `{"summary":3}`}

	assert.NotPanics(t, func() {
		got := e.buildResult("implement", worker.OutcomeSucceeded, res, nil)
		assert.Equal(t, "3", got.Summary)
	})
}

func TestExecuteWorkerStep_AllowlistViolationFails(t *testing.T) {
	repoDir := newTestRepo(t)
	workers := config.WorkersConfig{
		DefaultProvider: "claude",
		Providers: map[string]config.ProviderConfig{
			"claude": {CommandTemplate: `cat {prompt_file} > /dev/null; echo changed > {project_dir}/disallowed.txt`},
		},
	}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)

	tk := testTask()
	tk.AllowedFiles = []string{"allowed/**"}

	res := e.Execute(context.Background(), tk, "implement", repoDir, nil)

	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, task.EventAllowlistViolation, res.Event)
}

func TestExecuteWorkerStep_RateLimitedResponseRecordsCoordinatorState(t *testing.T) {
	workers := config.WorkersConfig{
		DefaultProvider: "claude",
		Providers: map[string]config.ProviderConfig{
			"claude": {CommandTemplate: `cat {prompt_file} > /dev/null; echo "rate limit reached, try again in 30 seconds"`},
		},
	}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "implement", t.TempDir(), nil)

	assert.Equal(t, "failed", res.Status)
	assert.Equal(t, task.EventRateLimited, res.Event)

	state := e.RateLimits.GetState(worker.ProviderClaude)
	require.NotNil(t, state)
	assert.True(t, state.IsLimited)
}

func TestExecuteWorkerStep_ReviewParsesFindings(t *testing.T) {
	workers := config.WorkersConfig{
		DefaultProvider: "claude",
		Providers: map[string]config.ProviderConfig{
			"claude": {CommandTemplate: `cat {prompt_file} > /dev/null; echo '{"findings":[{"severity":"high","category":"correctness","summary":"bug"}]}'`},
		},
	}
	e := newTestExecutor(t, workers, config.DefaultsConfig{}, nil)
	res := e.Execute(context.Background(), testTask(), "review", t.TempDir(), nil)

	require.Equal(t, "success", res.Status)
	findings, ok := res.Artifacts["findings"].([]task.ReviewFinding)
	require.True(t, ok)
	require.Len(t, findings, 1)
	assert.Equal(t, "bug", findings[0].Summary)
}

func TestChangeProbeFor_StepNameDependence(t *testing.T) {
	resEmpty := &worker.Result{ResponseText: "  "}
	resNonEmpty := &worker.Result{ResponseText: "a plan"}

	planProbe := changeProbeFor("plan", resEmpty, nil)
	require.NotNil(t, planProbe)
	changed, err := planProbe()
	require.NoError(t, err)
	assert.False(t, changed)

	planProbe2 := changeProbeFor("plan_impl", resNonEmpty, nil)
	changed, err = planProbe2()
	require.NoError(t, err)
	assert.True(t, changed)

	implementProbeNoChanges := changeProbeFor("implement", resNonEmpty, nil)
	changed, err = implementProbeNoChanges()
	require.NoError(t, err)
	assert.False(t, changed)

	implementProbeChanges := changeProbeFor("implement_fix", resNonEmpty, []string{"a.go"})
	changed, err = implementProbeChanges()
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Nil(t, changeProbeFor("verify", resNonEmpty, nil))
	assert.Nil(t, changeProbeFor("review", resNonEmpty, nil))
}

func TestSummaryString_HandlesNonStringValues(t *testing.T) {
	assert.Equal(t, "a string", summaryString("a string"))
	assert.Equal(t, "3", summaryString(3))
	assert.Equal(t, "<nil>", summaryString(nil))
}

func TestTimeoutFor_FallsBackWhenStepNotInTemplate(t *testing.T) {
	tk := task.Task{ID: "t1", Type: task.TypeFeature}
	got := timeoutFor(tk, "implement_fix")
	assert.Equal(t, time.Duration(defaultTimeoutSeconds)*time.Second, got)
}

func TestTimeoutFor_UsesTemplateStepTimeout(t *testing.T) {
	tk := task.Task{ID: "t1", Type: task.TypeFeature}
	tpl := Resolve(tk)
	require.NotEmpty(t, tpl)
	got := timeoutFor(tk, tpl[0].Name)
	assert.Equal(t, time.Duration(tpl[0].TimeoutSeconds)*time.Second, got)
}
