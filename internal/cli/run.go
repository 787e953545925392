package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wcgan7/agentctl/internal/git"
	"github.com/wcgan7/agentctl/internal/gitwt"
	"github.com/wcgan7/agentctl/internal/logging"
	"github.com/wcgan7/agentctl/internal/orchestrator"
	"github.com/wcgan7/agentctl/internal/pipeline"
)

// runCmd implements "agentctl run": the long-running orchestrator loop
// (spec.md §4.6). It wires internal/config's resolved settings into
// internal/store's collections, builds the pipeline.Engine from a
// worker-backed StepExecutor and a store-polling GateWaiter, and hands both
// to an orchestrator.Orchestrator, which it runs until SIGINT/SIGTERM.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator loop",
	Long: `Run starts the orchestrator's main loop: startup recovery, then
repeatedly claiming and dispatching runnable tasks through their pipeline
until interrupted with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runOrchestrator,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOrchestrator(cmd *cobra.Command, args []string) error {
	resolved, stateRoot, err := resolveStateRoot()
	if err != nil {
		return err
	}

	repos, err := openRepositories(stateRoot)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer closeRepositories(repos)

	events, err := openEventLog(stateRoot)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}

	projectDir := resolved.Config.Project.RootDir
	if projectDir == "" {
		projectDir = "."
	}

	var wt *gitwt.Manager
	if gitClient, gitErr := git.NewGitClient(projectDir); gitErr == nil {
		wt = gitwt.NewManager(gitClient, stateRoot)
	} else {
		logging.New("run").Warn("project is not a git repository; running steps in place", "error", gitErr)
	}

	executor := pipeline.NewWorkerExecutor(
		resolved.Config.Workers, resolved.Config.Defaults,
		resolved.Config.Project.Language, stateRoot, wt,
	)
	gate := pipeline.NewTaskGateWaiter(repos.Tasks)
	engine := pipeline.NewEngine(executor, gate)

	orchCfg := orchestrator.DefaultConfig(projectDir)
	orchCfg.Concurrency = resolved.Config.Orchestrator.Concurrency
	orchCfg.AutoDeps = resolved.Config.Orchestrator.AutoDeps

	orch := orchestrator.New(repos, events, engine, wt, nil, nil, orchCfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.StartupRecovery(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "agentctl: orchestrating %s (concurrency %d) -- Ctrl-C to stop\n",
		resolved.Config.Project.Name, orchCfg.Concurrency)

	err = orch.Run(ctx)
	if err != nil && err != context.Canceled {
		return fmt.Errorf("orchestrator loop: %w", err)
	}
	return nil
}

// closeRepositories closes every collection opened by openRepositories,
// logging (not failing) individual close errors -- the loop has already
// ended by the time this runs.
func closeRepositories(repos orchestrator.Repositories) {
	logger := logging.New("run")
	closers := []struct {
		name string
		c    interface{ Close() error }
	}{
		{"tasks", repos.Tasks},
		{"runs", repos.Runs},
		{"review_cycles", repos.ReviewCycles},
		{"agents", repos.Agents},
		{"quick_actions", repos.QuickActions},
		{"plan_revisions", repos.PlanRevisions},
		{"plan_refine_jobs", repos.PlanRefineJobs},
	}
	for _, cl := range closers {
		if err := cl.c.Close(); err != nil {
			logger.Warn("close failed", "collection", cl.name, "error", err)
		}
	}
}
