package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wcgan7/agentctl/internal/config"
	"github.com/wcgan7/agentctl/internal/orchestrator"
	"github.com/wcgan7/agentctl/internal/planstore"
	"github.com/wcgan7/agentctl/internal/store"
	"github.com/wcgan7/agentctl/internal/task"
)

// resolveStateRoot locates config.yaml (via --config or by walking up from
// cwd) and returns the resolved config plus the state directory it lives in
// (the directory holding tasks.yaml, runs.yaml, events.jsonl, etc).
// Commands that only need the state root without touching configuration
// values still go through here so every command agrees on where the store
// lives.
func resolveStateRoot() (*config.ResolvedConfig, string, error) {
	var (
		fileCfg *config.Config
		cfgPath string
	)

	if flagConfig != "" {
		cfgPath = flagConfig
	} else {
		found, err := config.FindConfigFile(".")
		if err != nil {
			return nil, "", fmt.Errorf("finding config file: %w", err)
		}
		cfgPath = found
	}

	if cfgPath != "" {
		fc, err := config.LoadFromFile(cfgPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config: %w", err)
		}
		fileCfg = fc
	}

	resolved := config.Resolve(config.NewDefaults(), fileCfg, os.LookupEnv, &config.CLIOverrides{})
	resolved.Path = cfgPath

	stateRoot := ".agentctl"
	if cfgPath != "" {
		stateRoot = filepath.Dir(cfgPath)
	}

	return resolved, stateRoot, nil
}

// openTaskRepository bootstraps (if needed) and opens the tasks collection
// at the resolved state root.
func openTaskRepository(stateRoot string) (*store.TaskRepository, error) {
	if err := store.Bootstrap(stateRoot); err != nil {
		return nil, err
	}
	return store.NewTaskRepository(filepath.Join(stateRoot, "tasks.yaml"))
}

// openEventLog opens the append-only event log at the resolved state root.
func openEventLog(stateRoot string) (*store.EventLog, error) {
	return store.NewEventLog(filepath.Join(stateRoot, "events.jsonl"))
}

// openRepositories bootstraps (if needed) and opens every per-entity-kind
// collection spec.md §4.1 names (tasks, runs, review_cycles, agents,
// quick_actions, plan_revisions, plan_refine_jobs) at stateRoot.
func openRepositories(stateRoot string) (orchestrator.Repositories, error) {
	var repos orchestrator.Repositories

	if err := store.Bootstrap(stateRoot); err != nil {
		return repos, err
	}

	tasks, err := store.NewTaskRepository(filepath.Join(stateRoot, "tasks.yaml"))
	if err != nil {
		return repos, fmt.Errorf("opening tasks collection: %w", err)
	}
	runs, err := store.NewCollection[task.RunRecord](filepath.Join(stateRoot, "runs.yaml"), "runs")
	if err != nil {
		return repos, fmt.Errorf("opening runs collection: %w", err)
	}
	reviewCycles, err := store.NewCollection[task.ReviewCycle](filepath.Join(stateRoot, "review_cycles.yaml"), "review_cycles")
	if err != nil {
		return repos, fmt.Errorf("opening review_cycles collection: %w", err)
	}
	agents, err := store.NewCollection[task.AgentRecord](filepath.Join(stateRoot, "agents.yaml"), "agents")
	if err != nil {
		return repos, fmt.Errorf("opening agents collection: %w", err)
	}
	quickActions, err := store.NewCollection[task.QuickAction](filepath.Join(stateRoot, "quick_actions.yaml"), "quick_actions")
	if err != nil {
		return repos, fmt.Errorf("opening quick_actions collection: %w", err)
	}
	planRevisions, err := planstore.NewRevisionStore(filepath.Join(stateRoot, "plan_revisions.yaml"))
	if err != nil {
		return repos, fmt.Errorf("opening plan_revisions collection: %w", err)
	}
	planRefineJobs, err := planstore.NewRefineJobStore(filepath.Join(stateRoot, "plan_refine_jobs.yaml"))
	if err != nil {
		return repos, fmt.Errorf("opening plan_refine_jobs collection: %w", err)
	}

	return orchestrator.Repositories{
		Tasks: tasks, Runs: runs, ReviewCycles: reviewCycles, Agents: agents,
		QuickActions: quickActions, PlanRevisions: planRevisions, PlanRefineJobs: planRefineJobs,
	}, nil
}
