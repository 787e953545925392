package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wcgan7/agentctl/internal/task"
)

// statusFlags holds the flag values for the status command.
type statusFlags struct {
	Type    string // --type <task_type>, "" means all types
	JSON    bool   // --json for structured output
	Verbose bool   // --verbose for per-task details
}

// statusCounts tallies tasks by lifecycle status (spec.md §3 Task.Status).
type statusCounts struct {
	Total      int
	Backlog    int
	Ready      int
	InProgress int
	InReview   int
	Blocked    int
	Done       int
	Cancelled  int
}

// statusOutput is the top-level JSON output type for the status command.
type statusOutput struct {
	ProjectName string       `json:"project_name"`
	Total       int          `json:"total"`
	Done        int          `json:"done"`
	Percent     float64      `json:"percent"`
	Backlog     int          `json:"backlog"`
	Ready       int          `json:"ready"`
	InProgress  int          `json:"in_progress"`
	InReview    int          `json:"in_review"`
	Blocked     int          `json:"blocked"`
	Cancelled   int          `json:"cancelled"`
	Tasks       []taskOutput `json:"tasks,omitempty"`
}

type taskOutput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"task_type"`
	Status      string `json:"status"`
	PendingGate string `json:"pending_gate,omitempty"`
	Error       string `json:"error,omitempty"`
}

// newStatusCmd creates the "agentctl status" command.
func newStatusCmd() *cobra.Command {
	var flags statusFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task progress with a progress bar",
		Long: `Display a summary of task progress across the store: how many tasks are
in each lifecycle status (backlog, ready, in_progress, in_review, blocked,
done, cancelled).

Use --verbose to see per-task status details. Use --json for structured
output suitable for scripting.`,
		Example: `  # Show overall progress
  agentctl status

  # Only chore tasks
  agentctl status --type chore

  # Per-task details
  agentctl status --verbose

  # Structured JSON output
  agentctl status --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Type, "type", "", "Filter to a single task_type (empty = all)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output structured JSON to stdout")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "Show per-task status details")

	return cmd
}

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

// runStatus is the command's RunE function. Loads config, opens the task
// store, computes progress, and renders output.
func runStatus(cmd *cobra.Command, flags statusFlags) error {
	resolved, stateRoot, err := resolveStateRoot()
	if err != nil {
		return fmt.Errorf("resolving config: %w", err)
	}

	repo, err := openTaskRepository(stateRoot)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}

	tasks, err := repo.List()
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}

	if flags.Type != "" {
		filtered := tasks[:0:0]
		for _, t := range tasks {
			if string(t.Type) == flags.Type {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	if len(tasks) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No tasks found.")
		return nil
	}

	counts := countByStatus(tasks)
	projectName := resolved.Config.Project.Name
	if projectName == "" {
		projectName = "agentctl"
	}

	if flags.JSON {
		return renderJSON(cmd.OutOrStdout(), projectName, counts, tasks, flags.Verbose)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintln(out, renderSummary(projectName, counts))
	fmt.Fprintln(out, renderProgressBar(counts))

	if flags.Verbose {
		fmt.Fprintln(out, renderTaskDetails(tasks))
	}

	return nil
}

// countByStatus tallies tasks by lifecycle status.
func countByStatus(tasks []task.Task) statusCounts {
	var c statusCounts
	c.Total = len(tasks)
	for _, t := range tasks {
		switch t.Status {
		case task.StatusBacklog:
			c.Backlog++
		case task.StatusReady:
			c.Ready++
		case task.StatusInProgress:
			c.InProgress++
		case task.StatusInReview:
			c.InReview++
		case task.StatusBlocked:
			c.Blocked++
		case task.StatusDone:
			c.Done++
		case task.StatusCancelled:
			c.Cancelled++
		}
	}
	return c
}

// renderJSON serialises progress data to JSON and writes it to w.
func renderJSON(w io.Writer, projectName string, counts statusCounts, tasks []task.Task, verbose bool) error {
	pct := 0.0
	if counts.Total > 0 {
		pct = float64(counts.Done+counts.Cancelled) / float64(counts.Total) * 100
	}

	out := statusOutput{
		ProjectName: projectName,
		Total:       counts.Total,
		Done:        counts.Done,
		Percent:     pct,
		Backlog:     counts.Backlog,
		Ready:       counts.Ready,
		InProgress:  counts.InProgress,
		InReview:    counts.InReview,
		Blocked:     counts.Blocked,
		Cancelled:   counts.Cancelled,
	}

	if verbose {
		out.Tasks = make([]taskOutput, 0, len(tasks))
		for _, t := range tasks {
			out.Tasks = append(out.Tasks, taskOutput{
				ID: t.ID, Title: t.Title, Type: string(t.Type),
				Status: string(t.Status), PendingGate: t.PendingGate, Error: t.Error,
			})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// renderSummary returns an overall project summary header string.
//
//	agentctl Status - my-project
//	=====================================
//	Overall: 45/87 tasks done (52%)
func renderSummary(projectName string, counts statusCounts) string {
	pct := 0.0
	if counts.Total > 0 {
		pct = float64(counts.Done+counts.Cancelled) / float64(counts.Total) * 100
	}

	headerStyle := lipgloss.NewStyle().Bold(true)
	sepStyle := lipgloss.NewStyle()

	title := fmt.Sprintf("agentctl Status - %s", projectName)
	sep := strings.Repeat("=", len(title))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sepStyle.Render(sep))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Overall: %d/%d tasks done (%.0f%%)", counts.Done, counts.Total, pct))
	sb.WriteString("\n")
	return sb.String()
}

// renderProgressBar returns a styled progress bar plus per-status counts.
//
//	████████████░░░░░░░░ 60% (12/20)
//	12 done, 2 in-progress, 1 in-review, 1 blocked, 4 ready
func renderProgressBar(counts statusCounts) string {
	const progressBarWidth = 40

	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))       // green
	inProgressStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	blockedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))     // red
	cancelledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))   // dark gray

	pct := 0.0
	if counts.Total > 0 {
		pct = float64(counts.Done+counts.Cancelled) / float64(counts.Total)
	}

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(progressBarWidth),
		progress.WithoutPercentage(),
	)
	barStr := bar.ViewAs(pct)

	fraction := fmt.Sprintf("%d/%d", counts.Done+counts.Cancelled, counts.Total)
	pctStr := fmt.Sprintf("%.0f%%", pct*100)

	var sb strings.Builder
	sb.WriteString(barStr)
	sb.WriteString(" ")
	sb.WriteString(pctStr)
	sb.WriteString(" (")
	sb.WriteString(fraction)
	sb.WriteString(")")
	sb.WriteString("\n")

	var countParts []string
	if counts.Done > 0 {
		countParts = append(countParts, doneStyle.Render(fmt.Sprintf("%d done", counts.Done)))
	}
	if counts.InProgress > 0 {
		countParts = append(countParts, inProgressStyle.Render(fmt.Sprintf("%d in-progress", counts.InProgress)))
	}
	if counts.InReview > 0 {
		countParts = append(countParts, inProgressStyle.Render(fmt.Sprintf("%d in-review", counts.InReview)))
	}
	if counts.Blocked > 0 {
		countParts = append(countParts, blockedStyle.Render(fmt.Sprintf("%d blocked", counts.Blocked)))
	}
	if counts.Ready > 0 {
		countParts = append(countParts, fmt.Sprintf("%d ready", counts.Ready))
	}
	if counts.Backlog > 0 {
		countParts = append(countParts, fmt.Sprintf("%d backlog", counts.Backlog))
	}
	if counts.Cancelled > 0 {
		countParts = append(countParts, cancelledStyle.Render(fmt.Sprintf("%d cancelled", counts.Cancelled)))
	}

	if len(countParts) > 0 {
		sb.WriteString(strings.Join(countParts, ", "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderTaskDetails returns a formatted per-task list showing ID, title,
// status, current step, and pending gate (if any).
func renderTaskDetails(tasks []task.Task) string {
	doneStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	inProgressStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	blockedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	cancelledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	var sb strings.Builder
	for _, t := range tasks {
		var statusLabel string
		switch t.Status {
		case task.StatusDone:
			statusLabel = doneStyle.Render(string(t.Status))
		case task.StatusInProgress, task.StatusInReview:
			statusLabel = inProgressStyle.Render(string(t.Status))
		case task.StatusBlocked:
			statusLabel = blockedStyle.Render(string(t.Status))
		case task.StatusCancelled:
			statusLabel = cancelledStyle.Render(string(t.Status))
		default:
			statusLabel = string(t.Status)
		}

		title := t.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		line := fmt.Sprintf("  %s  %-50s  %s", t.ID, title, statusLabel)
		if t.CurrentStep != "" {
			line += fmt.Sprintf("  (%s)", t.CurrentStep)
		}
		if t.PendingGate != "" {
			line += fmt.Sprintf("  [gate: %s]", t.PendingGate)
		}
		if len(t.BlockedBy) > 0 {
			line += fmt.Sprintf("  [waiting on: %s]", strings.Join(t.BlockedBy, ", "))
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n")
}
