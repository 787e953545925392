package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wcgan7/agentctl/internal/config"
)

// configCmd is the parent "config" namespace command. It has no action of its
// own -- it groups debug and validate subcommands.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Inspect, validate, and debug agentctl configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// configDebugCmd implements "agentctl config debug".
var configDebugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show resolved configuration with source annotations",
	Long: `Display the fully-resolved configuration showing each value and
the source where it came from (cli flag, environment variable, config file, or default).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, _, err := resolveStateRoot()
		if err != nil {
			return err
		}
		printResolvedConfig(cmd, resolved)
		return nil
	},
}

// configValidateCmd implements "agentctl config validate".
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and report issues",
	Long:  "Check the configuration for errors and warnings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, _, err := resolveStateRoot()
		if err != nil {
			return err
		}
		result := config.Validate(resolved.Config)
		printValidationResult(cmd, result)
		if result.HasErrors() {
			return fmt.Errorf("configuration has %d error(s)", len(result.Errors()))
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configDebugCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

// ---- Lipgloss styles --------------------------------------------------------

// sourceStyle returns a lipgloss style for a given ConfigSource.
// When --no-color is active, lipgloss automatically strips ANSI because
// the root PersistentPreRunE sets the color profile to Ascii.
func sourceStyle(src config.ConfigSource) lipgloss.Style {
	switch src {
	case config.SourceFile:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // bright blue
	case config.SourceEnv:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // bright yellow
	case config.SourceCLI:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // bright red
	default: // SourceDefault
		return lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // bright green
	}
}

var (
	styleHeader    = lipgloss.NewStyle().Bold(true)
	styleSeparator = lipgloss.NewStyle()
	styleSection   = lipgloss.NewStyle().Bold(true)
	styleErrorLbl  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)  // red
	styleWarnLbl   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true) // yellow
	styleSuccess   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))            // green
)

// ---- printResolvedConfig ----------------------------------------------------

const fieldWidth = 24 // column width for field names

// printResolvedConfig writes the formatted resolved configuration to cmd's
// output writer (stdout by default).
func printResolvedConfig(cmd *cobra.Command, rc *config.ResolvedConfig) {
	out := cmd.OutOrStdout()

	header := styleHeader.Render("Configuration Debug")
	sep := styleSeparator.Render(strings.Repeat("=", len("Configuration Debug")))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out)

	if rc.Path != "" {
		fmt.Fprintf(out, "Config file: %s\n", rc.Path)
	} else {
		fmt.Fprintln(out, "Config file: none found")
	}
	fmt.Fprintln(out)

	// --- [project] ---
	fmt.Fprintln(out, styleSection.Render("[project]"))
	p := rc.Config.Project
	printField(out, "name", fmtStr(p.Name), rc.Sources["project.name"])
	printField(out, "language", fmtStr(p.Language), rc.Sources["project.language"])
	printField(out, "root_dir", fmtStr(p.RootDir), rc.Sources["project.root_dir"])
	fmt.Fprintln(out)

	// --- [orchestrator] ---
	fmt.Fprintln(out, styleSection.Render("[orchestrator]"))
	o := rc.Config.Orchestrator
	printField(out, "concurrency", fmt.Sprintf("%d", o.Concurrency), rc.Sources["orchestrator.concurrency"])
	printField(out, "auto_deps", fmt.Sprintf("%v", o.AutoDeps), rc.Sources["orchestrator.auto_deps"])
	printField(out, "max_review_attempts", fmt.Sprintf("%d", o.MaxReviewAttempts), rc.Sources["orchestrator.max_review_attempts"])
	fmt.Fprintln(out)

	// --- [workers] ---
	fmt.Fprintln(out, styleSection.Render("[workers]"))
	w := rc.Config.Workers
	printField(out, "default_provider", fmtStr(w.DefaultProvider), rc.Sources["workers.default_provider"])
	fmt.Fprintln(out)

	// --- [workers.providers.*] (sorted for determinism) ---
	if len(w.Providers) > 0 {
		names := make([]string, 0, len(w.Providers))
		for n := range w.Providers {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, name := range names {
			provider := w.Providers[name]
			prefix := "workers.providers." + name
			fmt.Fprintln(out, styleSection.Render(fmt.Sprintf("[workers.providers.%s]", name)))
			printField(out, "command_template", fmtStr(provider.CommandTemplate), rc.Sources[prefix])
			printField(out, "model", fmtStr(provider.Model), rc.Sources[prefix])
			printField(out, "effort", fmtStr(provider.Effort), rc.Sources[prefix])
			fmt.Fprintln(out)
		}
	}

	// --- [defaults] ---
	fmt.Fprintln(out, styleSection.Render("[defaults]"))
	qg := rc.Config.Defaults.QualityGate
	printField(out, "quality_gate.critical", fmt.Sprintf("%d", qg.Critical), rc.Sources["defaults.quality_gate"])
	printField(out, "quality_gate.high", fmt.Sprintf("%d", qg.High), rc.Sources["defaults.quality_gate"])
	printField(out, "quality_gate.medium", fmt.Sprintf("%d", qg.Medium), rc.Sources["defaults.quality_gate"])
	printField(out, "quality_gate.low", fmt.Sprintf("%d", qg.Low), rc.Sources["defaults.quality_gate"])
	fmt.Fprintln(out)

	// --- [[pinned]] ---
	if len(rc.Config.Pinned) > 0 {
		fmt.Fprintln(out, styleSection.Render("[[pinned]]"))
		for _, pin := range rc.Config.Pinned {
			printField(out, "name/root_dir", fmt.Sprintf("%s -> %s", pin.Name, pin.RootDir), rc.Sources["pinned"])
		}
		fmt.Fprintln(out)
	}
}

// printField writes a single key = value (source: ...) line.
func printField(out io.Writer, name, value string, src config.ConfigSource) {
	// Left-pad the field name to fieldWidth.
	padded := fmt.Sprintf("  %-*s", fieldWidth, name)
	srcLabel := sourceStyle(src).Render(fmt.Sprintf("(source: %s)", src))
	line := fmt.Sprintf("%s = %-40s %s\n", padded, value, srcLabel)
	fmt.Fprint(out, line)
}

// fmtStr formats a string value for display (quoted).
func fmtStr(s string) string {
	return fmt.Sprintf("%q", s)
}

// ---- printValidationResult --------------------------------------------------

// printValidationResult writes the formatted validation report to cmd's
// output writer.
func printValidationResult(cmd *cobra.Command, result *config.ValidationResult) {
	out := cmd.OutOrStdout()

	header := styleHeader.Render("Configuration Validation")
	sep := styleSeparator.Render(strings.Repeat("=", len("Configuration Validation")))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, sep)
	fmt.Fprintln(out)

	errs := result.Errors()
	warns := result.Warnings()

	if len(errs) == 0 && len(warns) == 0 {
		fmt.Fprintln(out, styleSuccess.Render("No issues found."))
		return
	}

	if len(errs) > 0 {
		fmt.Fprintln(out, styleErrorLbl.Render("Errors:"))
		for _, issue := range errs {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	if len(warns) > 0 {
		fmt.Fprintln(out, styleWarnLbl.Render("Warnings:"))
		for _, issue := range warns {
			fmt.Fprintf(out, "  [%s] %s\n", issue.Field, issue.Message)
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", len(errs), len(warns))
}
