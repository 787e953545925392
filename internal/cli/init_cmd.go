package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/wcgan7/agentctl/internal/config"
	"github.com/wcgan7/agentctl/internal/logging"
)

// initFlagName and initFlagForce are the flag values for the init subcommand.
var (
	initFlagName  string
	initFlagForce bool
)

// initCmd implements "agentctl init [template]".
// It scaffolds a new agentctl-managed project from an embedded template
// without requiring an existing .agentctl/config.yaml -- making it safe to
// run in a fresh directory.
var initCmd = &cobra.Command{
	Use:   "init [template]",
	Short: "Initialize a new project from a template",
	Long: `Initialize a new project directory by rendering an embedded
project template. Existing files are preserved unless --force is supplied.

An unknown template name fails with a list of the available templates.

Examples:
  agentctl init                        # scaffold go-cli template in current directory
  agentctl init go-cli --name my-svc   # scaffold with explicit project name
  agentctl init go-cli --force         # overwrite existing files`,
	Args: cobra.MaximumNArgs(1),

	// Override PersistentPreRunE so the init command never attempts to load a
	// config.yaml. We still replicate the env-var checks, logging setup, color
	// disable, and --dir handling from the root PersistentPreRunE.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check env vars for flags not explicitly set on the command line.
		if !cmd.Root().PersistentFlags().Changed("verbose") && os.Getenv("AGENTCTL_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Root().PersistentFlags().Changed("quiet") && os.Getenv("AGENTCTL_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Root().PersistentFlags().Changed("no-color") &&
			(os.Getenv("NO_COLOR") != "" || os.Getenv("AGENTCTL_NO_COLOR") != "") {
			flagNoColor = true
		}

		// Initialize logging.
		jsonFormat := os.Getenv("AGENTCTL_LOG_FORMAT") == "json"
		logging.Setup(flagVerbose, flagQuiet, jsonFormat)

		// Handle --no-color: disable coloured output.
		if flagNoColor {
			lipgloss.SetColorProfile(termenv.Ascii)
		}

		// Handle --dir (change working directory).
		if flagDir != "" {
			if err := os.Chdir(flagDir); err != nil {
				return fmt.Errorf("changing directory to %s: %w", flagDir, err)
			}
		}

		return nil
	},

	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initFlagName, "name", "n", "", "Project name (defaults to current directory name)")
	initCmd.Flags().BoolVar(&initFlagForce, "force", false, "Overwrite existing files")
	rootCmd.AddCommand(initCmd)
}

// runInit is the RunE handler for the init command.
func runInit(cmd *cobra.Command, args []string) error {
	// Resolve the template name (default: go-cli).
	templateName := "go-cli"
	if len(args) > 0 {
		templateName = args[0]
	}

	// Validate that the requested template exists.
	if !config.TemplateExists(templateName) {
		available, listErr := config.ListTemplates()
		if listErr != nil {
			return fmt.Errorf("listing available templates: %w", listErr)
		}
		return fmt.Errorf("template %q not found; available templates: %s",
			templateName, strings.Join(available, ", "))
	}

	// Resolve the destination directory (current working directory after any
	// --dir change applied in PersistentPreRunE).
	destDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	// Resolve the project name.
	projectName := initFlagName
	if projectName == "" {
		projectName = filepath.Base(destDir)
	}

	// Reject path traversal in project name.
	if strings.Contains(projectName, "../") || strings.Contains(projectName, "..\\") {
		return fmt.Errorf("invalid project name %q: must not contain path traversal sequences", projectName)
	}

	// Guard against overwriting an existing config.yaml unless --force is set.
	configYAML := filepath.Join(destDir, ".agentctl", "config.yaml")
	if _, statErr := os.Stat(configYAML); statErr == nil && !initFlagForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", configYAML)
	}

	vars := config.TemplateVars{
		ProjectName: projectName,
		Language:    "go",
		ModulePath:  "github.com/example/" + projectName,
	}

	// Render the template.
	created, err := config.RenderTemplate(templateName, destDir, vars, initFlagForce)
	if err != nil {
		return fmt.Errorf("rendering template %q: %w", templateName, err)
	}

	// --- Success output (all to stderr) ---
	stderr := os.Stderr

	fmt.Fprintf(stderr, "Initialized project %q from template %q\n\n", projectName, templateName)

	if len(created) > 0 {
		fmt.Fprintln(stderr, "Created files:")
		for _, f := range created {
			// Print relative paths when possible for readability.
			rel, relErr := filepath.Rel(destDir, f)
			if relErr != nil {
				rel = f
			}
			fmt.Fprintf(stderr, "  %s\n", rel)
		}
		fmt.Fprintln(stderr)
	}

	fmt.Fprintln(stderr, "Next steps:")
	fmt.Fprintf(stderr, "  1. Edit %s to configure your project\n", configYAML)
	fmt.Fprintln(stderr, "  2. Run: agentctl run")

	return nil
}
