package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// completionCmd generates shell completion scripts for agentctl.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for agentctl.

To install completions:

  Bash (Linux):
    agentctl completion bash | sudo tee /etc/bash_completion.d/agentctl > /dev/null

  Bash (macOS with Homebrew):
    agentctl completion bash > $(brew --prefix)/etc/bash_completion.d/agentctl

  Zsh:
    agentctl completion zsh > "${fpath[1]}/_agentctl"
    # or
    agentctl completion zsh > ~/.zsh/completions/_agentctl

  Fish:
    agentctl completion fish > ~/.config/fish/completions/agentctl.fish

  PowerShell:
    agentctl completion powershell > agentctl.ps1
    # Then add ". agentctl.ps1" to your PowerShell profile`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
