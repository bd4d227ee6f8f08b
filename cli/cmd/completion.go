package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for officefn.

Besides commands and flags, the scripts complete --output formats,
build --sink names and officefn.yaml paths for --config.

Bash:
  $ source <(officefn completion bash)

Zsh:
  $ officefn completion zsh > "${fpath[1]}/_officefn"

Fish:
  $ officefn completion fish > ~/.config/fish/completions/officefn.fish

PowerShell:
  PS> officefn completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return fmt.Errorf("unsupported shell: %s", args[0])
	},
}

// completeOutputFormats completes the global --output flag
func completeOutputFormats(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"table\taligned columns",
		"json\tindented JSON",
		"yaml\tYAML with the JSON field names",
	}, cobra.ShellCompDirectiveNoFileComp
}

// completeSinks completes build --sink
func completeSinks(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"local\twrite into build.out_dir",
		"s3\tupload to the configured bucket",
	}, cobra.ShellCompDirectiveNoFileComp
}

// registerCompletions runs after every command has defined its flags
func registerCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("output", completeOutputFormats)
	_ = rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml")
	_ = rootCmd.MarkPersistentFlagDirname("root")

	_ = buildCmd.RegisterFlagCompletionFunc("sink", completeSinks)
	_ = buildCmd.MarkFlagDirname("out-dir")
	_ = devCmd.MarkFlagDirname("public-dir")
}
