package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/officefn/cli/output"
	"github.com/fluxbase-eu/officefn/cli/util"
	"github.com/fluxbase-eu/officefn/internal/bundler"
	"github.com/fluxbase-eu/officefn/internal/plugin"
)

var analyzeDetails bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Bundle the entry points and report what the script contains",
	Long: `Bundle the entry points with the build settings and print the size of
every input that ends up in the script.

Examples:
  officefn analyze
  officefn analyze --details
  officefn analyze --output json`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeDetails, "details", false, "list every input file")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := plugin.New(cfg.Plugin)
	if err != nil {
		return err
	}
	if err := p.ConfigResolved(cfg.Root); err != nil {
		return err
	}

	b, err := p.Builder()
	if err != nil {
		return err
	}

	result := b.Build(cmd.Context(), p.Entries(), bundler.Options{Minify: cfg.Plugin.Minify})
	if !result.OK() {
		if formatted := bundler.FormatMessages(result.Messages, util.ColorEnabled(os.Stderr)); len(formatted) > 0 {
			for _, msg := range formatted {
				fmt.Fprint(os.Stderr, msg)
			}
		} else {
			printDiagnostics("Bundling failed", result.Errors)
		}
		return fmt.Errorf("failed to build %s", cfg.Plugin.OutputJSName)
	}

	analysis, err := bundler.NewAnalyzer(p.Root()).Analyze(result, cfg.Plugin.OutputJSName, p.Entries())
	if err != nil {
		return err
	}

	f := GetFormatter()
	if f.Format != output.FormatTable {
		return f.Print(analysis)
	}
	bundler.DisplayAnalysis(f.Writer, analysis, analyzeDetails)
	return nil
}
