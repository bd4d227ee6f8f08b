package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/officefn/cli/output"
	"github.com/fluxbase-eu/officefn/internal/config"
	"github.com/fluxbase-eu/officefn/internal/metadata"
	"github.com/fluxbase-eu/officefn/internal/plugin"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the custom functions declared by the entry points",
	Long: `Extract the manifest without bundling and print it.

Examples:
  officefn manifest
  officefn manifest --output json > functions.json`,
	RunE: runManifest,
}

func runManifest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manifest, err := extractManifest(cmd, cfg)
	if err != nil {
		return err
	}

	return printManifest(GetFormatter(), manifest)
}

func extractManifest(cmd *cobra.Command, cfg *config.Config) (*metadata.Manifest, error) {
	p, err := plugin.New(cfg.Plugin)
	if err != nil {
		return nil, err
	}
	if err := p.ConfigResolved(cfg.Root); err != nil {
		return nil, err
	}

	result := p.Extractor().Extract(cmd.Context(), p.Entries())
	if !result.OK() {
		printDiagnostics("Metadata extraction failed", result.Errors)
		return nil, fmt.Errorf("failed to generate %s", cfg.Plugin.OutputJSONName)
	}
	return result.Manifest, nil
}

func printManifest(f *output.Formatter, manifest *metadata.Manifest) error {
	if f.Format != output.FormatTable {
		return f.Print(manifest)
	}

	if len(manifest.Functions) == 0 {
		f.PrintWarning("no custom functions found")
		return nil
	}

	data := output.TableData{
		Headers: []string{"ID", "NAME", "PARAMETERS", "RESULT", "OPTIONS"},
	}
	for _, fn := range manifest.Functions {
		data.Rows = append(data.Rows, []string{
			fn.ID,
			fn.Name,
			formatParameters(fn.Parameters),
			formatType(fn.Result.Type, fn.Result.Dimensionality),
			formatOptions(fn.Options),
		})
	}
	f.PrintTable(data)
	return nil
}

func formatType(typ, dimensionality string) string {
	if dimensionality == "matrix" {
		return typ + "[][]"
	}
	return typ
}

func formatParameters(params []metadata.Parameter) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		name := p.Name
		if p.Repeating {
			name = "..." + name
		}
		if p.Optional {
			name += "?"
		}
		parts[i] = name + ": " + formatType(p.Type, p.Dimensionality)
	}
	return strings.Join(parts, ", ")
}

func formatOptions(opts *metadata.Options) string {
	if opts == nil {
		return "-"
	}
	var flags []string
	if opts.Stream {
		flags = append(flags, "stream")
	}
	if opts.Cancelable {
		flags = append(flags, "cancelable")
	}
	if opts.Volatile {
		flags = append(flags, "volatile")
	}
	if opts.RequiresAddress {
		flags = append(flags, "requiresAddress")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
