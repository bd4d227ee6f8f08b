package bundler

import (
	"fmt"
	"io"
	"strings"
)

// DisplayAnalysis prints the bundle analysis in a formatted way
func DisplayAnalysis(w io.Writer, result *AnalysisResult, showDetails bool) {
	_, _ = fmt.Fprintf(w, "\n=== Bundle Analysis: %s ===\n", result.OutputName)
	_, _ = fmt.Fprintf(w, "Total bundle size: %s\n", formatBytesHuman(result.TotalBytes))

	if len(result.EntryPoints) > 0 {
		_, _ = fmt.Fprintln(w, "\nEntry points:")
		for _, entry := range result.EntryPoints {
			_, _ = fmt.Fprintf(w, "  - %s\n", entry)
		}
	}

	if len(result.ExternalImports) > 0 {
		_, _ = fmt.Fprintln(w, "\nExternal imports (resolved by the host):")
		for _, imp := range result.ExternalImports {
			_, _ = fmt.Fprintf(w, "  - %s\n", imp)
		}
	}

	if len(result.InputFiles) > 0 {
		_, _ = fmt.Fprintln(w, "\nBundle breakdown:")

		maxFiles := 10
		if showDetails {
			maxFiles = len(result.InputFiles)
		}

		// Calculate max path length for alignment
		maxPathLen := 0
		for i, file := range result.InputFiles {
			if i >= maxFiles {
				break
			}
			displayPath := truncatePath(file.Path, 50)
			if len(displayPath) > maxPathLen {
				maxPathLen = len(displayPath)
			}
		}

		for i, file := range result.InputFiles {
			if i >= maxFiles {
				remaining := len(result.InputFiles) - maxFiles
				_, _ = fmt.Fprintf(w, "  ... and %d more files\n", remaining)
				break
			}

			displayPath := truncatePath(file.Path, 50)
			padding := strings.Repeat(" ", maxPathLen-len(displayPath))
			marker := " "
			if file.IsEntryPoint {
				marker = "*"
			}
			_, _ = fmt.Fprintf(w, " %s%s%s  %8s  %5.1f%%\n",
				marker,
				displayPath,
				padding,
				formatBytesHuman(file.BytesInOutput),
				file.Percentage,
			)
		}
	}

	if len(result.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range result.Warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", warn)
		}
	}

	_, _ = fmt.Fprintln(w)
}

// formatBytesHuman formats bytes in human-readable format
func formatBytesHuman(bytes int) string {
	const (
		KB = 1024
		MB = 1024 * KB
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// truncatePath shortens a path if it's too long
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
