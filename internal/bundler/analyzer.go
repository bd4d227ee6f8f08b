package bundler

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Analyzer provides bundle analysis using the esbuild metafile
type Analyzer struct {
	root string
}

// NewAnalyzer creates a new bundle analyzer. Paths in the analysis are shown
// relative to root.
func NewAnalyzer(root string) *Analyzer {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Analyzer{root: root}
}

// Analyze parses the metafile of a successful build
func (a *Analyzer) Analyze(result Result, outputName string, entries []string) (*AnalysisResult, error) {
	if !result.OK() {
		return nil, fmt.Errorf("bundle analysis failed: %s", strings.Join(result.Errors, "; "))
	}
	if result.Metafile == "" {
		return nil, fmt.Errorf("bundle analysis failed: build produced no metafile")
	}

	var metafile Metafile
	if err := json.Unmarshal([]byte(result.Metafile), &metafile); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	analysis := a.analyzeMetafile(&metafile, outputName, entries)
	analysis.Warnings = append(analysis.Warnings, result.Warnings...)
	return analysis, nil
}

// analyzeMetafile processes the metafile and returns analysis
func (a *Analyzer) analyzeMetafile(meta *Metafile, outputName string, entries []string) *AnalysisResult {
	result := &AnalysisResult{
		OutputName: outputName,
	}

	isEntry := make(map[string]bool, len(entries))
	for _, entry := range entries {
		display := a.displayPath(entry)
		if !isEntry[display] {
			result.EntryPoints = append(result.EntryPoints, display)
		}
		isEntry[display] = true
	}

	// Only the script output matters; source maps are inline
	for outputPath, output := range meta.Outputs {
		if !strings.HasSuffix(outputPath, ".js") {
			continue
		}
		result.TotalBytes = output.Bytes

		for _, imp := range output.Imports {
			if imp.External {
				result.ExternalImports = append(result.ExternalImports, imp.Path)
			}
		}

		for inputPath, contrib := range output.Inputs {
			// The generated module combining several entry points
			if strings.HasPrefix(inputPath, "<") {
				continue
			}

			inputInfo, ok := meta.Inputs[inputPath]
			if !ok {
				continue
			}

			displayPath := a.displayPath(inputPath)

			percentage := 0.0
			if result.TotalBytes > 0 {
				percentage = float64(contrib.BytesInOutput) / float64(result.TotalBytes) * 100
			}

			result.InputFiles = append(result.InputFiles, FileAnalysis{
				Path:          displayPath,
				Bytes:         inputInfo.Bytes,
				BytesInOutput: contrib.BytesInOutput,
				Percentage:    percentage,
				ImportCount:   len(inputInfo.Imports),
				IsEntryPoint:  isEntry[displayPath],
			})
		}

		break
	}

	// Sort by bytes in output (largest first)
	sort.Slice(result.InputFiles, func(i, j int) bool {
		if result.InputFiles[i].BytesInOutput != result.InputFiles[j].BytesInOutput {
			return result.InputFiles[i].BytesInOutput > result.InputFiles[j].BytesInOutput
		}
		return result.InputFiles[i].Path < result.InputFiles[j].Path
	})

	sort.Strings(result.ExternalImports)

	return result
}

// displayPath makes metafile and entry paths comparable: relative to the
// root, slash separated
func (a *Analyzer) displayPath(path string) string {
	if filepath.IsAbs(path) {
		if rel, err := filepath.Rel(a.root, path); err == nil {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}
