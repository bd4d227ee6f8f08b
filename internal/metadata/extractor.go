package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Extractor derives the manifest from entry-point sources
type Extractor struct {
	outputName  string
	logMetadata bool
	readFile    func(string) ([]byte, error)
}

// NewExtractor creates an extractor. outputName is the manifest artifact name
// used in the error payload; logMetadata logs every extracted function.
func NewExtractor(outputName string, logMetadata bool) *Extractor {
	return &Extractor{
		outputName:  outputName,
		logMetadata: logMetadata,
		readFile:    os.ReadFile,
	}
}

// Extract statically analyzes entries and returns the manifest text, or the
// error payload together with every diagnostic. It never returns an error:
// unexpected failures are reported as diagnostics.
func (e *Extractor) Extract(ctx context.Context, entries []string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Metadata extraction panicked")
			result = e.failure([]string{fmt.Sprintf("unexpected failure during metadata extraction: %v", r)})
		}
	}()

	var diagnostics []string
	manifest := &Manifest{Functions: []Function{}}
	seen := make(map[string]string) // id -> declaring entry point

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("metadata extraction canceled: %v", err))
			break
		}

		src, err := e.readFile(entry)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("%s: failed to read entry point: %v", entry, err))
			continue
		}

		if syntaxErrors := checkSyntax(entry, string(src)); len(syntaxErrors) > 0 {
			diagnostics = append(diagnostics, syntaxErrors...)
			continue
		}

		for _, decl := range callables(scanDeclarations(string(src))) {
			fn, fnDiagnostics := buildFunction(entry, decl)
			if len(fnDiagnostics) > 0 {
				diagnostics = append(diagnostics, fnDiagnostics...)
				continue
			}

			if previous, ok := seen[fn.ID]; ok {
				diagnostics = append(diagnostics, fmt.Sprintf("%s:%d: duplicate function id %q (already declared in %s)",
					entry, decl.Line, fn.ID, previous))
				continue
			}
			seen[fn.ID] = entry

			manifest.Functions = append(manifest.Functions, fn)
		}
	}

	if len(diagnostics) > 0 {
		return e.failure(diagnostics)
	}

	text, err := manifest.Marshal()
	if err != nil {
		return e.failure([]string{err.Error()})
	}

	if e.logMetadata {
		for _, fn := range manifest.Functions {
			log.Info().
				Str("id", fn.ID).
				Str("name", fn.Name).
				Int("parameters", len(fn.Parameters)).
				Str("result", fn.Result.Type).
				Str("source", fn.Source).
				Msg("Extracted custom function metadata")
		}
	}

	return Result{ManifestText: &text, Manifest: manifest}
}

// callables selects the declarations registered as custom functions. When
// any declaration in a file is tagged @customfunction only the tagged ones
// are; otherwise every exported function is.
func callables(decls []declaration) []declaration {
	tagged := make([]declaration, 0, len(decls))
	for _, decl := range decls {
		if decl.Doc != "" && parseDoc(decl.Doc).CustomFunction {
			tagged = append(tagged, decl)
		}
	}
	if len(tagged) == 0 {
		return decls
	}
	return tagged
}

func (e *Extractor) failure(diagnostics []string) Result {
	text := ErrorPayload(e.outputName, diagnostics)
	return Result{ManifestText: &text, Errors: diagnostics}
}

// checkSyntax parses src with esbuild without bundling or executing it
func checkSyntax(path, src string) []string {
	result := api.Transform(src, api.TransformOptions{
		Loader:     loaderFor(path),
		Sourcefile: path,
		LogLevel:   api.LogLevelSilent,
	})

	diagnostics := make([]string, 0, len(result.Errors))
	for _, msg := range result.Errors {
		diagnostics = append(diagnostics, FormatMessage(path, msg))
	}
	return diagnostics
}

// FormatMessage renders an esbuild message as "file:line:col: text"
func FormatMessage(fallbackFile string, msg api.Message) string {
	if msg.Location == nil {
		return fmt.Sprintf("%s: %s", fallbackFile, msg.Text)
	}
	file := msg.Location.File
	if file == "" {
		file = fallbackFile
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, msg.Location.Line, msg.Location.Column+1, msg.Text)
}

func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// buildFunction converts a declaration into its manifest entry
func buildFunction(source string, decl declaration) (Function, []string) {
	doc := parseDoc(decl.Doc)
	var diagnostics []string
	report := func(format string, args ...interface{}) {
		diagnostics = append(diagnostics, fmt.Sprintf("%s:%d: function %s: %s",
			source, decl.Line, decl.Name, fmt.Sprintf(format, args...)))
	}

	fn := Function{
		ID:          strings.ToUpper(decl.Name),
		Name:        decl.Name,
		Description: doc.Description,
		HelpURL:     doc.HelpURL,
		Parameters:  []Parameter{},
		Source:      source,
	}
	if doc.ID != nil {
		fn.ID = *doc.ID
	}
	if doc.Name != nil {
		fn.Name = *doc.Name
	}
	if !idPattern.MatchString(fn.ID) {
		report("invalid id %q (only letters, digits, '_' and '.' are allowed)", fn.ID)
	}
	if decl.Generator {
		report("generator functions are not supported")
	}

	options := doc.Options
	streamingType := ""
	streaming := false

	for i, raw := range decl.Params {
		p := splitParam(raw)

		if kind, inner := classifyInvocation(p.Type); kind != invocationNone {
			if i != len(decl.Params)-1 {
				report("invocation parameter %s must be the last parameter", p.Name)
				continue
			}
			switch kind {
			case invocationStreaming:
				streaming = true
				streamingType = inner
				options.Stream = true
			case invocationCancelable:
				options.Cancelable = true
			}
			continue
		}

		if strings.HasPrefix(p.Name, "{") || strings.HasPrefix(p.Name, "[") {
			report("destructured parameters are not supported")
			continue
		}

		typ := p.Type
		if p.Rest && typ != "" {
			elem, ok := unwrapArray(typ)
			if !ok {
				report("rest parameter %s must have an array type, got %q", p.Name, typ)
				continue
			}
			typ = elem
		}

		valueType, dims, err := mapValueType(typ)
		if err != nil {
			report("parameter %s: %v", p.Name, err)
			continue
		}

		fn.Parameters = append(fn.Parameters, Parameter{
			Name:           p.Name,
			Description:    doc.Params[p.Name],
			Type:           valueType,
			Dimensionality: dims,
			Optional:       p.Optional,
			Repeating:      p.Rest,
		})
	}

	if streaming {
		valueType, dims, err := mapValueType(streamingType)
		if err != nil {
			report("streaming result: %v", err)
		}
		fn.Result = FunctionResult{Type: valueType, Dimensionality: dims}
	} else {
		returnType := unwrapPromise(decl.ReturnType)
		if returnType == "void" {
			report("void return type is only supported for streaming functions")
		} else {
			valueType, dims, err := mapValueType(returnType)
			if err != nil {
				report("return type: %v", err)
			}
			fn.Result = FunctionResult{Type: valueType, Dimensionality: dims}
		}
	}
	fn.Result.Description = doc.Returns

	if !options.empty() {
		fn.Options = &options
	}

	return fn, diagnostics
}
