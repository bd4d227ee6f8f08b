package metadata

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func decodeManifest(t *testing.T, result Result) Manifest {
	t.Helper()
	require.NotNil(t, result.ManifestText)
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(*result.ManifestText), &m))
	return m
}

func TestExtract_AddFunction(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "functions.ts", `
/**
 * Adds two numbers.
 * @customfunction
 * @param a First number
 * @param b Second number
 * @returns The sum of both numbers
 */
export function add(a: number, b: number): number {
  return a + b;
}
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)

	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 1)
	fn := m.Functions[0]
	assert.Equal(t, "ADD", fn.ID)
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "Adds two numbers.", fn.Description)
	require.Len(t, fn.Parameters, 2)
	assert.Equal(t, Parameter{Name: "a", Description: "First number", Type: "number"}, fn.Parameters[0])
	assert.Equal(t, Parameter{Name: "b", Description: "Second number", Type: "number"}, fn.Parameters[1])
	assert.Equal(t, "number", fn.Result.Type)
	assert.Equal(t, "The sum of both numbers", fn.Result.Description)
	assert.Nil(t, fn.Options)

	require.NotNil(t, result.Manifest)
	assert.Equal(t, entry, result.Manifest.Functions[0].Source)
}

func TestExtract_TwoCallables(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "functions.ts", `
export function add(a: number, b: number): number { return a + b; }

function helper() { return 1; }

export async function greet(name: string): Promise<string> {
  return "Hello " + name;
}
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)

	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 2)
	assert.Equal(t, "ADD", m.Functions[0].ID)
	assert.Equal(t, "GREET", m.Functions[1].ID)
	assert.Equal(t, "string", m.Functions[1].Result.Type)
}

func TestExtract_MultipleEntriesKeepOrder(t *testing.T) {
	dir := t.TempDir()
	first := writeSource(t, dir, "b.ts", `export function second(): number { return 2; }`)
	second := writeSource(t, dir, "a.js", `export function first() { return 1; }`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{first, second})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)

	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 2)
	assert.Equal(t, "second", m.Functions[0].Name)
	assert.Equal(t, "first", m.Functions[1].Name)
	assert.Equal(t, "any", m.Functions[1].Result.Type)
}

func TestExtract_NoCallables(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "empty.ts", `const x = 1;`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK())
	m := decodeManifest(t, result)
	assert.Empty(t, m.Functions)
	assert.Contains(t, *result.ManifestText, `"functions": []`)
}

func TestExtract_SyntaxErrorProducesErrorPayload(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "broken.ts", "export function broken( {\n")

	result := NewExtractor("custom.json", false).Extract(context.Background(), []string{entry})
	assert.False(t, result.OK())
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], entry)
	assert.Nil(t, result.Manifest)

	details, ok := ParseErrorPayload(*result.ManifestText)
	require.True(t, ok)
	assert.Equal(t, result.Errors, details)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*result.ManifestText), &payload))
	assert.Equal(t, "Failed to generate custom.json", payload["error"])
}

func TestExtract_MissingFileContinues(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "good.ts", `export function ok(): number { return 1; }`)
	missing := filepath.Join(dir, "missing.ts")

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{missing, good})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "failed to read entry point")
	assert.Contains(t, result.Errors[0], missing)
}

func TestExtract_TaggedFileSkipsUntaggedHelpers(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "functions.ts", `
/**
 * Adds two numbers.
 * @customfunction
 */
export function add(a: number, b: number): number {
  return a + b;
}

export function formatDate(d: Date): string {
  return d.toISOString();
}

CustomFunctions.associate("ADD", add);
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)

	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 1)
	assert.Equal(t, "ADD", m.Functions[0].ID)
}

func TestExtract_TaggingIsPerEntryPoint(t *testing.T) {
	dir := t.TempDir()
	tagged := writeSource(t, dir, "tagged.ts", `
/** @customfunction */
export function add(a: number, b: number): number { return a + b; }

export function helper(d: Date): string { return ""; }
`)
	untagged := writeSource(t, dir, "untagged.ts", `export function double(x: number): number { return x * 2; }`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{tagged, untagged})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)

	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 2)
	assert.Equal(t, "ADD", m.Functions[0].ID)
	assert.Equal(t, "DOUBLE", m.Functions[1].ID)
}

func TestExtract_UntaggedFileRegistersEveryExport(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "functions.ts", `
export function add(a: number, b: number): number { return a + b; }
export function formatDate(d: Date): string { return ""; }
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.False(t, result.OK())
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `function formatDate: parameter d: unsupported type "Date"`)
}

func TestExtract_ComparisonInDefaultKeepsLaterParameters(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "functions.ts", `
/** @customfunction */
export function pick(flag: number = 1 > 0 ? 1 : 2, other: string): string {
  return other;
}
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)

	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 1)
	params := m.Functions[0].Parameters
	require.Len(t, params, 2)
	assert.Equal(t, "flag", params[0].Name)
	assert.True(t, params[0].Optional)
	assert.Equal(t, "other", params[1].Name)
	assert.Equal(t, "string", params[1].Type)
}

func TestExtract_DuplicateIDsAcrossEntries(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "a.ts", `export function add(a: number): number { return a; }`)
	b := writeSource(t, dir, "b.ts", `
/**
 * @customfunction ADD plus
 */
export function plus(a: number): number { return a; }
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{a, b})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `duplicate function id "ADD"`)
}

func TestExtract_DuplicateEntryPointDuplicatesIDs(t *testing.T) {
	dir := t.TempDir()
	a := writeSource(t, dir, "a.ts", `export function add(a: number): number { return a; }`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{a, a})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "duplicate function id")
}

func TestExtract_SignatureFeatures(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "features.ts", `
/**
 * Sums a range.
 * @customfunction SUM.RANGE
 * @volatile
 * @helpurl https://example.com/help
 */
export function sumRange(values: number[][], scale?: number, offset: number = 0): number {
  return 0;
}

/** @customfunction */
export function total(...values: number[]): number {
  return 0;
}

/** @customfunction */
export function clock(invocation: CustomFunctions.StreamingInvocation<string>): void {
}

/** @customfunction */
export async function slow(a: string, invocation: CustomFunctions.CancelableInvocation): Promise<boolean> {
  return true;
}

/** @customfunction */
export function grid(rows: Array<Array<string>>): string[][] {
  return rows;
}
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)
	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 5)

	sumRange := m.Functions[0]
	assert.Equal(t, "SUM.RANGE", sumRange.ID)
	assert.Equal(t, "sumRange", sumRange.Name)
	assert.Equal(t, "https://example.com/help", sumRange.HelpURL)
	assert.Equal(t, []Parameter{
		{Name: "values", Type: "number", Dimensionality: "matrix"},
		{Name: "scale", Type: "number", Optional: true},
		{Name: "offset", Type: "number", Optional: true},
	}, sumRange.Parameters)
	require.NotNil(t, sumRange.Options)
	assert.True(t, sumRange.Options.Volatile)

	total := m.Functions[1]
	assert.Equal(t, []Parameter{{Name: "values", Type: "number", Repeating: true}}, total.Parameters)

	clock := m.Functions[2]
	assert.Empty(t, clock.Parameters)
	assert.Equal(t, "string", clock.Result.Type)
	require.NotNil(t, clock.Options)
	assert.True(t, clock.Options.Stream)

	slow := m.Functions[3]
	require.Len(t, slow.Parameters, 1)
	assert.Equal(t, "boolean", slow.Result.Type)
	require.NotNil(t, slow.Options)
	assert.True(t, slow.Options.Cancelable)

	grid := m.Functions[4]
	assert.Equal(t, "matrix", grid.Parameters[0].Dimensionality)
	assert.Equal(t, FunctionResult{Type: "string", Dimensionality: "matrix"}, grid.Result)
}

func TestExtract_UnsupportedConstructs(t *testing.T) {
	tests := []struct {
		name   string
		source string
		errMsg string
	}{
		{
			name:   "unsupported parameter type",
			source: `export function when(d: Date): number { return 0; }`,
			errMsg: `parameter d: unsupported type "Date"`,
		},
		{
			name:   "one-dimensional array",
			source: `export function list(v: number[]): number { return 0; }`,
			errMsg: "one-dimensional arrays are not supported",
		},
		{
			name:   "void result",
			source: `export function nothing(): void {}`,
			errMsg: "void return type",
		},
		{
			name:   "invalid id",
			source: "/** @customfunction bad-id */\nexport function bad(): number { return 0; }",
			errMsg: `invalid id "bad-id"`,
		},
		{
			name:   "generator",
			source: `export function* gen(): number { yield 1; }`,
			errMsg: "generator functions are not supported",
		},
		{
			name:   "destructured parameter",
			source: `export function pick({ a }: { a: number }): number { return a; }`,
			errMsg: "destructured parameters are not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			entry := writeSource(t, dir, "fn.ts", tt.source)

			result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
			require.False(t, result.OK())
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], tt.errMsg)
		})
	}
}

func TestExtract_IgnoresCommentsAndStrings(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "fn.ts", `
// export function commented(): number { return 0; }
/* export function blocked(): number { return 0; } */
const text = "export function quoted() {}";
export function real(): number { return 1; }
`)

	result := NewExtractor("functions.json", false).Extract(context.Background(), []string{entry})
	require.True(t, result.OK(), "unexpected diagnostics: %v", result.Errors)
	m := decodeManifest(t, result)
	require.Len(t, m.Functions, 1)
	assert.Equal(t, "real", m.Functions[0].Name)
}

func TestExtract_RecoversFromPanic(t *testing.T) {
	e := NewExtractor("functions.json", false)
	e.readFile = func(string) ([]byte, error) { panic("boom") }

	result := e.Extract(context.Background(), []string{"/tmp/whatever.ts"})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "boom")

	details, ok := ParseErrorPayload(*result.ManifestText)
	require.True(t, ok)
	assert.Equal(t, result.Errors, details)
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewExtractor("functions.json", false).Extract(ctx, []string{"/tmp/a.ts"})
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "canceled")
}

func TestExtract_LogMetadataGeneration(t *testing.T) {
	dir := t.TempDir()
	entry := writeSource(t, dir, "fn.ts", `export function add(a: number, b: number): number { return a + b; }`)

	result := NewExtractor("functions.json", true).Extract(context.Background(), []string{entry})
	assert.True(t, result.OK())
}
