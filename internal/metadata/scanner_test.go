package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanDeclarations(t *testing.T) {
	src := `import { x } from "./x";

/** Doc for one */
export function one(a: number, b: (x: number) => string): number { return a; }

export function over(a: number): number;
export function over(a: string): string;
export function over(a: any): any { return a; }

/** not attached */
const gap = 1;
export async function two() {}
`

	decls := scanDeclarations(src)
	require.Len(t, decls, 3)

	assert.Equal(t, "one", decls[0].Name)
	assert.Equal(t, []string{"a: number", "b: (x: number) => string"}, decls[0].Params)
	assert.Equal(t, "number", decls[0].ReturnType)
	assert.Equal(t, "/** Doc for one */", decls[0].Doc)
	assert.Equal(t, 4, decls[0].Line)

	assert.Equal(t, "over", decls[1].Name)
	assert.Equal(t, []string{"a: any"}, decls[1].Params)

	assert.Equal(t, "two", decls[2].Name)
	assert.True(t, decls[2].Async)
	assert.Empty(t, decls[2].Doc)
}

func TestScanDeclarations_ComparisonInDefault(t *testing.T) {
	src := `export function pick(flag: number = 1 > 0 ? 1 : 2, other: string, last = 2 >= 1): string { return other; }
export function cmp(a: number = 1 < 2 ? 1 : 0, b: Array<number> = []) { return a; }
`

	decls := scanDeclarations(src)
	require.Len(t, decls, 2)
	assert.Equal(t, []string{"flag: number = 1 > 0 ? 1 : 2", "other: string", "last = 2 >= 1"}, decls[0].Params)
	assert.Equal(t, "string", decls[0].ReturnType)
	assert.Equal(t, []string{"a: number = 1 < 2 ? 1 : 0", "b: Array<number> = []"}, decls[1].Params)
}

func TestMaskSourceKeepsOffsets(t *testing.T) {
	src := "a // c\n'str' /* b\n */ `t\nx`"
	masked, comments := maskSource(src)
	assert.Len(t, masked, len(src))
	assert.Len(t, comments, 1)
	assert.NotContains(t, masked, "str")
	assert.Equal(t, 3, countLines(masked))
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

func TestParseDoc(t *testing.T) {
	doc := parseDoc(`/**
 * Returns the price
 * of an item.
 * @customfunction PRICE itemPrice
 * @param {string} item - The item name
 * @param [quantity=1] How many
 * @returns {number} The price
 *   in cents
 * @cancelable
 * @requiresAddress
 * @streaming
 */`)

	assert.Equal(t, "Returns the price of an item.", doc.Description)
	assert.True(t, doc.CustomFunction)
	require.NotNil(t, doc.ID)
	require.NotNil(t, doc.Name)
	assert.Equal(t, "PRICE", *doc.ID)
	assert.Equal(t, "itemPrice", *doc.Name)
	assert.Equal(t, "The item name", doc.Params["item"])
	assert.Equal(t, "How many", doc.Params["quantity"])
	assert.Equal(t, "The price in cents", doc.Returns)
	assert.True(t, doc.Options.Cancelable)
	assert.True(t, doc.Options.RequiresAddress)
	assert.True(t, doc.Options.Stream)
	assert.False(t, doc.Options.Volatile)
}

func TestParseDoc_Empty(t *testing.T) {
	doc := parseDoc("")
	assert.False(t, doc.CustomFunction)
	assert.Nil(t, doc.ID)
	assert.Empty(t, doc.Params)
}

func TestSplitParam(t *testing.T) {
	tests := []struct {
		raw  string
		want rawParam
	}{
		{raw: "a", want: rawParam{Name: "a"}},
		{raw: "a: number", want: rawParam{Name: "a", Type: "number"}},
		{raw: "a?: string", want: rawParam{Name: "a", Type: "string", Optional: true}},
		{raw: "a = 5", want: rawParam{Name: "a", Optional: true, HasDefault: true}},
		{raw: "a: number = 5", want: rawParam{Name: "a", Type: "number", Optional: true, HasDefault: true}},
		{raw: "...rest: number[]", want: rawParam{Name: "rest", Type: "number[]", Rest: true}},
		{raw: "fn: (x: number) => void", want: rawParam{Name: "fn", Type: "(x: number) => void"}},
		{raw: "flag: number = 1 > 0 ? 1 : 2", want: rawParam{Name: "flag", Type: "number", Optional: true, HasDefault: true}},
		{raw: "m: Map<string, number> = new Map<string, number>()", want: rawParam{Name: "m", Type: "Map<string, number>", Optional: true, HasDefault: true}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, splitParam(tt.raw))
		})
	}
}

func TestMapValueType(t *testing.T) {
	tests := []struct {
		typ      string
		wantType string
		wantDims string
		wantErr  bool
	}{
		{typ: "", wantType: "any"},
		{typ: "number", wantType: "number"},
		{typ: "string", wantType: "string"},
		{typ: "boolean", wantType: "boolean"},
		{typ: "any", wantType: "any"},
		{typ: "number[][]", wantType: "number", wantDims: "matrix"},
		{typ: "Array<Array<boolean>>", wantType: "boolean", wantDims: "matrix"},
		{typ: "Array<any[]>", wantType: "any", wantDims: "matrix"},
		{typ: "number[]", wantErr: true},
		{typ: "Date", wantErr: true},
		{typ: "string | number", wantErr: true},
		{typ: "Date[][]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			typ, dims, err := mapValueType(tt.typ)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantDims, dims)
		})
	}
}

func TestClassifyInvocation(t *testing.T) {
	kind, inner := classifyInvocation("CustomFunctions.StreamingInvocation<number[][]>")
	assert.Equal(t, invocationStreaming, kind)
	assert.Equal(t, "number[][]", inner)

	kind, _ = classifyInvocation("CustomFunctions.CancelableInvocation")
	assert.Equal(t, invocationCancelable, kind)

	kind, _ = classifyInvocation("CustomFunctions.Invocation")
	assert.Equal(t, invocationPlain, kind)

	kind, _ = classifyInvocation("number")
	assert.Equal(t, invocationNone, kind)
}

func TestUnwrapPromise(t *testing.T) {
	assert.Equal(t, "number", unwrapPromise("Promise<number>"))
	assert.Equal(t, "string[][]", unwrapPromise(" Promise< string[][] > "))
	assert.Equal(t, "boolean", unwrapPromise("boolean"))
}
