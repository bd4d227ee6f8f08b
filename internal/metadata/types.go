// Package metadata extracts callable signatures from annotated entry-point
// source without executing it, and serializes them into the manifest the
// Office host uses to register custom functions.
package metadata

import (
	"encoding/json"
	"fmt"
)

// Manifest is the serialized description of every callable the host registers
type Manifest struct {
	Functions []Function `json:"functions"`
}

// Function describes one exported callable
type Function struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	HelpURL     string         `json:"helpUrl,omitempty"`
	Parameters  []Parameter    `json:"parameters"`
	Result      FunctionResult `json:"result"`
	Options     *Options       `json:"options,omitempty"`

	// Source is the entry point the function was declared in
	Source string `json:"-"`
}

// Parameter describes one declared parameter of a callable
type Parameter struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Type           string `json:"type"`
	Dimensionality string `json:"dimensionality,omitempty"` // "matrix" for 2-D ranges
	Optional       bool   `json:"optional,omitempty"`
	Repeating      bool   `json:"repeating,omitempty"`
}

// FunctionResult describes the value a callable returns
type FunctionResult struct {
	Type           string `json:"type"`
	Dimensionality string `json:"dimensionality,omitempty"`
	Description    string `json:"description,omitempty"`
}

// Options carries the behavioral flags set by JSDoc tags
type Options struct {
	Stream          bool `json:"stream,omitempty"`
	Cancelable      bool `json:"cancelable,omitempty"`
	Volatile        bool `json:"volatile,omitempty"`
	RequiresAddress bool `json:"requiresAddress,omitempty"`
}

func (o *Options) empty() bool {
	return o == nil || (!o.Stream && !o.Cancelable && !o.Volatile && !o.RequiresAddress)
}

// Result is the outcome of one extraction: either ManifestText holds the
// serialized manifest and Errors is empty, or Errors is non-empty and
// ManifestText holds the error payload embedding them
type Result struct {
	ManifestText *string
	Errors       []string
	Manifest     *Manifest
}

// OK reports whether extraction produced a manifest without diagnostics
func (r Result) OK() bool {
	return r.ManifestText != nil && len(r.Errors) == 0
}

// errorPayload is the manifest-shaped document written in place of the
// manifest when extraction reports diagnostics
type errorPayload struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// Marshal serializes the manifest with the indentation the host expects
func (m *Manifest) Marshal() (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize manifest: %w", err)
	}
	return string(data), nil
}

// ErrorPayload renders the structured error document for outputName
func ErrorPayload(outputName string, details []string) string {
	payload := errorPayload{
		Error:   fmt.Sprintf("Failed to generate %s", outputName),
		Details: details,
	}
	if payload.Details == nil {
		payload.Details = []string{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Only strings are marshaled; this cannot fail in practice
		return fmt.Sprintf(`{"error":%q}`, payload.Error)
	}
	return string(data)
}

// ParseErrorPayload reports whether text is an error payload and returns its details
func ParseErrorPayload(text string) ([]string, bool) {
	var payload errorPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil || payload.Error == "" {
		return nil, false
	}
	return payload.Details, true
}
