package pipeline

import (
	"time"
)

// Step names used in reports, logs and metrics
const (
	StepExtract = "extract"
	StepBundle  = "bundle"
)

// StepReport is the outcome of one half of a cycle
type StepReport struct {
	Step       string        `json:"step"`
	OK         bool          `json:"ok"`
	Errors     []string      `json:"errors,omitempty"`
	Warnings   []string      `json:"warnings,omitempty"`
	Bytes      int           `json:"bytes"`
	Generation uint64        `json:"generation"`
	Duration   time.Duration `json:"duration"`
	Notified   bool          `json:"notified"`
	StoreError string        `json:"store_error,omitempty"`
}

// Report is the outcome of one regeneration cycle
type Report struct {
	Cycle     uint64        `json:"cycle"`
	Mode      string        `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Manifest  StepReport    `json:"manifest"`
	Script    StepReport    `json:"script"`
}

// OK reports whether both halves were generated without diagnostics
func (r Report) OK() bool {
	return r.Manifest.OK && r.Script.OK
}

// Errors returns the diagnostics of both halves, manifest first
func (r Report) Errors() []string {
	errs := make([]string, 0, len(r.Manifest.Errors)+len(r.Script.Errors))
	errs = append(errs, r.Manifest.Errors...)
	return append(errs, r.Script.Errors...)
}

// Outcome classifies the cycle as success, partial or failure
func (r Report) Outcome() string {
	switch {
	case r.Manifest.OK && r.Script.OK:
		return "success"
	case r.Manifest.OK || r.Script.OK:
		return "partial"
	default:
		return "failure"
	}
}

// Status is the scheduling state of the pipeline
type Status struct {
	Running   bool   `json:"running"`
	Pending   bool   `json:"pending"`
	LastCycle uint64 `json:"last_cycle"`
}
