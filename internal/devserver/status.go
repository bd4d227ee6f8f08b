package devserver

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxbase-eu/officefn/internal/artifact"
	"github.com/fluxbase-eu/officefn/internal/pipeline"
)

// ArtifactStatus describes one served artifact
type ArtifactStatus struct {
	File       string     `json:"file"`
	Present    bool       `json:"present"`
	Failed     bool       `json:"failed"`
	Errors     []string   `json:"errors"`
	Bytes      int        `json:"bytes"`
	Generation uint64     `json:"generation"`
	Cycle      uint64     `json:"cycle"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// StatusResponse is the body of the status endpoint
type StatusResponse struct {
	Paired          bool             `json:"paired"`
	Manifest        ArtifactStatus   `json:"manifest"`
	Script          ArtifactStatus   `json:"script"`
	Pipeline        *pipeline.Status `json:"pipeline,omitempty"`
	LastReport      *pipeline.Report `json:"last_report,omitempty"`
	LiveConnections int              `json:"live_connections"`
}

func artifactStatus(file string, state artifact.HalfState) ArtifactStatus {
	status := ArtifactStatus{
		File:       file,
		Present:    state.Present(),
		Failed:     state.Failed(),
		Errors:     state.Errors,
		Generation: state.Generation,
		Cycle:      state.Cycle,
	}
	if status.Errors == nil {
		status.Errors = []string{}
	}
	if state.Content != nil {
		status.Bytes = len(*state.Content)
	}
	if !state.UpdatedAt.IsZero() {
		updated := state.UpdatedAt
		status.UpdatedAt = &updated
	}
	return status
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap, err := s.opts.Store.Snapshot()
	if err != nil {
		return err
	}

	resp := StatusResponse{
		Paired:   snap.Paired(),
		Manifest: artifactStatus(s.opts.ManifestName, snap.Manifest),
		Script:   artifactStatus(s.opts.ScriptName, snap.Script),
	}

	if s.opts.Pipeline != nil {
		status := s.opts.Pipeline.Status()
		resp.Pipeline = &status
		if report, ok := s.opts.Pipeline.LastReport(); ok {
			resp.LastReport = &report
		}
	}
	if s.opts.Live != nil {
		resp.LiveConnections = s.opts.Live.ConnectionCount()
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(resp)
}
