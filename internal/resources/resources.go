// Package resources implements the read-only MCP resources of the engine.
//
// Resources use evolve:// URIs and never mutate state.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/engine"
	"github.com/HendryAvila/evolve/internal/proposals"
)

const (
	ReportURI    = "evolve://report"
	ProposalsURI = "evolve://proposals"
)

// Handler serves engine resources.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a resource Handler.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// ReportResource returns the MCP resource definition for the engine report.
func (h *Handler) ReportResource() mcp.Resource {
	return mcp.NewResource(
		ReportURI,
		"Self-Improvement Report",
		mcp.WithResourceDescription("Proposal counts by status, active implementations, pending reviews and snapshot count"),
		mcp.WithMIMEType("text/markdown"),
	)
}

// HandleReport renders the current report.
func (h *Handler) HandleReport(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	text, err := h.engine.GenerateReport()
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     text,
		},
	}, nil
}

// ProposalsResource returns the MCP resource definition for the proposal list.
func (h *Handler) ProposalsResource() mcp.Resource {
	return mcp.NewResource(
		ProposalsURI,
		"Proposals",
		mcp.WithResourceDescription("Every proposal, newest first, as JSON"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleProposals returns every proposal as JSON.
func (h *Handler) HandleProposals(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := h.engine.ListProposals(proposals.Filter{})
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling proposals: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
