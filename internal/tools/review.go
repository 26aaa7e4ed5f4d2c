package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/engine"
	"github.com/HendryAvila/evolve/internal/proposals"
)

// SubmitTool handles the evolve_submit_for_review MCP tool.
type SubmitTool struct {
	engine *engine.Engine
}

// NewSubmitTool creates a SubmitTool.
func NewSubmitTool(e *engine.Engine) *SubmitTool {
	return &SubmitTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *SubmitTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_submit_for_review",
		mcp.WithDescription("Submit a DRAFT proposal for review (DRAFT -> PENDING_REVIEW)."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
	)
}

// Handle processes the evolve_submit_for_review tool call.
func (t *SubmitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p, err := t.engine.SubmitForReview(id)
	if err != nil {
		return failure("submit_for_review", err), nil
	}
	return mcp.NewToolResultText("# Submitted for Review\n\n" + statusLine(p) + nextSteps(p)), nil
}

// ReviewTool handles the evolve_review_proposal MCP tool.
type ReviewTool struct {
	engine *engine.Engine
}

// NewReviewTool creates a ReviewTool.
func NewReviewTool(e *engine.Engine) *ReviewTool {
	return &ReviewTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ReviewTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_review_proposal",
		mcp.WithDescription(
			"Record a review verdict on a PENDING_REVIEW proposal. "+
				"approve -> APPROVED, request_changes -> REVISION_REQUESTED (increments the revision count), "+
				"reject -> REJECTED.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
		mcp.WithString("reviewer",
			mcp.Required(),
			mcp.Description("Who is reviewing"),
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("Review verdict"),
			mcp.Enum(string(proposals.ActionApprove), string(proposals.ActionRequestChanges), string(proposals.ActionReject)),
		),
		mcp.WithString("comment",
			mcp.Description("Review comment"),
		),
	)
}

// Handle processes the evolve_review_proposal tool call.
func (t *ReviewTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	reviewer := req.GetString("reviewer", "")
	action := req.GetString("action", "")
	if id == "" || reviewer == "" || action == "" {
		return mcp.NewToolResultError("'id', 'reviewer' and 'action' are required"), nil
	}

	p, err := t.engine.ReviewProposal(id, reviewer, proposals.ReviewAction(action), req.GetString("comment", ""))
	if err != nil {
		return failure("review_proposal", err), nil
	}
	return mcp.NewToolResultText("# Review Recorded\n\n" + statusLine(p) + nextSteps(p)), nil
}

// ReviseTool handles the evolve_revise_proposal MCP tool.
type ReviseTool struct {
	engine *engine.Engine
}

// NewReviseTool creates a ReviseTool.
func NewReviseTool(e *engine.Engine) *ReviseTool {
	return &ReviseTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ReviseTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_revise_proposal",
		mcp.WithDescription(
			"Resubmit a REVISION_REQUESTED proposal (-> PENDING_REVIEW). "+
				"Omitted fields keep their current value.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
		mcp.WithString("summary",
			mcp.Description("Replacement summary"),
		),
		mcp.WithArray("items",
			mcp.Description("Replacement items (same shape as in evolve_create_proposal)"),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}

// Handle processes the evolve_revise_proposal tool call.
func (t *ReviseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	var summary *string
	if s, ok := req.GetArguments()["summary"].(string); ok {
		summary = &s
	}
	var items []proposals.Item
	present, err := decodeArg(req, "items", &items)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !present {
		items = nil
	}

	p, err := t.engine.ReviseProposal(id, summary, items)
	if err != nil {
		return failure("revise_proposal", err), nil
	}
	return mcp.NewToolResultText("# Proposal Revised\n\n" + statusLine(p) + nextSteps(p)), nil
}
