package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/engine"
	"github.com/HendryAvila/evolve/internal/proposals"
)

// CreateProposalTool handles the evolve_create_proposal MCP tool.
type CreateProposalTool struct {
	engine *engine.Engine
}

// NewCreateProposalTool creates a CreateProposalTool.
func NewCreateProposalTool(e *engine.Engine) *CreateProposalTool {
	return &CreateProposalTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateProposalTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_create_proposal",
		mcp.WithDescription(
			"Create a new improvement proposal in DRAFT status. "+
				"A proposal groups one or more concrete items; submit it for review with "+
				"`evolve_submit_for_review` once it is ready.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Short title, e.g. 'Tune cache eviction'"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Area of the system the proposal improves"),
			mcp.Enum(enumValues(proposals.Categories)...),
		),
		mcp.WithString("summary",
			mcp.Description("What the proposal changes and why"),
		),
		mcp.WithArray("items",
			mcp.Description("Proposal items: objects with description (required), rationale, "+
				"impact and risk (high/medium/low), estimated_effort and dependencies."),
			mcp.Items(map[string]any{"type": "object"}),
		),
	)
}

// Handle processes the evolve_create_proposal tool call.
func (t *CreateProposalTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := strings.TrimSpace(req.GetString("title", ""))
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}
	category := proposals.Category(req.GetString("category", ""))

	var items []proposals.Item
	if _, err := decodeArg(req, "items", &items); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := t.engine.CreateProposal(title, category, req.GetString("summary", ""), items)
	if err != nil {
		return failure("create_proposal", err), nil
	}

	return mcp.NewToolResultText(
		"# Proposal Created\n\n" + statusLine(p) +
			fmt.Sprintf("**Items:** %d\n", len(p.Items)) + nextSteps(p),
	), nil
}

// GetProposalTool handles the evolve_get_proposal MCP tool.
type GetProposalTool struct {
	engine *engine.Engine
}

// NewGetProposalTool creates a GetProposalTool.
func NewGetProposalTool(e *engine.Engine) *GetProposalTool {
	return &GetProposalTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *GetProposalTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_get_proposal",
		mcp.WithDescription("Show one proposal with its items, reviews, plan and checklist."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
		mcp.WithString("format",
			mcp.Description("Output format (default: markdown)"),
			mcp.Enum("markdown", "json"),
		),
	)
}

// Handle processes the evolve_get_proposal tool call.
func (t *GetProposalTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	if req.GetString("format", "markdown") == "json" {
		p, err := t.engine.GetProposal(id)
		if err != nil {
			return failure("get_proposal", err), nil
		}
		return jsonResult(p)
	}

	text, err := t.engine.RenderProposal(id)
	if err != nil {
		return failure("get_proposal", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

// ListProposalsTool handles the evolve_list_proposals MCP tool.
type ListProposalsTool struct {
	engine *engine.Engine
}

// NewListProposalsTool creates a ListProposalsTool.
func NewListProposalsTool(e *engine.Engine) *ListProposalsTool {
	return &ListProposalsTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ListProposalsTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_list_proposals",
		mcp.WithDescription("List proposals newest first, optionally filtered by status and category."),
		mcp.WithString("status",
			mcp.Description("Only proposals in this status"),
			mcp.Enum(enumValues(proposals.Statuses)...),
		),
		mcp.WithString("category",
			mcp.Description("Only proposals in this category"),
			mcp.Enum(enumValues(proposals.Categories)...),
		),
	)
}

// Handle processes the evolve_list_proposals tool call.
func (t *ListProposalsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := proposals.Filter{
		Status:   proposals.Status(req.GetString("status", "")),
		Category: proposals.Category(req.GetString("category", "")),
	}
	if filter.Status != "" {
		if err := proposals.ValidateStatus(filter.Status); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	if filter.Category != "" {
		if err := proposals.ValidateCategory(filter.Category); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	list, err := t.engine.ListProposals(filter)
	if err != nil {
		return failure("list_proposals", err), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No proposals found."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d proposal(s):\n\n", len(list))
	b.WriteString("| ID | Title | Category | Status | Progress |\n")
	b.WriteString("|----|-------|----------|--------|----------|\n")
	for i := range list {
		p := &list[i]
		fmt.Fprintf(&b, "| `%s` | %s | %s | %s | %.0f%% |\n",
			p.ID, p.Title, p.Category, p.Status, proposals.Progress(p))
	}
	return mcp.NewToolResultText(b.String()), nil
}
