package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/engine"
)

// AuditTrailTool handles the evolve_audit_trail MCP tool.
type AuditTrailTool struct {
	engine *engine.Engine
}

// NewAuditTrailTool creates an AuditTrailTool.
func NewAuditTrailTool(e *engine.Engine) *AuditTrailTool {
	return &AuditTrailTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *AuditTrailTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_audit_trail",
		mcp.WithDescription("Show the chronological record of a proposal: creation, reviews and execution events."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
		mcp.WithBoolean("history",
			mcp.Description("Also list the proposal's journaled engine events (default: false)"),
		),
	)
}

// Handle processes the evolve_audit_trail tool call.
func (t *AuditTrailTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	events, err := t.engine.GetAuditTrail(id)
	if err != nil {
		return failure("get_audit_trail", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Audit Trail: `%s`\n\n", id)
	b.WriteString("| Time | Kind | Action | Actor | Details |\n")
	b.WriteString("|------|------|--------|-------|---------|\n")
	for _, e := range events {
		actor := e.Actor
		if actor == "" {
			actor = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.Action, actor, oneLine(e.Details))
	}

	if req.GetBool("history", false) {
		if err := t.writeHistory(&b, id); err != nil {
			return failure("get_audit_trail", err), nil
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// writeHistory appends the journaled events of a proposal.
func (t *AuditTrailTool) writeHistory(b *strings.Builder, id string) error {
	entries, err := t.engine.History(id)
	if errors.Is(err, engine.ErrJournalDisabled) {
		b.WriteString("\n_Journal history unavailable: the journal is disabled._\n")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(b, "\n## Journal (%d)\n\n", len(entries))
	for _, en := range entries {
		fmt.Fprintf(b, "- **%s** %s -> %s", en.CreatedAt, en.Action, en.Status)
		if en.Actor != "" {
			fmt.Fprintf(b, " by %s", en.Actor)
		}
		if en.Details != "" {
			fmt.Fprintf(b, ": %s", oneLine(en.Details))
		}
		b.WriteString("\n")
	}
	return nil
}

// ReportTool handles the evolve_report MCP tool.
type ReportTool struct {
	engine *engine.Engine
}

// NewReportTool creates a ReportTool.
func NewReportTool(e *engine.Engine) *ReportTool {
	return &ReportTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ReportTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_report",
		mcp.WithDescription(
			"Summarize the engine: proposals by status, active implementations with progress, "+
				"pending reviews, recently completed proposals and snapshot count. Read-only.",
		),
		mcp.WithString("format",
			mcp.Description("Output format (default: markdown)"),
			mcp.Enum("markdown", "json"),
		),
	)
}

// Handle processes the evolve_report tool call.
func (t *ReportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetString("format", "markdown") == "json" {
		r, err := t.engine.Report()
		if err != nil {
			return failure("generate_report", err), nil
		}
		return jsonResult(r)
	}
	text, err := t.engine.GenerateReport()
	if err != nil {
		return failure("generate_report", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

// SearchHistoryTool handles the evolve_search_history MCP tool.
type SearchHistoryTool struct {
	engine *engine.Engine
}

// NewSearchHistoryTool creates a SearchHistoryTool.
func NewSearchHistoryTool(e *engine.Engine) *SearchHistoryTool {
	return &SearchHistoryTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *SearchHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_search_history",
		mcp.WithDescription(
			"Full-text search across every journaled lifecycle event (titles, actions, reviewers, comments). "+
				"An empty query lists the most recent events.",
		),
		mcp.WithString("query",
			mcp.Description("Search keywords"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 10)"),
		),
	)
}

// Handle processes the evolve_search_history tool call.
func (t *SearchHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	results, err := t.engine.SearchHistory(req.GetString("query", ""), intArg(req, "limit", 10))
	if errors.Is(err, engine.ErrJournalDisabled) {
		return mcp.NewToolResultError("History search is unavailable: the journal is disabled in the configuration."), nil
	}
	if err != nil {
		return failure("search_history", err), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No events found matching your query."), nil
	}

	var b strings.Builder
	if stats, err := t.engine.HistoryStats(); err == nil {
		fmt.Fprintf(&b, "Journal: %d event(s) across %d proposal(s)\n\n", stats.TotalEvents, stats.TotalProposals)
	}
	fmt.Fprintf(&b, "Found %d event(s):\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "- **%s** `%s` %s -> %s", r.CreatedAt, r.ProposalID, r.Action, r.Status)
		if r.Actor != "" {
			fmt.Fprintf(&b, " by %s", r.Actor)
		}
		if r.Details != "" {
			fmt.Fprintf(&b, ": %s", oneLine(r.Details))
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// oneLine flattens text for a table cell.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
