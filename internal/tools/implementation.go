package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/engine"
	"github.com/HendryAvila/evolve/internal/proposals"
)

// PlanTool handles the evolve_create_plan MCP tool.
type PlanTool struct {
	engine *engine.Engine
}

// NewPlanTool creates a PlanTool.
func NewPlanTool(e *engine.Engine) *PlanTool {
	return &PlanTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *PlanTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_create_plan",
		mcp.WithDescription(
			"Attach an implementation plan and checklist to an APPROVED proposal. "+
				"Checklist tasks are appended; status stays APPROVED. "+
				"A plan is required before `evolve_begin_implementation`.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
		mcp.WithString("plan",
			mcp.Required(),
			mcp.Description("Implementation plan text"),
		),
		mcp.WithArray("checklist",
			mcp.Description("Checklist task descriptions, in order"),
			mcp.WithStringItems(),
		),
		mcp.WithObject("blueprint",
			mcp.Description("Optional structured payload stored verbatim with the proposal"),
		),
	)
}

// Handle processes the evolve_create_plan tool call.
func (t *PlanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	plan := req.GetString("plan", "")
	if id == "" || strings.TrimSpace(plan) == "" {
		return mcp.NewToolResultError("'id' and 'plan' are required"), nil
	}

	var blueprint json.RawMessage
	if _, err := decodeArg(req, "blueprint", &blueprint); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := t.engine.CreateImplementationPlan(id, plan, stringList(req, "checklist"), blueprint)
	if err != nil {
		return failure("create_implementation_plan", err), nil
	}

	var b strings.Builder
	b.WriteString("# Implementation Plan Attached\n\n")
	b.WriteString(statusLine(p))
	fmt.Fprintf(&b, "\n## Checklist (%d)\n\n", len(p.Checklist))
	for _, item := range p.Checklist {
		fmt.Fprintf(&b, "- `%s` %s\n", item.ID, item.Task)
	}
	b.WriteString(nextSteps(p))
	return mcp.NewToolResultText(b.String()), nil
}

// BeginTool handles the evolve_begin_implementation MCP tool.
type BeginTool struct {
	engine *engine.Engine
}

// NewBeginTool creates a BeginTool.
func NewBeginTool(e *engine.Engine) *BeginTool {
	return &BeginTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *BeginTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_begin_implementation",
		mcp.WithDescription(
			"Start implementing an APPROVED proposal that has a plan. "+
				"Takes a pre-implementation snapshot of the tracked paths (used by rollback) "+
				"and moves the proposal to IMPLEMENTING.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
	)
}

// Handle processes the evolve_begin_implementation tool call.
func (t *BeginTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p, err := t.engine.BeginImplementation(id)
	if err != nil {
		return failure("begin_implementation", err), nil
	}
	return mcp.NewToolResultText(
		"# Implementation Started\n\n" + statusLine(p) +
			fmt.Sprintf("**Pre-implementation snapshot:** `%s`\n", p.PreSnapshotID) +
			warnings(p) + nextSteps(p),
	), nil
}

// CompleteTaskTool handles the evolve_complete_task MCP tool.
type CompleteTaskTool struct {
	engine *engine.Engine
}

// NewCompleteTaskTool creates a CompleteTaskTool.
func NewCompleteTaskTool(e *engine.Engine) *CompleteTaskTool {
	return &CompleteTaskTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *CompleteTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_complete_task",
		mcp.WithDescription("Mark one checklist task of an IMPLEMENTING proposal as completed."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Checklist task ID, e.g. task-1"),
		),
		mcp.WithString("notes",
			mcp.Description("Optional completion notes"),
		),
	)
}

// Handle processes the evolve_complete_task tool call.
func (t *CompleteTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	taskID := req.GetString("task_id", "")
	if id == "" || taskID == "" {
		return mcp.NewToolResultError("'id' and 'task_id' are required"), nil
	}
	p, err := t.engine.CompleteTask(id, taskID, req.GetString("notes", ""))
	if err != nil {
		return failure("complete_task", err), nil
	}

	pending := proposals.PendingTasks(p)
	var b strings.Builder
	fmt.Fprintf(&b, "Task `%s` completed. Progress: %.0f%% (%d pending)\n",
		taskID, proposals.Progress(p), len(pending))
	for _, item := range pending {
		fmt.Fprintf(&b, "- [ ] `%s` %s\n", item.ID, item.Task)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// CompleteTool handles the evolve_complete_implementation MCP tool.
type CompleteTool struct {
	engine *engine.Engine
}

// NewCompleteTool creates a CompleteTool.
func NewCompleteTool(e *engine.Engine) *CompleteTool {
	return &CompleteTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *CompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_complete_implementation",
		mcp.WithDescription(
			"Finish an IMPLEMENTING proposal: takes a post-implementation snapshot and moves it to COMPLETED. "+
				"Unfinished checklist tasks do not block completion but are reported as a warning.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
	)
}

// Handle processes the evolve_complete_implementation tool call.
func (t *CompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p, err := t.engine.CompleteImplementation(id)
	if err != nil {
		return failure("complete_implementation", err), nil
	}
	return mcp.NewToolResultText(
		"# Implementation Completed\n\n" + statusLine(p) +
			fmt.Sprintf("**Post-implementation snapshot:** `%s`\n**Progress:** %.0f%%\n",
				p.PostSnapshotID, proposals.Progress(p)) +
			warnings(p) + nextSteps(p),
	), nil
}

// RollbackTool handles the evolve_rollback_implementation MCP tool.
type RollbackTool struct {
	engine *engine.Engine
}

// NewRollbackTool creates a RollbackTool.
func NewRollbackTool(e *engine.Engine) *RollbackTool {
	return &RollbackTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *RollbackTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_rollback_implementation",
		mcp.WithDescription(
			"Undo an IMPLEMENTING or COMPLETED proposal: restores its pre-implementation snapshot and "+
				"moves it to ROLLED_BACK. Database backups are not restored; their location is reported.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Proposal ID"),
		),
	)
}

// Handle processes the evolve_rollback_implementation tool call.
func (t *RollbackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}
	p, res, err := t.engine.RollbackImplementation(id)
	if err != nil {
		if res == nil {
			return failure("rollback_implementation", err), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "rollback_implementation failed (%s): %v\n\nThe proposal keeps its status.\n\n", errorKind(err), err)
		writeRestore(&b, res)
		return mcp.NewToolResultError(b.String()), nil
	}

	var b strings.Builder
	b.WriteString("# Implementation Rolled Back\n\n")
	b.WriteString(statusLine(p))
	writeRestore(&b, res)
	return mcp.NewToolResultText(b.String()), nil
}

// warnings lists the warning entries of the execution log.
func warnings(p *proposals.Proposal) string {
	var b strings.Builder
	for _, e := range p.ExecutionLog {
		if e.Action == proposals.LogWarning {
			fmt.Fprintf(&b, "\n> Warning: %s", e.Details)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "\n"
}
