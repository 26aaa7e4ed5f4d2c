// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the concrete stores, the
// snapshot manager, the journal and the engine, and injects the engine into
// the tools, prompts and resources. No business logic lives here.
package server

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/evolve/internal/config"
	"github.com/HendryAvila/evolve/internal/engine"
	"github.com/HendryAvila/evolve/internal/journal"
	"github.com/HendryAvila/evolve/internal/logging"
	"github.com/HendryAvila/evolve/internal/prompts"
	"github.com/HendryAvila/evolve/internal/proposals"
	"github.com/HendryAvila/evolve/internal/resources"
	"github.com/HendryAvila/evolve/internal/snapshot"
	"github.com/HendryAvila/evolve/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Tool is the shape shared by every handler in internal/tools.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// NewEngine builds the engine and its stores from cfg.
//
// The journal is an independent subsystem: if it fails to open, the engine
// runs without history search and a warning is logged. The returned
// cleanup function closes the journal; it is always non-nil.
func NewEngine(cfg *config.Config, logger *log.Logger) (*engine.Engine, func(), error) {
	store := proposals.NewFileStore(cfg.DataDir)

	snaps, err := snapshot.NewManager(cfg.SnapshotRoot(), snapshot.WithExclude(cfg.Exclude...))
	if err != nil {
		return nil, noop, fmt.Errorf("opening snapshot store: %w", err)
	}

	cleanup := noop
	opts := []engine.Option{engine.WithLogger(logger)}
	if cfg.Journal {
		j, err := journal.New(journal.DefaultConfig(cfg.DataDir))
		if err != nil {
			logger.Warn("history journal disabled", "err", err)
		} else {
			opts = append(opts, engine.WithJournal(j))
			cleanup = func() {
				logging.CloseError(logger, "journal", j.Close())
			}
		}
	}

	e, err := engine.New(cfg, store, snaps, opts...)
	if err != nil {
		cleanup()
		return nil, noop, err
	}
	return e, cleanup, nil
}

// New creates and configures the MCP server with all tools, prompts and
// resources registered.
//
// The returned cleanup function must be called on shutdown (typically via
// defer). It is always non-nil.
func New(cfg *config.Config, logger *log.Logger) (*server.MCPServer, func(), error) {
	e, cleanup, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, noop, err
	}

	s := server.NewMCPServer(
		"evolve",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	for _, t := range Tools(e) {
		s.AddTool(t.Definition(), t.Handle)
	}

	// --- Register prompts ---

	reviewPrompt := prompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(e)
	s.AddResource(resourceHandler.ReportResource(), resourceHandler.HandleReport)
	s.AddResource(resourceHandler.ProposalsResource(), resourceHandler.HandleProposals)

	logger.Info("server ready", "data_dir", cfg.DataDir, "snapshots", cfg.SnapshotRoot(), "tracked", len(cfg.TrackedPaths))
	return s, cleanup, nil
}

// Tools returns every MCP tool handler bound to e, in registration order.
func Tools(e *engine.Engine) []Tool {
	return []Tool{
		// Proposals
		tools.NewCreateProposalTool(e),
		tools.NewGetProposalTool(e),
		tools.NewListProposalsTool(e),

		// Review
		tools.NewSubmitTool(e),
		tools.NewReviewTool(e),
		tools.NewReviseTool(e),

		// Implementation
		tools.NewPlanTool(e),
		tools.NewBeginTool(e),
		tools.NewCompleteTaskTool(e),
		tools.NewCompleteTool(e),
		tools.NewRollbackTool(e),

		// Snapshots
		tools.NewCreateSnapshotTool(e),
		tools.NewRestoreSnapshotTool(e),
		tools.NewListSnapshotsTool(e),

		// Audit
		tools.NewAuditTrailTool(e),
		tools.NewReportTool(e),
		tools.NewSearchHistoryTool(e),
	}
}

// noop is the default cleanup function.
func noop() {}

// serverInstructions tells the AI how to drive the workflow.
func serverInstructions() string {
	return `You have access to evolve, a self-improvement workflow engine.

Every change to the system goes through a proposal with a strict lifecycle:

  DRAFT -> PENDING_REVIEW -> APPROVED -> IMPLEMENTING -> COMPLETED
                          -> REVISION_REQUESTED -> (revise) -> PENDING_REVIEW
                          -> REJECTED
  IMPLEMENTING or COMPLETED -> ROLLED_BACK

## Workflow

1. evolve_create_proposal: describe the change and its items (DRAFT)
2. evolve_submit_for_review
3. evolve_review_proposal: approve, request_changes or reject
   (after request_changes use evolve_revise_proposal to resubmit)
4. evolve_create_plan: attach the plan and checklist (APPROVED only)
5. evolve_begin_implementation: takes a pre-implementation snapshot
6. evolve_complete_task for each checklist task as the work is done
7. evolve_complete_implementation: takes a post-implementation snapshot
8. evolve_rollback_implementation restores the pre-implementation snapshot if the change must be undone

## Rules

- Never skip review: only APPROVED proposals can be implemented.
- Completing with unfinished tasks is allowed but is recorded as a warning.
- Rollback does not restore databases. The tool reports where the backup is.
- Use evolve_report for an overview and evolve_audit_trail for one proposal's history.
- Use evolve_search_history to find past decisions and review comments.
`
}
