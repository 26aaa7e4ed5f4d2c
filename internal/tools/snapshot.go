package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/engine"
	"github.com/HendryAvila/evolve/internal/snapshot"
)

// CreateSnapshotTool handles the evolve_create_snapshot MCP tool.
type CreateSnapshotTool struct {
	engine *engine.Engine
}

// NewCreateSnapshotTool creates a CreateSnapshotTool.
func NewCreateSnapshotTool(e *engine.Engine) *CreateSnapshotTool {
	return &CreateSnapshotTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *CreateSnapshotTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_create_snapshot",
		mcp.WithDescription(
			"Back up files and directories to the snapshot store. Missing paths are skipped; "+
				"paths inside the snapshot store are never backed up. A partial result lists the failed paths.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Snapshot name"),
		),
		mcp.WithString("description",
			mcp.Description("What the snapshot is for"),
		),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("Files or directories to back up"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("db_paths",
			mcp.Description("Database files to copy alongside (reported, never restored)"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the evolve_create_snapshot tool call.
func (t *CreateSnapshotTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	paths := stringList(req, "paths")
	if name == "" || len(paths) == 0 {
		return mcp.NewToolResultError("'name' and 'paths' are required"), nil
	}

	snap, err := t.engine.CreateSnapshot(name, req.GetString("description", ""), paths, stringList(req, "db_paths"))
	if err != nil && !errors.Is(err, snapshot.ErrPartialCopy) {
		return failure("create_snapshot", err), nil
	}

	text := formatSnapshot(snap)
	if err != nil {
		return mcp.NewToolResultError("create_snapshot partial (PartialIOFailure)\n\n" + text), nil
	}
	return mcp.NewToolResultText("# Snapshot Created\n\n" + text), nil
}

// RestoreSnapshotTool handles the evolve_restore_snapshot MCP tool.
type RestoreSnapshotTool struct {
	engine *engine.Engine
}

// NewRestoreSnapshotTool creates a RestoreSnapshotTool.
func NewRestoreSnapshotTool(e *engine.Engine) *RestoreSnapshotTool {
	return &RestoreSnapshotTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *RestoreSnapshotTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_restore_snapshot",
		mcp.WithDescription(
			"Copy a snapshot's files back to their original locations. "+
				"Directories are overlaid; database backups are not restored.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Snapshot ID"),
		),
	)
}

// Handle processes the evolve_restore_snapshot tool call.
func (t *RestoreSnapshotTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	res, err := t.engine.RestoreSnapshot(id)
	if err != nil && (res == nil || !errors.Is(err, snapshot.ErrPartialCopy)) {
		return failure("restore_snapshot", err), nil
	}

	var b strings.Builder
	writeRestore(&b, res)
	if err != nil {
		return mcp.NewToolResultError("restore_snapshot partial (PartialIOFailure)\n\n" + b.String()), nil
	}
	return mcp.NewToolResultText("# Snapshot Restored\n\n" + b.String()), nil
}

// ListSnapshotsTool handles the evolve_list_snapshots MCP tool.
type ListSnapshotsTool struct {
	engine *engine.Engine
}

// NewListSnapshotsTool creates a ListSnapshotsTool.
func NewListSnapshotsTool(e *engine.Engine) *ListSnapshotsTool {
	return &ListSnapshotsTool{engine: e}
}

// Definition returns the MCP tool definition for registration.
func (t *ListSnapshotsTool) Definition() mcp.Tool {
	return mcp.NewTool("evolve_list_snapshots",
		mcp.WithDescription("List snapshots newest first, or show one snapshot in detail when `id` is given."),
		mcp.WithString("id",
			mcp.Description("Snapshot ID to inspect"),
		),
	)
}

// Handle processes the evolve_list_snapshots tool call.
func (t *ListSnapshotsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("id", ""); id != "" {
		snap, err := t.engine.GetSnapshot(id)
		if err != nil {
			return failure("get_snapshot", err), nil
		}
		return mcp.NewToolResultText(formatSnapshot(snap)), nil
	}

	snaps := t.engine.ListSnapshots()
	if len(snaps) == 0 {
		return mcp.NewToolResultText("No snapshots found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d snapshot(s):\n\n", len(snaps))
	b.WriteString("| ID | Name | Paths | Partial | Created |\n")
	b.WriteString("|----|------|-------|---------|---------|\n")
	for i := range snaps {
		s := &snaps[i]
		fmt.Fprintf(&b, "| `%s` | %s | %d | %t | %s |\n",
			s.ID, s.Name, len(s.FilesBackedUp), s.Partial(), s.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func formatSnapshot(s *snapshot.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**ID:** `%s`\n**Name:** %s\n", s.ID, s.Name)
	if s.Description != "" {
		fmt.Fprintf(&b, "**Description:** %s\n", s.Description)
	}
	fmt.Fprintf(&b, "**Created:** %s\n**Files backed up:** %d\n\n",
		s.CreatedAt.Format("2006-01-02 15:04:05 MST"), len(s.FilesBackedUp))
	for _, p := range s.FilesBackedUp {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if s.DatabaseBackup != "" {
		fmt.Fprintf(&b, "\n**Database backup:** `%s`\n", s.DatabaseBackup)
		for _, original := range slices.Sorted(maps.Keys(s.Databases)) {
			fmt.Fprintf(&b, "- %s -> `%s`\n", original, s.Databases[original])
		}
	}
	writeFailures(&b, s.Failures)
	return b.String()
}

// writeRestore renders what a restore copied back, what failed and where
// the unrestored database copies live.
func writeRestore(b *strings.Builder, res *snapshot.RestoreResult) {
	fmt.Fprintf(b, "**Snapshot:** `%s`\n**Restored:** %d path(s)\n\n", res.SnapshotID, len(res.Restored))
	for _, p := range res.Restored {
		fmt.Fprintf(b, "- %s\n", p)
	}
	writeFailures(b, res.Failures)
	if res.DatabaseBackup != "" {
		fmt.Fprintf(b, "\nDatabase backup was not restored. Restore it manually from `%s`.\n", res.DatabaseBackup)
		for _, original := range slices.Sorted(maps.Keys(res.Databases)) {
			fmt.Fprintf(b, "- %s <- `%s`\n", original, res.Databases[original])
		}
	}
}

func writeFailures(b *strings.Builder, failures []snapshot.Failure) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**Failed (%d):**\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(b, "- %s: %s\n", f.Path, f.Reason)
	}
}
