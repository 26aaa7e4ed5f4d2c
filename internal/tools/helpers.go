// Package tools implements the MCP tool handlers of the workflow engine.
//
// Each tool is a struct holding the engine, with Definition() returning the
// mcp.Tool schema and Handle() processing the call. Domain failures (unknown
// id, illegal transition, missing prerequisite, partial copy) come back as
// tool error results with a readable reason; a Go error is returned only
// when the response itself cannot be built.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/evolve/internal/proposals"
	"github.com/HendryAvila/evolve/internal/snapshot"
)

// errorKind names the failure class of an engine error.
func errorKind(err error) string {
	switch {
	case errors.Is(err, proposals.ErrNotFound), errors.Is(err, snapshot.ErrNotFound):
		return "NotFound"
	case errors.Is(err, proposals.ErrInvalidTransition):
		return "InvalidTransition"
	case errors.Is(err, proposals.ErrMissingPrerequisite):
		return "MissingPrerequisite"
	case errors.Is(err, snapshot.ErrPartialCopy):
		return "PartialIOFailure"
	default:
		return "Error"
	}
}

// failure converts an engine error into a tool error result.
func failure(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", op, errorKind(err), err))
}

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// decodeArg re-decodes a structured argument into dst. The argument may be
// a JSON value or a string holding JSON. Returns false if the key is absent.
func decodeArg(req mcp.CallToolRequest, key string, dst any) (bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return false, nil
	}
	var data []byte
	if s, isString := raw.(string); isString {
		if strings.TrimSpace(s) == "" {
			return false, nil
		}
		data = []byte(s)
	} else {
		b, err := json.Marshal(raw)
		if err != nil {
			return true, fmt.Errorf("encoding %s: %w", key, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("invalid %s: %w", key, err)
	}
	return true, nil
}

// stringList reads an array of strings, also accepting a newline-separated
// string.
func stringList(req mcp.CallToolRequest, key string) []string {
	switch v := req.GetArguments()[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return nil
}

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// statusLine is the one-line confirmation shown after a transition.
func statusLine(p *proposals.Proposal) string {
	return fmt.Sprintf("**ID:** `%s`\n**Title:** %s\n**Status:** %s\n**Updated:** %s\n",
		p.ID, p.Title, strings.ToUpper(string(p.Status)), p.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
}

// nextSteps lists the actions allowed from the proposal's current status.
// Terminal statuses are flagged as final; a completed proposal can still
// be rolled back.
func nextSteps(p *proposals.Proposal) string {
	allowed := proposals.Allowed(p.Status)
	var b strings.Builder
	if proposals.IsTerminal(p.Status) {
		b.WriteString("\nThe proposal is final.")
		if len(allowed) == 0 {
			b.WriteString("\n")
			return b.String()
		}
		b.WriteString(" **Still possible:**")
	} else {
		b.WriteString("\n**Next actions:**")
	}
	for _, a := range allowed {
		fmt.Fprintf(&b, " `%s`", a)
	}
	b.WriteString("\n")
	return b.String()
}

// enumValues converts typed enum values to strings for mcp.Enum.
func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
