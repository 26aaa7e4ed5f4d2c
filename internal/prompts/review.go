// Package prompts implements the MCP prompts of the engine.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the evolve-review MCP prompt.
// It walks the AI through every proposal awaiting review.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("evolve-review",
		mcp.WithPromptDescription(
			"Review every proposal waiting in PENDING_REVIEW: read each one, "+
				"weigh impact against risk, and record a verdict.",
		),
		mcp.WithArgument("reviewer",
			mcp.ArgumentDescription("Name recorded on each review (default: assistant)"),
		),
	)
}

// Handle processes the evolve-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	reviewer := req.Params.Arguments["reviewer"]
	if reviewer == "" {
		reviewer = "assistant"
	}

	return &mcp.GetPromptResult{
		Description: "Review pending proposals",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Run `evolve_list_proposals` with status `pending_review`.\n\n" +
						"For each proposal:\n" +
						"1. Read it with `evolve_get_proposal`\n" +
						"2. Check that every item has a rationale and that high-risk items are justified by their impact\n" +
						"3. Call `evolve_review_proposal` with reviewer `" + reviewer + "` and one of " +
						"`approve`, `request_changes` or `reject`, explaining the verdict in the comment\n\n" +
						"Finish with `evolve_report` and summarize what changed.",
				),
			},
		},
	}, nil
}
