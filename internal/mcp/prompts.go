package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("design_flow",
		mcp.WithPromptDescription("Guide through building a flow of states and connectors for a goal"),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What the flow should do"),
			mcp.RequiredArgument(),
		),
	), s.handleDesignFlowPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("tidy_layout",
		mcp.WithPromptDescription("Find and fix overlapping states in the active solution"),
	), s.handleTidyLayoutPrompt)
}

func (s *Server) handleDesignFlowPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := req.Params.Arguments["goal"]
	if goal == "" {
		return nil, fmt.Errorf("goal is required")
	}
	text := fmt.Sprintf(`Build a flow for: %s

1. Call list_solutions, then set_active_solution (create=true for a new one).
2. Add one state per step with add_state. Use circle for start and end, rectangle for actions and diamond for decisions. Leave out x and y to let the editor place them.
3. Give each state slots with distinct angles so they spread around the perimeter. Mark them input or output; a decision needs one output per branch.
4. Wire steps with connect_slots from an output slot to an input slot.
5. Finish with find_overlaps and fix any pair with move_state.`, goal)
	return promptResult(fmt.Sprintf("Design a flow for: %s", goal), text), nil
}

func (s *Server) handleTidyLayoutPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := `Call find_overlaps on the active solution. For every pair, read both states with get_solution and move the smaller one with move_state to a free spot next to it. Moves are resolved like drags, so check the returned outcome: "reverted" means the target was blocked. Repeat until find_overlaps returns an empty list.`
	return promptResult("Tidy the layout of the active solution", text), nil
}

func promptResult(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}
