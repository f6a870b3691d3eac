package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"flowedit/internal/domain"
)

func (s *Server) registerSolutionTools() {
	// ── list_solutions ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_solutions",
		mcp.WithDescription("List all solutions with their state counts"),
	), s.handleListSolutions)

	// ── set_active_solution ────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_active_solution",
		mcp.WithDescription("Open a solution for the following tool calls. Creates it when create is true and it does not exist."),
		mcp.WithString("name",
			mcp.Description("Solution name"),
			mcp.Required(),
		),
		mcp.WithBoolean("create",
			mcp.Description("Create the solution if missing"),
		),
	), s.handleSetActiveSolution)

	// ── get_solution ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_solution",
		mcp.WithDescription("Return states, slots and connectors of a solution (the active one by default)"),
		mcp.WithString("name",
			mcp.Description("Solution name; defaults to the active solution"),
		),
	), s.handleGetSolution)

	// ── find_overlaps ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("find_overlaps",
		mcp.WithDescription("List pairs of states whose frames overlap in the active solution"),
	), s.handleFindOverlaps)
}

func (s *Server) handleListSolutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.solutions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	return jsonResult(list)
}

func (s *Server) handleSetActiveSolution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	_, err := s.solutions.Open(ctx, name)
	if errors.Is(err, domain.ErrSolutionNotFound) && req.GetBool("create", false) {
		_, err = s.solutions.Create(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open solution: %w", err)
	}
	return textResult(fmt.Sprintf("Active solution set to %s", name)), nil
}

func (s *Server) handleGetSolution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		sol, err := s.solutions.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("no name provided and %w (use set_active_solution first)", err)
		}
		return jsonResult(sol)
	}
	sol, err := s.solutions.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get solution: %w", err)
	}
	return jsonResult(sol)
}

func (s *Server) handleFindOverlaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pairs, err := s.solutions.Overlaps()
	if err != nil {
		return nil, fmt.Errorf("find overlaps: %w", err)
	}
	type overlap struct {
		A string `json:"a"`
		B string `json:"b"`
	}
	out := make([]overlap, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, overlap{A: p[0], B: p[1]})
	}
	return jsonResult(out)
}
