package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	solutionsURI      = "flowedit://solutions"
	solutionURIPrefix = "flowedit://solution/"
)

func (s *Server) registerResources() {
	// ── flowedit://solutions ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		solutionsURI,
		"All Solutions",
		mcp.WithMIMEType("application/json"),
	), s.handleSolutionsResource)

	// ── flowedit://solution/{name} ─────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			solutionURIPrefix+"{name}",
			"One Solution",
		),
		s.handleSolutionResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}

func (s *Server) handleSolutionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := s.solutions.List(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(solutionsURI, list)
}

func (s *Server) handleSolutionResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	name := strings.TrimPrefix(uri, solutionURIPrefix)
	if name == "" || name == uri {
		return nil, fmt.Errorf("invalid solution URI %q", uri)
	}
	sol, err := s.solutions.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, sol)
}
