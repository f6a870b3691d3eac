// Package mcpserver exposes the flow editor to AI agents over the Model
// Context Protocol.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"flowedit/internal/service"
)

// Server is the MCP server. Tools act on the active solution of the shared
// SolutionService.
type Server struct {
	mcp       *server.MCPServer
	emitter   EventEmitter
	approval  *ApprovalQueue
	solutions *service.SolutionService
	log       *zap.Logger
}

type Deps struct {
	Emitter   EventEmitter
	Solutions *service.SolutionService
	// Approvals enables table-based approval (standalone mode).
	Approvals ApprovalStore
	Log       *zap.Logger
}

func New(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	approval := NewApprovalQueue(deps.Emitter)
	if deps.Approvals != nil {
		approval.SetStore(deps.Approvals)
	}
	s := &Server{
		emitter:   deps.Emitter,
		approval:  approval,
		solutions: deps.Solutions,
		log:       log.Named("mcp"),
	}

	s.mcp = server.NewMCPServer(
		"flowedit-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerSolutionTools()
	s.registerStateTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.log.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

func (s *Server) Approve(actionID string) { s.approval.Approve(actionID) }
func (s *Server) Reject(actionID string)  { s.approval.Reject(actionID) }

// emitSolutionChanged tells the frontend an agent edited the solution.
func (s *Server) emitSolutionChanged(ctx context.Context, name string) {
	if s.emitter != nil {
		s.emitter.Emit(ctx, "mcp:solution-changed", map[string]string{"solution": name})
	}
}
