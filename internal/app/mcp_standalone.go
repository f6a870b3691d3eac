package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/config"
	mcpserver "flowedit/internal/mcp"
	"flowedit/internal/service"
)

// noopEmitter is a no-op EventEmitter used in MCP-only mode (no Wails frontend).
type noopEmitter struct{}

func (noopEmitter) Emit(_ context.Context, _ string, _ any) {}

// ServeMCP runs the editor as a standalone MCP server on stdin/stdout with
// no GUI. Approvals go through the approval table so a running desktop app
// can answer them.
func ServeMCP(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := st.close(closeCtx); err != nil {
			log.Error("close storage", zap.Error(err))
		}
	}()

	emitter := noopEmitter{}
	bridge := service.NewAsyncBridge(st.solutions, cfg.Bridge.Service(), nil, emitter, log)
	solutions := service.NewSolutionService(service.SolutionOptions{
		Store:    st.solutions,
		Bridge:   bridge,
		Emitter:  emitter,
		Provider: canvas.NewProvider(),
		Style:    cfg.Style,
		Log:      log,
	})
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := solutions.Close(closeCtx); err != nil {
			log.Error("drain persistence", zap.Error(err))
		}
	}()

	deps := mcpserver.Deps{
		Emitter:   emitter,
		Solutions: solutions,
		Log:       log,
	}
	if approvals := st.approvals(); approvals != nil {
		deps.Approvals = approvals
	}
	srv := mcpserver.New(deps)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve mcp: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
