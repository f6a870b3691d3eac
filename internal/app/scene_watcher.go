package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"flowedit/internal/domain"
	"flowedit/internal/interaction"
)

// sceneWatcher polls the store for changes made outside this process (the
// standalone MCP server) and for approvals that process is waiting on.
type sceneWatcher struct {
	ctx      context.Context
	app      *App
	interval time.Duration
	log      *zap.Logger

	mu sync.Mutex
	// Active solution tracking
	solution string
	lastSeen time.Time
	// Solution list tracking (sidebar refresh)
	lastList string
	stopCh   chan struct{}
	// Approval ids already sent to the frontend
	emittedApprovals map[string]bool
}

func newSceneWatcher(ctx context.Context, app *App) *sceneWatcher {
	return &sceneWatcher{
		ctx:              ctx,
		app:              app,
		interval:         2 * time.Second,
		log:              app.log.Named("watcher"),
		emittedApprovals: map[string]bool{},
	}
}

// Start begins the polling loop. Should be called once on app startup.
func (w *sceneWatcher) Start() {
	w.stopCh = make(chan struct{})
	go w.pollLoop()
}

func (w *sceneWatcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
}

func (w *sceneWatcher) pollLoop() {
	stop := w.stopCh
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.checkSolutions()
			w.checkApprovals()
		case <-stop:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *sceneWatcher) checkSolutions() {
	list, err := w.app.solutions.List(w.ctx)
	if err != nil {
		w.log.Debug("list solutions", zap.Error(err))
		return
	}

	active := ""
	if ed, err := w.app.solutions.Active(); err == nil {
		active = ed.Solution()
	}
	var updated time.Time
	fingerprint := listFingerprint(list)
	for _, s := range list {
		if s.Name == active {
			updated = s.UpdatedAt
		}
	}

	w.mu.Lock()
	if w.solution != active {
		w.solution, w.lastSeen = active, updated
	}
	external := active != "" && updated.After(w.lastSeen) && updated.After(w.app.bridge.LastWrite(active))
	listChanged := w.lastList != "" && w.lastList != fingerprint
	w.lastList = fingerprint
	w.mu.Unlock()

	if listChanged {
		w.app.Emit(w.ctx, "mcp:solutions-changed", len(list))
	}
	if !external {
		return
	}
	if ed, err := w.app.solutions.Active(); err != nil || ed.DragMode() != interaction.Idle {
		// Retried on the next tick once the gesture ends.
		return
	}
	if err := w.app.solutions.Reload(w.ctx); err != nil {
		w.log.Warn("reload after external change", zap.String("solution", active), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.lastSeen = updated
	w.mu.Unlock()
	w.log.Info("reloaded after external change", zap.String("solution", active))
	w.app.sceneChanged()
}

func listFingerprint(list []domain.SolutionSummary) string {
	var latest time.Time
	for _, s := range list {
		if s.UpdatedAt.After(latest) {
			latest = s.UpdatedAt
		}
	}
	return fmt.Sprintf("%d:%d", len(list), latest.UnixNano())
}

// ── Pending MCP approvals (cross-process IPC) ──────────────

func (w *sceneWatcher) checkApprovals() {
	if w.app.approvals == nil {
		return
	}
	pending, err := w.app.approvals.Pending(w.ctx)
	if err != nil {
		w.log.Debug("pending approvals", zap.Error(err))
		return
	}

	live := make(map[string]bool, len(pending))
	for _, ap := range pending {
		live[ap.ID] = true
		w.mu.Lock()
		alreadySent := w.emittedApprovals[ap.ID]
		w.emittedApprovals[ap.ID] = true
		w.mu.Unlock()
		if !alreadySent {
			w.app.Emit(w.ctx, "mcp:approval-required", toPendingApproval(ap))
		}
	}

	// Resolved or deleted rows are dropped from tracking.
	w.mu.Lock()
	for id := range w.emittedApprovals {
		if !live[id] {
			delete(w.emittedApprovals, id)
		}
	}
	w.mu.Unlock()
}
