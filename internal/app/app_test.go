package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/service"
	"flowedit/internal/storage"
)

func newTestApp(t *testing.T) (*App, *service.MockEmitter, *storage.SolutionStore) {
	t.Helper()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "flowedit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock := &service.MockEmitter{}
	store := storage.NewSolutionStore(db)
	a := &App{
		ctx: context.Background(),
		log: zap.NewNop(),
		events: func(ctx context.Context, event string, data ...interface{}) {
			mock.Emit(ctx, event, data[0])
		},
	}
	a.approvals = storage.NewApprovalStore(db)
	a.settings = service.NewSettingsService(storage.NewSettingsStore(db), nil)
	a.bridge = service.NewAsyncBridge(store, service.BridgeConfig{}, nil, a, nil)
	a.provider = canvas.NewProvider()
	a.solutions = service.NewSolutionService(service.SolutionOptions{
		Store:    store,
		Bridge:   a.bridge,
		Emitter:  a,
		Provider: a.provider,
	})
	a.watcher = newSceneWatcher(a.ctx, a)
	t.Cleanup(func() { a.solutions.Close(context.Background()) })
	return a, mock, store
}

func circle(name string, x, y float64) domain.State {
	return domain.State{Name: name, Kind: domain.ShapeCircle, X: x, Y: y, Radius: 40}
}

func TestApp_SceneChangedOnlyOnNewVersion(t *testing.T) {
	a, mock, _ := newTestApp(t)

	view, err := a.CreateSolution("demo")
	require.NoError(t, err)
	assert.Equal(t, "demo", view.Solution)
	require.Len(t, mock.Named(service.EventSceneChanged), 1)
	assert.Equal(t, "demo", a.settings.LastSolution(context.Background()))

	_, err = a.AddState(circle("a", 100, 100), false)
	require.NoError(t, err)
	events := mock.Named(service.EventSceneChanged)
	require.Len(t, events, 2)
	last := events[1].(SceneView)
	assert.NotEmpty(t, last.Elements)
	assert.Greater(t, last.Version, view.Version)

	a.sceneChanged()
	assert.Len(t, mock.Named(service.EventSceneChanged), 2)
}

func TestApp_MoveStateReportsOutcome(t *testing.T) {
	a, _, _ := newTestApp(t)
	_, err := a.CreateSolution("demo")
	require.NoError(t, err)
	_, err = a.AddState(circle("a", 100, 100), false)
	require.NoError(t, err)

	res, err := a.MoveState("a", 300, 300)
	require.NoError(t, err)
	assert.Equal(t, MoveResult{X: 300, Y: 300, Outcome: "accepted"}, res)

	_, err = a.MoveState("missing", 0, 0)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestApp_NoActiveSolution(t *testing.T) {
	a, _, _ := newTestApp(t)

	assert.False(t, a.PointerDown(canvas.StateBodyID("a"), 0, 0))
	assert.Equal(t, "idle", a.DragMode())
	assert.False(t, a.ConnectorMode())
	view := a.Scene()
	assert.Empty(t, view.Solution)
	assert.Empty(t, view.Elements)
	_, err := a.Overlaps()
	assert.ErrorIs(t, err, service.ErrNoActiveSolution)
}

func TestSceneWatcher_ReloadsExternalChange(t *testing.T) {
	a, mock, store := newTestApp(t)
	ctx := context.Background()
	_, err := a.CreateSolution("demo")
	require.NoError(t, err)
	_, err = a.AddState(circle("a", 100, 100), false)
	require.NoError(t, err)
	require.NoError(t, a.bridge.Flush(ctx))

	a.watcher.checkSolutions()
	assert.Empty(t, mock.Named(service.EventSolutionReloaded))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.UpdateStatePosition(ctx, "demo", "a", 400, 420))
	a.watcher.checkSolutions()
	assert.Equal(t, []any{"demo"}, mock.Named(service.EventSolutionReloaded))

	sol, err := a.GetSolution()
	require.NoError(t, err)
	require.Len(t, sol.States, 1)
	assert.Equal(t, 400.0, sol.States[0].X)
	assert.Equal(t, 420.0, sol.States[0].Y)

	a.watcher.checkSolutions()
	assert.Len(t, mock.Named(service.EventSolutionReloaded), 1)
}

func TestSceneWatcher_OwnWritesDoNotReload(t *testing.T) {
	a, mock, _ := newTestApp(t)
	ctx := context.Background()
	_, err := a.CreateSolution("demo")
	require.NoError(t, err)
	a.watcher.checkSolutions()

	_, err = a.AddState(circle("a", 100, 100), false)
	require.NoError(t, err)
	require.NoError(t, a.bridge.Flush(ctx))
	a.watcher.checkSolutions()
	assert.Empty(t, mock.Named(service.EventSolutionReloaded))
}

func TestSceneWatcher_ApprovalsEmittedOnce(t *testing.T) {
	a, mock, _ := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.approvals.Create(ctx, storage.Approval{
		ID:          "x1",
		Tool:        "delete_state",
		Description: "Delete state a",
		Metadata:    `{"states":["a"]}`,
	}))

	a.watcher.checkApprovals()
	a.watcher.checkApprovals()
	events := mock.Named("mcp:approval-required")
	require.Len(t, events, 1)
	assert.Equal(t, "x1", events[0].(PendingApproval).ID)

	pending, err := a.PendingApprovals()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "delete_state", pending[0].Tool)

	require.NoError(t, a.ApproveAction("x1"))
	pending, err = a.PendingApprovals()
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.ErrorIs(t, a.RejectAction("x1"), storage.ErrApprovalNotFound)

	a.watcher.checkApprovals()
	assert.Empty(t, a.watcher.emittedApprovals)
}

func TestListFingerprint(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := listFingerprint([]domain.SolutionSummary{{Name: "a", UpdatedAt: t0}})
	b := listFingerprint([]domain.SolutionSummary{{Name: "a", UpdatedAt: t0.Add(time.Second)}})
	c := listFingerprint([]domain.SolutionSummary{{Name: "a", UpdatedAt: t0}, {Name: "b", UpdatedAt: t0}})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, listFingerprint([]domain.SolutionSummary{{Name: "a", UpdatedAt: t0}}))
}
