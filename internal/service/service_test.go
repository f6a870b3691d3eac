package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowedit/internal/collision"
	"flowedit/internal/interaction"
	"flowedit/internal/service"
)

// ─────────────────────────────────────────────────────────────
// Job guard
// ─────────────────────────────────────────────────────────────

func TestJobGuard_TryLock(t *testing.T) {
	g := service.NewJobGuard()

	require.True(t, g.TryLock("import", "a"))
	assert.False(t, g.TryLock("import", "a"), "same job on the same solution must be refused")
	require.True(t, g.TryLock("import", "b"))
	assert.True(t, g.Busy("a"))
	assert.False(t, g.Busy("c"))
	g.Unlock("import", "a")
	g.Unlock("import", "b")

	require.True(t, g.TryLock("import", "a"))
	g.Unlock("import", "a")
}

func TestJobGuard_SweepExcludesSolutionJobs(t *testing.T) {
	g := service.NewJobGuard()

	require.True(t, g.TryLock("prune", service.AllSolutions))
	assert.False(t, g.TryLock("import", "a"), "a sweep holds every solution")
	assert.False(t, g.TryLock("prune", service.AllSolutions))
	assert.True(t, g.Busy("anything"))
	g.Unlock("prune", service.AllSolutions)

	require.True(t, g.TryLock("import", "a"))
	assert.False(t, g.TryLock("prune", service.AllSolutions), "a sweep waits for running imports")
	g.Unlock("import", "a")
	require.True(t, g.TryLock("prune", service.AllSolutions))
	g.Unlock("prune", service.AllSolutions)
}

func TestJobGuard_WaitAll(t *testing.T) {
	g := service.NewJobGuard()
	require.True(t, g.TryLock("import", "a"))

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()
	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("import", "a")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter and metrics
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_Named(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()
	m.Emit(ctx, service.EventOverlayClick, "a")
	m.Emit(ctx, service.EventSceneChanged, nil)
	m.Emit(ctx, service.EventOverlayClick, "b")

	assert.Len(t, m.Events, 3)
	assert.Equal(t, []any{"a", "b"}, m.Named(service.EventOverlayClick))
	assert.Empty(t, m.Named("nope"))
}

func TestMetrics_Counters(t *testing.T) {
	m := service.NewMetrics()
	m.DragStarted(interaction.MoveNode)
	m.DragStarted(interaction.MoveNode)
	m.DragStarted(interaction.DrawConnector)
	m.CollisionSettled(collision.Pushed)
	m.PersistenceFailed("add_connector")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Drags.WithLabelValues("move-node")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Drags.WithLabelValues("draw-connector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Collisions.WithLabelValues("pushed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("add_connector")))

	n, err := testutil.GatherAndCount(m.Registry())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	var nilMetrics *service.Metrics
	assert.NotPanics(t, func() {
		nilMetrics.DragStarted(interaction.MoveSlot)
		nilMetrics.CollisionSettled(collision.Accepted)
		nilMetrics.PersistenceFailed("x")
	})
}
