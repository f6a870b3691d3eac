package interaction

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_ClaimIsExclusive(t *testing.T) {
	c := NewCoordinator(nil)

	claim, err := c.Claim(MoveNode, "A")
	require.NoError(t, err)
	assert.Equal(t, MoveNode, claim.Mode)

	_, err = c.Claim(MoveSlot, "B")
	assert.ErrorIs(t, err, ErrBusy)

	mode, owner := c.Current()
	assert.Equal(t, MoveNode, mode)
	assert.Equal(t, "A", owner)

	require.NoError(t, c.Release(claim))
	mode, _ = c.Current()
	assert.Equal(t, Idle, mode)

	_, err = c.Claim(MoveSlot, "B")
	assert.NoError(t, err)
}

func TestCoordinator_OnlyHolderReleases(t *testing.T) {
	c := NewCoordinator(nil)
	claim, err := c.Claim(MoveSlot, "A")
	require.NoError(t, err)

	assert.ErrorIs(t, c.Release(Capability{}), ErrNotHolder)

	require.NoError(t, c.Release(claim))
	assert.ErrorIs(t, c.Release(claim), ErrNotHolder, "stale capability")
	assert.False(t, c.Valid(claim))
}

func TestCoordinator_EscalateOnlyFromMoveSlot(t *testing.T) {
	c := NewCoordinator(nil)

	node, err := c.Claim(MoveNode, "A")
	require.NoError(t, err)
	_, err = c.Escalate(node, DrawConnector)
	assert.ErrorIs(t, err, ErrBadTransition, "move-node must never become draw-connector")
	require.NoError(t, c.Release(node))

	slot, err := c.Claim(MoveSlot, "A")
	require.NoError(t, err)
	draw, err := c.Escalate(slot, DrawConnector)
	require.NoError(t, err)
	assert.Equal(t, DrawConnector, draw.Mode)
	assert.False(t, c.Valid(slot), "escalation invalidates the old capability")
	assert.True(t, c.Valid(draw))

	_, err = c.Escalate(draw, DrawConnector)
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestCoordinator_DrawConnectorFromIdle(t *testing.T) {
	c := NewCoordinator(nil)
	claim, err := c.Claim(DrawConnector, "A")
	require.NoError(t, err)
	assert.Equal(t, DrawConnector, claim.Mode)

	_, err = c.Claim(Idle, "B")
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestCoordinator_ConcurrentClaims(t *testing.T) {
	c := NewCoordinator(nil)
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Claim(MoveNode, "x"); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "move-node", MoveNode.String())
	assert.Equal(t, "move-slot", MoveSlot.String())
	assert.Equal(t, "draw-connector", DrawConnector.String())
}
