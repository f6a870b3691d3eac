// Package interaction arbitrates which drag mode is active. Exactly one drag
// sequence may hold a claim at a time.
package interaction

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mode is the value of the interaction token.
type Mode int

const (
	Idle Mode = iota
	MoveNode
	MoveSlot
	DrawConnector
)

func (m Mode) String() string {
	switch m {
	case MoveNode:
		return "move-node"
	case MoveSlot:
		return "move-slot"
	case DrawConnector:
		return "draw-connector"
	}
	return "idle"
}

var (
	ErrBusy          = errors.New("interaction already claimed")
	ErrNotHolder     = errors.New("capability does not hold the claim")
	ErrBadTransition = errors.New("transition not allowed")
)

// Capability proves its bearer holds the current claim. It goes stale as
// soon as the claim is released or escalated.
type Capability struct {
	token uuid.UUID
	Mode  Mode
	Owner string
}

// Zero reports whether c was never issued.
func (c Capability) Zero() bool { return c.token == uuid.Nil }

// Coordinator is the single-writer token cell.
type Coordinator struct {
	mu    sync.Mutex
	mode  Mode
	owner string
	token uuid.UUID
	log   *zap.Logger
}

func NewCoordinator(log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{log: log.Named("interaction")}
}

// Claim moves the token from idle to mode on behalf of owner.
func (c *Coordinator) Claim(mode Mode, owner string) (Capability, error) {
	if mode == Idle {
		return Capability{}, fmt.Errorf("claim %s: %w", mode, ErrBadTransition)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Idle {
		c.log.Debug("claim refused", zap.Stringer("want", mode), zap.Stringer("held", c.mode), zap.String("owner", c.owner))
		return Capability{}, fmt.Errorf("claim %s by %s: %w", mode, owner, ErrBusy)
	}
	return c.issueLocked(mode, owner), nil
}

// Escalate turns a move-slot claim into a draw-connector claim without
// passing through idle. It is the only non-idle to non-idle transition.
func (c *Coordinator) Escalate(claim Capability, to Mode) (Capability, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.holdsLocked(claim) {
		return Capability{}, ErrNotHolder
	}
	if c.mode != MoveSlot || to != DrawConnector {
		return Capability{}, fmt.Errorf("escalate %s -> %s: %w", c.mode, to, ErrBadTransition)
	}
	return c.issueLocked(to, claim.Owner), nil
}

// Release returns the token to idle. Only the current holder may release.
func (c *Coordinator) Release(claim Capability) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.holdsLocked(claim) {
		return ErrNotHolder
	}
	c.mode, c.owner, c.token = Idle, "", uuid.Nil
	return nil
}

// Valid reports whether the capability is still current.
func (c *Coordinator) Valid(claim Capability) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holdsLocked(claim)
}

// Current returns the active mode and its owner.
func (c *Coordinator) Current() (Mode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.owner
}

func (c *Coordinator) issueLocked(mode Mode, owner string) Capability {
	c.mode, c.owner, c.token = mode, owner, uuid.New()
	return Capability{token: c.token, Mode: mode, Owner: owner}
}

func (c *Coordinator) holdsLocked(claim Capability) bool {
	return !claim.Zero() && claim.token == c.token && c.mode != Idle
}
