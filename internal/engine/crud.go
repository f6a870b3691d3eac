package engine

import (
	"fmt"

	"go.uber.org/zap"

	"flowedit/internal/collision"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// ── States ─────────────────────────────────────────────────

// AddState places st on the layer of its kind, creating that layer when it
// is the first state of the kind.
func (e *Editor) AddState(st *domain.State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, err := e.layerFor(st.Kind)
	if err != nil {
		return fmt.Errorf("add state %q: %w", st.Name, err)
	}
	if err := l.AddState(st); err != nil {
		return err
	}
	e.upsert(st.Name)
	return nil
}

// UpdateState applies patch. A kind change moves the state to the layer of
// the new kind; its slots and connectors follow it.
func (e *Editor) UpdateState(name string, patch domain.StatePatch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	from, st, err := e.layerOf(name)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}

	if patch.Kind == nil || *patch.Kind == st.Kind {
		if err := from.UpdateState(name, patch); err != nil {
			return err
		}
		e.upsert(name)
		return nil
	}

	to, err := e.layerFor(*patch.Kind)
	if err != nil {
		return fmt.Errorf("update state %q: %w", name, err)
	}
	moved := st.Clone()
	patch.Apply(moved)
	from.RemoveState(name)
	if err := to.AddState(moved); err != nil {
		if restoreErr := from.AddState(st); restoreErr != nil {
			e.log.Error("restore state after failed kind change", zap.String("state", name), zap.Error(restoreErr))
		}
		return fmt.Errorf("update state %q: %w", name, err)
	}
	e.log.Debug("state changed layer", zap.String("state", name),
		zap.String("from", string(st.Kind)), zap.String("to", string(moved.Kind)))
	e.upsert(name)
	return nil
}

// RemoveState deletes a state with its slots and every attached connector.
func (e *Editor) RemoveState(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, _, err := e.layerOf(name)
	if err != nil {
		return fmt.Errorf("remove state: %w", err)
	}
	l.RemoveState(name)
	ids := e.router.RemoveState(name)
	if e.persist != nil {
		e.persist.RemoveState(e.solution, name)
	}
	e.log.Debug("state removed", zap.String("state", name), zap.Strings("connectors", ids))
	return nil
}

// MoveState moves a state to (x, y) outside of a pointer drag. The drop goes
// through the same collision resolution as a finished node drag.
func (e *Editor) MoveState(name string, x, y float64) (collision.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, st, err := e.layerOf(name)
	if err != nil {
		return collision.Result{}, fmt.Errorf("move state: %w", err)
	}
	pad := e.style.FramePadding
	dropped := geometry.FrameBox(st.Shape(), x, y, pad)
	res := collision.Resolve(name, dropped, geometry.Point{X: st.X, Y: st.Y}, e.arena.Bodies(pad))
	if e.metrics != nil {
		e.metrics.CollisionSettled(res.Outcome)
	}
	px, py := res.Position.X, res.Position.Y
	if err := l.UpdateState(name, domain.StatePatch{X: &px, Y: &py}); err != nil {
		return res, err
	}
	if e.persist != nil && (px != st.X || py != st.Y) {
		e.persist.UpdateStatePosition(e.solution, name, px, py)
	}
	return res, nil
}

// ── Slots ──────────────────────────────────────────────────

func (e *Editor) AddSlot(slot domain.Slot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, _, err := e.layerOf(slot.State)
	if err != nil {
		return fmt.Errorf("add slot: %w", err)
	}
	if err := l.AddSlot(slot); err != nil {
		return err
	}
	e.upsert(slot.State)
	return nil
}

func (e *Editor) UpdateSlot(old, updated domain.Slot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, _, err := e.layerOf(old.State)
	if err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	if err := l.UpdateSlot(old, updated); err != nil {
		return err
	}
	e.upsert(old.State)
	return nil
}

// RemoveSlot deletes a slot. Connectors attached to it stay indexed but are
// no longer drawn.
func (e *Editor) RemoveSlot(ref domain.SlotRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, st, err := e.layerOf(ref.State)
	if err != nil {
		return fmt.Errorf("remove slot: %w", err)
	}
	if _, ok := st.Slot(ref.Index); !ok {
		return fmt.Errorf("remove slot %s/%d: %w", ref.State, ref.Index, domain.ErrSlotNotFound)
	}
	l.RemoveSlot(ref)
	e.upsert(ref.State)
	return nil
}

// ── Connectors ─────────────────────────────────────────────

// AddConnector records a connector between two existing slots. An empty id
// is generated.
func (e *Editor) AddConnector(c domain.Connector) (domain.Connector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ref := range []domain.SlotRef{c.Source(), c.Sink()} {
		st, ok := e.arena.State(ref.State)
		if !ok {
			return c, fmt.Errorf("add connector: state %q: %w", ref.State, domain.ErrConnectorInvalid)
		}
		if _, ok := st.Slot(ref.Index); !ok {
			return c, fmt.Errorf("add connector: slot %s/%d: %w", ref.State, ref.Index, domain.ErrConnectorInvalid)
		}
	}
	if c.ID == "" {
		c.ID = e.newID()
	}
	if _, exists := e.router.Connector(c.ID); exists {
		return c, fmt.Errorf("add connector %q: duplicate id: %w", c.ID, domain.ErrConnectorInvalid)
	}
	e.router.Add(c)
	if e.persist != nil {
		e.persist.AddConnector(e.solution, c)
	}
	return c, nil
}

func (e *Editor) RemoveConnector(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.router.Connector(id); !ok {
		return fmt.Errorf("remove connector %q: %w", id, domain.ErrConnectorInvalid)
	}
	e.router.Remove(id)
	if e.persist != nil {
		e.persist.RemoveConnector(e.solution, id)
	}
	return nil
}

func (e *Editor) upsert(name string) {
	if e.persist == nil {
		return
	}
	if st, ok := e.arena.State(name); ok {
		e.persist.UpsertState(e.solution, *st)
	}
}
