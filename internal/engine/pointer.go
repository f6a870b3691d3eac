package engine

import (
	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/interaction"
)

// SetConnectorMode makes slot presses draw connectors instead of moving the
// slot.
func (e *Editor) SetConnectorMode(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drag.ConnectorMode = on
}

func (e *Editor) ConnectorMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drag.ConnectorMode
}

// DragMode is the mode of the drag in flight on this editor.
func (e *Editor) DragMode() interaction.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drag.Mode()
}

// PointerDown dispatches a press on the element with the given id to the
// layer owning its state. It reports whether a drag started.
func (e *Editor) PointerDown(targetID string, x, y float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := canvas.ParseTarget(targetID)
	if t.State == "" {
		return false
	}
	l, _, err := e.layerOf(t.State)
	if err != nil {
		e.log.Debug("pointer down on unknown state", zap.String("target", targetID))
		return false
	}
	return l.PointerDown(e.drag, t, x, y)
}

// PointerMove feeds the drag in flight, if any.
func (e *Editor) PointerMove(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kind, ok := e.drag.Active()
	if !ok {
		return
	}
	if l, ok := e.existingLayer(kind); ok {
		l.PointerMove(e.drag, x, y)
	}
}

// PointerUp ends the drag in flight. targetID is the element under the
// pointer on release.
func (e *Editor) PointerUp(targetID string, x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kind, ok := e.drag.Active()
	if !ok {
		return
	}
	l, ok := e.existingLayer(kind)
	if !ok {
		e.drag.Abort()
		return
	}
	l.PointerUp(e.drag, canvas.ParseTarget(targetID), x, y)
}

// ContextMenu forwards a secondary click on a state or slot to the overlay
// callbacks. It reports whether a callback was due.
func (e *Editor) ContextMenu(targetID string, x, y float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := canvas.ParseTarget(targetID)
	if _, ok := e.arena.State(t.State); !ok {
		return false
	}
	o := e.drag.Overlay
	switch {
	case t.Kind == canvas.TargetSlot:
		if o.OnSlotContextMenu != nil {
			o.OnSlotContextMenu(domain.SlotRef{State: t.State, Index: t.Slot}, x, y)
		}
		return true
	case t.IsNode():
		if o.OnStateContextMenu != nil {
			o.OnStateContextMenu(t.State, x, y)
		}
		return true
	}
	return false
}
