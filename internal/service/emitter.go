package service

import (
	"context"
	"sync"
)

// Events emitted to the frontend.
const (
	EventSceneChanged      = "scene:changed"
	EventSolutionOpened    = "solution:opened"
	EventSolutionImported  = "solution:imported"
	EventSolutionReloaded  = "solution:reloaded"
	EventPersistenceFailed = "persistence:failed"
	EventOverlayClick      = "overlay:click"
	EventOverlayDragStart  = "overlay:drag-start"
	EventOverlayDragEnd    = "overlay:drag-end"
	EventStateContextMenu  = "overlay:state-menu"
	EventSlotContextMenu   = "overlay:slot-menu"
	EventConnectorsPruned  = "maintenance:pruned"
)

// EventEmitter decouples services from the Wails runtime. The App delegates
// to wailsRuntime.EventsEmit; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter records every emission. Safe for use from worker goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded payloads of one event, in order.
func (m *MockEmitter) Named(event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

// StatePayload is the data of the state overlay events.
type StatePayload struct {
	State string  `json:"state"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

// SlotPayload is the data of EventSlotContextMenu.
type SlotPayload struct {
	State string  `json:"state"`
	Index int     `json:"index"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}
