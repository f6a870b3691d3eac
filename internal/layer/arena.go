package layer

import (
	"fmt"
	"sync"

	"flowedit/internal/collision"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// Arena holds the states of one solution keyed by name. Layers, the drag
// state machine and the connector resolver all look records up here instead
// of keeping pointers to each other.
type Arena struct {
	mu     sync.RWMutex
	states map[string]*domain.State
	order  []string
}

func NewArena() *Arena {
	return &Arena{states: make(map[string]*domain.State)}
}

// Put stores a copy of st. Names are unique per solution.
func (a *Arena) Put(st *domain.State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.states[st.Name]; ok {
		return fmt.Errorf("put state %q: %w", st.Name, domain.ErrDuplicateState)
	}
	c := st.Clone()
	for i := range c.Slots {
		c.Slots[i].State = c.Name
	}
	a.states[c.Name] = c
	a.order = append(a.order, c.Name)
	return nil
}

// State returns a copy of the named state.
func (a *Arena) State(name string) (*domain.State, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.states[name]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Update mutates the named state in place.
func (a *Arena) Update(name string, fn func(st *domain.State)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[name]
	if !ok {
		return false
	}
	fn(st)
	st.Name = name
	return true
}

func (a *Arena) Delete(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.states[name]; !ok {
		return false
	}
	delete(a.states, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// Names lists state names in insertion order.
func (a *Arena) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.order...)
}

// States returns copies of every state in insertion order.
func (a *Arena) States() []*domain.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*domain.State, 0, len(a.order))
	for _, n := range a.order {
		out = append(out, a.states[n].Clone())
	}
	return out
}

// Bodies returns the frame of every state, across all shapes, grown by pad.
func (a *Arena) Bodies(pad float64) []collision.Body {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]collision.Body, 0, len(a.order))
	for _, n := range a.order {
		st := a.states[n]
		shape := st.Shape()
		if shape == nil {
			continue
		}
		out = append(out, collision.Body{Name: n, Frame: geometry.FrameBox(shape, st.X, st.Y, pad)})
	}
	return out
}

// Reset drops every state.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = make(map[string]*domain.State)
	a.order = nil
}
