// Package layer holds the per-shape controllers. A layer renders the states
// of one shape kind with their slots and labels, and runs the drag state
// machine for them.
package layer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/connector"
	"flowedit/internal/domain"
)

// ErrWrongLayer is returned when a state is handed to a layer of another kind.
var ErrWrongLayer = errors.New("state belongs to another layer")

// Layer is the capability set every shape controller implements.
type Layer interface {
	Kind() domain.ShapeKind
	// SetSurface attaches the shared surface and renders onto it. A nil
	// surface detaches the layer.
	SetSurface(s canvas.Surface)
	Render()

	AddState(st *domain.State) error
	RemoveState(name string)
	UpdateState(name string, patch domain.StatePatch) error
	AddSlot(slot domain.Slot) error
	RemoveSlot(ref domain.SlotRef)
	UpdateSlot(old, updated domain.Slot) error

	// States lists the names of the states this layer owns.
	States() []string
	// Anchor is the canvas position of a slot owned by this layer.
	Anchor(ref domain.SlotRef) (connector.Anchor, bool)

	// Drag wiring. The context carries the shared interaction state.
	PointerDown(dc *DragContext, t canvas.Target, x, y float64) bool
	PointerMove(dc *DragContext, x, y float64)
	PointerUp(dc *DragContext, t canvas.Target, x, y float64)
}

// Env is what a constructor gets from the editor.
type Env struct {
	Arena  *Arena
	Router *connector.Router
	Style  Style
	Log    *zap.Logger
}

// Constructor builds the layer for one shape kind.
type Constructor func(env Env) Layer

// ── Registry ───────────────────────────────────────────────

// Registry maps shape kinds to layer constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[domain.ShapeKind]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[domain.ShapeKind]Constructor)}
}

// DefaultRegistry knows the three built-in shapes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(domain.ShapeCircle, NewCircle)
	r.Register(domain.ShapeRectangle, NewRectangle)
	r.Register(domain.ShapeDiamond, NewDiamond)
	return r
}

// Register adds a constructor. Panics on duplicate registration.
func (r *Registry) Register(kind domain.ShapeKind, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[kind]; exists {
		panic(fmt.Sprintf("layer registry: duplicate registration for shape %q", kind))
	}
	r.ctors[kind] = ctor
}

// New constructs the layer for kind.
func (r *Registry) New(kind domain.ShapeKind, env Env) (Layer, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("construct layer %q: %w", kind, domain.ErrUnsupportedShape)
	}
	return ctor(env), nil
}

// Kinds lists registered kinds, sorted.
func (r *Registry) Kinds() []domain.ShapeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ShapeKind, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
