// Package engine binds the shape layers of one solution together: it owns
// the state arena and the connector router, creates one layer per shape kind
// on demand, and routes CRUD and pointer events to the right layer.
package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/collision"
	"flowedit/internal/connector"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
	"flowedit/internal/interaction"
	"flowedit/internal/layer"
)

// Options configures an Editor. Every field is optional.
type Options struct {
	Registry       *layer.Registry
	Coordinator    *interaction.Coordinator
	Persistence    layer.Persistence
	Overlay        layer.Overlay
	Metrics        layer.Metrics
	Style          layer.Style
	Provider       *canvas.Provider
	NewConnectorID func() string
	Log            *zap.Logger
}

// Editor is the live, rendered form of one solution.
type Editor struct {
	mu       sync.Mutex
	solution string
	registry *layer.Registry
	arena    *layer.Arena
	router   *connector.Router
	drag     *layer.DragContext
	persist  layer.Persistence
	metrics  layer.Metrics
	style    layer.Style
	log      *zap.Logger
	newID    func() string

	layersMu sync.RWMutex
	layers   map[domain.ShapeKind]layer.Layer
	surface  canvas.Surface

	unsubscribe func()
}

func New(solution string, opts Options) *Editor {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = layer.DefaultRegistry()
	}
	if opts.Coordinator == nil {
		opts.Coordinator = interaction.NewCoordinator(log)
	}
	if opts.NewConnectorID == nil {
		opts.NewConnectorID = uuid.NewString
	}
	style := opts.Style
	if style.FramePadding <= 0 {
		style.FramePadding = collision.FramePadding
	}

	e := &Editor{
		solution: solution,
		registry: opts.Registry,
		arena:    layer.NewArena(),
		persist:  opts.Persistence,
		metrics:  opts.Metrics,
		style:    style,
		log:      log.With(zap.String("solution", solution)),
		newID:    opts.NewConnectorID,
		layers:   make(map[domain.ShapeKind]layer.Layer),
	}
	e.router = connector.NewRouter(opts.Coordinator, resolver{e}, log)
	e.drag = &layer.DragContext{
		Solution:       solution,
		Coord:          opts.Coordinator,
		Router:         e.router,
		Arena:          e.arena,
		Persist:        opts.Persistence,
		Overlay:        opts.Overlay,
		Metrics:        opts.Metrics,
		Padding:        style.FramePadding,
		NewConnectorID: opts.NewConnectorID,
		Log:            log.Named("drag"),
	}
	if opts.Provider != nil {
		e.unsubscribe = opts.Provider.Subscribe(e.SetSurface)
	}
	return e
}

func (e *Editor) Solution() string { return e.solution }

// Close detaches the editor from its surface provider.
func (e *Editor) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// SetSurface attaches a new drawing surface and renders everything on it.
func (e *Editor) SetSurface(s canvas.Surface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.layersMu.Lock()
	e.surface = s
	layers := e.sortedLayersLocked()
	e.layersMu.Unlock()
	for _, l := range layers {
		l.SetSurface(s)
	}
	e.router.SetSurface(s)
}

// ── Layers ─────────────────────────────────────────────────

// layerFor returns the layer of kind, creating it on first use. Unknown
// kinds are fatal for the caller.
func (e *Editor) layerFor(kind domain.ShapeKind) (layer.Layer, error) {
	e.layersMu.RLock()
	l, ok := e.layers[kind]
	e.layersMu.RUnlock()
	if ok {
		return l, nil
	}

	l, err := e.registry.New(kind, layer.Env{
		Arena:  e.arena,
		Router: e.router,
		Style:  e.style,
		Log:    e.log,
	})
	if err != nil {
		return nil, err
	}
	e.layersMu.Lock()
	e.layers[kind] = l
	s := e.surface
	e.layersMu.Unlock()
	if s != nil {
		l.SetSurface(s)
	}
	e.log.Debug("layer created", zap.String("kind", string(kind)))
	return l, nil
}

func (e *Editor) existingLayer(kind domain.ShapeKind) (layer.Layer, bool) {
	e.layersMu.RLock()
	defer e.layersMu.RUnlock()
	l, ok := e.layers[kind]
	return l, ok
}

// layerOf returns the layer that owns the named state.
func (e *Editor) layerOf(name string) (layer.Layer, *domain.State, error) {
	st, ok := e.arena.State(name)
	if !ok {
		return nil, nil, fmt.Errorf("state %q: %w", name, domain.ErrStateNotFound)
	}
	l, ok := e.existingLayer(st.Kind)
	if !ok {
		return nil, nil, fmt.Errorf("state %q: %w", name, domain.ErrStateNotFound)
	}
	return l, st, nil
}

// Layers lists the kinds that have a layer, sorted.
func (e *Editor) Layers() []domain.ShapeKind {
	e.layersMu.RLock()
	defer e.layersMu.RUnlock()
	out := make([]domain.ShapeKind, 0, len(e.layers))
	for k := range e.layers {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Editor) sortedLayersLocked() []layer.Layer {
	kinds := make([]domain.ShapeKind, 0, len(e.layers))
	for k := range e.layers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	out := make([]layer.Layer, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, e.layers[k])
	}
	return out
}

// resolver answers slot anchors for the router by asking the owning layer.
// It never takes the editor mutex: the router calls it while an editor
// operation is in progress.
type resolver struct{ e *Editor }

func (r resolver) SlotAnchor(ref domain.SlotRef) (connector.Anchor, bool) {
	st, ok := r.e.arena.State(ref.State)
	if !ok {
		return connector.Anchor{}, false
	}
	l, ok := r.e.existingLayer(st.Kind)
	if !ok {
		return connector.Anchor{}, false
	}
	return l.Anchor(ref)
}

// ── Load ───────────────────────────────────────────────────

// Load replaces the editor contents with sol and renders it. Loading does
// not persist anything and does not resolve collisions; overlapping states
// are kept and logged.
func (e *Editor) Load(sol *domain.Solution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.router.Connectors() {
		e.router.Remove(c.ID)
	}
	for _, name := range e.arena.Names() {
		if l, _, err := e.layerOf(name); err == nil {
			l.RemoveState(name)
		}
	}
	e.arena.Reset()

	for i := range sol.States {
		st := &sol.States[i]
		l, err := e.layerFor(st.Kind)
		if err != nil {
			return fmt.Errorf("load solution %q: %w", sol.Name, err)
		}
		if err := l.AddState(st); err != nil {
			return fmt.Errorf("load solution %q: %w", sol.Name, err)
		}
	}
	for _, c := range sol.Connectors {
		if !e.router.Add(c) {
			e.log.Debug("connector not drawn on load", zap.String("id", c.ID))
		}
	}
	if pairs := collision.Pairs(e.arena.Bodies(e.style.FramePadding)); len(pairs) > 0 {
		e.log.Warn("loaded solution has overlapping states", zap.Int("pairs", len(pairs)), zap.Any("overlaps", pairs))
	}
	return nil
}

// Snapshot returns the current solution content.
func (e *Editor) Snapshot() *domain.Solution {
	e.mu.Lock()
	defer e.mu.Unlock()
	sol := &domain.Solution{Name: e.solution}
	for _, st := range e.arena.States() {
		sol.States = append(sol.States, *st)
	}
	sol.Connectors = e.router.Connectors()
	return sol
}

// State returns a copy of the named state.
func (e *Editor) State(name string) (*domain.State, bool) {
	return e.arena.State(name)
}

func (e *Editor) Connectors() []domain.Connector {
	return e.router.Connectors()
}

// Anchor is the canvas position of a slot.
func (e *Editor) Anchor(ref domain.SlotRef) (connector.Anchor, bool) {
	return resolver{e}.SlotAnchor(ref)
}

// Overlaps lists every pair of states whose frames intersect.
func (e *Editor) Overlaps() [][2]string {
	return collision.Pairs(e.arena.Bodies(e.style.FramePadding))
}

// Bodies returns the frames of all states.
func (e *Editor) Bodies() []collision.Body {
	return e.arena.Bodies(e.style.FramePadding)
}

// FrameSize is the frame width and height a state of this shape would get.
func (e *Editor) FrameSize(st *domain.State) (float64, float64, error) {
	shape := st.Shape()
	if shape == nil {
		return 0, 0, fmt.Errorf("frame size of %q: %w", st.Kind, domain.ErrUnsupportedShape)
	}
	b := geometry.FrameBox(shape, 0, 0, e.style.FramePadding)
	return b.Width, b.Height, nil
}
