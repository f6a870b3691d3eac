package layer

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/connector"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// bodyFunc draws the visual body of a state in its local space. It is the
// only part of a layer that differs between shapes.
type bodyFunc func(st *domain.State, style Style) canvas.Element

type cachedPath struct {
	shape geometry.Shape
	path  *geometry.Path
}

// baseLayer is shared by the concrete layers. Its mutex only guards its own
// maps and is never held while calling the router, which calls back into
// Anchor.
type baseLayer struct {
	kind   domain.ShapeKind
	body   bodyFunc
	arena  *Arena
	router *connector.Router
	style  Style
	log    *zap.Logger

	mu      sync.Mutex
	surface canvas.Surface
	names   map[string]struct{}
	paths   map[string]cachedPath
}

func newBaseLayer(kind domain.ShapeKind, env Env, body bodyFunc) *baseLayer {
	log := env.Log
	if log == nil {
		log = zap.NewNop()
	}
	arena := env.Arena
	if arena == nil {
		arena = NewArena()
	}
	return &baseLayer{
		kind:   kind,
		body:   body,
		arena:  arena,
		router: env.Router,
		style:  env.Style.withDefaults(),
		log:    log.Named("layer." + string(kind)),
		names:  make(map[string]struct{}),
		paths:  make(map[string]cachedPath),
	}
}

func (l *baseLayer) Kind() domain.ShapeKind { return l.kind }

func (l *baseLayer) SetSurface(s canvas.Surface) {
	l.mu.Lock()
	l.surface = s
	l.mu.Unlock()
	if s != nil {
		l.Render()
	}
}

func (l *baseLayer) currentSurface() canvas.Surface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.surface
}

// Render draws the layer groups and every owned state.
func (l *baseLayer) Render() {
	s := l.currentSurface()
	if s == nil {
		return
	}
	k := string(l.kind)
	s.Put(canvas.Element{ID: canvas.LayerID(k), Kind: canvas.KindGroup, Data: map[string]string{"layer": k}})
	s.Put(canvas.Element{ID: canvas.LayerNodesID(k), Parent: canvas.LayerID(k), Kind: canvas.KindGroup})
	s.Put(canvas.Element{ID: canvas.LayerConnectorsID(k), Parent: canvas.LayerID(k), Kind: canvas.KindGroup})
	for _, name := range l.States() {
		if st, ok := l.arena.State(name); ok {
			l.renderState(s, st)
		}
	}
}

func (l *baseLayer) States() []string {
	l.mu.Lock()
	owned := make(map[string]struct{}, len(l.names))
	for n := range l.names {
		owned[n] = struct{}{}
	}
	l.mu.Unlock()

	var out []string
	for _, n := range l.arena.Names() {
		if _, ok := owned[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (l *baseLayer) owns(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.names[name]
	return ok
}

// ── State CRUD ─────────────────────────────────────────────

func (l *baseLayer) AddState(st *domain.State) error {
	if st.Kind != l.kind {
		return fmt.Errorf("add state %q to %s layer: %w", st.Name, l.kind, ErrWrongLayer)
	}
	seen := make(map[int]bool, len(st.Slots))
	c := st.Clone()
	for i := range c.Slots {
		if seen[c.Slots[i].Index] {
			return fmt.Errorf("add state %q: slot %d: %w", st.Name, c.Slots[i].Index, domain.ErrDuplicateSlot)
		}
		seen[c.Slots[i].Index] = true
		c.Slots[i].Angle = domain.NormalizeAngle(c.Slots[i].Angle)
	}
	if err := l.arena.Put(c); err != nil {
		return fmt.Errorf("add state: %w", err)
	}
	l.mu.Lock()
	l.names[c.Name] = struct{}{}
	l.mu.Unlock()

	if s := l.currentSurface(); s != nil {
		stored, _ := l.arena.State(c.Name)
		l.renderState(s, stored)
	}
	l.reroute(c.Name)
	return nil
}

func (l *baseLayer) RemoveState(name string) {
	l.mu.Lock()
	if _, ok := l.names[name]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.names, name)
	delete(l.paths, name)
	s := l.surface
	l.mu.Unlock()

	l.arena.Delete(name)
	if s != nil {
		s.Remove(canvas.StateID(name))
	}
	l.reroute(name)
}

func (l *baseLayer) UpdateState(name string, patch domain.StatePatch) error {
	if !l.owns(name) {
		return fmt.Errorf("update state %q: %w", name, domain.ErrStateNotFound)
	}
	if patch.Kind != nil && *patch.Kind != l.kind {
		return fmt.Errorf("update state %q to %s on %s layer: %w", name, *patch.Kind, l.kind, ErrWrongLayer)
	}
	l.arena.Update(name, func(st *domain.State) { patch.Apply(st) })
	l.redraw(name)
	return nil
}

// ── Slot CRUD ──────────────────────────────────────────────

func (l *baseLayer) AddSlot(slot domain.Slot) error {
	if !l.owns(slot.State) {
		return fmt.Errorf("add slot to %q: %w", slot.State, domain.ErrStateNotFound)
	}
	var err error
	l.arena.Update(slot.State, func(st *domain.State) {
		if _, exists := st.Slot(slot.Index); exists {
			err = fmt.Errorf("add slot %s/%d: %w", slot.State, slot.Index, domain.ErrDuplicateSlot)
			return
		}
		slot.Angle = domain.NormalizeAngle(slot.Angle)
		st.Slots = append(st.Slots, slot)
	})
	if err != nil {
		return err
	}
	l.redrawSlots(slot.State)
	return nil
}

func (l *baseLayer) RemoveSlot(ref domain.SlotRef) {
	if !l.owns(ref.State) {
		return
	}
	removed := false
	l.arena.Update(ref.State, func(st *domain.State) {
		for i := range st.Slots {
			if st.Slots[i].Index == ref.Index {
				st.Slots = append(st.Slots[:i], st.Slots[i+1:]...)
				removed = true
				return
			}
		}
	})
	if removed {
		l.redrawSlots(ref.State)
	}
}

// UpdateSlot replaces old with updated on the same state. Changing the index
// is allowed as long as it stays unique.
func (l *baseLayer) UpdateSlot(old, updated domain.Slot) error {
	if !l.owns(old.State) {
		return fmt.Errorf("update slot %s/%d: %w", old.State, old.Index, domain.ErrStateNotFound)
	}
	updated.State = old.State
	updated.Angle = domain.NormalizeAngle(updated.Angle)
	var err error
	l.arena.Update(old.State, func(st *domain.State) {
		cur, ok := st.Slot(old.Index)
		if !ok {
			err = fmt.Errorf("update slot %s/%d: %w", old.State, old.Index, domain.ErrSlotNotFound)
			return
		}
		if updated.Index != old.Index {
			if _, clash := st.Slot(updated.Index); clash {
				err = fmt.Errorf("update slot %s/%d to index %d: %w", old.State, old.Index, updated.Index, domain.ErrDuplicateSlot)
				return
			}
		}
		*cur = updated
	})
	if err != nil {
		return err
	}
	l.redrawSlots(old.State)
	return nil
}

// ── Geometry ───────────────────────────────────────────────

// perimeter returns the cached path for st, rebuilding it when the shape
// changed.
func (l *baseLayer) perimeter(st *domain.State) *geometry.Path {
	shape := st.Shape()
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.paths[st.Name]; ok && c.shape == shape {
		return c.path
	}
	p := geometry.Perimeter(shape)
	l.paths[st.Name] = cachedPath{shape: shape, path: p}
	return p
}

func (l *baseLayer) Anchor(ref domain.SlotRef) (connector.Anchor, bool) {
	if !l.owns(ref.State) {
		return connector.Anchor{}, false
	}
	st, ok := l.arena.State(ref.State)
	if !ok {
		return connector.Anchor{}, false
	}
	slot, ok := st.Slot(ref.Index)
	if !ok {
		return connector.Anchor{}, false
	}
	local := geometry.PointAtFraction(l.perimeter(st), slot.Angle)
	normal := geometry.Point{Y: -1}
	if d := math.Hypot(local.X, local.Y); d > 0 {
		normal = geometry.Point{X: local.X / d, Y: local.Y / d}
	}
	return connector.Anchor{
		Point:  geometry.Point{X: st.X + local.X, Y: st.Y + local.Y},
		Normal: normal,
		Layer:  l.kind,
	}, true
}

// ── Rendering ──────────────────────────────────────────────

func (l *baseLayer) renderState(s canvas.Surface, st *domain.State) {
	shape := st.Shape()
	if shape == nil {
		l.log.Warn("state has no geometry", zap.String("state", st.Name), zap.String("kind", string(st.Kind)))
		return
	}
	id := canvas.StateID(st.Name)
	s.Put(canvas.Element{
		ID:        id,
		Parent:    canvas.LayerNodesID(string(l.kind)),
		Kind:      canvas.KindGroup,
		Translate: geometry.Point{X: st.X, Y: st.Y},
		Data:      map[string]string{"state": st.Name, "kind": string(st.Kind)},
	})

	frame := geometry.FrameBox(shape, 0, 0, l.style.FramePadding)
	s.Put(canvas.Element{
		ID:        canvas.StateFrameID(st.Name),
		Parent:    id,
		Kind:      canvas.KindRect,
		Translate: *frame.TopLeft,
		Width:     frame.Width,
		Height:    frame.Height,
		Stroke:    l.style.FrameStroke,
		Dashed:    true,
	})

	body := l.body(st, l.style)
	body.ID, body.Parent = canvas.StateBodyID(st.Name), id
	if v := st.Style["fill"]; v != "" {
		body.Fill = v
	}
	if v := st.Style["stroke"]; v != "" {
		body.Stroke = v
	}
	s.Put(body)

	s.Put(canvas.Element{
		ID:     canvas.StateGuideID(st.Name),
		Parent: id,
		Kind:   canvas.KindPath,
		Points: l.perimeter(st).Points(),
		Stroke: "transparent",
	})

	label := st.Name
	if v := st.Style["label"]; v != "" {
		label = v
	}
	s.Put(canvas.Element{
		ID:     canvas.StateLabelID(st.Name),
		Parent: id,
		Kind:   canvas.KindText,
		Text:   label,
		Fill:   l.style.LabelColor,
	})

	l.layoutSlots(s, st)
}

// redraw re-renders a state after a geometry change and reroutes its
// connectors.
func (l *baseLayer) redraw(name string) {
	if s := l.currentSurface(); s != nil {
		if st, ok := l.arena.State(name); ok {
			l.renderState(s, st)
		}
	}
	l.reroute(name)
}

func (l *baseLayer) redrawSlots(name string) {
	if s := l.currentSurface(); s != nil {
		if st, ok := l.arena.State(name); ok {
			l.layoutSlots(s, st)
		}
	}
	l.reroute(name)
}

// moveTo translates a state without touching its connectors.
func (l *baseLayer) moveTo(name string, x, y float64) {
	l.arena.Update(name, func(st *domain.State) { st.X, st.Y = x, y })
	if s := l.currentSurface(); s != nil {
		s.Update(canvas.StateID(name), func(e *canvas.Element) {
			e.Translate = geometry.Point{X: x, Y: y}
		})
	}
}

func (l *baseLayer) reroute(name string) {
	if l.router != nil {
		l.router.Reroute(name)
	}
}
