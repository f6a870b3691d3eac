// Package connector draws connectors between slots across all shape layers
// and keeps them attached while nodes and slots move.
package connector

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
	"flowedit/internal/interaction"
)

// Anchor is where a slot sits on the canvas.
type Anchor struct {
	Point  geometry.Point
	Normal geometry.Point // unit vector pointing away from the owning node
	Layer  domain.ShapeKind
}

// Resolver maps a slot reference to its current anchor. ok is false when the
// state or slot no longer exists.
type Resolver interface {
	SlotAnchor(ref domain.SlotRef) (Anchor, bool)
}

const (
	ConnectorStroke = "#64748b"
	TentativeStroke = "#94a3b8"
)

// Router owns the connector index and the drawn connector paths.
type Router struct {
	mu         sync.Mutex
	surface    canvas.Surface
	resolver   Resolver
	coord      *interaction.Coordinator
	log        *zap.Logger
	connectors map[string]domain.Connector
	order      []string
	byState    map[string]map[string]struct{}
	hidden     map[string]bool // state name -> connectors hidden for a drag
}

func NewRouter(coord *interaction.Coordinator, resolver Resolver, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		resolver:   resolver,
		coord:      coord,
		log:        log.Named("connector"),
		connectors: make(map[string]domain.Connector),
		byState:    make(map[string]map[string]struct{}),
		hidden:     make(map[string]bool),
	}
}

// SetSurface switches the drawing surface and redraws every connector on it.
func (r *Router) SetSurface(s canvas.Surface) {
	r.mu.Lock()
	r.surface = s
	r.mu.Unlock()
	r.RerouteAll()
}

// Add indexes c and draws it. It returns false when an endpoint does not
// resolve; the connector stays indexed and is drawn once it does.
func (r *Router) Add(c domain.Connector) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[c.ID]; !ok {
		r.order = append(r.order, c.ID)
	}
	r.connectors[c.ID] = c
	r.indexLocked(c.SourceState, c.ID)
	r.indexLocked(c.SinkState, c.ID)
	return r.drawLocked(c)
}

// Remove drops the connector from the index and the surface.
func (r *Router) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

// RemoveState drops every connector touching state and returns their ids.
func (r *Router) RemoveState(state string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.attachedLocked(state)
	for _, id := range ids {
		r.removeLocked(id)
	}
	delete(r.hidden, state)
	return ids
}

// Connector returns the indexed connector.
func (r *Router) Connector(id string) (domain.Connector, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connectors[id]
	return c, ok
}

// Connectors lists every indexed connector in insertion order.
func (r *Router) Connectors() []domain.Connector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Connector, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.connectors[id])
	}
	return out
}

// Attached returns the ids of connectors whose source or sink is state.
func (r *Router) Attached(state string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachedLocked(state)
}

// Reroute redraws every connector attached to state.
func (r *Router) Reroute(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.attachedLocked(state) {
		r.drawLocked(r.connectors[id])
	}
}

// RerouteAll redraws every connector.
func (r *Router) RerouteAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		r.drawLocked(r.connectors[id])
	}
}

// SetHidden hides or re-shows the connectors attached to state for the
// duration of a node drag. Only a live capability may change visibility.
func (r *Router) SetHidden(claim interaction.Capability, state string, hidden bool) error {
	if r.coord != nil && !r.coord.Valid(claim) {
		return fmt.Errorf("set connector visibility for %s: %w", state, interaction.ErrNotHolder)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if hidden {
		r.hidden[state] = true
	} else {
		delete(r.hidden, state)
	}
	for _, id := range r.attachedLocked(state) {
		r.drawLocked(r.connectors[id])
	}
	return nil
}

// DrawTentative draws the dashed in-progress connector.
func (r *Router) DrawTentative(from, to geometry.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface == nil {
		return
	}
	r.surface.Put(canvas.Element{
		ID:     canvas.TentativeConnectorID,
		Kind:   canvas.KindPath,
		Points: []geometry.Point{from, to},
		Stroke: TentativeStroke,
		Dashed: true,
	})
}

// ClearTentative discards the in-progress connector.
func (r *Router) ClearTentative() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface != nil {
		r.surface.Remove(canvas.TentativeConnectorID)
	}
}

// Endpoints returns the drawn source and sink points of a connector.
func (r *Router) Endpoints(id string) (src, dst geometry.Point, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface == nil {
		return src, dst, false
	}
	e, found := r.surface.Element(canvas.ConnectorID(id))
	if !found || len(e.Points) < 2 {
		return src, dst, false
	}
	return e.Points[0], e.Points[len(e.Points)-1], true
}

func (r *Router) indexLocked(state, id string) {
	set, ok := r.byState[state]
	if !ok {
		set = make(map[string]struct{})
		r.byState[state] = set
	}
	set[id] = struct{}{}
}

func (r *Router) removeLocked(id string) {
	c, ok := r.connectors[id]
	if !ok {
		return
	}
	delete(r.connectors, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for _, st := range []string{c.SourceState, c.SinkState} {
		if set, ok := r.byState[st]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(r.byState, st)
			}
		}
	}
	if r.surface != nil {
		r.surface.Remove(canvas.ConnectorID(id))
	}
}

func (r *Router) attachedLocked(state string) []string {
	set := r.byState[state]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) drawLocked(c domain.Connector) bool {
	if r.surface == nil || r.resolver == nil {
		return false
	}
	src, okSrc := r.resolver.SlotAnchor(c.Source())
	dst, okDst := r.resolver.SlotAnchor(c.Sink())
	if !okSrc || !okDst {
		// Soft failure: a dangling connector is simply not drawn.
		r.surface.Remove(canvas.ConnectorID(c.ID))
		r.log.Debug("connector endpoint unresolved", zap.String("id", c.ID),
			zap.Bool("source", okSrc), zap.Bool("sink", okDst))
		return false
	}
	r.surface.Put(canvas.Element{
		ID:     canvas.ConnectorID(c.ID),
		Parent: canvas.LayerConnectorsID(string(src.Layer)),
		Kind:   canvas.KindCurve,
		Points: Curve(src, dst),
		Stroke: ConnectorStroke,
		Hidden: r.hidden[c.SourceState] || r.hidden[c.SinkState],
		Data: map[string]string{
			"source": fmt.Sprintf("%s:%d", c.SourceState, c.SourceSlot),
			"target": fmt.Sprintf("%s:%d", c.SinkState, c.SinkSlot),
		},
	})
	return true
}

// Curve returns the cubic control polygon for a connector: it leaves the
// source and enters the sink along the slots' outward normals.
func Curve(src, dst Anchor) []geometry.Point {
	d := geometry.Distance(src.Point, dst.Point)
	bend := math.Min(80, math.Max(20, d/3))
	return []geometry.Point{
		src.Point,
		{X: src.Point.X + src.Normal.X*bend, Y: src.Point.Y + src.Normal.Y*bend},
		{X: dst.Point.X + dst.Normal.X*bend, Y: dst.Point.Y + dst.Normal.Y*bend},
		dst.Point,
	}
}
