package layer

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/collision"
	"flowedit/internal/connector"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
	"flowedit/internal/interaction"
)

// Persistence receives canonical changes. Calls must return immediately;
// the editor never waits on them and never rolls back on failure.
type Persistence interface {
	UpdateStatePosition(solution, state string, x, y float64)
	UpdateSlotAngularPosition(solution, state string, slot int, angle float64)
	AddConnector(solution string, c domain.Connector)
	UpsertState(solution string, st domain.State)
	RemoveState(solution, state string)
	RemoveConnector(solution, id string)
}

// Overlay callbacks let a host UI position its editing panels. Any of them
// may be nil.
type Overlay struct {
	OnStateOverlayClick func(state string)
	OnStateDragStart    func(state string)
	OnStateDragEnd      func(state string, x, y float64)
	OnStateContextMenu  func(state string, x, y float64)
	OnSlotContextMenu   func(ref domain.SlotRef, x, y float64)
}

func (o Overlay) click(state string) {
	if o.OnStateOverlayClick != nil {
		o.OnStateOverlayClick(state)
	}
}

func (o Overlay) dragStart(state string) {
	if o.OnStateDragStart != nil {
		o.OnStateDragStart(state)
	}
}

func (o Overlay) dragEnd(state string, x, y float64) {
	if o.OnStateDragEnd != nil {
		o.OnStateDragEnd(state, x, y)
	}
}

// Metrics observes drags. Nil disables it.
type Metrics interface {
	DragStarted(mode interaction.Mode)
	CollisionSettled(outcome collision.Outcome)
}

// DefaultClickTolerance is how far a pointer may travel on a node before a
// press stops counting as a click.
const DefaultClickTolerance = 3.0

// DragContext is passed to every drag handler. It carries the collaborators
// a drag touches and the single in-flight drag session.
type DragContext struct {
	Solution       string
	Coord          *interaction.Coordinator
	Router         *connector.Router
	Arena          *Arena
	Persist        Persistence
	Overlay        Overlay
	Metrics        Metrics
	Padding        float64
	ClickTolerance float64
	ConnectorMode  bool
	NewConnectorID func() string
	Log            *zap.Logger

	session *session
}

type session struct {
	claim      interaction.Capability
	mode       interaction.Mode
	kind       domain.ShapeKind
	state      string
	slot       int
	start      geometry.Point // pointer at press
	origin     geometry.Point // state centre at press
	startAngle float64
	source     geometry.Point // fixed end of the tentative connector
	moved      bool
}

// Active reports the layer kind that owns the drag in flight.
func (dc *DragContext) Active() (domain.ShapeKind, bool) {
	if dc.session == nil {
		return "", false
	}
	return dc.session.kind, true
}

// Mode is the mode of the drag in flight, Idle when there is none.
func (dc *DragContext) Mode() interaction.Mode {
	if dc.session == nil {
		return interaction.Idle
	}
	return dc.session.mode
}

func (dc *DragContext) log() *zap.Logger {
	if dc.Log == nil {
		return zap.NewNop()
	}
	return dc.Log
}

func (dc *DragContext) padding() float64 {
	if dc.Padding <= 0 {
		return collision.FramePadding
	}
	return dc.Padding
}

func (dc *DragContext) tolerance() float64 {
	if dc.ClickTolerance <= 0 {
		return DefaultClickTolerance
	}
	return dc.ClickTolerance
}

func (dc *DragContext) started(mode interaction.Mode) {
	if dc.Metrics != nil {
		dc.Metrics.DragStarted(mode)
	}
}

func (dc *DragContext) newID() string {
	if dc.NewConnectorID != nil {
		return dc.NewConnectorID()
	}
	return uuid.NewString()
}

// finish releases the claim and clears the session. The state machine
// always ends in idle.
func (dc *DragContext) finish() {
	s := dc.session
	dc.session = nil
	if s == nil {
		return
	}
	if err := dc.Coord.Release(s.claim); err != nil {
		dc.log().Warn("release drag claim", zap.String("state", s.state), zap.Error(err))
	}
}

// Abort drops the drag in flight without settling it.
func (dc *DragContext) Abort() {
	if dc.session == nil {
		return
	}
	if dc.Router != nil {
		dc.Router.ClearTentative()
	}
	dc.finish()
}

// ── Pointer handlers ───────────────────────────────────────

// PointerDown starts a drag on one of this layer's states. It returns false
// when the event is ignored: another drag holds the token, or the target is
// not a node part or slot of this layer.
func (l *baseLayer) PointerDown(dc *DragContext, t canvas.Target, x, y float64) bool {
	if dc.session != nil || !l.owns(t.State) {
		return false
	}
	st, ok := l.arena.State(t.State)
	if !ok {
		return false
	}
	p := geometry.Point{X: x, Y: y}

	switch {
	case t.IsNode():
		claim, err := dc.Coord.Claim(interaction.MoveNode, canvas.StateID(st.Name))
		if err != nil {
			dc.log().Debug("pointer down ignored", zap.String("state", st.Name), zap.Error(err))
			return false
		}
		dc.session = &session{
			claim:  claim,
			mode:   interaction.MoveNode,
			kind:   l.kind,
			state:  st.Name,
			start:  p,
			origin: geometry.Point{X: st.X, Y: st.Y},
		}
		if dc.Router != nil {
			if err := dc.Router.SetHidden(claim, st.Name, true); err != nil {
				l.log.Warn("hide connectors", zap.String("state", st.Name), zap.Error(err))
			}
		}
		dc.started(interaction.MoveNode)

	case t.Kind == canvas.TargetSlot:
		slot, ok := st.Slot(t.Slot)
		if !ok {
			return false
		}
		mode := interaction.MoveSlot
		if dc.ConnectorMode {
			mode = interaction.DrawConnector
		}
		claim, err := dc.Coord.Claim(mode, canvas.SlotID(st.Name, slot.Index))
		if err != nil {
			dc.log().Debug("pointer down ignored", zap.String("state", st.Name), zap.Int("slot", slot.Index), zap.Error(err))
			return false
		}
		dc.session = &session{
			claim:      claim,
			mode:       mode,
			kind:       l.kind,
			state:      st.Name,
			slot:       slot.Index,
			start:      p,
			origin:     geometry.Point{X: st.X, Y: st.Y},
			startAngle: slot.Angle,
		}
		if mode == interaction.DrawConnector {
			l.beginTentative(dc, p)
		}
		dc.started(mode)

	default:
		return false
	}
	return true
}

func (l *baseLayer) PointerMove(dc *DragContext, x, y float64) {
	s := dc.session
	if s == nil || s.kind != l.kind {
		return
	}
	p := geometry.Point{X: x, Y: y}

	switch s.mode {
	case interaction.MoveNode:
		dx, dy := x-s.start.X, y-s.start.Y
		if !s.moved {
			if math.Hypot(dx, dy) <= dc.tolerance() {
				return
			}
			s.moved = true
			dc.Overlay.dragStart(s.state)
		}
		l.moveTo(s.state, s.origin.X+dx, s.origin.Y+dy)

	case interaction.MoveSlot:
		st, ok := l.arena.State(s.state)
		if !ok {
			return
		}
		lx, ly := x-st.X, y-st.Y
		path := l.perimeter(st)
		closest, angle := geometry.Nearest(path, lx, ly)
		if geometry.Distance(closest, geometry.Point{X: lx, Y: ly}) > geometry.CharacteristicSize(st.Shape())/2 {
			l.escalate(dc, p)
			return
		}
		l.setSlotAngle(s.state, s.slot, angle)

	case interaction.DrawConnector:
		if dc.Router != nil {
			dc.Router.DrawTentative(s.source, p)
		}
	}
}

// PointerUp ends the drag. t is the element under the pointer on release.
func (l *baseLayer) PointerUp(dc *DragContext, t canvas.Target, x, y float64) {
	s := dc.session
	if s == nil || s.kind != l.kind {
		return
	}
	defer dc.finish()

	switch s.mode {
	case interaction.MoveNode:
		l.endNodeDrag(dc, s, x, y)

	case interaction.MoveSlot:
		l.persistSlotAngle(dc, s)

	case interaction.DrawConnector:
		if dc.Router != nil {
			dc.Router.ClearTentative()
		}
		l.persistSlotAngle(dc, s)
		l.promote(dc, s, t)
	}
}

func (l *baseLayer) endNodeDrag(dc *DragContext, s *session, x, y float64) {
	if !s.moved {
		l.showConnectors(dc, s)
		dc.Overlay.click(s.state)
		return
	}
	l.moveTo(s.state, s.origin.X+x-s.start.X, s.origin.Y+y-s.start.Y)

	st, ok := l.arena.State(s.state)
	if !ok {
		return
	}
	pad := dc.padding()
	dropped := geometry.FrameBox(st.Shape(), st.X, st.Y, pad)
	res := collision.Resolve(st.Name, dropped, s.origin, l.arena.Bodies(pad))
	l.moveTo(st.Name, res.Position.X, res.Position.Y)
	if dc.Metrics != nil {
		dc.Metrics.CollisionSettled(res.Outcome)
	}
	if res.Outcome != collision.Accepted {
		l.log.Info("drop settled",
			zap.String("state", st.Name),
			zap.String("outcome", string(res.Outcome)),
			zap.String("neighbor", res.Neighbor),
			zap.Float64("x", res.Position.X),
			zap.Float64("y", res.Position.Y))
	}

	l.showConnectors(dc, s)
	if res.Position != s.origin && dc.Persist != nil {
		dc.Persist.UpdateStatePosition(dc.Solution, st.Name, res.Position.X, res.Position.Y)
	}
	dc.Overlay.dragEnd(st.Name, res.Position.X, res.Position.Y)
}

// showConnectors re-shows, and so reroutes, the connectors hidden at press.
func (l *baseLayer) showConnectors(dc *DragContext, s *session) {
	if dc.Router == nil {
		return
	}
	if err := dc.Router.SetHidden(s.claim, s.state, false); err != nil {
		l.log.Warn("show connectors", zap.String("state", s.state), zap.Error(err))
	}
}

// escalate turns a slot drag that left its shape into a connector drag. The
// slot stays at its last valid perimeter position.
func (l *baseLayer) escalate(dc *DragContext, p geometry.Point) {
	s := dc.session
	claim, err := dc.Coord.Escalate(s.claim, interaction.DrawConnector)
	if err != nil {
		l.log.Warn("escalate slot drag", zap.String("state", s.state), zap.Error(err))
		return
	}
	s.claim, s.mode = claim, interaction.DrawConnector
	l.redrawSlots(s.state)
	l.beginTentative(dc, p)
	dc.started(interaction.DrawConnector)
}

func (l *baseLayer) beginTentative(dc *DragContext, p geometry.Point) {
	s := dc.session
	a, ok := l.Anchor(domain.SlotRef{State: s.state, Index: s.slot})
	if !ok {
		return
	}
	s.source = a.Point
	if dc.Router != nil {
		dc.Router.DrawTentative(s.source, p)
	}
}

func (l *baseLayer) setSlotAngle(state string, index int, angle float64) {
	changed := false
	l.arena.Update(state, func(st *domain.State) {
		if slot, ok := st.Slot(index); ok && slot.Angle != angle {
			slot.Angle = angle
			changed = true
		}
	})
	if changed {
		l.redrawSlots(state)
	}
}

func (l *baseLayer) persistSlotAngle(dc *DragContext, s *session) {
	st, ok := l.arena.State(s.state)
	if !ok {
		return
	}
	slot, ok := st.Slot(s.slot)
	if !ok || slot.Angle == s.startAngle || dc.Persist == nil {
		return
	}
	dc.Persist.UpdateSlotAngularPosition(dc.Solution, s.state, s.slot, slot.Angle)
}

// promote turns the tentative connector into a permanent one when released
// over a slot marker of any layer. Anything else discards it.
func (l *baseLayer) promote(dc *DragContext, s *session, t canvas.Target) {
	if t.Kind != canvas.TargetSlot || dc.Router == nil {
		l.log.Debug("tentative connector discarded", zap.String("state", s.state), zap.Int("slot", s.slot))
		return
	}
	src := domain.SlotRef{State: s.state, Index: s.slot}
	sink := domain.SlotRef{State: t.State, Index: t.Slot}
	if src == sink {
		return
	}
	st, ok := l.arena.State(sink.State)
	if !ok {
		return
	}
	if _, ok := st.Slot(sink.Index); !ok {
		return
	}
	for _, id := range dc.Router.Attached(src.State) {
		if c, ok := dc.Router.Connector(id); ok && c.Source() == src && c.Sink() == sink {
			return
		}
	}

	c := domain.Connector{
		ID:          dc.newID(),
		SourceState: src.State,
		SourceSlot:  src.Index,
		SinkState:   sink.State,
		SinkSlot:    sink.Index,
	}
	dc.Router.Add(c)
	if dc.Persist != nil {
		dc.Persist.AddConnector(dc.Solution, c)
	}
	l.log.Info("connector created", zap.String("id", c.ID),
		zap.String("source", src.State), zap.String("sink", sink.State))
}
