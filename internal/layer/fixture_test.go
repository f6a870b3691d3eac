package layer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"flowedit/internal/canvas"
	"flowedit/internal/collision"
	"flowedit/internal/connector"
	"flowedit/internal/domain"
	"flowedit/internal/interaction"
)

// layerSet resolves anchors across every layer, the way the editor does.
type layerSet map[domain.ShapeKind]Layer

func (ls layerSet) SlotAnchor(ref domain.SlotRef) (connector.Anchor, bool) {
	for _, l := range ls {
		if a, ok := l.Anchor(ref); ok {
			return a, true
		}
	}
	return connector.Anchor{}, false
}

type call struct {
	op    string
	state string
	slot  int
	x, y  float64
	angle float64
	conn  domain.Connector
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) add(c call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *recorder) UpdateStatePosition(_, state string, x, y float64) {
	r.add(call{op: "position", state: state, x: x, y: y})
}

func (r *recorder) UpdateSlotAngularPosition(_, state string, slot int, angle float64) {
	r.add(call{op: "angle", state: state, slot: slot, angle: angle})
}

func (r *recorder) AddConnector(_ string, c domain.Connector) {
	r.add(call{op: "connector", conn: c})
}

func (r *recorder) UpsertState(_ string, st domain.State) { r.add(call{op: "upsert", state: st.Name}) }
func (r *recorder) RemoveState(_, state string)           { r.add(call{op: "remove", state: state}) }
func (r *recorder) RemoveConnector(_, id string) {
	r.add(call{op: "remove-connector", conn: domain.Connector{ID: id}})
}

func (r *recorder) ops(op string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type countingMetrics struct {
	drags    map[interaction.Mode]int
	outcomes map[collision.Outcome]int
}

func (m *countingMetrics) DragStarted(mode interaction.Mode) { m.drags[mode]++ }
func (m *countingMetrics) CollisionSettled(o collision.Outcome) {
	m.outcomes[o]++
}

type fixture struct {
	arena   *Arena
	coord   *interaction.Coordinator
	router  *connector.Router
	scene   *canvas.Scene
	layers  layerSet
	persist *recorder
	metrics *countingMetrics
	dc      *DragContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		arena:   NewArena(),
		coord:   interaction.NewCoordinator(nil),
		scene:   canvas.NewScene(),
		layers:  layerSet{},
		persist: &recorder{},
		metrics: &countingMetrics{drags: map[interaction.Mode]int{}, outcomes: map[collision.Outcome]int{}},
	}
	f.router = connector.NewRouter(f.coord, f.layers, nil)
	reg := DefaultRegistry()
	env := Env{Arena: f.arena, Router: f.router}
	for _, k := range domain.ShapeKinds {
		l, err := reg.New(k, env)
		require.NoError(t, err)
		f.layers[k] = l
		l.SetSurface(f.scene)
	}
	f.router.SetSurface(f.scene)
	f.dc = &DragContext{
		Solution:       "demo",
		Coord:          f.coord,
		Router:         f.router,
		Arena:          f.arena,
		Persist:        f.persist,
		Metrics:        f.metrics,
		NewConnectorID: func() string { return "c-new" },
	}
	return f
}

func (f *fixture) add(t *testing.T, st *domain.State) {
	t.Helper()
	require.NoError(t, f.layers[st.Kind].AddState(st))
}

func (f *fixture) down(id string, x, y float64) bool {
	t := canvas.ParseTarget(id)
	st, ok := f.arena.State(t.State)
	if !ok {
		return false
	}
	return f.layers[st.Kind].PointerDown(f.dc, t, x, y)
}

func (f *fixture) move(x, y float64) {
	if kind, ok := f.dc.Active(); ok {
		f.layers[kind].PointerMove(f.dc, x, y)
	}
}

func (f *fixture) up(id string, x, y float64) {
	if kind, ok := f.dc.Active(); ok {
		f.layers[kind].PointerUp(f.dc, canvas.ParseTarget(id), x, y)
	}
}

func circle(name string, x, y, r float64, slots ...domain.Slot) *domain.State {
	return &domain.State{Name: name, Kind: domain.ShapeCircle, X: x, Y: y, Radius: r, Slots: slots}
}

func rect(name string, x, y, w, h float64, slots ...domain.Slot) *domain.State {
	return &domain.State{Name: name, Kind: domain.ShapeRectangle, X: x, Y: y, Width: w, Height: h, Slots: slots}
}

func diamond(name string, x, y, h float64, slots ...domain.Slot) *domain.State {
	return &domain.State{Name: name, Kind: domain.ShapeDiamond, X: x, Y: y, HalfDiagonal: h, Slots: slots}
}
