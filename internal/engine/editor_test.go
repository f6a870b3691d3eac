package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowedit/internal/canvas"
	"flowedit/internal/collision"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
	"flowedit/internal/interaction"
	"flowedit/internal/layer"
)

type fakePersistence struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakePersistence) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *fakePersistence) UpdateStatePosition(_, state string, _, _ float64) {
	f.record("position:" + state)
}
func (f *fakePersistence) UpdateSlotAngularPosition(_, state string, _ int, _ float64) {
	f.record("angle:" + state)
}
func (f *fakePersistence) AddConnector(_ string, c domain.Connector) { f.record("connector:" + c.ID) }
func (f *fakePersistence) UpsertState(_ string, st domain.State)     { f.record("upsert:" + st.Name) }
func (f *fakePersistence) RemoveState(_, state string)               { f.record("remove:" + state) }
func (f *fakePersistence) RemoveConnector(_, id string)              { f.record("remove-connector:" + id) }

func (f *fakePersistence) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func newEditor(t *testing.T, opts Options) (*Editor, *canvas.Scene, *fakePersistence) {
	t.Helper()
	p := &fakePersistence{}
	if opts.Persistence == nil {
		opts.Persistence = p
	}
	provider := canvas.NewProvider()
	opts.Provider = provider
	ids := 0
	opts.NewConnectorID = func() string {
		ids++
		return "c" + string(rune('0'+ids))
	}
	e := New("demo", opts)
	t.Cleanup(e.Close)
	scene := canvas.NewScene()
	provider.Mount(scene)
	return e, scene, p
}

func demoSolution() *domain.Solution {
	return &domain.Solution{
		Name: "demo",
		States: []domain.State{
			{Name: "A", Kind: domain.ShapeCircle, X: 0, Y: 0, Radius: 50,
				Slots: []domain.Slot{{Index: 0, Input: true}, {Index: 1, Output: true, Angle: 180}}},
			{Name: "B", Kind: domain.ShapeRectangle, X: 200, Y: 0, Width: 80, Height: 80,
				Slots: []domain.Slot{{Index: 0, Input: true, Angle: 270}}},
			{Name: "C", Kind: domain.ShapeCircle, X: 0, Y: 300, Radius: 30},
		},
		Connectors: []domain.Connector{
			{ID: "ab", SourceState: "A", SourceSlot: 1, SinkState: "B", SinkSlot: 0},
			{ID: "dangling", SourceState: "A", SourceSlot: 0, SinkState: "gone", SinkSlot: 0},
		},
	}
}

func TestLoad_OneLayerPerKind(t *testing.T) {
	e, scene, p := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))

	assert.Equal(t, []domain.ShapeKind{domain.ShapeCircle, domain.ShapeRectangle}, e.Layers())
	assert.Len(t, scene.Children(canvas.LayerNodesID("circle")), 2)
	assert.Len(t, scene.Children(canvas.LayerNodesID("rectangle")), 1)

	_, ok := scene.Element(canvas.ConnectorID("ab"))
	assert.True(t, ok)
	_, ok = scene.Element(canvas.ConnectorID("dangling"))
	assert.False(t, ok, "unresolvable connectors are not drawn")
	assert.Len(t, e.Connectors(), 2)
	assert.Empty(t, p.list(), "loading persists nothing")
}

func TestLoad_UnsupportedShapeFails(t *testing.T) {
	e, _, _ := newEditor(t, Options{})
	sol := &domain.Solution{Name: "x", States: []domain.State{{Name: "H", Kind: "hexagon"}}}
	assert.ErrorIs(t, e.Load(sol), domain.ErrUnsupportedShape)
}

func TestLoad_KeepsOverlaps(t *testing.T) {
	e, _, _ := newEditor(t, Options{})
	sol := demoSolution()
	sol.States[2].X, sol.States[2].Y = 20, 0
	require.NoError(t, e.Load(sol))

	assert.Equal(t, [][2]string{{"A", "C"}}, e.Overlaps())
	st, _ := e.State("C")
	assert.Equal(t, 20.0, st.X)
}

func TestLoad_Replaces(t *testing.T) {
	e, scene, _ := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))
	require.NoError(t, e.Load(&domain.Solution{Name: "demo", States: []domain.State{
		{Name: "Z", Kind: domain.ShapeDiamond, HalfDiagonal: 20},
	}}))

	_, ok := scene.Element(canvas.StateID("A"))
	assert.False(t, ok)
	_, ok = scene.Element(canvas.ConnectorID("ab"))
	assert.False(t, ok)
	snap := e.Snapshot()
	require.Len(t, snap.States, 1)
	assert.Equal(t, "Z", snap.States[0].Name)
	assert.Empty(t, snap.Connectors)
}

func TestUpdateState_KindChangeMovesLayer(t *testing.T) {
	e, scene, p := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))

	k := domain.ShapeDiamond
	hd := 45.0
	require.NoError(t, e.UpdateState("A", domain.StatePatch{Kind: &k, HalfDiagonal: &hd}))

	g, ok := scene.Element(canvas.StateID("A"))
	require.True(t, ok)
	assert.Equal(t, canvas.LayerNodesID("diamond"), g.Parent)
	assert.Len(t, scene.Children(canvas.LayerNodesID("circle")), 1)

	// Slots and connectors follow the state.
	_, ok = scene.Element(canvas.SlotID("A", 1))
	assert.True(t, ok)
	c, ok := scene.Element(canvas.ConnectorID("ab"))
	require.True(t, ok)
	assert.Equal(t, canvas.LayerConnectorsID("diamond"), c.Parent)
	assert.Equal(t, []string{"upsert:A"}, p.list())

	bad := domain.ShapeKind("hexagon")
	assert.ErrorIs(t, e.UpdateState("A", domain.StatePatch{Kind: &bad}), domain.ErrUnsupportedShape)
	st, _ := e.State("A")
	assert.Equal(t, domain.ShapeDiamond, st.Kind)
}

func TestRemoveState_Cascades(t *testing.T) {
	e, scene, p := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))

	require.NoError(t, e.RemoveState("B"))
	_, ok := scene.Element(canvas.StateID("B"))
	assert.False(t, ok)
	_, ok = scene.Element(canvas.ConnectorID("ab"))
	assert.False(t, ok)
	assert.Len(t, e.Connectors(), 1)
	assert.Equal(t, []string{"remove:B"}, p.list())

	assert.ErrorIs(t, e.RemoveState("B"), domain.ErrStateNotFound)
}

func TestAddConnector_Validates(t *testing.T) {
	e, scene, p := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))

	c, err := e.AddConnector(domain.Connector{SourceState: "B", SourceSlot: 0, SinkState: "A", SinkSlot: 0})
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	_, ok := scene.Element(canvas.ConnectorID("c1"))
	assert.True(t, ok)

	_, err = e.AddConnector(domain.Connector{SourceState: "B", SourceSlot: 4, SinkState: "A", SinkSlot: 0})
	assert.ErrorIs(t, err, domain.ErrConnectorInvalid)
	_, err = e.AddConnector(domain.Connector{ID: "ab", SourceState: "B", SourceSlot: 0, SinkState: "A", SinkSlot: 0})
	assert.ErrorIs(t, err, domain.ErrConnectorInvalid)

	require.NoError(t, e.RemoveConnector("c1"))
	assert.ErrorIs(t, e.RemoveConnector("c1"), domain.ErrConnectorInvalid)
	assert.Equal(t, []string{"connector:c1", "remove-connector:c1"}, p.list())
}

func TestSlotCRUD_Persists(t *testing.T) {
	e, _, p := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))

	require.NoError(t, e.AddSlot(domain.Slot{State: "C", Index: 0, Output: true}))
	require.NoError(t, e.UpdateSlot(domain.Slot{State: "C", Index: 0}, domain.Slot{Index: 0, Output: true, Angle: 45}))
	require.NoError(t, e.RemoveSlot(domain.SlotRef{State: "C", Index: 0}))
	assert.ErrorIs(t, e.RemoveSlot(domain.SlotRef{State: "C", Index: 0}), domain.ErrSlotNotFound)
	assert.ErrorIs(t, e.AddSlot(domain.Slot{State: "nope"}), domain.ErrStateNotFound)
	assert.Equal(t, []string{"upsert:C", "upsert:C", "upsert:C"}, p.list())
}

func TestMoveState_ResolvesCollision(t *testing.T) {
	e, _, p := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))

	res, err := e.MoveState("A", 195, 0)
	require.NoError(t, err)
	assert.Equal(t, collision.Pushed, res.Outcome)
	assert.Equal(t, geometry.Point{X: 75, Y: 0}, res.Position)
	assert.Empty(t, e.Overlaps())
	assert.Equal(t, []string{"position:A"}, p.list())
}

func TestPointerDispatch(t *testing.T) {
	var clicked, menus []string
	var slotMenus []domain.SlotRef
	e, scene, p := newEditor(t, Options{Overlay: layer.Overlay{
		OnStateOverlayClick: func(s string) { clicked = append(clicked, s) },
		OnStateContextMenu:  func(s string, _, _ float64) { menus = append(menus, s) },
		OnSlotContextMenu:   func(r domain.SlotRef, _, _ float64) { slotMenus = append(slotMenus, r) },
	}})
	require.NoError(t, e.Load(demoSolution()))
	ab0, _, ok := e.router.Endpoints("ab")
	require.True(t, ok)

	// Move C down by (40, 60); connector ab does not touch C.
	require.True(t, e.PointerDown(canvas.StateBodyID("C"), 0, 300))
	assert.Equal(t, interaction.MoveNode, e.DragMode())
	assert.False(t, e.PointerDown(canvas.StateBodyID("A"), 0, 0), "one drag at a time")
	e.PointerMove(40, 360)
	e.PointerUp(canvas.StateBodyID("C"), 40, 360)
	st, _ := e.State("C")
	assert.Equal(t, geometry.Point{X: 40, Y: 360}, geometry.Point{X: st.X, Y: st.Y})
	assert.Equal(t, interaction.Idle, e.DragMode())

	// Move A; ab's source endpoint follows exactly.
	require.True(t, e.PointerDown(canvas.StateLabelID("A"), 0, 0))
	e.PointerMove(-30, -20)
	e.PointerUp("", -30, -20)
	ab1, _, ok := e.router.Endpoints("ab")
	require.True(t, ok)
	assert.InDelta(t, ab0.X-30, ab1.X, 1e-9)
	assert.InDelta(t, ab0.Y-20, ab1.Y, 1e-9)

	// Connector mode wires C to B.
	e.SetConnectorMode(true)
	assert.True(t, e.ConnectorMode())
	require.NoError(t, e.AddSlot(domain.Slot{State: "C", Index: 0, Output: true}))
	anchor, ok := e.Anchor(domain.SlotRef{State: "C", Index: 0})
	require.True(t, ok)
	require.True(t, e.PointerDown(canvas.SlotID("C", 0), anchor.Point.X, anchor.Point.Y))
	e.PointerMove(150, 100)
	e.PointerUp(canvas.SlotID("B", 0), 160, 40)
	_, ok = scene.Element(canvas.ConnectorID("c1"))
	assert.True(t, ok)

	// A press and release in place is a click.
	e.SetConnectorMode(false)
	require.True(t, e.PointerDown(canvas.StateBodyID("B"), 200, 0))
	e.PointerUp(canvas.StateBodyID("B"), 200, 0)
	assert.Equal(t, []string{"B"}, clicked)

	assert.True(t, e.ContextMenu(canvas.StateFrameID("A"), 1, 2))
	assert.True(t, e.ContextMenu(canvas.SlotID("A", 1), 1, 2))
	assert.False(t, e.ContextMenu(canvas.StateBodyID("ghost"), 1, 2))
	assert.False(t, e.ContextMenu(canvas.ConnectorID("ab"), 1, 2))
	assert.Equal(t, []string{"A"}, menus)
	assert.Equal(t, []domain.SlotRef{{State: "A", Index: 1}}, slotMenus)

	assert.Equal(t, []string{"position:C", "position:A", "upsert:C", "connector:c1"}, p.list())
}

func TestPointer_IgnoresUnknownTargets(t *testing.T) {
	e, _, _ := newEditor(t, Options{})
	require.NoError(t, e.Load(demoSolution()))
	assert.False(t, e.PointerDown("", 0, 0))
	assert.False(t, e.PointerDown(canvas.StateBodyID("ghost"), 0, 0))
	assert.False(t, e.PointerDown(canvas.ConnectorID("ab"), 0, 0))
	e.PointerMove(10, 10)
	e.PointerUp("", 10, 10)
	assert.Equal(t, interaction.Idle, e.DragMode())
}

func TestSurfaceReplaced(t *testing.T) {
	provider := canvas.NewProvider()
	e := New("demo", Options{Provider: provider})
	defer e.Close()
	require.NoError(t, e.Load(demoSolution()))

	first := canvas.NewScene()
	provider.Mount(first)
	_, ok := first.Element(canvas.ConnectorID("ab"))
	assert.True(t, ok)

	second := canvas.NewScene()
	provider.Mount(second)
	_, ok = second.Element(canvas.StateBodyID("B"))
	assert.True(t, ok)
	_, ok = second.Element(canvas.ConnectorID("ab"))
	assert.True(t, ok)
}

func TestFrameSize(t *testing.T) {
	e := New("demo", Options{})
	w, h, err := e.FrameSize(&domain.State{Kind: domain.ShapeRectangle, Width: 80, Height: 40})
	require.NoError(t, err)
	assert.Equal(t, 100.0, w)
	assert.Equal(t, 60.0, h)

	_, _, err = e.FrameSize(&domain.State{Kind: "blob"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedShape)
}
