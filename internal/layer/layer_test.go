package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// ── Registry ───────────────────────────────────────────────

func TestRegistry_Default(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []domain.ShapeKind{domain.ShapeCircle, domain.ShapeDiamond, domain.ShapeRectangle}, reg.Kinds())

	l, err := reg.New(domain.ShapeDiamond, Env{})
	require.NoError(t, err)
	assert.Equal(t, domain.ShapeDiamond, l.Kind())
}

func TestRegistry_UnknownKind(t *testing.T) {
	_, err := DefaultRegistry().New("hexagon", Env{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedShape)
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	reg := DefaultRegistry()
	assert.Panics(t, func() { reg.Register(domain.ShapeCircle, NewCircle) })
}

// ── Slot placement ─────────────────────────────────────────

func TestPlaceSlots_LabelsAndColors(t *testing.T) {
	path := geometry.Perimeter(geometry.Circle{R: 50})
	slots := []domain.Slot{
		{Index: 2, Output: true},
		{Index: 0, Input: true},
		{Index: 1, Input: true, Angle: 90},
		{Index: 3},
		{Index: 4, Output: true, Label: "done", Color: "#000000"},
	}
	got := PlaceSlots(path, slots, DefaultStyle())
	require.Len(t, got, 5)

	var labels, colors, text []string
	for i, p := range got {
		assert.Equal(t, i, p.Slot.Index)
		labels = append(labels, p.Label)
		colors = append(colors, p.Color)
		text = append(text, p.TextColor)
	}
	assert.Equal(t, []string{"I1", "I2", "O1", "", "done"}, labels)
	assert.Equal(t, []string{"#22c55e", "#22c55e", "#3b82f6", "#9ca3af", "#000000"}, colors)
	assert.Equal(t, []string{"#000000", "#000000", "#000000", "#000000", "#ffffff"}, text)

	assert.InDelta(t, 50, got[0].Point.X, 1e-9)
	assert.InDelta(t, 0, got[1].Point.X, 1e-6)
	assert.InDelta(t, 50, got[1].Point.Y, 1e-6)
}

func TestContrastText(t *testing.T) {
	tests := []struct {
		marker string
		want   string
	}{
		{"#ffffff", "#000000"},
		{"#000000", "#ffffff"},
		{"#1e3a8a", "#ffffff"},
		{"#facc15", "#000000"},
		{"garbage", "#ffffff"},
	}
	for _, tt := range tests {
		t.Run(tt.marker, func(t *testing.T) {
			assert.Equal(t, tt.want, ContrastText(tt.marker))
		})
	}
}

func TestOverCapacity(t *testing.T) {
	assert.False(t, OverCapacity(6, 10, 314))
	assert.True(t, OverCapacity(6, 11, 314))
}

// ── Rendering and CRUD ─────────────────────────────────────

func TestAddState_Renders(t *testing.T) {
	f := newFixture(t)
	f.add(t, rect("B", 200, 0, 80, 80, domain.Slot{Index: 0, Output: true}))

	g, ok := f.scene.Element(canvas.StateID("B"))
	require.True(t, ok)
	assert.Equal(t, canvas.LayerNodesID("rectangle"), g.Parent)
	assert.Equal(t, geometry.Point{X: 200, Y: 0}, g.Translate)

	for _, id := range []string{
		canvas.StateBodyID("B"), canvas.StateFrameID("B"), canvas.StateGuideID("B"), canvas.StateLabelID("B"),
		canvas.SlotLabelID("B", 0),
	} {
		_, ok := f.scene.Element(id)
		assert.True(t, ok, id)
	}

	frame, _ := f.scene.Element(canvas.StateFrameID("B"))
	assert.Equal(t, 100.0, frame.Width)
	assert.Equal(t, geometry.Point{X: -50, Y: -50}, frame.Translate)

	slot, ok := f.scene.Element(canvas.SlotID("B", 0))
	require.True(t, ok)
	assert.Equal(t, geometry.Point{X: -40, Y: -40}, slot.Translate)
	assert.Equal(t, "output", slot.Data["direction"])

	origin, ok := canvas.Origin(f.scene, canvas.SlotID("B", 0))
	require.True(t, ok)
	assert.Equal(t, geometry.Point{X: 160, Y: -40}, origin)
	assert.Equal(t, []string{"B"}, f.layers[domain.ShapeRectangle].States())
}

func TestAddState_Rejects(t *testing.T) {
	f := newFixture(t)
	f.add(t, circle("A", 0, 0, 50))

	err := f.layers[domain.ShapeCircle].AddState(rect("R", 0, 0, 10, 10))
	assert.ErrorIs(t, err, ErrWrongLayer)

	err = f.layers[domain.ShapeCircle].AddState(circle("A", 300, 0, 20))
	assert.ErrorIs(t, err, domain.ErrDuplicateState)

	err = f.layers[domain.ShapeDiamond].AddState(diamond("D", 0, 0, 30, domain.Slot{Index: 1}, domain.Slot{Index: 1}))
	assert.ErrorIs(t, err, domain.ErrDuplicateSlot)
}

func TestUpdateState_ReroutesConnectors(t *testing.T) {
	f := newFixture(t)
	f.add(t, circle("A", 0, 0, 50, domain.Slot{Index: 0, Output: true}))
	f.add(t, diamond("D", 300, 0, 40, domain.Slot{Index: 0, Input: true}))
	require.True(t, f.router.Add(domain.Connector{ID: "c1", SourceState: "A", SourceSlot: 0, SinkState: "D", SinkSlot: 0}))

	_, dst0, ok := f.router.Endpoints("c1")
	require.True(t, ok)

	y := 100.0
	hd := 60.0
	require.NoError(t, f.layers[domain.ShapeDiamond].UpdateState("D", domain.StatePatch{Y: &y, HalfDiagonal: &hd}))

	_, dst1, ok := f.router.Endpoints("c1")
	require.True(t, ok)
	// Top vertex of the resized diamond.
	assert.Equal(t, geometry.Point{X: 300, Y: 40}, dst1)
	assert.NotEqual(t, dst0, dst1)

	k := domain.ShapeCircle
	err := f.layers[domain.ShapeDiamond].UpdateState("D", domain.StatePatch{Kind: &k})
	assert.ErrorIs(t, err, ErrWrongLayer)
	err = f.layers[domain.ShapeDiamond].UpdateState("nope", domain.StatePatch{})
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestSlotCRUD(t *testing.T) {
	f := newFixture(t)
	f.add(t, circle("A", 0, 0, 50, domain.Slot{Index: 0, Output: true}))
	f.add(t, circle("B", 300, 0, 50, domain.Slot{Index: 0, Input: true}))
	f.router.Add(domain.Connector{ID: "c1", SourceState: "A", SourceSlot: 0, SinkState: "B", SinkSlot: 0})
	l := f.layers[domain.ShapeCircle]

	require.NoError(t, l.AddSlot(domain.Slot{State: "A", Index: 1, Input: true, Angle: -90}))
	st, _ := f.arena.State("A")
	s1, ok := st.Slot(1)
	require.True(t, ok)
	assert.Equal(t, 270.0, s1.Angle)
	_, ok = f.scene.Element(canvas.SlotID("A", 1))
	assert.True(t, ok)

	assert.ErrorIs(t, l.AddSlot(domain.Slot{State: "A", Index: 1}), domain.ErrDuplicateSlot)
	assert.ErrorIs(t, l.AddSlot(domain.Slot{State: "Z", Index: 0}), domain.ErrStateNotFound)

	require.NoError(t, l.UpdateSlot(domain.Slot{State: "A", Index: 1}, domain.Slot{Index: 5, Output: true, Label: "out"}))
	_, ok = f.scene.Element(canvas.SlotID("A", 1))
	assert.False(t, ok, "old marker is gone")
	lbl, ok := f.scene.Element(canvas.SlotLabelID("A", 5))
	require.True(t, ok)
	assert.Equal(t, "out", lbl.Text)
	assert.ErrorIs(t, l.UpdateSlot(domain.Slot{State: "A", Index: 5}, domain.Slot{Index: 0}), domain.ErrDuplicateSlot)
	assert.ErrorIs(t, l.UpdateSlot(domain.Slot{State: "A", Index: 9}, domain.Slot{Index: 9}), domain.ErrSlotNotFound)

	// Removing a connected slot orphans the connector: indexed, not drawn.
	l.RemoveSlot(domain.SlotRef{State: "A", Index: 0})
	_, ok = f.scene.Element(canvas.ConnectorID("c1"))
	assert.False(t, ok)
	_, ok = f.router.Connector("c1")
	assert.True(t, ok)
}

func TestRemoveState(t *testing.T) {
	f := newFixture(t)
	f.add(t, circle("A", 0, 0, 50, domain.Slot{Index: 0}))
	l := f.layers[domain.ShapeCircle]
	l.RemoveState("A")

	_, ok := f.scene.Element(canvas.StateID("A"))
	assert.False(t, ok)
	_, ok = f.scene.Element(canvas.SlotID("A", 0))
	assert.False(t, ok)
	assert.Empty(t, l.States())
	assert.Equal(t, 0, f.arena.Len())
}

func TestLayoutSlots_SkipsWithoutGuide(t *testing.T) {
	f := newFixture(t)
	f.add(t, circle("A", 0, 0, 50, domain.Slot{Index: 0}))
	f.scene.Remove(canvas.StateGuideID("A"))
	f.scene.Remove(canvas.SlotID("A", 0))

	st, _ := f.arena.State("A")
	f.layers[domain.ShapeCircle].(*Circle).layoutSlots(f.scene, st)
	_, ok := f.scene.Element(canvas.SlotID("A", 0))
	assert.False(t, ok)

	// The next full render rebuilds the guide and the slots.
	f.layers[domain.ShapeCircle].Render()
	_, ok = f.scene.Element(canvas.SlotID("A", 0))
	assert.True(t, ok)
}

func TestSetSurface_RendersOnNewSurface(t *testing.T) {
	f := newFixture(t)
	f.add(t, diamond("D", 10, 10, 30))

	next := canvas.NewScene()
	f.layers[domain.ShapeDiamond].SetSurface(next)
	for _, id := range []string{canvas.LayerID("diamond"), canvas.LayerNodesID("diamond"), canvas.LayerConnectorsID("diamond"), canvas.StateBodyID("D")} {
		_, ok := next.Element(id)
		assert.True(t, ok, id)
	}
	body, _ := next.Element(canvas.StateBodyID("D"))
	assert.Equal(t, canvas.KindPath, body.Kind)
	assert.Len(t, body.Points, 5)
}

func TestStyleOverrides(t *testing.T) {
	f := newFixture(t)
	st := circle("A", 0, 0, 40)
	st.Style = map[string]string{"fill": "#fef3c7", "label": "Start"}
	f.add(t, st)

	body, _ := f.scene.Element(canvas.StateBodyID("A"))
	assert.Equal(t, "#fef3c7", body.Fill)
	label, _ := f.scene.Element(canvas.StateLabelID("A"))
	assert.Equal(t, "Start", label.Text)
}

// ── Arena ──────────────────────────────────────────────────

func TestArena(t *testing.T) {
	a := NewArena()
	require.NoError(t, a.Put(circle("A", 0, 0, 10, domain.Slot{Index: 0})))
	require.NoError(t, a.Put(rect("B", 100, 0, 20, 40)))
	assert.ErrorIs(t, a.Put(circle("A", 0, 0, 1)), domain.ErrDuplicateState)

	st, ok := a.State("A")
	require.True(t, ok)
	assert.Equal(t, "A", st.Slots[0].State)

	st.X = 999
	again, _ := a.State("A")
	assert.Equal(t, 0.0, again.X, "copies are detached")

	bodies := a.Bodies(10)
	require.Len(t, bodies, 2)
	assert.Equal(t, 40.0, bodies[0].Frame.Width)
	assert.Equal(t, 60.0, bodies[1].Frame.Height)

	assert.True(t, a.Delete("A"))
	assert.False(t, a.Delete("A"))
	assert.Equal(t, []string{"B"}, a.Names())
}

func TestAddState_NamesWithSlashesStayApart(t *testing.T) {
	f := newFixture(t)
	f.add(t, circle("a", 0, 0, 50, domain.Slot{Index: 1}))
	f.add(t, circle("a/body", 300, 0, 50, domain.Slot{Index: 0}))

	body, ok := f.scene.Element(canvas.StateBodyID("a"))
	require.True(t, ok)
	assert.Equal(t, canvas.KindCircle, body.Kind)
	assert.Equal(t, canvas.StateID("a"), body.Parent)

	f.layers[domain.ShapeCircle].RemoveState("a/body")
	_, ok = f.scene.Element(canvas.StateBodyID("a"))
	assert.True(t, ok)
	_, ok = f.scene.Element(canvas.SlotID("a", 1))
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, f.layers[domain.ShapeCircle].States())
}
