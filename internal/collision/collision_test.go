package collision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"oss.terrastruct.com/d2/lib/geo"

	"flowedit/internal/geometry"
)

func frameAt(s geometry.Shape, x, y float64) *geo.Box {
	return geometry.FrameBox(s, x, y, FramePadding)
}

func TestOverlaps(t *testing.T) {
	a := geo.NewBox(geo.NewPoint(0, 0), 10, 10)
	tests := []struct {
		name string
		b    *geo.Box
		want bool
	}{
		{"disjoint", geo.NewBox(geo.NewPoint(20, 0), 10, 10), false},
		{"touching edge", geo.NewBox(geo.NewPoint(10, 0), 10, 10), false},
		{"overlap", geo.NewBox(geo.NewPoint(5, 5), 10, 10), true},
		{"contained", geo.NewBox(geo.NewPoint(2, 2), 2, 2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, a))
		})
	}
}

func TestResolve_NoOverlapAccepts(t *testing.T) {
	others := []Body{{Name: "B", Frame: frameAt(geometry.Rectangle{W: 80, H: 80}, 400, 0)}}
	res := Resolve("A", frameAt(geometry.Circle{R: 50}, 100, 0), geometry.Point{}, others)
	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, geometry.Point{X: 100, Y: 0}, res.Position)
}

func TestResolve_IgnoresSelf(t *testing.T) {
	others := []Body{{Name: "A", Frame: frameAt(geometry.Circle{R: 50}, 0, 0)}}
	res := Resolve("A", frameAt(geometry.Circle{R: 50}, 10, 0), geometry.Point{}, others)
	assert.Equal(t, Accepted, res.Outcome)
}

func TestResolve_PushesCircleOffRectangle(t *testing.T) {
	circle := geometry.Circle{R: 50}
	others := []Body{
		{Name: "A", Frame: frameAt(circle, 0, 0)},
		{Name: "B", Frame: frameAt(geometry.Rectangle{W: 80, H: 80}, 200, 0)},
	}
	res := Resolve("A", frameAt(circle, 195, 0), geometry.Point{X: 0, Y: 0}, others)

	require.Equal(t, Pushed, res.Outcome)
	assert.Equal(t, "B", res.Neighbor)
	// Tangent points from B towards A (-x); half a frame is not enough, a
	// whole frame (120) is.
	assert.Equal(t, geometry.Point{X: 75, Y: 0}, res.Position)
	assert.False(t, Overlaps(frameAt(circle, res.Position.X, res.Position.Y), others[1].Frame))
}

func TestResolve_RevertsWhenBoxedIn(t *testing.T) {
	sq := geometry.Rectangle{W: 40, H: 40}
	// A dense grid around the drop point with no free cell within reach.
	var others []Body
	for gx := -6; gx <= 6; gx++ {
		for gy := -6; gy <= 6; gy++ {
			others = append(others, Body{
				Name:  "n" + string(rune('a'+gx+6)) + string(rune('a'+gy+6)),
				Frame: frameAt(sq, float64(gx)*60, float64(gy)*60),
			})
		}
	}
	original := geometry.Point{X: 2000, Y: 2000}
	res := Resolve("A", frameAt(sq, 5, 5), original, others)
	assert.Equal(t, Reverted, res.Outcome)
	assert.Equal(t, original, res.Position)
}

func TestResolve_ResultNeverOverlaps(t *testing.T) {
	shape := geometry.Diamond{HalfDiagonal: 30}
	others := []Body{
		{Name: "B", Frame: frameAt(geometry.Circle{R: 40}, 0, 0)},
		{Name: "C", Frame: frameAt(geometry.Rectangle{W: 100, H: 50}, 150, 40)},
		{Name: "D", Frame: frameAt(geometry.Diamond{HalfDiagonal: 25}, -120, 90)},
	}
	original := geometry.Point{X: 500, Y: 500}
	for _, drop := range []geometry.Point{{X: 10, Y: 10}, {X: 140, Y: 30}, {X: -100, Y: 80}, {X: 60, Y: 0}} {
		res := Resolve("A", frameAt(shape, drop.X, drop.Y), original, others)
		final := frameAt(shape, res.Position.X, res.Position.Y)
		for _, o := range others {
			assert.False(t, Overlaps(final, o.Frame), "drop %v settled at %v over %s", drop, res.Position, o.Name)
		}
	}
}

func TestDirections(t *testing.T) {
	axis := Directions(geometry.Point{X: -1})
	// tangent, two diagonals, two perpendiculars (the cardinal is the tangent)
	assert.Len(t, axis, 5)

	diag := Directions(geometry.Point{X: math.Sqrt2 / 2, Y: math.Sqrt2 / 2})
	assert.GreaterOrEqual(t, len(diag), 4)
	assert.LessOrEqual(t, len(diag), 6)
	for _, d := range diag {
		assert.InDelta(t, 1, math.Hypot(d.X, d.Y), 1e-9)
	}
}

func TestPairs(t *testing.T) {
	sq := geometry.Rectangle{W: 40, H: 40}
	bodies := []Body{
		{Name: "a", Frame: frameAt(sq, 0, 0)},
		{Name: "b", Frame: frameAt(sq, 30, 0)},
		{Name: "c", Frame: frameAt(sq, 300, 0)},
	}
	assert.Equal(t, [][2]string{{"a", "b"}}, Pairs(bodies))
}

func TestPlacer_EmptyCanvas(t *testing.T) {
	p := NewPlacer()
	x, y := p.NextCenter(nil, 120, 120)
	assert.Equal(t, 60.0, x)
	assert.Equal(t, 60.0, y)
}

func TestPlacer_AvoidsExisting(t *testing.T) {
	p := NewPlacer()
	existing := []Body{
		{Name: "a", Frame: geo.NewBox(geo.NewPoint(0, 0), 480, 360)},
		{Name: "b", Frame: geo.NewBox(geo.NewPoint(540, 0), 480, 360)},
	}
	x, y := p.NextCenter(existing, 120, 120)
	box := geo.NewBox(geo.NewPoint(x-60, y-60), 120, 120)
	for _, b := range existing {
		assert.False(t, Overlaps(box, b.Frame), "(%.0f, %.0f) overlaps %s", x, y, b.Name)
	}
}

func TestSnap(t *testing.T) {
	p := NewPlacer()
	tests := []struct {
		input, want float64
	}{
		{0, 0},
		{15, 30},
		{29, 30},
		{45, 60},
		{100, 90},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.snap(tt.input), "snap(%.0f)", tt.input)
	}
}

func TestResolve_NeighborIsNearestHit(t *testing.T) {
	square := geometry.Rectangle{W: 80, H: 80}
	others := []Body{
		{Name: "far", Frame: frameAt(square, 100, 0)},
		{Name: "near", Frame: frameAt(square, -80, 0)},
	}
	res := Resolve("A", frameAt(geometry.Circle{R: 50}, 0, 0), geometry.Point{X: 0, Y: 300}, others)
	require.NotEqual(t, Accepted, res.Outcome)
	assert.Equal(t, "near", res.Neighbor)
}
