// Package collision keeps node frames from overlapping after a drag.
package collision

import (
	"math"

	"oss.terrastruct.com/d2/lib/geo"

	"flowedit/internal/geometry"
)

// FramePadding is how far a node's frame extends past its visual body.
const FramePadding = 10.0

// Offsets are the push-out distances tried per direction, as multiples of
// the dragged frame's larger side.
var Offsets = []float64{0.5, 1, 2}

// Body is a node's frame in canvas coordinates.
type Body struct {
	Name  string
	Frame *geo.Box
}

// Outcome describes how a drop was settled.
type Outcome string

const (
	Accepted Outcome = "accepted" // no overlap at the drop position
	Pushed   Outcome = "pushed"   // moved to a free candidate position
	Reverted Outcome = "reverted" // no candidate was free; back to the original
)

// Result is the settled centre of the dragged node.
type Result struct {
	Position geometry.Point
	Outcome  Outcome
	Neighbor string // nearest overlapping node, when there was one
}

// Overlaps is the strict axis-aligned rectangle test; touching edges do not
// overlap.
func Overlaps(a, b *geo.Box) bool {
	return a.TopLeft.X < b.TopLeft.X+b.Width && a.TopLeft.X+a.Width > b.TopLeft.X &&
		a.TopLeft.Y < b.TopLeft.Y+b.Height && a.TopLeft.Y+a.Height > b.TopLeft.Y
}

// Resolve settles a node dropped with its frame at dropped. others holds the
// frames of every node on the canvas, across all shape layers; the entry
// named name is ignored. original is the node's centre before the drag and
// is returned when every candidate fails.
//
// The search is greedy: the nearest overlapping neighbour defines a push-out
// tangent, and the tangent, its two 45 degree variants and its cardinal
// components are each tried at every offset in Offsets.
func Resolve(name string, dropped *geo.Box, original geometry.Point, others []Body) Result {
	center := dropped.Center()
	var hits []Body
	for _, o := range others {
		if o.Name == name {
			continue
		}
		if Overlaps(dropped, o.Frame) {
			hits = append(hits, o)
		}
	}
	if len(hits) == 0 {
		return Result{Position: *center, Outcome: Accepted}
	}

	nearest := hits[0]
	best := math.Inf(1)
	for _, h := range hits {
		hc := h.Frame.Center()
		if d := geo.EuclideanDistance(center.X, center.Y, hc.X, hc.Y); d < best {
			best, nearest = d, h
		}
	}

	nc := nearest.Frame.Center()
	tangent := unit(center.X-nc.X, center.Y-nc.Y)
	size := math.Max(dropped.Width, dropped.Height)

	for _, dir := range Directions(tangent) {
		for _, k := range Offsets {
			cx := center.X + dir.X*k*size
			cy := center.Y + dir.Y*k*size
			candidate := geo.NewBox(
				geo.NewPoint(cx-dropped.Width/2, cy-dropped.Height/2),
				dropped.Width, dropped.Height,
			)
			if free(name, candidate, others) {
				return Result{Position: geometry.Point{X: cx, Y: cy}, Outcome: Pushed, Neighbor: nearest.Name}
			}
		}
	}
	return Result{Position: original, Outcome: Reverted, Neighbor: nearest.Name}
}

// Directions builds the candidate set for a unit tangent: the tangent, the
// tangent rotated by +/-45 degrees, the dominant cardinal axis and the
// secondary one. When the tangent lies on an axis its cardinal is the
// tangent itself and both perpendiculars are used instead.
func Directions(t geometry.Point) []geometry.Point {
	dirs := []geometry.Point{t, rotate(t, 45), rotate(t, -45)}
	if math.Abs(t.X) >= math.Abs(t.Y) {
		if t.Y != 0 {
			dirs = append(dirs, geometry.Point{X: sign(t.X)}, geometry.Point{Y: sign(t.Y)})
		} else {
			dirs = append(dirs, geometry.Point{Y: -1}, geometry.Point{Y: 1})
		}
	} else {
		if t.X != 0 {
			dirs = append(dirs, geometry.Point{Y: sign(t.Y)}, geometry.Point{X: sign(t.X)})
		} else {
			dirs = append(dirs, geometry.Point{X: -1}, geometry.Point{X: 1})
		}
	}
	return dirs
}

// Pairs lists every pair of overlapping frames.
func Pairs(bodies []Body) [][2]string {
	var out [][2]string
	for i := range bodies {
		for j := i + 1; j < len(bodies); j++ {
			if Overlaps(bodies[i].Frame, bodies[j].Frame) {
				out = append(out, [2]string{bodies[i].Name, bodies[j].Name})
			}
		}
	}
	return out
}

func free(name string, box *geo.Box, others []Body) bool {
	for _, o := range others {
		if o.Name != name && Overlaps(box, o.Frame) {
			return false
		}
	}
	return true
}

func unit(x, y float64) geometry.Point {
	l := math.Hypot(x, y)
	if l == 0 {
		return geometry.Point{X: -1}
	}
	return geometry.Point{X: x / l, Y: y / l}
}

func rotate(p geometry.Point, deg float64) geometry.Point {
	a := deg * math.Pi / 180
	s, c := math.Sin(a), math.Cos(a)
	return geometry.Point{X: p.X*c - p.Y*s, Y: p.X*s + p.Y*c}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
