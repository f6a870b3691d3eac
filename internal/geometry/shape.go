// Package geometry is the perimeter kernel of the editor: closed boundary
// paths for every node shape, sampled by arc length.
package geometry

import (
	"math"

	"oss.terrastruct.com/d2/lib/geo"
)

// Point is a 2D coordinate. Local points are relative to a node's centre.
type Point = geo.Point

// Shape is the closed set of node geometries. Only this package implements it.
type Shape interface {
	shape()
}

// Circle is centred on the origin.
type Circle struct{ R float64 }

// Rectangle is centred on the origin. CornerR is clamped to min(W,H)/2.
type Rectangle struct{ W, H, CornerR float64 }

// Diamond has its vertices on the axes at distance HalfDiagonal.
type Diamond struct{ HalfDiagonal float64 }

func (Circle) shape()    {}
func (Rectangle) shape() {}
func (Diamond) shape()   {}

// CharacteristicSize is the length the slot-drag escalation threshold is
// derived from: the radius, half the shorter rectangle side, or the diamond's
// half diagonal.
func CharacteristicSize(s Shape) float64 {
	switch s := s.(type) {
	case Circle:
		return s.R
	case Rectangle:
		return math.Min(s.W, s.H) / 2
	case Diamond:
		return s.HalfDiagonal
	}
	return 0
}

// BodyBox returns the bounds of the visual body in local coordinates.
func BodyBox(s Shape) *geo.Box {
	var w, h float64
	switch s := s.(type) {
	case Circle:
		w, h = 2*s.R, 2*s.R
	case Rectangle:
		w, h = s.W, s.H
	case Diamond:
		w, h = 2*s.HalfDiagonal, 2*s.HalfDiagonal
	}
	return geo.NewBox(geo.NewPoint(-w/2, -h/2), w, h)
}

// FrameBox is the body box grown by pad on every side and moved to (cx, cy).
func FrameBox(s Shape, cx, cy, pad float64) *geo.Box {
	b := BodyBox(s)
	return geo.NewBox(
		geo.NewPoint(cx+b.TopLeft.X-pad, cy+b.TopLeft.Y-pad),
		b.Width+2*pad,
		b.Height+2*pad,
	)
}
