package geometry

import (
	"math"

	"oss.terrastruct.com/d2/lib/geo"
)

const (
	// circleKappa places cubic control points so four quarter arcs
	// approximate a circle.
	circleKappa = 0.5522847498307936

	curveSteps  = 64
	cornerSteps = 16

	// SweepSamples is the resolution of ClosestPoint and AngleForPoint.
	SweepSamples = 360
)

// Path is a closed perimeter flattened into a polyline. The last point
// repeats the first.
type Path struct {
	route  geo.Route
	cum    []float64
	length float64
}

// Perimeter builds the boundary path of s in local coordinates, starting at
// a fixed point and running clockwise on screen (y grows downward):
//   - circle: at (R,0), four cubic quarter arcs;
//   - rectangle: at the top-left corner (after any rounding), along the top edge;
//   - diamond: at the top vertex.
func Perimeter(s Shape) *Path {
	var pts []*geo.Point
	switch s := s.(type) {
	case Circle:
		pts = circlePoints(s.R)
	case Rectangle:
		pts = rectanglePoints(s.W, s.H, s.CornerR)
	case Diamond:
		h := s.HalfDiagonal
		pts = []*geo.Point{
			geo.NewPoint(0, -h),
			geo.NewPoint(h, 0),
			geo.NewPoint(0, h),
			geo.NewPoint(-h, 0),
			geo.NewPoint(0, -h),
		}
	default:
		pts = []*geo.Point{geo.NewPoint(0, 0)}
	}
	return newPath(pts)
}

func newPath(pts []*geo.Point) *Path {
	p := &Path{route: geo.Route(pts), cum: make([]float64, len(pts))}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		p.cum[i] = p.cum[i-1] + geo.EuclideanDistance(a.X, a.Y, b.X, b.Y)
	}
	p.length = p.route.Length()
	return p
}

func circlePoints(r float64) []*geo.Point {
	k := circleKappa * r
	quarters := [][4]*geo.Point{
		{geo.NewPoint(r, 0), geo.NewPoint(r, k), geo.NewPoint(k, r), geo.NewPoint(0, r)},
		{geo.NewPoint(0, r), geo.NewPoint(-k, r), geo.NewPoint(-r, k), geo.NewPoint(-r, 0)},
		{geo.NewPoint(-r, 0), geo.NewPoint(-r, -k), geo.NewPoint(-k, -r), geo.NewPoint(0, -r)},
		{geo.NewPoint(0, -r), geo.NewPoint(k, -r), geo.NewPoint(r, -k), geo.NewPoint(r, 0)},
	}
	pts := []*geo.Point{geo.NewPoint(r, 0)}
	for _, q := range quarters {
		curve := geo.NewBezierCurve(q[:])
		for i := 1; i <= curveSteps; i++ {
			pts = append(pts, curve.At(float64(i)/curveSteps))
		}
	}
	// Close exactly; the curve's end point may carry rounding noise.
	pts[len(pts)-1] = geo.NewPoint(r, 0)
	return pts
}

func rectanglePoints(w, h, rc float64) []*geo.Point {
	hw, hh := w/2, h/2
	rc = math.Max(0, math.Min(rc, math.Min(hw, hh)))
	if rc == 0 {
		return []*geo.Point{
			geo.NewPoint(-hw, -hh),
			geo.NewPoint(hw, -hh),
			geo.NewPoint(hw, hh),
			geo.NewPoint(-hw, hh),
			geo.NewPoint(-hw, -hh),
		}
	}
	var pts []*geo.Point
	corner := func(cx, cy, from float64) {
		for i := 1; i <= cornerSteps; i++ {
			a := (from + 90*float64(i)/cornerSteps) * math.Pi / 180
			pts = append(pts, geo.NewPoint(cx+rc*math.Cos(a), cy+rc*math.Sin(a)))
		}
	}
	pts = append(pts, geo.NewPoint(-hw+rc, -hh), geo.NewPoint(hw-rc, -hh))
	corner(hw-rc, -hh+rc, -90)
	pts = append(pts, geo.NewPoint(hw, hh-rc))
	corner(hw-rc, hh-rc, 0)
	pts = append(pts, geo.NewPoint(-hw+rc, hh))
	corner(-hw+rc, hh-rc, 90)
	pts = append(pts, geo.NewPoint(-hw, -hh+rc))
	corner(-hw+rc, -hh+rc, 180)
	pts[len(pts)-1] = geo.NewPoint(-hw+rc, -hh)
	return pts
}

// Length is the total arc length of the path.
func (p *Path) Length() float64 {
	return p.length
}

// Points returns a copy of the flattened polyline, e.g. for drawing the guide.
func (p *Path) Points() []Point {
	out := make([]Point, len(p.route))
	for i, pt := range p.route {
		out[i] = *pt
	}
	return out
}

// PointAt samples the point at arc length dist from the start, wrapping
// around the closed path.
func (p *Path) PointAt(dist float64) Point {
	if len(p.route) == 0 {
		return Point{}
	}
	if p.length == 0 {
		return *p.route[0]
	}
	dist = math.Mod(dist, p.length)
	if dist < 0 {
		dist += p.length
	}
	for i := 1; i < len(p.route); i++ {
		if dist > p.cum[i] {
			continue
		}
		seg := p.cum[i] - p.cum[i-1]
		if seg == 0 {
			return *p.route[i]
		}
		t := (dist - p.cum[i-1]) / seg
		a, b := p.route[i-1], p.route[i]
		return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
	}
	return *p.route[len(p.route)-1]
}
