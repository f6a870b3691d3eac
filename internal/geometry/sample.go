package geometry

import "math"

// PointAtFraction maps deg to the arc length Length*deg/360 and samples the
// path there. Slots are therefore spaced evenly by perimeter distance, not by
// polar angle.
func PointAtFraction(p *Path, deg float64) Point {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return p.PointAt(p.Length() * deg / 360)
}

// ClosestPoint returns the nearest of SweepSamples evenly spaced perimeter
// samples to (x, y). Callers get roughly 1/360th of the perimeter accuracy.
func ClosestPoint(p *Path, x, y float64) Point {
	pt, _ := Nearest(p, x, y)
	return pt
}

// AngleForPoint is the fraction angle, in whole degrees, of the sample
// nearest to (x, y).
func AngleForPoint(p *Path, x, y float64) float64 {
	_, deg := Nearest(p, x, y)
	return deg
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Nearest runs the sweep once and returns both the closest sample and its
// fraction angle.
func Nearest(p *Path, x, y float64) (Point, float64) {
	best, bestDeg := Point{}, 0.0
	bestDist := math.Inf(1)
	for i := 0; i < SweepSamples; i++ {
		deg := float64(i) * 360 / SweepSamples
		pt := PointAtFraction(p, deg)
		d := (pt.X-x)*(pt.X-x) + (pt.Y-y)*(pt.Y-y)
		if d < bestDist {
			best, bestDeg, bestDist = pt, deg, d
		}
	}
	return best, bestDeg
}
