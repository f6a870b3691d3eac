package collision

import (
	"math"

	"oss.terrastruct.com/d2/lib/geo"
)

const (
	GridSize = 30.0
	Padding  = 30.0 // clearance kept around existing frames
	MaxRowW  = 1800.0
)

// Placer finds free canvas positions for nodes created without explicit
// coordinates (agent tools, imports).
type Placer struct {
	gridSize float64
	padding  float64
	maxRowW  float64
}

func NewPlacer() *Placer {
	return &Placer{
		gridSize: GridSize,
		padding:  Padding,
		maxRowW:  MaxRowW,
	}
}

// snap rounds v to the nearest grid point.
func (p *Placer) snap(v float64) float64 {
	return math.Round(v/p.gridSize) * p.gridSize
}

// NextCenter scans rows top to bottom, columns left to right, and returns
// the first grid centre where a frame of size (w, h) clears every existing
// frame by the padding.
func (p *Placer) NextCenter(existing []Body, w, h float64) (float64, float64) {
	if len(existing) == 0 {
		return p.snap(w / 2), p.snap(h / 2)
	}

	for y := 0.0; y < 100000; y += p.gridSize {
		for x := 0.0; x < p.maxRowW; x += p.gridSize {
			cx, cy := p.snap(x+w/2), p.snap(y+h/2)
			candidate := geo.NewBox(geo.NewPoint(cx-w/2-p.padding, cy-h/2-p.padding), w+2*p.padding, h+2*p.padding)
			if free("", candidate, existing) {
				return cx, cy
			}
		}
	}

	// Fallback: below everything.
	maxY := 0.0
	for _, b := range existing {
		if bottom := b.Frame.TopLeft.Y + b.Frame.Height; bottom > maxY {
			maxY = bottom
		}
	}
	return p.snap(w / 2), p.snap(maxY + p.padding + h/2)
}
