package layer

import (
	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// Diamond renders decision-style states as a square rotated 45 degrees.
type Diamond struct{ *baseLayer }

func NewDiamond(env Env) Layer {
	return &Diamond{newBaseLayer(domain.ShapeDiamond, env, diamondBody)}
}

func diamondBody(st *domain.State, style Style) canvas.Element {
	h := st.HalfDiagonal
	return canvas.Element{
		Kind: canvas.KindPath,
		Points: []geometry.Point{
			{X: 0, Y: -h}, {X: h, Y: 0}, {X: 0, Y: h}, {X: -h, Y: 0}, {X: 0, Y: -h},
		},
		Fill:   style.BodyFill,
		Stroke: style.BodyStroke,
	}
}
