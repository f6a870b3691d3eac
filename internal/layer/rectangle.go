package layer

import (
	"math"

	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// Rectangle renders rectangular states, optionally with rounded corners.
type Rectangle struct{ *baseLayer }

func NewRectangle(env Env) Layer {
	return &Rectangle{newBaseLayer(domain.ShapeRectangle, env, rectangleBody)}
}

func rectangleBody(st *domain.State, style Style) canvas.Element {
	return canvas.Element{
		Kind:      canvas.KindRect,
		Translate: geometry.Point{X: -st.Width / 2, Y: -st.Height / 2},
		Width:     st.Width,
		Height:    st.Height,
		Radius:    math.Min(st.CornerRadius, math.Min(st.Width, st.Height)/2),
		Fill:      style.BodyFill,
		Stroke:    style.BodyStroke,
	}
}
