package layer

import (
	"flowedit/internal/canvas"
	"flowedit/internal/domain"
)

// Circle renders circular states.
type Circle struct{ *baseLayer }

func NewCircle(env Env) Layer {
	return &Circle{newBaseLayer(domain.ShapeCircle, env, circleBody)}
}

func circleBody(st *domain.State, style Style) canvas.Element {
	return canvas.Element{
		Kind:   canvas.KindCircle,
		Radius: st.Radius,
		Fill:   style.BodyFill,
		Stroke: style.BodyStroke,
	}
}
