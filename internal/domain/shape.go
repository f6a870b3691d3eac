package domain

import (
	"fmt"
	"strings"
)

// ShapeKind is the closed set of node shapes. Each kind is served by exactly
// one shape layer per solution.
type ShapeKind string

const (
	ShapeCircle    ShapeKind = "circle"
	ShapeRectangle ShapeKind = "rectangle"
	ShapeDiamond   ShapeKind = "diamond"
)

// ShapeKinds lists every supported kind in render order.
var ShapeKinds = []ShapeKind{ShapeCircle, ShapeRectangle, ShapeDiamond}

// ParseShapeKind maps a shape label to its kind.
func ParseShapeKind(label string) (ShapeKind, error) {
	switch k := ShapeKind(strings.ToLower(strings.TrimSpace(label))); k {
	case ShapeCircle, ShapeRectangle, ShapeDiamond:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedShape, label)
}

func (k ShapeKind) Valid() bool {
	_, err := ParseShapeKind(string(k))
	return err == nil
}
