package domain

import (
	"math"

	"flowedit/internal/geometry"
)

// State is a positioned, shaped node. X and Y are the centre of the shape.
// Only the size fields matching Kind are meaningful.
type State struct {
	Name         string            `json:"name" bson:"name" validate:"required,max=128"`
	Kind         ShapeKind         `json:"kind" bson:"kind" validate:"required,oneof=circle rectangle diamond"`
	X            float64           `json:"x" bson:"x"`
	Y            float64           `json:"y" bson:"y"`
	Radius       float64           `json:"radius,omitempty" bson:"radius,omitempty" validate:"gte=0"`
	Width        float64           `json:"width,omitempty" bson:"width,omitempty" validate:"gte=0"`
	Height       float64           `json:"height,omitempty" bson:"height,omitempty" validate:"gte=0"`
	HalfDiagonal float64           `json:"halfDiagonal,omitempty" bson:"halfDiagonal,omitempty" validate:"gte=0"`
	CornerRadius float64           `json:"cornerRadius,omitempty" bson:"cornerRadius,omitempty" validate:"gte=0"`
	Slots        []Slot            `json:"slots" bson:"slots" validate:"dive"`
	Style        map[string]string `json:"style,omitempty" bson:"style,omitempty"`
}

// Shape converts the flat size fields into the geometry variant for Kind.
func (s *State) Shape() geometry.Shape {
	switch s.Kind {
	case ShapeCircle:
		return geometry.Circle{R: s.Radius}
	case ShapeRectangle:
		return geometry.Rectangle{W: s.Width, H: s.Height, CornerR: s.CornerRadius}
	case ShapeDiamond:
		return geometry.Diamond{HalfDiagonal: s.HalfDiagonal}
	}
	return nil
}

// Slot returns the slot with the given index.
func (s *State) Slot(index int) (*Slot, bool) {
	for i := range s.Slots {
		if s.Slots[i].Index == index {
			return &s.Slots[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy; the editor hands copies out so callers cannot
// mutate arena records behind its back.
func (s *State) Clone() *State {
	c := *s
	c.Slots = append([]Slot(nil), s.Slots...)
	if s.Style != nil {
		c.Style = make(map[string]string, len(s.Style))
		for k, v := range s.Style {
			c.Style[k] = v
		}
	}
	return &c
}

// StatePatch carries the optional fields of an update. Nil fields are left
// unchanged.
type StatePatch struct {
	Kind         *ShapeKind        `json:"kind,omitempty"`
	X            *float64          `json:"x,omitempty"`
	Y            *float64          `json:"y,omitempty"`
	Radius       *float64          `json:"radius,omitempty"`
	Width        *float64          `json:"width,omitempty"`
	Height       *float64          `json:"height,omitempty"`
	HalfDiagonal *float64          `json:"halfDiagonal,omitempty"`
	CornerRadius *float64          `json:"cornerRadius,omitempty"`
	Style        map[string]string `json:"style,omitempty"`
}

// Apply writes the non-nil fields of p onto s.
func (p StatePatch) Apply(s *State) {
	if p.Kind != nil {
		s.Kind = *p.Kind
	}
	if p.X != nil {
		s.X = *p.X
	}
	if p.Y != nil {
		s.Y = *p.Y
	}
	if p.Radius != nil {
		s.Radius = *p.Radius
	}
	if p.Width != nil {
		s.Width = *p.Width
	}
	if p.Height != nil {
		s.Height = *p.Height
	}
	if p.HalfDiagonal != nil {
		s.HalfDiagonal = *p.HalfDiagonal
	}
	if p.CornerRadius != nil {
		s.CornerRadius = *p.CornerRadius
	}
	if p.Style != nil {
		s.Style = p.Style
	}
}

// Slot is a connection anchor on the perimeter of its owning state. Angle is
// a fraction of the perimeter length expressed in degrees, not a polar angle.
type Slot struct {
	State  string  `json:"state" bson:"-"`
	Index  int     `json:"index" bson:"index" validate:"gte=0"`
	Input  bool    `json:"input" bson:"input"`
	Output bool    `json:"output" bson:"output"`
	Angle  float64 `json:"angle" bson:"angle" validate:"gte=0,lt=360"`
	Color  string  `json:"color,omitempty" bson:"color,omitempty" validate:"omitempty,hexcolor"`
	Label  string  `json:"label,omitempty" bson:"label,omitempty" validate:"max=32"`
}

// Ref identifies the slot within its solution.
func (s Slot) Ref() SlotRef {
	return SlotRef{State: s.State, Index: s.Index}
}

// SlotRef is the stable key of a slot: owning state name plus slot index.
type SlotRef struct {
	State string `json:"state"`
	Index int    `json:"index"`
}

// NormalizeAngle folds any angle into [0,360).
func NormalizeAngle(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
