package layer

import (
	"github.com/lucasb-eyer/go-colorful"

	"flowedit/internal/collision"
)

// Style holds the presentation constants the layers draw with.
type Style struct {
	SlotRadius      float64 `yaml:"slot_radius"`
	FramePadding    float64 `yaml:"frame_padding"`
	InputColor      string  `yaml:"input_color"`
	OutputColor     string  `yaml:"output_color"`
	StructuralColor string  `yaml:"structural_color"`
	BodyFill        string  `yaml:"body_fill"`
	BodyStroke      string  `yaml:"body_stroke"`
	FrameStroke     string  `yaml:"frame_stroke"`
	LabelColor      string  `yaml:"label_color"`
}

func DefaultStyle() Style {
	return Style{
		SlotRadius:      6,
		FramePadding:    collision.FramePadding,
		InputColor:      "#22c55e",
		OutputColor:     "#3b82f6",
		StructuralColor: "#9ca3af",
		BodyFill:        "#ffffff",
		BodyStroke:      "#334155",
		FrameStroke:     "#cbd5e1",
		LabelColor:      "#0f172a",
	}
}

// withDefaults fills zero fields from DefaultStyle.
func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.SlotRadius <= 0 {
		s.SlotRadius = d.SlotRadius
	}
	if s.FramePadding <= 0 {
		s.FramePadding = d.FramePadding
	}
	fill(&s.InputColor, d.InputColor)
	fill(&s.OutputColor, d.OutputColor)
	fill(&s.StructuralColor, d.StructuralColor)
	fill(&s.BodyFill, d.BodyFill)
	fill(&s.BodyStroke, d.BodyStroke)
	fill(&s.FrameStroke, d.FrameStroke)
	fill(&s.LabelColor, d.LabelColor)
	return s
}

func fill(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// LuminanceThreshold splits marker colours into light (black text) and dark
// (white text).
const LuminanceThreshold = 0.179

// Luminance is the relative luminance of a hex colour. Unparseable colours
// count as black.
func Luminance(hex string) float64 {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0
	}
	r, g, b := c.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// ContrastText picks the label colour drawn on top of a marker.
func ContrastText(marker string) string {
	if Luminance(marker) > LuminanceThreshold {
		return "#000000"
	}
	return "#ffffff"
}
