package layer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/domain"
	"flowedit/internal/geometry"
)

// Placement is where and how one slot is drawn, in its state's local space.
type Placement struct {
	Slot      domain.Slot
	Point     geometry.Point
	Label     string
	Color     string
	TextColor string
}

// Direction names the slot's role for the data attributes.
func Direction(s domain.Slot) string {
	switch {
	case s.Input:
		return "input"
	case s.Output:
		return "output"
	}
	return "structural"
}

// PlaceSlots sorts slots by index and places each on the path. Default labels
// number inputs and outputs separately from 1 in index order; an input flag
// wins over an output flag.
func PlaceSlots(path *geometry.Path, slots []domain.Slot, style Style) []Placement {
	sorted := append([]domain.Slot(nil), slots...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	out := make([]Placement, 0, len(sorted))
	var inputs, outputs int
	for _, s := range sorted {
		p := Placement{Slot: s, Point: geometry.PointAtFraction(path, s.Angle)}
		switch {
		case s.Input:
			inputs++
			p.Label, p.Color = "I"+strconv.Itoa(inputs), style.InputColor
		case s.Output:
			outputs++
			p.Label, p.Color = "O"+strconv.Itoa(outputs), style.OutputColor
		default:
			p.Color = style.StructuralColor
		}
		if s.Label != "" {
			p.Label = s.Label
		}
		if s.Color != "" {
			p.Color = s.Color
		}
		p.TextColor = ContrastText(p.Color)
		out = append(out, p)
	}
	return out
}

// OverCapacity reports whether count markers of radius r cannot fit on a
// perimeter of the given length without overlapping.
func OverCapacity(r float64, count int, perimeter float64) bool {
	return r*float64(count) > perimeter/5
}

// layoutSlots redraws every slot marker and label of st. It needs the guide
// path to be on the surface; without it the pass is skipped and the next
// render retries.
func (l *baseLayer) layoutSlots(s canvas.Surface, st *domain.State) {
	if _, ok := s.Element(canvas.StateGuideID(st.Name)); !ok {
		l.log.Debug("guide missing, slot layout skipped", zap.String("state", st.Name))
		return
	}
	path := l.perimeter(st)
	if OverCapacity(l.style.SlotRadius, len(st.Slots), path.Length()) {
		l.log.Warn("slots exceed perimeter capacity",
			zap.String("state", st.Name),
			zap.Int("slots", len(st.Slots)),
			zap.Float64("perimeter", path.Length()))
	}

	parent := canvas.StateID(st.Name)
	keep := make(map[string]bool, 2*len(st.Slots))
	for _, p := range PlaceSlots(path, st.Slots, l.style) {
		id := canvas.SlotID(st.Name, p.Slot.Index)
		lid := canvas.SlotLabelID(st.Name, p.Slot.Index)
		keep[id], keep[lid] = true, true
		s.Put(canvas.Element{
			ID:        id,
			Parent:    parent,
			Kind:      canvas.KindCircle,
			Translate: p.Point,
			Radius:    l.style.SlotRadius,
			Fill:      p.Color,
			Stroke:    l.style.BodyStroke,
			Data: map[string]string{
				"state":     st.Name,
				"index":     strconv.Itoa(p.Slot.Index),
				"direction": Direction(p.Slot),
				"angle":     fmt.Sprintf("%g", p.Slot.Angle),
			},
		})
		s.Put(canvas.Element{
			ID:        lid,
			Parent:    parent,
			Kind:      canvas.KindText,
			Translate: p.Point,
			Text:      p.Label,
			Fill:      p.TextColor,
		})
	}
	for _, c := range s.Children(parent) {
		if keep[c.ID] {
			continue
		}
		if strings.HasPrefix(c.ID, "slot/") || strings.HasPrefix(c.ID, "slotlabel/") {
			s.Remove(c.ID)
		}
	}
}
