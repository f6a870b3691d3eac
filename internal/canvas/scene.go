// Package canvas is the drawing surface the shape layers render into: an
// id-addressed element tree the frontend mirrors.
package canvas

import (
	"sort"
	"sync"

	"flowedit/internal/geometry"
)

// ElementKind is the primitive an element draws.
type ElementKind string

const (
	KindGroup  ElementKind = "group"
	KindCircle ElementKind = "circle"
	KindRect   ElementKind = "rect"
	KindPath   ElementKind = "path"
	KindCurve  ElementKind = "curve" // cubic: start, control, control, end
	KindText   ElementKind = "text"
)

// Element is one node of the scene graph. Points are in the parent's
// coordinate space shifted by Translate.
type Element struct {
	ID        string            `json:"id"`
	Parent    string            `json:"parent,omitempty"`
	Kind      ElementKind       `json:"kind"`
	Translate geometry.Point    `json:"translate"`
	Points    []geometry.Point  `json:"points,omitempty"`
	Width     float64           `json:"width,omitempty"`
	Height    float64           `json:"height,omitempty"`
	Radius    float64           `json:"radius,omitempty"`
	Fill      string            `json:"fill,omitempty"`
	Stroke    string            `json:"stroke,omitempty"`
	Text      string            `json:"text,omitempty"`
	Dashed    bool              `json:"dashed,omitempty"`
	Hidden    bool              `json:"hidden,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	order     int
}

func (e *Element) clone() Element {
	c := *e
	c.Points = append([]geometry.Point(nil), e.Points...)
	if e.Data != nil {
		c.Data = make(map[string]string, len(e.Data))
		for k, v := range e.Data {
			c.Data[k] = v
		}
	}
	return c
}

// Surface is what a shape layer needs from the drawing surface.
type Surface interface {
	// Put inserts or replaces an element. Replacing keeps its z-order.
	Put(e Element)
	// Update mutates an existing element in place; false if it is absent.
	Update(id string, fn func(e *Element)) bool
	// Element returns a copy of the element.
	Element(id string) (Element, bool)
	// Remove deletes the element and all of its descendants.
	Remove(id string)
	// Children lists the direct children of id in z-order.
	Children(id string) []Element
}

// Scene is the in-memory Surface. It is safe for concurrent use so the
// frontend bridge can snapshot while the engine renders.
type Scene struct {
	mu       sync.RWMutex
	elements map[string]*Element
	seq      int
	version  uint64
}

func NewScene() *Scene {
	return &Scene{elements: make(map[string]*Element)}
}

func (s *Scene) Put(e Element) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.elements[e.ID]; ok {
		e.order = old.order
	} else {
		s.seq++
		e.order = s.seq
	}
	stored := e.clone()
	stored.order = e.order
	s.elements[e.ID] = &stored
	s.version++
}

func (s *Scene) Update(id string, fn func(e *Element)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elements[id]
	if !ok {
		return false
	}
	fn(e)
	e.ID = id
	s.version++
	return true
}

func (s *Scene) Element(id string) (Element, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elements[id]
	if !ok {
		return Element{}, false
	}
	return e.clone(), true
}

func (s *Scene) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	s.version++
}

func (s *Scene) removeLocked(id string) {
	delete(s.elements, id)
	for cid, e := range s.elements {
		if e.Parent == id {
			s.removeLocked(cid)
		}
	}
}

func (s *Scene) Children(id string) []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Element
	for _, e := range s.elements {
		if e.Parent == id {
			out = append(out, e.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Version increases on every mutation; the frontend bridge uses it to skip
// unchanged snapshots.
func (s *Scene) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns every element in z-order.
func (s *Scene) Snapshot() []Element {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Element, 0, len(s.elements))
	for _, e := range s.elements {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// Origin returns the absolute translation of id: the sum of its own and its
// ancestors' translations.
func Origin(s Surface, id string) (geometry.Point, bool) {
	var p geometry.Point
	e, ok := s.Element(id)
	if !ok {
		return p, false
	}
	for {
		p.X += e.Translate.X
		p.Y += e.Translate.Y
		if e.Parent == "" {
			return p, true
		}
		if e, ok = s.Element(e.Parent); !ok {
			return p, true
		}
	}
}
