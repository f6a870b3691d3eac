package canvas

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Element ids. Names are path-escaped, so a state called "a/body" can never
// share an id with a part of state "a".

func LayerID(kind string) string          { return "layer/" + kind }
func LayerNodesID(kind string) string     { return "layer/" + kind + "/nodes" }
func LayerConnectorsID(kind string) string { return "layer/" + kind + "/connectors" }

func StateID(name string) string      { return "state/" + url.PathEscape(name) }
func StateBodyID(name string) string  { return StateID(name) + "/body" }
func StateFrameID(name string) string { return StateID(name) + "/frame" }
func StateGuideID(name string) string { return StateID(name) + "/guide" }
func StateLabelID(name string) string { return StateID(name) + "/label" }

func SlotID(state string, index int) string {
	return fmt.Sprintf("slot/%s/%d", url.PathEscape(state), index)
}

func SlotLabelID(state string, index int) string {
	return fmt.Sprintf("slotlabel/%s/%d", url.PathEscape(state), index)
}

func ConnectorID(id string) string { return "connector/" + url.PathEscape(id) }

const TentativeConnectorID = "tentative/connector"

// TargetKind classifies the element under the pointer.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetBody
	TargetFrame
	TargetGuide
	TargetSlot
	TargetConnector
)

func (k TargetKind) String() string {
	switch k {
	case TargetBody:
		return "body"
	case TargetFrame:
		return "frame"
	case TargetGuide:
		return "guide"
	case TargetSlot:
		return "slot"
	case TargetConnector:
		return "connector"
	}
	return "none"
}

// Target is a decoded element id.
type Target struct {
	Kind      TargetKind
	State     string
	Slot      int
	Connector string
}

// IsNode reports whether the target is part of a node rather than a slot.
func (t Target) IsNode() bool {
	return t.Kind == TargetBody || t.Kind == TargetFrame || t.Kind == TargetGuide
}

// ParseTarget decodes an element id produced by the helpers above. Ids that
// do not address an interactive element yield TargetNone. A slot label
// sits on top of its marker, so it addresses the slot.
func ParseTarget(id string) Target {
	switch {
	case strings.HasPrefix(id, "slot/"):
		return parseSlot(strings.TrimPrefix(id, "slot/"))
	case strings.HasPrefix(id, "slotlabel/"):
		return parseSlot(strings.TrimPrefix(id, "slotlabel/"))
	case strings.HasPrefix(id, "state/"):
		name, part, ok := strings.Cut(strings.TrimPrefix(id, "state/"), "/")
		if !ok {
			return Target{}
		}
		name, err := url.PathUnescape(name)
		if err != nil || name == "" {
			return Target{}
		}
		switch part {
		case "body", "label":
			return Target{Kind: TargetBody, State: name}
		case "frame":
			return Target{Kind: TargetFrame, State: name}
		case "guide":
			return Target{Kind: TargetGuide, State: name}
		}
	case strings.HasPrefix(id, "connector/"):
		cid, err := url.PathUnescape(strings.TrimPrefix(id, "connector/"))
		if err != nil {
			return Target{}
		}
		return Target{Kind: TargetConnector, Connector: cid}
	}
	return Target{}
}

// parseSlot decodes "<state>/<index>".
func parseSlot(rest string) Target {
	name, index, ok := strings.Cut(rest, "/")
	if !ok {
		return Target{}
	}
	idx, err := strconv.Atoi(index)
	if err != nil {
		return Target{}
	}
	name, err = url.PathUnescape(name)
	if err != nil || name == "" {
		return Target{}
	}
	return Target{Kind: TargetSlot, State: name, Slot: idx}
}
