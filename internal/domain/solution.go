package domain

import "time"

// Solution is the document being edited: an ordered set of states and the
// connectors between their slots.
type Solution struct {
	Name       string      `json:"name" bson:"_id" validate:"required,max=128"`
	States     []State     `json:"states" bson:"states" validate:"dive"`
	Connectors []Connector `json:"connectors" bson:"connectors" validate:"dive"`
	CreatedAt  time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// SolutionSummary is the list view of a solution.
type SolutionSummary struct {
	Name       string    `json:"name"`
	StateCount int       `json:"stateCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Connector is a directed edge from a source slot to a sink slot. Endpoints
// may live on any shape layer, including the same state.
type Connector struct {
	ID          string `json:"id" bson:"id" validate:"required"`
	SourceState string `json:"sourceState" bson:"sourceState" validate:"required"`
	SourceSlot  int    `json:"sourceSlot" bson:"sourceSlot" validate:"gte=0"`
	SinkState   string `json:"sinkState" bson:"sinkState" validate:"required"`
	SinkSlot    int    `json:"sinkSlot" bson:"sinkSlot" validate:"gte=0"`
}

func (c Connector) Source() SlotRef { return SlotRef{State: c.SourceState, Index: c.SourceSlot} }
func (c Connector) Sink() SlotRef   { return SlotRef{State: c.SinkState, Index: c.SinkSlot} }

// Touches reports whether either endpoint belongs to the named state.
func (c Connector) Touches(state string) bool {
	return c.SourceState == state || c.SinkState == state
}
