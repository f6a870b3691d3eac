package domain

import "context"

// SolutionStore persists solutions. Implementations exist for SQL databases
// and MongoDB.
type SolutionStore interface {
	CreateSolution(ctx context.Context, name string) (*Solution, error)
	LoadSolution(ctx context.Context, name string) (*Solution, error)
	ListSolutions(ctx context.Context) ([]SolutionSummary, error)
	SaveSolution(ctx context.Context, sol *Solution) error
	DeleteSolution(ctx context.Context, name string) error

	UpsertState(ctx context.Context, solution string, st *State) error
	RemoveState(ctx context.Context, solution, state string) error
	UpdateStatePosition(ctx context.Context, solution, state string, x, y float64) error
	UpdateSlotAngle(ctx context.Context, solution, state string, slot int, angle float64) error

	AddConnector(ctx context.Context, solution string, c *Connector) error
	RemoveConnector(ctx context.Context, solution, id string) error
	PruneOrphanConnectors(ctx context.Context, solution string) (int, error)
}
