package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flowedit/internal/domain"
	"flowedit/internal/service"
)

// ── Solutions ──────────────────────────────────────────────

func (a *App) ListSolutions() ([]domain.SolutionSummary, error) {
	return a.solutions.List(a.ctx)
}

func (a *App) CreateSolution(name string) (SceneView, error) {
	if _, err := a.solutions.Create(a.ctx, name); err != nil {
		return SceneView{}, err
	}
	a.rememberSolution(name)
	a.sceneChanged()
	return a.Scene(), nil
}

func (a *App) OpenSolution(name string) (SceneView, error) {
	if _, err := a.solutions.Open(a.ctx, name); err != nil {
		return SceneView{}, err
	}
	a.rememberSolution(name)
	a.sceneChanged()
	return a.Scene(), nil
}

func (a *App) DeleteSolution(name string) error {
	if err := a.solutions.Delete(a.ctx, name); err != nil {
		return err
	}
	if a.settings.LastSolution(a.ctx) == name {
		a.rememberSolution("")
	}
	a.sceneChanged()
	return nil
}

// ImportSolution reads a solution file from disk and stores it.
func (a *App) ImportSolution(path string) (string, error) {
	sol, err := service.ReadSolutionFile(path)
	if err != nil {
		return "", err
	}
	if err := a.solutions.Import(a.ctx, sol); err != nil {
		return "", err
	}
	a.sceneChanged()
	return sol.Name, nil
}

// GetSolution returns the active solution as stored in the editor.
func (a *App) GetSolution() (*domain.Solution, error) {
	return a.solutions.Snapshot()
}

func (a *App) Overlaps() ([]OverlapView, error) {
	pairs, err := a.solutions.Overlaps()
	if err != nil {
		return nil, err
	}
	out := make([]OverlapView, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, OverlapView{A: p[0], B: p[1]})
	}
	return out, nil
}

func (a *App) rememberSolution(name string) {
	if err := a.settings.SetLastSolution(context.Background(), name); err != nil {
		a.log.Warn("remember solution", zap.String("solution", name), zap.Error(err))
	}
}

// ── States ─────────────────────────────────────────────────

func (a *App) AddState(st domain.State, autoPlace bool) (*domain.State, error) {
	added, err := a.solutions.AddState(st, autoPlace)
	if err != nil {
		return nil, err
	}
	a.sceneChanged()
	return added, nil
}

func (a *App) UpdateState(name string, patch domain.StatePatch) error {
	defer a.sceneChanged()
	return a.solutions.UpdateState(name, patch)
}

func (a *App) MoveState(name string, x, y float64) (MoveResult, error) {
	res, err := a.solutions.MoveState(name, x, y)
	if err != nil {
		return MoveResult{}, err
	}
	a.sceneChanged()
	return MoveResult{X: res.Position.X, Y: res.Position.Y, Outcome: string(res.Outcome), Neighbor: res.Neighbor}, nil
}

func (a *App) DeleteState(name string) error {
	defer a.sceneChanged()
	return a.solutions.DeleteState(name)
}

// ── Slots and connectors ───────────────────────────────────

func (a *App) AddSlot(slot domain.Slot) error {
	defer a.sceneChanged()
	return a.solutions.AddSlot(slot)
}

func (a *App) UpdateSlot(state string, index int, updated domain.Slot) error {
	defer a.sceneChanged()
	return a.solutions.UpdateSlot(domain.SlotRef{State: state, Index: index}, updated)
}

func (a *App) DeleteSlot(state string, index int) error {
	defer a.sceneChanged()
	return a.solutions.DeleteSlot(domain.SlotRef{State: state, Index: index})
}

func (a *App) Connect(c domain.Connector) (domain.Connector, error) {
	added, err := a.solutions.Connect(c)
	if err != nil {
		return c, err
	}
	a.sceneChanged()
	return added, nil
}

func (a *App) Disconnect(id string) error {
	defer a.sceneChanged()
	return a.solutions.Disconnect(id)
}

// ── Approvals ──────────────────────────────────────────────

// ApproveAction resolves a pending action requested by the MCP server.
func (a *App) ApproveAction(id string) error {
	return a.resolveApproval(id, true)
}

func (a *App) RejectAction(id string) error {
	return a.resolveApproval(id, false)
}

func (a *App) resolveApproval(id string, approved bool) error {
	if a.approvals == nil {
		return fmt.Errorf("resolve approval %s: approvals need the sql storage driver", id)
	}
	return a.approvals.Resolve(a.ctx, id, approved)
}

func (a *App) PendingApprovals() ([]PendingApproval, error) {
	if a.approvals == nil {
		return nil, nil
	}
	list, err := a.approvals.Pending(a.ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PendingApproval, 0, len(list))
	for _, ap := range list {
		out = append(out, toPendingApproval(ap))
	}
	return out, nil
}
