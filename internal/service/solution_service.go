package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/collision"
	"flowedit/internal/domain"
	"flowedit/internal/engine"
	"flowedit/internal/layer"
)

// ─────────────────────────────────────────────────────────────
// Solution Service: store-backed editing of the active solution
// ─────────────────────────────────────────────────────────────

var ErrNoActiveSolution = errors.New("no active solution")

type SolutionOptions struct {
	Store    domain.SolutionStore
	Bridge   *AsyncBridge
	Metrics  *Metrics
	Emitter  EventEmitter
	Provider *canvas.Provider
	Registry *layer.Registry
	Style    layer.Style
	Log      *zap.Logger
}

// SolutionService owns the one open Editor and keeps it in step with the
// store.
type SolutionService struct {
	store    domain.SolutionStore
	bridge   *AsyncBridge
	metrics  *Metrics
	emitter  EventEmitter
	provider *canvas.Provider
	registry *layer.Registry
	style    layer.Style
	log      *zap.Logger
	validate *validator.Validate
	placer   *collision.Placer

	mu     sync.Mutex
	editor *engine.Editor
}

func NewSolutionService(opts SolutionOptions) *SolutionService {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &SolutionService{
		store:    opts.Store,
		bridge:   opts.Bridge,
		metrics:  opts.Metrics,
		emitter:  opts.Emitter,
		provider: opts.Provider,
		registry: opts.Registry,
		style:    opts.Style,
		log:      log.Named("solutions"),
		validate: validator.New(),
		placer:   collision.NewPlacer(),
	}
}

func (s *SolutionService) emit(event string, data any) {
	if s.emitter != nil {
		s.emitter.Emit(context.Background(), event, data)
	}
}

// ── Solutions ──────────────────────────────────────────────

func (s *SolutionService) List(ctx context.Context) ([]domain.SolutionSummary, error) {
	return s.store.ListSolutions(ctx)
}

func (s *SolutionService) Create(ctx context.Context, name string) (*engine.Editor, error) {
	if err := s.validate.Var(name, "required,max=128"); err != nil {
		return nil, fmt.Errorf("create solution: invalid name: %w", err)
	}
	if _, err := s.store.CreateSolution(ctx, name); err != nil {
		return nil, err
	}
	return s.Open(ctx, name)
}

// Open loads a solution and makes it the active one. The previous editor is
// closed and a fresh scene is mounted for the new one.
func (s *SolutionService) Open(ctx context.Context, name string) (*engine.Editor, error) {
	if s.bridge != nil {
		if err := s.bridge.Flush(ctx); err != nil {
			return nil, fmt.Errorf("open solution %q: %w", name, err)
		}
	}
	sol, err := s.store.LoadSolution(ctx, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editor != nil {
		s.editor.Close()
		s.editor = nil
	}
	if s.provider != nil {
		s.provider.Mount(canvas.NewScene())
	}
	ed := engine.New(name, engine.Options{
		Registry:    s.registry,
		Persistence: s.persistence(),
		Overlay:     s.overlay(),
		Metrics:     s.editorMetrics(),
		Style:       s.style,
		Provider:    s.provider,
		Log:         s.log.Named("editor"),
	})
	if err := ed.Load(sol); err != nil {
		ed.Close()
		return nil, fmt.Errorf("open solution %q: %w", name, err)
	}
	s.editor = ed
	s.log.Info("solution opened", zap.String("solution", name), zap.Int("states", len(sol.States)),
		zap.Int("connectors", len(sol.Connectors)))
	s.emit(EventSolutionOpened, name)
	return ed, nil
}

// Reload re-reads the active solution from the store.
func (s *SolutionService) Reload(ctx context.Context) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	if _, err := s.Open(ctx, ed.Solution()); err != nil {
		return err
	}
	s.emit(EventSolutionReloaded, ed.Solution())
	return nil
}

func (s *SolutionService) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	if s.editor != nil && s.editor.Solution() == name {
		s.editor.Close()
		s.editor = nil
	}
	s.mu.Unlock()
	if s.bridge != nil {
		if err := s.bridge.Flush(ctx); err != nil {
			return fmt.Errorf("delete solution %q: %w", name, err)
		}
	}
	return s.store.DeleteSolution(ctx, name)
}

// Import validates sol and stores it whole, replacing any solution with the
// same name. An open editor on that solution is reloaded.
func (s *SolutionService) Import(ctx context.Context, sol *domain.Solution) error {
	for i := range sol.States {
		for j := range sol.States[i].Slots {
			sl := &sol.States[i].Slots[j]
			sl.State = sol.States[i].Name
			sl.Angle = domain.NormalizeAngle(sl.Angle)
		}
	}
	if err := s.validate.Struct(sol); err != nil {
		return fmt.Errorf("import solution %q: %w", sol.Name, err)
	}
	if s.bridge != nil {
		if err := s.bridge.Flush(ctx); err != nil {
			return fmt.Errorf("import solution %q: %w", sol.Name, err)
		}
	}
	if err := s.store.SaveSolution(ctx, sol); err != nil {
		return err
	}
	if ed, err := s.Active(); err == nil && ed.Solution() == sol.Name {
		if err := s.Reload(ctx); err != nil {
			return err
		}
	}
	s.emit(EventSolutionImported, sol.Name)
	return nil
}

// Active returns the open editor.
func (s *SolutionService) Active() (*engine.Editor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editor == nil {
		return nil, ErrNoActiveSolution
	}
	return s.editor, nil
}

// Get returns a solution without opening it. The active one comes from the
// editor, anything else from the store.
func (s *SolutionService) Get(ctx context.Context, name string) (*domain.Solution, error) {
	if ed, err := s.Active(); err == nil && ed.Solution() == name {
		return ed.Snapshot(), nil
	}
	if s.bridge != nil {
		if err := s.bridge.Flush(ctx); err != nil {
			return nil, fmt.Errorf("get solution %q: %w", name, err)
		}
	}
	return s.store.LoadSolution(ctx, name)
}

func (s *SolutionService) Snapshot() (*domain.Solution, error) {
	ed, err := s.Active()
	if err != nil {
		return nil, err
	}
	return ed.Snapshot(), nil
}

func (s *SolutionService) Overlaps() ([][2]string, error) {
	ed, err := s.Active()
	if err != nil {
		return nil, err
	}
	return ed.Overlaps(), nil
}

// Close shuts the editor and drains pending writes.
func (s *SolutionService) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.editor != nil {
		s.editor.Close()
		s.editor = nil
	}
	s.mu.Unlock()
	if s.bridge != nil {
		return s.bridge.Close(ctx)
	}
	return nil
}

// ── States ─────────────────────────────────────────────────

// AddState validates st and adds it to the active solution. With autoPlace
// the position is replaced by the first free grid cell.
func (s *SolutionService) AddState(st domain.State, autoPlace bool) (*domain.State, error) {
	ed, err := s.Active()
	if err != nil {
		return nil, err
	}
	for i := range st.Slots {
		st.Slots[i].State = st.Name
		st.Slots[i].Angle = domain.NormalizeAngle(st.Slots[i].Angle)
	}
	if err := s.validate.Struct(st); err != nil {
		return nil, fmt.Errorf("add state: %w", err)
	}
	if autoPlace {
		w, h, err := ed.FrameSize(&st)
		if err != nil {
			return nil, fmt.Errorf("add state: %w", err)
		}
		st.X, st.Y = s.placer.NextCenter(ed.Bodies(), w, h)
	}
	if err := ed.AddState(&st); err != nil {
		return nil, err
	}
	added, _ := ed.State(st.Name)
	return added, nil
}

func (s *SolutionService) UpdateState(name string, patch domain.StatePatch) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	cur, ok := ed.State(name)
	if !ok {
		return fmt.Errorf("update state %q: %w", name, domain.ErrStateNotFound)
	}
	patch.Apply(cur)
	if err := s.validate.Struct(cur); err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return ed.UpdateState(name, patch)
}

func (s *SolutionService) MoveState(name string, x, y float64) (collision.Result, error) {
	ed, err := s.Active()
	if err != nil {
		return collision.Result{}, err
	}
	return ed.MoveState(name, x, y)
}

func (s *SolutionService) DeleteState(name string) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	return ed.RemoveState(name)
}

// ── Slots and connectors ───────────────────────────────────

func (s *SolutionService) AddSlot(slot domain.Slot) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	slot.Angle = domain.NormalizeAngle(slot.Angle)
	if err := s.validate.Struct(slot); err != nil {
		return fmt.Errorf("add slot: %w", err)
	}
	return ed.AddSlot(slot)
}

// UpdateSlot replaces the slot at ref with updated; updated may carry a new
// index.
func (s *SolutionService) UpdateSlot(ref domain.SlotRef, updated domain.Slot) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	st, ok := ed.State(ref.State)
	if !ok {
		return fmt.Errorf("update slot: state %q: %w", ref.State, domain.ErrStateNotFound)
	}
	old, ok := st.Slot(ref.Index)
	if !ok {
		return fmt.Errorf("update slot %s/%d: %w", ref.State, ref.Index, domain.ErrSlotNotFound)
	}
	updated.State = ref.State
	updated.Angle = domain.NormalizeAngle(updated.Angle)
	if err := s.validate.Struct(updated); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return ed.UpdateSlot(*old, updated)
}

func (s *SolutionService) DeleteSlot(ref domain.SlotRef) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	return ed.RemoveSlot(ref)
}

// Connect adds a connector; an empty ID is generated.
func (s *SolutionService) Connect(c domain.Connector) (domain.Connector, error) {
	ed, err := s.Active()
	if err != nil {
		return c, err
	}
	if err := s.validate.StructExcept(c, "ID"); err != nil {
		return c, fmt.Errorf("connect slots: %w", err)
	}
	return ed.AddConnector(c)
}

func (s *SolutionService) Disconnect(id string) error {
	ed, err := s.Active()
	if err != nil {
		return err
	}
	return ed.RemoveConnector(id)
}

// ── Editor wiring ──────────────────────────────────────────

func (s *SolutionService) persistence() layer.Persistence {
	if s.bridge == nil {
		return nil
	}
	return s.bridge
}

func (s *SolutionService) editorMetrics() layer.Metrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

func (s *SolutionService) overlay() layer.Overlay {
	return layer.Overlay{
		OnStateOverlayClick: func(state string) {
			s.emit(EventOverlayClick, StatePayload{State: state})
		},
		OnStateDragStart: func(state string) {
			s.emit(EventOverlayDragStart, StatePayload{State: state})
		},
		OnStateDragEnd: func(state string, x, y float64) {
			s.emit(EventOverlayDragEnd, StatePayload{State: state, X: x, Y: y})
		},
		OnStateContextMenu: func(state string, x, y float64) {
			s.emit(EventStateContextMenu, StatePayload{State: state, X: x, Y: y})
		},
		OnSlotContextMenu: func(ref domain.SlotRef, x, y float64) {
			s.emit(EventSlotContextMenu, SlotPayload{State: ref.State, Index: ref.Index, X: x, Y: y})
		},
	}
}
