package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"flowedit/internal/domain"
)

const DefaultMaintenanceSchedule = "@every 10m"

var ErrJobRunning = errors.New("job already running")

const pruneJob = "prune-connectors"

// PruneReport is the payload of EventConnectorsPruned.
type PruneReport struct {
	Solutions int `json:"solutions"`
	Removed   int `json:"removed"`
}

// Maintenance periodically removes connectors whose endpoint slots no longer
// exist in the store.
type Maintenance struct {
	store    domain.SolutionStore
	schedule string
	emitter  EventEmitter
	log      *zap.Logger

	guard *JobGuard
	cron  *cron.Cron
}

func NewMaintenance(store domain.SolutionStore, schedule string, emitter EventEmitter, log *zap.Logger) *Maintenance {
	if log == nil {
		log = zap.NewNop()
	}
	if schedule == "" {
		schedule = DefaultMaintenanceSchedule
	}
	return &Maintenance{store: store, schedule: schedule, emitter: emitter, log: log.Named("maintenance"), guard: NewJobGuard()}
}

// SetGuard shares g with the other jobs on the same store.
func (m *Maintenance) SetGuard(g *JobGuard) {
	if g != nil {
		m.guard = g
	}
}

// Start schedules the sweep. An invalid schedule is an error.
func (m *Maintenance) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() {
		if _, err := m.RunOnce(ctx); err != nil && !errors.Is(err, ErrJobRunning) {
			m.log.Error("prune connectors", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", m.schedule, err)
	}
	c.Start()
	m.cron = c
	m.log.Info("maintenance scheduled", zap.String("schedule", m.schedule))
	return nil
}

// RunOnce sweeps every solution. A sweep or import already in progress
// makes it return ErrJobRunning.
func (m *Maintenance) RunOnce(ctx context.Context) (PruneReport, error) {
	if !m.guard.TryLock(pruneJob, AllSolutions) {
		return PruneReport{}, ErrJobRunning
	}
	defer m.guard.Unlock(pruneJob, AllSolutions)

	list, err := m.store.ListSolutions(ctx)
	if err != nil {
		return PruneReport{}, fmt.Errorf("prune connectors: %w", err)
	}
	var report PruneReport
	for _, sum := range list {
		n, err := m.store.PruneOrphanConnectors(ctx, sum.Name)
		if err != nil {
			m.log.Warn("prune solution", zap.String("solution", sum.Name), zap.Error(err))
			continue
		}
		report.Solutions++
		report.Removed += n
		if n > 0 {
			m.log.Info("pruned connectors", zap.String("solution", sum.Name), zap.Int("removed", n))
		}
	}
	if report.Removed > 0 && m.emitter != nil {
		m.emitter.Emit(ctx, EventConnectorsPruned, report)
	}
	return report, nil
}

// Stop halts the schedule and waits for a running sweep.
func (m *Maintenance) Stop(ctx context.Context) {
	if m.cron != nil {
		<-m.cron.Stop().Done()
		m.cron = nil
	}
	m.guard.WaitAll(ctx)
}
