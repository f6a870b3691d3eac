package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"flowedit/internal/domain"
	"flowedit/internal/layer"
)

// ─────────────────────────────────────────────────────────────
// AsyncBridge: fire-and-forget persistence for the editor
// ─────────────────────────────────────────────────────────────

// BreakerConfig tunes the circuit breaker in front of the store.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold"`
	MinRequests      uint32        `yaml:"min_requests"`
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// BridgeConfig configures an AsyncBridge.
type BridgeConfig struct {
	QueueSize int
	// OpTimeout bounds each store call.
	OpTimeout time.Duration
	Breaker   BreakerConfig
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{QueueSize: 256, OpTimeout: 5 * time.Second, Breaker: DefaultBreakerConfig()}
}

// PersistFailure is the payload of EventPersistenceFailed.
type PersistFailure struct {
	Op       string `json:"op"`
	Solution string `json:"solution"`
	Error    string `json:"error"`
}

type persistOp struct {
	name     string
	solution string
	run      func(ctx context.Context, store domain.SolutionStore) error
	barrier  chan struct{}
}

// AsyncBridge implements layer.Persistence on a domain.SolutionStore. Calls
// are queued and applied in order by one worker; failures are logged and
// counted but never reported back to the editor.
type AsyncBridge struct {
	store   domain.SolutionStore
	cfg     BridgeConfig
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
	emitter EventEmitter
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan persistOp
	done   chan struct{}

	writesMu  sync.Mutex
	lastWrite map[string]time.Time
}

var _ layer.Persistence = (*AsyncBridge)(nil)

var ErrBridgeClosed = errors.New("persistence bridge closed")

// NewAsyncBridge starts the worker. metrics and emitter may be nil.
func NewAsyncBridge(store domain.SolutionStore, cfg BridgeConfig, metrics *Metrics, emitter EventEmitter, log *zap.Logger) *AsyncBridge {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultBridgeConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if cfg.Breaker.MinRequests == 0 {
		cfg.Breaker = def.Breaker
	}
	log = log.Named("bridge")

	b := &AsyncBridge{
		store:     store,
		cfg:       cfg,
		metrics:   metrics,
		emitter:   emitter,
		log:       log,
		queue:     make(chan persistOp, cfg.QueueSize),
		done:      make(chan struct{}),
		lastWrite: make(map[string]time.Time),
	}
	bc := cfg.Breaker
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "solution-store",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", zap.String("breaker", name),
				zap.Stringer("from", from), zap.Stringer("to", to))
		},
		// Missing records are caller mistakes, not an unhealthy store.
		IsSuccessful: func(err error) bool {
			return err == nil || isNotFound(err)
		},
	})
	go b.run()
	return b
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrSolutionNotFound) ||
		errors.Is(err, domain.ErrStateNotFound) ||
		errors.Is(err, domain.ErrSlotNotFound)
}

// ── layer.Persistence ──────────────────────────────────────

func (b *AsyncBridge) UpdateStatePosition(solution, state string, x, y float64) {
	b.enqueue("update_state_position", solution, func(ctx context.Context, s domain.SolutionStore) error {
		return s.UpdateStatePosition(ctx, solution, state, x, y)
	})
}

func (b *AsyncBridge) UpdateSlotAngularPosition(solution, state string, slot int, angle float64) {
	b.enqueue("update_slot_angle", solution, func(ctx context.Context, s domain.SolutionStore) error {
		return s.UpdateSlotAngle(ctx, solution, state, slot, angle)
	})
}

func (b *AsyncBridge) AddConnector(solution string, c domain.Connector) {
	b.enqueue("add_connector", solution, func(ctx context.Context, s domain.SolutionStore) error {
		return s.AddConnector(ctx, solution, &c)
	})
}

func (b *AsyncBridge) UpsertState(solution string, st domain.State) {
	b.enqueue("upsert_state", solution, func(ctx context.Context, s domain.SolutionStore) error {
		return s.UpsertState(ctx, solution, &st)
	})
}

func (b *AsyncBridge) RemoveState(solution, state string) {
	b.enqueue("remove_state", solution, func(ctx context.Context, s domain.SolutionStore) error {
		return s.RemoveState(ctx, solution, state)
	})
}

func (b *AsyncBridge) RemoveConnector(solution, id string) {
	b.enqueue("remove_connector", solution, func(ctx context.Context, s domain.SolutionStore) error {
		return s.RemoveConnector(ctx, solution, id)
	})
}

// ── Queue ──────────────────────────────────────────────────

// enqueue never blocks. A full queue drops the call.
func (b *AsyncBridge) enqueue(name, solution string, run func(context.Context, domain.SolutionStore) error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.fail(name, solution, ErrBridgeClosed)
		return
	}
	select {
	case b.queue <- persistOp{name: name, solution: solution, run: run}:
	default:
		b.fail(name, solution, fmt.Errorf("queue full (%d)", cap(b.queue)))
	}
}

func (b *AsyncBridge) run() {
	defer close(b.done)
	for op := range b.queue {
		if op.barrier != nil {
			close(op.barrier)
			continue
		}
		b.apply(op)
	}
}

func (b *AsyncBridge) apply(op persistOp) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.OpTimeout)
	defer cancel()
	_, err := b.breaker.Execute(func() (any, error) {
		return nil, op.run(ctx, b.store)
	})
	if err != nil {
		b.fail(op.name, op.solution, err)
		return
	}
	b.writesMu.Lock()
	b.lastWrite[op.solution] = time.Now().UTC()
	b.writesMu.Unlock()
}

func (b *AsyncBridge) fail(op, solution string, err error) {
	b.log.Error("persistence failed", zap.String("op", op), zap.String("solution", solution), zap.Error(err))
	b.metrics.PersistenceFailed(op)
	if b.emitter != nil {
		b.emitter.Emit(context.Background(), EventPersistenceFailed, PersistFailure{Op: op, Solution: solution, Error: err.Error()})
	}
}

// LastWrite is when the most recent successful write for solution finished.
func (b *AsyncBridge) LastWrite(solution string) time.Time {
	b.writesMu.Lock()
	defer b.writesMu.Unlock()
	return b.lastWrite[solution]
}

// Flush waits until every call queued before it has been applied.
func (b *AsyncBridge) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBridgeClosed
	}
	select {
	case b.queue <- persistOp{name: "flush", barrier: barrier}:
	case <-ctx.Done():
		b.mu.RUnlock()
		return ctx.Err()
	}
	b.mu.RUnlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting calls and waits for the queue to drain or ctx to
// end.
func (b *AsyncBridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close bridge: %w", ctx.Err())
	}
}
