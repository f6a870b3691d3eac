package mcpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowedit/internal/storage"
)

// EventEmitter lets the server notify the frontend.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// PendingAction is a destructive operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON, e.g. the states to highlight
}

// ApprovalStore is the cross-process approval table used when the server
// runs outside the desktop app. storage.ApprovalStore implements it.
type ApprovalStore interface {
	Create(ctx context.Context, a storage.Approval) error
	Status(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// ApprovalQueue asks the user before destructive tool calls. In-process it
// uses channels and frontend events; standalone it writes to the approval
// table and polls it until the app resolves the row.
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]chan bool
	emitter EventEmitter
	timeout time.Duration
	poll    time.Duration
	store   ApprovalStore
}

func NewApprovalQueue(emitter EventEmitter) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]chan bool),
		emitter: emitter,
		timeout: 120 * time.Second,
		poll:    500 * time.Millisecond,
	}
}

// SetStore switches to table-based approval.
func (q *ApprovalQueue) SetStore(store ApprovalStore) {
	q.store = store
}

// Request blocks until the action is approved, rejected, times out or ctx
// ends. Only an approval returns true with a nil error.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description, metadata string) (bool, error) {
	id := uuid.NewString()
	if metadata == "" {
		metadata = "{}"
	}
	if q.store != nil {
		return q.requestViaStore(ctx, id, tool, description, metadata)
	}
	return q.requestViaChannel(ctx, id, tool, description, metadata)
}

func (q *ApprovalQueue) requestViaStore(ctx context.Context, id, tool, description, metadata string) (bool, error) {
	err := q.store.Create(ctx, storage.Approval{ID: id, Tool: tool, Description: description, Metadata: metadata})
	if err != nil {
		return false, err
	}
	cleanup := func() { _ = q.store.Delete(context.Background(), id) }

	deadline := time.NewTimer(q.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			status, err := q.store.Status(ctx, id)
			if err != nil {
				continue
			}
			switch status {
			case storage.ApprovalApproved:
				cleanup()
				return true, nil
			case storage.ApprovalRejected:
				cleanup()
				return false, fmt.Errorf("action rejected by user: %s", tool)
			}
		case <-deadline.C:
			cleanup()
			return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
		case <-ctx.Done():
			cleanup()
			return false, ctx.Err()
		}
	}
}

func (q *ApprovalQueue) requestViaChannel(ctx context.Context, id, tool, description, metadata string) (bool, error) {
	ch := make(chan bool, 1)
	q.mu.Lock()
	q.pending[id] = ch
	q.mu.Unlock()
	defer q.cleanup(id)

	q.emit(ctx, "mcp:approval-required", PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    metadata,
	})

	select {
	case approved := <-ch:
		if !approved {
			return false, fmt.Errorf("action rejected by user: %s", tool)
		}
		return true, nil
	case <-time.After(q.timeout):
		q.emit(ctx, "mcp:approval-dismissed", map[string]string{"id": id})
		return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
	case <-ctx.Done():
		q.emit(context.Background(), "mcp:approval-dismissed", map[string]string{"id": id})
		return false, ctx.Err()
	}
}

func (q *ApprovalQueue) emit(ctx context.Context, event string, data any) {
	if q.emitter != nil {
		q.emitter.Emit(ctx, event, data)
	}
}

// Approve resolves an in-process request. Unknown ids are ignored.
func (q *ApprovalQueue) Approve(actionID string) { q.resolve(actionID, true) }

// Reject resolves an in-process request. Unknown ids are ignored.
func (q *ApprovalQueue) Reject(actionID string) { q.resolve(actionID, false) }

func (q *ApprovalQueue) resolve(id string, approved bool) {
	q.mu.Lock()
	ch, ok := q.pending[id]
	q.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- approved:
	default:
	}
}

// Pending lists the ids of unresolved in-process requests.
func (q *ApprovalQueue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	return ids
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
