// Package approval persists human-in-the-loop decisions for sensitive
// tool calls. A gated call parks as a PendingAction until someone
// approves or rejects it; the state survives process restarts.
package approval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/talemachine/talemachine/internal/errors"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusAwaitingDecision Status = "awaiting_decision"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
)

// PendingAction is one intercepted tool call. ExtraArguments carries
// reviewer-supplied overrides applied when the approved call executes.
type PendingAction struct {
	ID             string          `json:"id"`
	ThreadID       string          `json:"thread_id"`
	ToolName       string          `json:"tool_name"`
	ToolArguments  json.RawMessage `json:"tool_arguments"`
	Status         Status          `json:"status"`
	ExtraArguments map[string]any  `json:"extra_arguments,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

type gateState struct {
	Actions map[string]*PendingAction `json:"actions"`
}

// Gate is the persisted state machine. At most one action per thread may
// be awaiting a decision at a time.
type Gate struct {
	path     string
	fileLock *flock.Flock
	data     gateState
	mu       sync.RWMutex
}

const (
	lockRetry    = 100 * time.Millisecond
	lockMaxRetry = 10
)

func NewGate(dir string) (*Gate, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create gate state dir: %w", err)
	}

	fileLock := flock.New(filepath.Join(dir, "gate.lock"))
	if err := acquireWithRetry(fileLock); err != nil {
		return nil, err
	}

	g := &Gate{
		path:     filepath.Join(dir, "gate.json"),
		fileLock: fileLock,
		data:     gateState{Actions: make(map[string]*PendingAction)},
	}
	if err := g.load(); err != nil {
		fileLock.Unlock()
		return nil, err
	}
	return g, nil
}

func acquireWithRetry(fileLock *flock.Flock) error {
	for i := 0; i < lockMaxRetry; i++ {
		locked, err := fileLock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to attempt gate lock: %w", err)
		}
		if locked {
			return nil
		}
		if i < lockMaxRetry-1 {
			time.Sleep(lockRetry)
		}
	}
	return fmt.Errorf("gate state is locked by another instance")
}

func (g *Gate) Close() error {
	if g.fileLock != nil {
		return g.fileLock.Unlock()
	}
	return nil
}

func (g *Gate) load() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	content, err := os.ReadFile(g.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, &g.data); err != nil {
		return fmt.Errorf("parse gate state: %w", err)
	}
	if g.data.Actions == nil {
		g.data.Actions = make(map[string]*PendingAction)
	}
	return nil
}

func (g *Gate) save() error {
	// Internal save, lock held by caller
	b, err := json.MarshalIndent(g.data, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(g.path, bytes.NewReader(b))
}

// Intercept records a gated tool call for the thread. A thread with an
// undecided action cannot accumulate a second one.
func (g *Gate) Intercept(threadID, toolName string, toolArguments json.RawMessage) (*PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, a := range g.data.Actions {
		if a.ThreadID == threadID && a.Status == StatusAwaitingDecision {
			return nil, apperrors.ApprovalState(fmt.Sprintf("thread %s already has action %s awaiting a decision", threadID, a.ID))
		}
	}

	action := &PendingAction{
		ID:            ulid.Make().String(),
		ThreadID:      threadID,
		ToolName:      toolName,
		ToolArguments: toolArguments,
		Status:        StatusAwaitingDecision,
		CreatedAt:     time.Now().UTC(),
	}
	g.data.Actions[action.ID] = action

	if err := g.save(); err != nil {
		delete(g.data.Actions, action.ID)
		return nil, fmt.Errorf("persist intercepted action: %w", err)
	}
	return copyAction(action), nil
}

// Pending returns the thread's undecided action, if any.
func (g *Gate) Pending(threadID string) (*PendingAction, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, a := range g.data.Actions {
		if a.ThreadID == threadID && a.Status == StatusAwaitingDecision {
			return copyAction(a), nil
		}
	}
	return nil, apperrors.NotFound(fmt.Sprintf("no action awaiting a decision for thread %s", threadID))
}

// Resolve applies a decision to the thread's undecided action. Extra
// arguments are only meaningful on approval and are rejected otherwise.
func (g *Gate) Resolve(threadID string, approve bool, extraArguments map[string]any) (*PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var action *PendingAction
	for _, a := range g.data.Actions {
		if a.ThreadID == threadID && a.Status == StatusAwaitingDecision {
			action = a
			break
		}
	}
	if action == nil {
		return nil, apperrors.ApprovalState(fmt.Sprintf("no action awaiting a decision for thread %s", threadID))
	}
	if !approve && len(extraArguments) > 0 {
		return nil, apperrors.InvalidInput("extra arguments are only valid on approval")
	}

	prevStatus := action.Status
	prevResolved := action.ResolvedAt
	now := time.Now().UTC()
	if approve {
		action.Status = StatusApproved
	} else {
		action.Status = StatusRejected
	}
	action.ExtraArguments = extraArguments
	action.ResolvedAt = &now

	if err := g.save(); err != nil {
		action.Status = prevStatus
		action.ResolvedAt = prevResolved
		action.ExtraArguments = nil
		return nil, fmt.Errorf("persist decision: %w", err)
	}
	return copyAction(action), nil
}

// Consume removes an action after its outcome has been delivered. The
// approved call executes exactly once; consuming it is what prevents a
// second resume from replaying it.
func (g *Gate) Consume(actionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	action, ok := g.data.Actions[actionID]
	if !ok {
		return apperrors.NotFound(fmt.Sprintf("action %s not found", actionID))
	}
	if action.Status == StatusAwaitingDecision {
		return apperrors.ApprovalState(fmt.Sprintf("action %s is still awaiting a decision", actionID))
	}

	delete(g.data.Actions, actionID)
	if err := g.save(); err != nil {
		g.data.Actions[actionID] = action
		return fmt.Errorf("persist consumed action: %w", err)
	}
	return nil
}

// List returns every action, newest first by creation time.
func (g *Gate) List() []*PendingAction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	actions := make([]*PendingAction, 0, len(g.data.Actions))
	for _, a := range g.data.Actions {
		actions = append(actions, copyAction(a))
	}
	for i := 0; i < len(actions); i++ {
		for j := i + 1; j < len(actions); j++ {
			if actions[j].CreatedAt.After(actions[i].CreatedAt) {
				actions[i], actions[j] = actions[j], actions[i]
			}
		}
	}
	return actions
}

// PruneResolved drops resolved actions older than maxAge and returns how
// many were removed. Undecided actions are never pruned.
func (g *Gate) PruneResolved(maxAge time.Duration) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, a := range g.data.Actions {
		if a.Status == StatusAwaitingDecision {
			continue
		}
		if a.ResolvedAt != nil && a.ResolvedAt.Before(cutoff) {
			delete(g.data.Actions, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := g.save(); err != nil {
		return 0, fmt.Errorf("persist pruned state: %w", err)
	}
	return removed, nil
}

func copyAction(a *PendingAction) *PendingAction {
	dup := *a
	if a.ExtraArguments != nil {
		dup.ExtraArguments = make(map[string]any, len(a.ExtraArguments))
		for k, v := range a.ExtraArguments {
			dup.ExtraArguments[k] = v
		}
	}
	return &dup
}
