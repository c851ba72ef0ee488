package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/talemachine/talemachine/internal/approval"
	"github.com/talemachine/talemachine/internal/config"
	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/logger"
	"github.com/talemachine/talemachine/internal/model/contract"
)

// CancelledResult is the fixed tool result delivered for a rejected
// action. The underlying tool is never invoked.
var CancelledResult = json.RawMessage(`{"status":"cancelled by user"}`)

// Runner executes tool calls, routing sensitive ones through the
// approval gate. A gated call never reaches its tool until an approved
// resume re-enters it via ExecuteApproved.
type Runner struct {
	registry  *Registry
	gate      *approval.Gate
	sensitive map[string]bool
	overrides map[string]string
}

func NewRunner(registry *Registry, gate *approval.Gate, cfg config.GovernanceConfig) *Runner {
	sensitive := make(map[string]bool, len(cfg.SensitiveTools))
	for _, name := range cfg.SensitiveTools {
		sensitive[NormalizeToolName(name)] = true
	}
	return &Runner{
		registry:  registry,
		gate:      gate,
		sensitive: sensitive,
		overrides: cfg.OverrideFields,
	}
}

func (r *Runner) Descriptors() []contract.ToolDef {
	if r == nil || r.registry == nil {
		return nil
	}
	return r.registry.Descriptors()
}

// OverrideField returns the argument field a reviewer may override for a
// tool, if one is configured.
func (r *Runner) OverrideField(toolName string) (string, bool) {
	field, ok := r.overrides[NormalizeToolName(toolName)]
	return field, ok
}

// Execute handles a tool call from the agent. Sensitive tools are
// intercepted: the call is persisted as a PendingAction and
// ErrApprovalRequired comes back instead of a result.
func (r *Runner) Execute(ctx context.Context, threadID, toolName string, input json.RawMessage) (json.RawMessage, error) {
	t, ok := r.registry.Get(toolName)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("tool %q not found", NormalizeToolName(toolName)))
	}
	resolvedName := NormalizeToolName(t.Name())

	if err := ValidateInput(t.Parameters(), input); err != nil {
		slog.Warn("Tool input validation failed", "tool", resolvedName, "error", err)
		return nil, fmt.Errorf("invalid input: %v: %w", err, apperrors.ErrInvalidInput)
	}

	if r.sensitive[resolvedName] {
		action, err := r.gate.Intercept(threadID, resolvedName, input)
		if err != nil {
			return nil, err
		}
		slog.Info("Intercepted sensitive tool call",
			"tool", resolvedName,
			"thread_id", threadID,
			"action_id", action.ID,
		)
		return nil, fmt.Errorf("%w: %s", apperrors.ErrApprovalRequired, action.ID)
	}

	return r.run(ctx, t, resolvedName, input)
}

// ExecuteApproved re-enters an approved action: reviewer overrides are
// merged into the original arguments and the tool finally runs. The
// action is consumed whatever the outcome, so a replayed resume cannot
// execute it twice.
func (r *Runner) ExecuteApproved(ctx context.Context, action *approval.PendingAction) (json.RawMessage, error) {
	if action.Status != approval.StatusApproved {
		return nil, apperrors.ApprovalState(fmt.Sprintf("action %s is %s, not approved", action.ID, action.Status))
	}

	t, ok := r.registry.Get(action.ToolName)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("tool %q not found", action.ToolName))
	}

	input, err := r.applyOverrides(action)
	if err != nil {
		return nil, err
	}

	result, execErr := r.run(ctx, t, action.ToolName, input)

	if err := r.gate.Consume(action.ID); err != nil {
		slog.Error("Failed to consume approved action", "action_id", action.ID, "error", err)
	}
	return result, execErr
}

// Cancel consumes a rejected action and returns the fixed cancelled
// result in place of the tool's.
func (r *Runner) Cancel(action *approval.PendingAction) (json.RawMessage, error) {
	if action.Status != approval.StatusRejected {
		return nil, apperrors.ApprovalState(fmt.Sprintf("action %s is %s, not rejected", action.ID, action.Status))
	}
	if err := r.gate.Consume(action.ID); err != nil {
		slog.Error("Failed to consume rejected action", "action_id", action.ID, "error", err)
	}
	slog.Info("Cancelled tool call", "tool", action.ToolName, "thread_id", action.ThreadID)
	return CancelledResult, nil
}

// applyOverrides merges reviewer-supplied extra arguments into the
// original call. Only the configured override field is honored; anything
// else in the decision payload is a caller mistake.
func (r *Runner) applyOverrides(action *approval.PendingAction) (json.RawMessage, error) {
	if len(action.ExtraArguments) == 0 {
		return action.ToolArguments, nil
	}

	field, ok := r.overrides[action.ToolName]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("tool %q does not accept argument overrides", action.ToolName))
	}

	var args map[string]any
	raw := action.ToolArguments
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, apperrors.Internal(fmt.Sprintf("stored arguments for action %s are corrupt", action.ID))
	}

	for key, value := range action.ExtraArguments {
		if key != field {
			return nil, apperrors.InvalidInput(fmt.Sprintf("field %q cannot be overridden for tool %q", key, action.ToolName))
		}
		args[key] = value
	}

	merged, err := json.Marshal(args)
	if err != nil {
		return nil, apperrors.Internal("marshal merged arguments")
	}
	return merged, nil
}

func (r *Runner) run(ctx context.Context, t Tool, name string, input json.RawMessage) (json.RawMessage, error) {
	start := time.Now()
	traceID := logger.GetTraceID(ctx)
	slog.Info("Executing tool", "tool", name, "trace_id", traceID)

	result, err := t.Execute(ctx, input)

	duration := time.Since(start)
	if err != nil {
		// Partial commits carry a usable result alongside the warning.
		if apperrors.IsCategory(err, apperrors.ErrPartialCommit) {
			slog.Warn("Tool succeeded with stale entity index", "tool", name, "duration", duration, "trace_id", traceID, "error", err)
			return result, err
		}
		slog.Error("Tool execution failed", "tool", name, "error", err, "duration", duration, "trace_id", traceID)
		return nil, err
	}

	slog.Info("Tool execution success", "tool", name, "duration", duration, "trace_id", traceID)
	return result, nil
}
