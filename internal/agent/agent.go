// Package agent runs the storytelling conversation loop: model turns,
// tool calls, and the suspend/resume dance around the approval gate.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/talemachine/talemachine/internal/approval"
	"github.com/talemachine/talemachine/internal/config"
	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/logger"
	"github.com/talemachine/talemachine/internal/model"
	"github.com/talemachine/talemachine/internal/model/contract"
	"github.com/talemachine/talemachine/internal/store"
	"github.com/talemachine/talemachine/internal/tool"
)

// Interrupt is the "approval needed" signal surfaced instead of a normal
// reply when a sensitive tool call is intercepted.
type Interrupt struct {
	ActionID      string          `json:"action_id"`
	ToolName      string          `json:"tool_name"`
	ToolArguments json.RawMessage `json:"tool_arguments"`
	Message       string          `json:"message"`
}

// Reply is the outcome of one Send or Resume. Exactly one of Content
// being final or Interrupt being set applies.
type Reply struct {
	ThreadID  string     `json:"thread_id"`
	Content   string     `json:"content,omitempty"`
	Interrupt *Interrupt `json:"interrupt,omitempty"`
}

type Runtime struct {
	provider    model.Provider
	runner      *tool.Runner
	gate        *approval.Gate
	transcripts *TranscriptStore
	stories     store.StoryStore
	cfg         config.AgentConfig
	chatModel   string
}

func NewRuntime(provider model.Provider, runner *tool.Runner, gate *approval.Gate, transcripts *TranscriptStore, stories store.StoryStore, cfg config.AgentConfig, chatModel string) *Runtime {
	return &Runtime{
		provider:    provider,
		runner:      runner,
		gate:        gate,
		transcripts: transcripts,
		stories:     stories,
		cfg:         cfg,
		chatModel:   chatModel,
	}
}

// Send delivers a user message on a thread, creating the thread when
// threadID is empty. A thread with an undecided action refuses new
// messages until the decision lands.
func (r *Runtime) Send(ctx context.Context, threadID string, storyID int64, message string) (*Reply, error) {
	if message == "" {
		return nil, apperrors.InvalidInput("message is required")
	}

	var thread *Thread
	var err error
	if threadID == "" {
		if _, err := r.stories.GetStoryByID(ctx, storyID); err != nil {
			return nil, err
		}
		thread, err = r.transcripts.Create(storyID)
		if err != nil {
			return nil, err
		}
	} else {
		thread, err = r.transcripts.Load(threadID)
		if err != nil {
			return nil, err
		}
	}
	ctx = logger.WithThreadID(ctx, thread.ID)

	if thread.PendingCall != nil {
		return nil, apperrors.ApprovalState(fmt.Sprintf("thread %s is awaiting an approval decision", thread.ID))
	}

	thread.Messages = append(thread.Messages, contract.Message{Role: "user", Content: message})
	return r.converse(ctx, thread)
}

// Resume applies a human decision to the thread's suspended tool call
// and continues the conversation. extraArgument, when non-nil, overrides
// the configured field of the original call on approval.
func (r *Runtime) Resume(ctx context.Context, threadID string, approved bool, extraArgument any) (*Reply, error) {
	thread, err := r.transcripts.Load(threadID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithThreadID(ctx, thread.ID)

	if thread.PendingCall == nil {
		return nil, apperrors.ApprovalState(fmt.Sprintf("thread %s has no suspended tool call", threadID))
	}

	pending, err := r.gate.Pending(threadID)
	if err != nil {
		return nil, apperrors.ApprovalState(fmt.Sprintf("thread %s has no pending action", threadID))
	}

	var extra map[string]any
	if extraArgument != nil {
		if !approved {
			return nil, apperrors.InvalidInput("extra argument is only valid on approval")
		}
		field, ok := r.runner.OverrideField(pending.ToolName)
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("tool %q does not accept argument overrides", pending.ToolName))
		}
		extra = map[string]any{field: extraArgument}
	}

	action, err := r.gate.Resolve(threadID, approved, extra)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	if approved {
		result, err = r.runner.ExecuteApproved(ctx, action)
		if err != nil && !apperrors.IsCategory(err, apperrors.ErrPartialCommit) {
			result = errorResult(err)
		}
	} else {
		result, err = r.runner.Cancel(action)
		if err != nil {
			return nil, err
		}
	}

	call := thread.PendingCall
	thread.PendingCall = nil
	thread.Messages = append(thread.Messages, contract.Message{
		Role:       "tool",
		Content:    string(result),
		ToolCallID: call.CallID,
	})

	if interrupt, err := r.runToolCalls(ctx, thread, call.Remaining); err != nil {
		return nil, err
	} else if interrupt != nil {
		if err := r.transcripts.Save(thread); err != nil {
			return nil, err
		}
		return &Reply{ThreadID: thread.ID, Interrupt: interrupt}, nil
	}

	return r.converse(ctx, thread)
}

// converse runs model turns until the model answers without tool calls,
// a sensitive call suspends the thread, or the turn budget runs out.
func (r *Runtime) converse(ctx context.Context, thread *Thread) (*Reply, error) {
	system, err := r.systemPrompt(ctx, thread.StoryID)
	if err != nil {
		return nil, err
	}

	maxTurns := r.cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = config.DefaultAgentMaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := r.provider.Generate(ctx, contract.CompletionRequest{
			Model:    r.chatModel,
			System:   system,
			Messages: thread.Messages,
			Tools:    r.runner.Descriptors(),
		})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.MapExternal(err), "model turn")
		}

		thread.Messages = append(thread.Messages, contract.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			if err := r.transcripts.Save(thread); err != nil {
				return nil, err
			}
			return &Reply{ThreadID: thread.ID, Content: resp.Content}, nil
		}

		interrupt, err := r.runToolCalls(ctx, thread, resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		if interrupt != nil {
			if err := r.transcripts.Save(thread); err != nil {
				return nil, err
			}
			return &Reply{ThreadID: thread.ID, Interrupt: interrupt}, nil
		}
	}

	if err := r.transcripts.Save(thread); err != nil {
		return nil, err
	}
	slog.Warn("Agent hit turn budget", "thread_id", thread.ID, "max_turns", maxTurns)
	return &Reply{ThreadID: thread.ID, Content: "I could not finish within the allotted turns. Please continue the conversation."}, nil
}

// runToolCalls executes a batch sequentially. An interception stops the
// batch: the thread records the suspended call and whatever was not yet
// run, so resume can pick up exactly there.
func (r *Runtime) runToolCalls(ctx context.Context, thread *Thread, calls []*contract.ToolCall) (*Interrupt, error) {
	for i, call := range calls {
		result, err := r.runner.Execute(ctx, thread.ID, call.Name, json.RawMessage(call.Input))
		if err != nil {
			if apperrors.IsCategory(err, apperrors.ErrApprovalRequired) {
				pending, perr := r.gate.Pending(thread.ID)
				if perr != nil {
					return nil, perr
				}
				thread.PendingCall = &PendingCall{
					CallID:    call.ID,
					Remaining: calls[i+1:],
				}
				return &Interrupt{
					ActionID:      pending.ID,
					ToolName:      pending.ToolName,
					ToolArguments: pending.ToolArguments,
					Message:       fmt.Sprintf("The agent wants to run %s. Approve or reject to continue.", pending.ToolName),
				}, nil
			}
			if apperrors.IsCategory(err, apperrors.ErrPartialCommit) {
				// The result already carries the warning; the model sees it.
			} else {
				result = errorResult(err)
			}
		}

		thread.Messages = append(thread.Messages, contract.Message{
			Role:       "tool",
			Content:    string(result),
			ToolCallID: call.ID,
		})
	}
	return nil, nil
}

func (r *Runtime) systemPrompt(ctx context.Context, storyID int64) (string, error) {
	st, err := r.stories.GetStoryByID(ctx, storyID)
	if err != nil {
		return "", err
	}

	description := fmt.Sprintf("%q (genre: %s, target length: %s)", st.Title, st.Genre, st.Length)
	if st.Notes != "" {
		description += fmt.Sprintf("\nAuthor notes: %s", st.Notes)
	}

	prompt := r.cfg.SystemPrompt
	if prompt == "" {
		prompt = config.DefaultAgentSystemPrompt
	}
	return fmt.Sprintf(prompt, description), nil
}

func errorResult(err error) json.RawMessage {
	payload, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return json.RawMessage(`{"error":"internal error"}`)
	}
	return payload
}
