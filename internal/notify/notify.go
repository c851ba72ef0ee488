// Package notify pushes approval requests to reviewers on external
// channels. Delivery is best-effort: a notifier failure never blocks the
// gate, it only means the reviewer finds out through the API instead.
package notify

import (
	"context"
	"log/slog"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/config"
)

// Notifier delivers an approval-needed signal for a thread.
type Notifier interface {
	NotifyApprovalNeeded(ctx context.Context, threadID string, interrupt *agent.Interrupt) error
}

// Null is the no-op notifier used when no channel is configured.
type Null struct{}

func (Null) NotifyApprovalNeeded(context.Context, string, *agent.Interrupt) error { return nil }

// Multi fans one notification out to several channels.
type Multi []Notifier

func (m Multi) NotifyApprovalNeeded(ctx context.Context, threadID string, interrupt *agent.Interrupt) error {
	for _, n := range m {
		if err := n.NotifyApprovalNeeded(ctx, threadID, interrupt); err != nil {
			slog.Warn("Approval notification failed", "thread_id", threadID, "error", err)
		}
	}
	return nil
}

// FromConfig assembles the configured notifiers.
func FromConfig(cfg config.NotifierConfig) Notifier {
	var channels Multi
	if cfg.Slack.Enabled {
		channels = append(channels, NewSlack(cfg.Slack))
	}
	if cfg.Telegram.Enabled {
		if tg, err := NewTelegram(cfg.Telegram); err != nil {
			slog.Warn("Telegram notifier disabled", "error", err)
		} else {
			channels = append(channels, tg)
		}
	}
	if len(channels) == 0 {
		return Null{}
	}
	return channels
}
