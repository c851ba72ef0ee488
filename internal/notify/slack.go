package notify

import (
	"context"
	"fmt"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/config"

	"github.com/slack-go/slack"
)

// Slack posts approval requests to a reviewer channel.
type Slack struct {
	client  *slack.Client
	channel string
}

func NewSlack(cfg config.SlackNotifierConfig) *Slack {
	return &Slack{
		client:  slack.New(cfg.BotToken),
		channel: cfg.Channel,
	}
}

func (s *Slack) NotifyApprovalNeeded(ctx context.Context, threadID string, interrupt *agent.Interrupt) error {
	text := fmt.Sprintf(
		"Approval needed on thread `%s`\nTool: `%s`\nArguments: ```%s```\n%s",
		threadID, interrupt.ToolName, string(interrupt.ToolArguments), interrupt.Message,
	)
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	return nil
}
