package notify

import (
	"context"
	"fmt"

	"github.com/talemachine/talemachine/internal/agent"
	"github.com/talemachine/talemachine/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends approval requests to a reviewer chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(cfg config.TelegramNotifierConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

func (t *Telegram) NotifyApprovalNeeded(_ context.Context, threadID string, interrupt *agent.Interrupt) error {
	text := fmt.Sprintf(
		"Approval needed on thread %s\nTool: %s\nArguments: %s\n%s",
		threadID, interrupt.ToolName, string(interrupt.ToolArguments), interrupt.Message,
	)
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
