package notifier

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/semmidev/cloudvault/internal/config"
	"github.com/semmidev/cloudvault/internal/domain"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts backup outcomes to a single chat.
type TelegramNotifier struct {
	bot    sender
	chatID int64
}

func NewTelegram(cfg *config.TelegramConfig) (*TelegramNotifier, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) NotifyBackupStatus(ctx context.Context, userID, configName string, status domain.HistoryStatus, details string) error {
	msg := tgbotapi.NewMessage(t.chatID, formatStatus(userID, configName, status, details))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func formatStatus(userID, configName string, status domain.HistoryStatus, details string) string {
	icon := "ℹ️"
	switch status {
	case domain.HistoryCompleted:
		icon = "✅"
	case domain.HistoryFailed:
		icon = "❌"
	}

	message := fmt.Sprintf(
		"%s Backup %s\n\n"+
			"📁 Config: %s\n"+
			"👤 User: %s",
		icon, status, configName, userID,
	)
	if details != "" {
		message += "\n📝 " + details
	}
	return message
}
