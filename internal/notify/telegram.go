// Package notify pushes conversion-failure alerts to the configured
// Telegram admin chats. Client errors (bad format, oversize uploads) are
// never alerted on, only tool failures and timeouts.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redlabs-sc/document-converter-service/config"
	"go.uber.org/zap"
)

type Notifier struct {
	bot      *tgbotapi.BotAPI
	adminIDs []int64
	logger   *zap.Logger
}

func NewNotifier(cfg *config.Config, logger *zap.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Notifier{
		bot:      bot,
		adminIDs: cfg.AdminIDs,
		logger:   logger.With(zap.String("component", "notify")),
	}, nil
}

// ConversionFailed alerts all admins about a failed conversion. Send
// errors are logged, never propagated; notification is best-effort.
func (n *Notifier) ConversionFailed(filename, message string) {
	text := fmt.Sprintf("Conversion failed\nFile: %s\nReason: %s", filename, message)

	for _, adminID := range n.adminIDs {
		msg := tgbotapi.NewMessage(adminID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn("Failed to send failure notification",
				zap.Int64("admin_id", adminID),
				zap.Error(err))
		}
	}
}
