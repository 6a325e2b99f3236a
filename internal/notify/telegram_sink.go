package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// MessageSender часть *bot.Bot, нужная для отправки
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// ContactResolver находит чат Telegram пользователя
type ContactResolver interface {
	GetTelegramChatID(ctx context.Context, userID int64) (int64, bool, error)
}

// TelegramSink отправляет уведомления в личный чат пользователя
type TelegramSink struct {
	sender   MessageSender
	contacts ContactResolver
	logger   *zap.Logger
}

func NewTelegramSink(sender MessageSender, contacts ContactResolver, logger *zap.Logger) *TelegramSink {
	return &TelegramSink{
		sender:   sender,
		contacts: contacts,
		logger:   logger,
	}
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, n model.Notification) error {
	chatID, ok, err := s.contacts.GetTelegramChatID(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("resolve telegram chat: %w", err)
	}
	if !ok {
		// Пользователь не привязал Telegram
		s.logger.Debug("No telegram chat for recipient",
			zap.Int64("recipient_id", n.RecipientID),
		)
		return nil
	}

	_, err = s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      FormatTelegramText(n),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// FormatTelegramText текст сообщения в HTML-разметке Telegram
func FormatTelegramText(n model.Notification) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(n.Title), html.EscapeString(n.Body))
}
