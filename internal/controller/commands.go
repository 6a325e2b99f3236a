package controller

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/Freeeeeet/tutoring_backend/internal/controller/formatting"
	"github.com/Freeeeeet/tutoring_backend/internal/controller/keyboard"
	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Сколько заявок и занятий показывать за раз
const (
	requestsPageSize = 10
	sessionsPageSize = 20
)

const startText = "👋 Привет!\n\n" +
	"Этот бот присылает уведомления о заявках и занятиях и позволяет отвечать на заявки.\n\n" +
	"Доступные команды:\n" +
	"/link &lt;id&gt; - Привязать аккаунт к этому чату\n" +
	"/requests - Заявки, ожидающие ответа\n" +
	"/sessions - Ближайшие занятия\n" +
	"/help - Справка"

// reply одно сообщение ответа
type reply struct {
	Text   string
	Markup *models.InlineKeyboardMarkup
}

func (c *BotController) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	c.send(ctx, b, update.Message.Chat.ID, reply{Text: startText})
}

func (c *BotController) handleLink(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	text, err := c.linkReply(ctx, chatID, update.Message.Text)
	if err != nil {
		c.sendError(ctx, b, chatID, err)
		return
	}
	c.send(ctx, b, chatID, reply{Text: text})
}

func (c *BotController) handleRequests(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	replies, err := c.requestsReplies(ctx, chatID)
	if err != nil {
		c.sendError(ctx, b, chatID, err)
		return
	}
	for _, r := range replies {
		c.send(ctx, b, chatID, r)
	}
}

func (c *BotController) handleSessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	text, err := c.sessionsReply(ctx, chatID)
	if err != nil {
		c.sendError(ctx, b, chatID, err)
		return
	}
	c.send(ctx, b, chatID, reply{Text: text})
}

func (c *BotController) handleRequestCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	chatID := callback.From.ID
	msg := callback.Message.Message
	if msg != nil {
		chatID = msg.Chat.ID
	}

	text, err := c.answerRequest(ctx, chatID, callback.Data)
	if err != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: callback.ID,
			Text:            ErrorMessage(err),
			ShowAlert:       true,
		})
		return
	}

	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callback.ID,
		Text:            "Готово",
	})

	// Заменяем сообщение с кнопками на итог
	if msg != nil {
		if _, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: msg.ID,
			Text:      text,
			ParseMode: models.ParseModeHTML,
		}); err != nil {
			c.logger.Warn("Failed to edit request message", zap.Error(err))
		}
		return
	}
	c.send(ctx, b, chatID, reply{Text: text})
}

// linkReply привязывает чат к пользователю из "/link 42"
func (c *BotController) linkReply(ctx context.Context, chatID int64, text string) (string, error) {
	arg := strings.TrimSpace(strings.TrimPrefix(text, "/link"))
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || userID <= 0 {
		return "", ErrInvalidLink
	}

	if err := c.contacts.SetTelegramChatID(ctx, userID, chatID); err != nil {
		return "", fmt.Errorf("link chat: %w", err)
	}

	c.logger.Info("Telegram chat linked",
		zap.Int64("user_id", userID),
		zap.Int64("chat_id", chatID),
	)
	return fmt.Sprintf("✅ Аккаунт #%d привязан. Уведомления будут приходить в этот чат.", userID), nil
}

// requestsReplies заголовок и по сообщению с кнопками на каждую заявку
func (c *BotController) requestsReplies(ctx context.Context, chatID int64) ([]reply, error) {
	userID, err := c.userID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	requests, err := c.requests.List(ctx, model.RequestFilter{
		TutorID:  &userID,
		Statuses: []model.RequestStatus{model.RequestStatusPending},
		Limit:    requestsPageSize,
	})
	if err != nil {
		return nil, err
	}

	if len(requests) == 0 {
		return []reply{{Text: "📭 Нет заявок, ожидающих ответа"}}, nil
	}

	replies := make([]reply, 0, len(requests)+1)
	replies = append(replies, reply{Text: fmt.Sprintf("📨 %d %s ожидает ответа:",
		len(requests), formatting.PluralizeRequests(len(requests)))})
	for _, req := range requests {
		replies = append(replies, reply{
			Text:   formatRequest(req),
			Markup: keyboard.RequestActions(req.ID),
		})
	}
	return replies, nil
}

// sessionsReply активные занятия пользователя в любой роли
func (c *BotController) sessionsReply(ctx context.Context, chatID int64) (string, error) {
	userID, err := c.userID(ctx, chatID)
	if err != nil {
		return "", err
	}

	sessions, err := c.sessions.List(ctx, model.SessionFilter{
		ParticipantID: &userID,
		Statuses:      model.ActiveSessionStatuses(),
		Limit:         sessionsPageSize,
	})
	if err != nil {
		return "", err
	}

	if len(sessions) == 0 {
		return "📭 Ближайших занятий нет", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 <b>Ближайшие занятия</b> (%d):\n", len(sessions))
	for _, s := range sessions {
		role := "👨‍🎓 студент"
		if s.TutorID == userID {
			role = "👨‍🏫 репетитор"
		}
		fmt.Fprintf(&sb, "\n%s\n🕐 %s · %s · %s\n%s\n",
			formatting.FormatSessionStatus(s.Status),
			formatting.FormatDateTime(s.DateTime),
			formatting.FormatDuration(s.DurationMinutes),
			formatting.FormatPrice(s.Price),
			role,
		)
	}
	return sb.String(), nil
}

// answerRequest обрабатывает "req:accept:<id>" и "req:reject:<id>"
func (c *BotController) answerRequest(ctx context.Context, chatID int64, data string) (string, error) {
	action, requestID, err := keyboard.ParseCallback(data)
	if err != nil {
		return "", err
	}

	userID, err := c.userID(ctx, chatID)
	if err != nil {
		return "", err
	}

	req, err := c.requests.Get(ctx, requestID)
	if err != nil {
		return "", err
	}
	if req.TutorID != userID {
		return "", ErrNotOwner
	}

	if action == keyboard.ActionReject {
		if _, err := c.requests.Reject(ctx, requestID, "", nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("🚫 Заявка #%d отклонена", requestID), nil
	}

	result, err := c.requests.Accept(ctx, requestID, "", nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Заявка #%d принята\n📅 Занятие #%d: %s, %s",
		requestID,
		result.Session.ID,
		formatting.FormatDateTime(result.Session.DateTime),
		formatting.FormatDuration(result.Session.DurationMinutes),
	), nil
}

func (c *BotController) userID(ctx context.Context, chatID int64) (int64, error) {
	userID, ok, err := c.contacts.GetUserIDByChatID(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("resolve chat owner: %w", err)
	}
	if !ok {
		return 0, ErrNotLinked
	}
	return userID, nil
}

func formatRequest(req *model.SessionRequest) string {
	text := fmt.Sprintf(
		"📨 <b>Заявка #%d</b>\n"+
			"📅 %s (%s)\n"+
			"💰 Бюджет: %s\n"+
			"Срочность: %s\n",
		req.ID,
		formatting.FormatDateTime(req.DesiredDateTime),
		formatting.FormatDuration(req.DurationMinutes),
		formatting.FormatPrice(req.MaxBudget),
		formatting.FormatUrgency(req.Urgency),
	)
	if req.DateFlexible {
		text += "🔄 Время можно сдвинуть\n"
	}
	return text + "💬 " + html.EscapeString(req.Message)
}

func (c *BotController) send(ctx context.Context, b *bot.Bot, chatID int64, r reply) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      r.Text,
		ParseMode: models.ParseModeHTML,
	}
	if r.Markup != nil {
		params.ReplyMarkup = r.Markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		c.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *BotController) sendError(ctx context.Context, b *bot.Bot, chatID int64, err error) {
	msg := ErrorMessage(err)
	if msg == ErrorMessage(nil) {
		c.logger.Error("Bot command failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	c.send(ctx, b, chatID, reply{Text: html.EscapeString(msg)})
}
