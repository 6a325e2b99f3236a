package controller

import (
	"context"

	"github.com/Freeeeeet/tutoring_backend/internal/controller/keyboard"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Contacts привязка чатов Telegram к пользователям
type Contacts interface {
	GetUserIDByChatID(ctx context.Context, chatID int64) (int64, bool, error)
	SetTelegramChatID(ctx context.Context, userID, chatID int64) error
}

// BotController команды репетитора в Telegram: заявки и ближайшие занятия
type BotController struct {
	bot      *bot.Bot
	requests *service.SessionRequestService
	sessions *service.SessionService
	contacts Contacts
	logger   *zap.Logger
}

func NewBotController(
	botInstance *bot.Bot,
	requests *service.SessionRequestService,
	sessions *service.SessionService,
	contacts Contacts,
	logger *zap.Logger,
) *BotController {
	return &BotController{
		bot:      botInstance,
		requests: requests,
		sessions: sessions,
		contacts: contacts,
		logger:   logger,
	}
}

// RegisterHandlers регистрирует все обработчики команд
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, c.handleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, c.handleStart)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/link", bot.MatchTypePrefix, c.handleLink)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/requests", bot.MatchTypeExact, c.handleRequests)
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sessions", bot.MatchTypeExact, c.handleSessions)

	// Кнопки принять/отклонить под заявкой
	c.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, keyboard.RequestPrefix, bot.MatchTypePrefix, c.handleRequestCallback)

	return c.setCommands(ctx)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "link", Description: "🔗 Привязать аккаунт: /link <id>"},
		{Command: "requests", Description: "📨 Заявки, ожидающие ответа"},
		{Command: "sessions", Description: "📅 Ближайшие занятия"},
		{Command: "help", Description: "❓ Справка по командам"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("✅ Bot commands menu set")
	return nil
}

// Start запускает бота, блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}
