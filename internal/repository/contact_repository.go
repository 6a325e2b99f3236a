package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutoring_backend/internal/repository/base"
)

// ContactRepository связь пользователя с чатом Telegram
type ContactRepository struct {
	db base.DB
}

func NewContactRepository(db base.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetTelegramChatID возвращает чат пользователя. ok = false, если контакта нет.
func (r *ContactRepository) GetTelegramChatID(ctx context.Context, userID int64) (int64, bool, error) {
	var chatID int64
	err := r.db.QueryRow(ctx,
		`SELECT telegram_chat_id FROM user_contacts WHERE user_id = $1`, userID,
	).Scan(&chatID)

	if err != nil {
		if base.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get telegram chat: %w", err)
	}

	return chatID, true, nil
}

// GetUserIDByChatID обратный поиск: какой пользователь пишет из чата
func (r *ContactRepository) GetUserIDByChatID(ctx context.Context, chatID int64) (int64, bool, error) {
	var userID int64
	err := r.db.QueryRow(ctx,
		`SELECT user_id FROM user_contacts WHERE telegram_chat_id = $1`, chatID,
	).Scan(&userID)

	if err != nil {
		if base.IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get user by telegram chat: %w", err)
	}

	return userID, true, nil
}

// SetTelegramChatID привязывает чат к пользователю
func (r *ContactRepository) SetTelegramChatID(ctx context.Context, userID, chatID int64) error {
	query := `
		INSERT INTO user_contacts (user_id, telegram_chat_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET telegram_chat_id = EXCLUDED.telegram_chat_id, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, userID, chatID); err != nil {
		return fmt.Errorf("set telegram chat: %w", err)
	}

	return nil
}
