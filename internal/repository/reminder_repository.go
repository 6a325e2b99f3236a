package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/repository/base"
)

// ReminderRepository отметки об отправленных напоминаниях
type ReminderRepository struct {
	db base.DB
}

func NewReminderRepository(db base.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// MarkSent ставит отметку (session_id, kind), если занятие всё ещё confirmed с той же версией.
// FOR SHARE держит строку занятия до конца записи: параллельная отмена или перенос
// либо ждёт, либо уже сменили версию, и отметка не ставится.
func (r *ReminderRepository) MarkSent(ctx context.Context, sessionID, version int64, kind string, at time.Time) (bool, error) {
	query := `
		INSERT INTO session_reminders (session_id, kind, sent_at)
		SELECT id, $3, $4
		FROM sessions
		WHERE id = $1 AND version = $2 AND status = 'confirmed'
		FOR SHARE
		ON CONFLICT (session_id, kind) DO NOTHING
	`

	affected, err := base.ExecAffected(ctx, r.db, query, sessionID, version, kind, at)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}

	return affected > 0, nil
}

// ClearForSession удаляет отметки занятия (после переноса напоминания отправляются заново)
func (r *ReminderRepository) ClearForSession(ctx context.Context, sessionID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM session_reminders WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("clear session reminders: %w", err)
	}
	return nil
}
