package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutoring_backend/internal/repository/base"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store хранилище на Postgres. Все репозитории работают через один base.DB:
// пул вне транзакции, pgx.Tx внутри WithinTx.
type Store struct {
	db        base.DB
	sessions  *SessionRepository
	requests  *SessionRequestRepository
	reminders *ReminderRepository
}

// NewStore создаёт хранилище поверх пула
func NewStore(pool *pgxpool.Pool) *Store {
	return newStore(pool)
}

func newStore(db base.DB) *Store {
	return &Store{
		db:        db,
		sessions:  NewSessionRepository(db),
		requests:  NewSessionRequestRepository(db),
		reminders: NewReminderRepository(db),
	}
}

func (s *Store) Sessions() service.SessionRepository   { return s.sessions }
func (s *Store) Requests() service.RequestRepository   { return s.requests }
func (s *Store) Reminders() service.ReminderRepository { return s.reminders }

// WithinTx выполняет fn в транзакции. Вложенный вызов открывает savepoint.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.Store) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, newStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if base.IsExclusionViolation(err) {
			return service.ErrOverlap
		}
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
