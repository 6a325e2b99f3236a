package service

import (
	"context"
	"errors"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
)

// ErrOverlap хранилище возвращает эту ошибку, если запись нарушает правило
// непересечения активных занятий (exclusion constraint в Postgres).
var ErrOverlap = errors.New("active session overlaps an existing one")

// SessionRepository хранилище занятий.
// GetByID возвращает (nil, nil), если занятия нет.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	// UpdateIfVersion записывает изменяемые поля, только если версия в хранилище всё ещё expected.
	// При успехе session.Version увеличивается. Пересечение возвращает ErrOverlap.
	UpdateIfVersion(ctx context.Context, session *model.Session, expected int64) (bool, error)
	DeleteIfStatus(ctx context.Context, id int64, expected model.SessionStatus) (bool, error)
	// ListActiveOverlapping активные занятия репетитора tutorID или студента studentID,
	// пересекающие [start, end). Ноль отключает соответствующую роль.
	ListActiveOverlapping(ctx context.Context, tutorID, studentID int64, start, end time.Time) ([]*model.Session, error)
	List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)
}

// RequestRepository хранилище заявок.
// GetByID возвращает (nil, nil), если заявки нет.
type RequestRepository interface {
	Create(ctx context.Context, req *model.SessionRequest) error
	GetByID(ctx context.Context, id int64) (*model.SessionRequest, error)
	UpdateIfStatus(ctx context.Context, req *model.SessionRequest, expected model.RequestStatus) (bool, error)
	DeleteIfStatus(ctx context.Context, id int64, expected model.RequestStatus) (bool, error)
	List(ctx context.Context, filter model.RequestFilter) ([]*model.SessionRequest, error)
}

// ReminderRepository отметки об отправленных напоминаниях
type ReminderRepository interface {
	// MarkSent ставит отметку (sessionID, kind), только если занятие всё ещё подтверждено
	// и его версия равна version. true = отметка поставлена сейчас.
	MarkSent(ctx context.Context, sessionID, version int64, kind string, at time.Time) (bool, error)
	ClearForSession(ctx context.Context, sessionID int64) error
}

// Store единица работы над хранилищем.
// Внутри WithinTx нужно использовать только переданный tx.
type Store interface {
	Sessions() SessionRepository
	Requests() RequestRepository
	Reminders() ReminderRepository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
