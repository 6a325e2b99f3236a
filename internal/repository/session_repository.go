package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/repository/base"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `
	id, tutor_id, student_id, subject_id, request_id, date_time, duration_minutes,
	status, price, delivery_type, video_link, room, notes, summary, feedback, rating,
	no_show, confirmed_at, started_at, completed_at, cancelled_at, created_at, updated_at, version`

var activeSessionStatuses = []string{
	string(model.SessionStatusRequested),
	string(model.SessionStatusConfirmed),
	string(model.SessionStatusInProgress),
}

type SessionRepository struct {
	db base.DB
}

func NewSessionRepository(db base.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create создаёт новое занятие.
// Пересечение с активным занятием участника возвращает service.ErrOverlap.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	query := `
		INSERT INTO sessions (
			tutor_id, student_id, subject_id, request_id, date_time, duration_minutes, ends_at,
			status, price, delivery_type, video_link, room, notes, confirmed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at, version
	`

	err := r.db.QueryRow(
		ctx, query,
		session.TutorID,
		session.StudentID,
		session.SubjectID,
		session.RequestID,
		session.DateTime,
		session.DurationMinutes,
		session.EndTime(),
		session.Status,
		session.Price,
		session.DeliveryType,
		session.VideoLink,
		session.Room,
		session.Notes,
		session.ConfirmedAt,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt, &session.Version)

	if err != nil {
		if base.IsExclusionViolation(err) {
			return service.ErrOverlap
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	session, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	return session, nil
}

// UpdateIfVersion сохраняет изменяемые поля, если версия в базе всё ещё expected
func (r *SessionRepository) UpdateIfVersion(ctx context.Context, session *model.Session, expected int64) (bool, error) {
	query := `
		UPDATE sessions
		SET date_time = $1, duration_minutes = $2, ends_at = $3, status = $4, price = $5,
			delivery_type = $6, video_link = $7, room = $8, notes = $9, summary = $10,
			feedback = $11, rating = $12, no_show = $13, confirmed_at = $14, started_at = $15,
			completed_at = $16, cancelled_at = $17, updated_at = NOW(), version = version + 1
		WHERE id = $18 AND version = $19
		RETURNING updated_at, version
	`

	err := r.db.QueryRow(
		ctx, query,
		session.DateTime,
		session.DurationMinutes,
		session.EndTime(),
		session.Status,
		session.Price,
		session.DeliveryType,
		session.VideoLink,
		session.Room,
		session.Notes,
		session.Summary,
		session.Feedback,
		session.Rating,
		session.NoShow,
		session.ConfirmedAt,
		session.StartedAt,
		session.CompletedAt,
		session.CancelledAt,
		session.ID,
		expected,
	).Scan(&session.UpdatedAt, &session.Version)

	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		if base.IsExclusionViolation(err) {
			return false, service.ErrOverlap
		}
		return false, fmt.Errorf("update session: %w", err)
	}

	return true, nil
}

// DeleteIfStatus удаляет занятие, если статус в базе всё ещё expected
func (r *SessionRepository) DeleteIfStatus(ctx context.Context, id int64, expected model.SessionStatus) (bool, error) {
	affected, err := base.ExecAffected(ctx, r.db,
		`DELETE FROM sessions WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected > 0, nil
}

// ListActiveOverlapping активные занятия участников, пересекающие [start, end)
func (r *SessionRepository) ListActiveOverlapping(ctx context.Context, tutorID, studentID int64, start, end time.Time) ([]*model.Session, error) {
	if tutorID == 0 && studentID == 0 {
		return nil, nil
	}

	var w base.Where
	w.Add("status = ANY($%d)", activeSessionStatuses)
	w.Add("date_time < $%d", end)
	w.Add("ends_at > $%d", start)
	switch {
	case tutorID != 0 && studentID != 0:
		w.Add("(tutor_id = $%d OR student_id = $%d)", tutorID, studentID)
	case tutorID != 0:
		w.Add("tutor_id = $%d", tutorID)
	default:
		w.Add("student_id = $%d", studentID)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions` + w.SQL() + ` ORDER BY date_time ASC`

	sessions, err := r.query(ctx, query, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list overlapping sessions: %w", err)
	}
	return sessions, nil
}

// List выборка занятий по фильтру, по возрастанию времени начала
func (r *SessionRepository) List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	var w base.Where
	if filter.ParticipantID != nil {
		w.Add("(tutor_id = $%d OR student_id = $%d)", *filter.ParticipantID, *filter.ParticipantID)
	}
	if filter.TutorID != nil {
		w.Add("tutor_id = $%d", *filter.TutorID)
	}
	if filter.StudentID != nil {
		w.Add("student_id = $%d", *filter.StudentID)
	}
	if filter.SubjectID != nil {
		w.Add("subject_id = $%d", *filter.SubjectID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.Add("status = ANY($%d)", statuses)
	}
	if filter.From != nil {
		w.Add("date_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.Add("date_time < $%d", *filter.To)
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		w.Add("(notes ILIKE $%d OR COALESCE(summary, '') ILIKE $%d)", pattern, pattern)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions` + w.SQL() +
		` ORDER BY date_time ASC, id ASC` + w.Paginate(filter.Limit, filter.Offset)

	sessions, err := r.query(ctx, query, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) query(ctx context.Context, query string, args ...any) ([]*model.Session, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.TutorID,
		&s.StudentID,
		&s.SubjectID,
		&s.RequestID,
		&s.DateTime,
		&s.DurationMinutes,
		&s.Status,
		&s.Price,
		&s.DeliveryType,
		&s.VideoLink,
		&s.Room,
		&s.Notes,
		&s.Summary,
		&s.Feedback,
		&s.Rating,
		&s.NoShow,
		&s.ConfirmedAt,
		&s.StartedAt,
		&s.CompletedAt,
		&s.CancelledAt,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.Version,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
