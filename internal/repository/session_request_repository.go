package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/repository/base"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `
	id, student_id, tutor_id, subject_id, desired_date_time, duration_minutes, message,
	urgency, max_budget, status, tutor_response, responded_at, alternative_dates,
	proposed_price, proposed_duration, date_flexible, accepts_online, accepts_in_person,
	session_id, created_at, updated_at`

type SessionRequestRepository struct {
	db base.DB
}

func NewSessionRequestRepository(db base.DB) *SessionRequestRepository {
	return &SessionRequestRepository{db: db}
}

// Create создаёт заявку
func (r *SessionRequestRepository) Create(ctx context.Context, req *model.SessionRequest) error {
	query := `
		INSERT INTO session_requests (
			student_id, tutor_id, subject_id, desired_date_time, duration_minutes, message,
			urgency, max_budget, status, date_flexible, accepts_online, accepts_in_person
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		req.StudentID,
		req.TutorID,
		req.SubjectID,
		req.DesiredDateTime,
		req.DurationMinutes,
		req.Message,
		req.Urgency,
		req.MaxBudget,
		req.Status,
		req.DateFlexible,
		req.AcceptsOnline,
		req.AcceptsInPerson,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create session request: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *SessionRequestRepository) GetByID(ctx context.Context, id int64) (*model.SessionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM session_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session request: %w", err)
	}

	return req, nil
}

// UpdateIfStatus сохраняет заявку, если статус в базе всё ещё expected
func (r *SessionRequestRepository) UpdateIfStatus(ctx context.Context, req *model.SessionRequest, expected model.RequestStatus) (bool, error) {
	query := `
		UPDATE session_requests
		SET desired_date_time = $1, duration_minutes = $2, message = $3, urgency = $4,
			max_budget = $5, status = $6, tutor_response = $7, responded_at = $8,
			alternative_dates = $9, proposed_price = $10, proposed_duration = $11,
			date_flexible = $12, accepts_online = $13, accepts_in_person = $14,
			session_id = $15, updated_at = NOW()
		WHERE id = $16 AND status = $17
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		req.DesiredDateTime,
		req.DurationMinutes,
		req.Message,
		req.Urgency,
		req.MaxBudget,
		req.Status,
		req.TutorResponse,
		req.RespondedAt,
		req.AlternativeDates,
		req.ProposedPrice,
		req.ProposedDuration,
		req.DateFlexible,
		req.AcceptsOnline,
		req.AcceptsInPerson,
		req.SessionID,
		req.ID,
		expected,
	).Scan(&req.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("update session request: %w", err)
	}

	return true, nil
}

// DeleteIfStatus удаляет заявку, если статус в базе всё ещё expected
func (r *SessionRequestRepository) DeleteIfStatus(ctx context.Context, id int64, expected model.RequestStatus) (bool, error) {
	affected, err := base.ExecAffected(ctx, r.db,
		`DELETE FROM session_requests WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return false, fmt.Errorf("delete session request: %w", err)
	}
	return affected > 0, nil
}

// List выборка заявок, новые первыми
func (r *SessionRequestRepository) List(ctx context.Context, filter model.RequestFilter) ([]*model.SessionRequest, error) {
	var w base.Where
	if filter.StudentID != nil {
		w.Add("student_id = $%d", *filter.StudentID)
	}
	if filter.TutorID != nil {
		w.Add("tutor_id = $%d", *filter.TutorID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		w.Add("status = ANY($%d)", statuses)
	}
	if filter.From != nil {
		w.Add("desired_date_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.Add("desired_date_time < $%d", *filter.To)
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		w.Add("(message ILIKE $%d OR tutor_response ILIKE $%d)", pattern, pattern)
	}

	query := `SELECT ` + requestColumns + ` FROM session_requests` + w.SQL() +
		` ORDER BY created_at DESC, id DESC` + w.Paginate(filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, query, w.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list session requests: %w", err)
	}
	defer rows.Close()

	var requests []*model.SessionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session request: %w", err)
		}
		requests = append(requests, req)
	}

	return requests, rows.Err()
}

func scanRequest(row pgx.Row) (*model.SessionRequest, error) {
	var req model.SessionRequest
	err := row.Scan(
		&req.ID,
		&req.StudentID,
		&req.TutorID,
		&req.SubjectID,
		&req.DesiredDateTime,
		&req.DurationMinutes,
		&req.Message,
		&req.Urgency,
		&req.MaxBudget,
		&req.Status,
		&req.TutorResponse,
		&req.RespondedAt,
		&req.AlternativeDates,
		&req.ProposedPrice,
		&req.ProposedDuration,
		&req.DateFlexible,
		&req.AcceptsOnline,
		&req.AcceptsInPerson,
		&req.SessionID,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}
