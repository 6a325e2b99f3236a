package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxPrice верхняя граница цены и бюджета в минимальных единицах (10 000.00)
const MaxPrice int64 = 1_000_000

// Размер страницы для списков
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

const noteTimeLayout = "2006-01-02 15:04"

// CreateSessionInput данные нового занятия
type CreateSessionInput struct {
	TutorID         int64
	StudentID       int64
	SubjectID       int64
	RequestID       *int64
	DateTime        time.Time
	DurationMinutes int
	Price           int64
	DeliveryType    model.DeliveryType // пусто = online
	VideoLink       string
	Room            string
	Notes           string
	// SkipConfirmation создаёт занятие сразу в статусе confirmed
	SkipConfirmation bool
}

type SessionService struct {
	store  Store
	logger *zap.Logger
	deps
}

func NewSessionService(store Store, logger *zap.Logger, opts ...Option) *SessionService {
	return &SessionService{
		store:  store,
		logger: logger,
		deps:   newDeps(opts),
	}
}

// Create создаёт занятие. Проверка занятости и запись идут под блокировками участников.
func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*model.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Create", trace.WithAttributes(
		attribute.Int64("tutor_id", in.TutorID),
		attribute.Int64("student_id", in.StudentID),
	))
	defer span.End()

	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, participantKeys(in.TutorID, in.StudentID)...)
	if err != nil {
		return nil, fmt.Errorf("acquire participant locks: %w", err)
	}
	defer release()

	var session *model.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		session, err = s.createIn(ctx, tx, in)
		return err
	})
	if err != nil {
		s.observeConflict(err, "create")
		return nil, err
	}

	s.logger.Info("Session created",
		zap.Int64("session_id", session.ID),
		zap.Int64("tutor_id", session.TutorID),
		zap.Int64("student_id", session.StudentID),
		zap.Time("date_time", session.DateTime),
		zap.String("status", string(session.Status)),
	)
	s.metrics.SessionTransition(session.Status)
	s.notifyParticipants(ctx, session, model.NotifySessionCreated)

	return session, nil
}

func (s *SessionService) validateCreate(in CreateSessionInput) error {
	if in.TutorID <= 0 {
		return invalid("tutor_id", "must be positive")
	}
	if in.StudentID <= 0 {
		return invalid("student_id", "must be positive")
	}
	if in.TutorID == in.StudentID {
		return invalid("student_id", "must differ from tutor_id")
	}
	if in.SubjectID <= 0 {
		return invalid("subject_id", "must be positive")
	}
	if !in.DateTime.After(s.now()) {
		return invalid("date_time", "must be in the future")
	}
	if err := validateDuration(in.DurationMinutes); err != nil {
		return err
	}
	if err := validatePrice("price", in.Price); err != nil {
		return err
	}
	if in.DeliveryType != "" && !in.DeliveryType.IsValid() {
		return invalid("delivery_type", "must be online or in_person")
	}
	return nil
}

// createIn проверяет занятость и пишет занятие в переданной транзакции.
// Блокировки участников берёт вызывающий.
func (s *SessionService) createIn(ctx context.Context, tx Store, in CreateSessionInput) (*model.Session, error) {
	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	end := in.DateTime.Add(time.Duration(in.DurationMinutes) * time.Minute)
	conflicts, err := conflictsIn(ctx, tx, in.TutorID, in.StudentID, in.DateTime, end, 0)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &ConflictError{Start: in.DateTime, End: end, Conflicts: conflicts}
	}

	delivery := in.DeliveryType
	if delivery == "" {
		delivery = model.DeliveryOnline
	}

	session := &model.Session{
		TutorID:         in.TutorID,
		StudentID:       in.StudentID,
		SubjectID:       in.SubjectID,
		RequestID:       in.RequestID,
		DateTime:        in.DateTime,
		DurationMinutes: in.DurationMinutes,
		Status:          model.SessionStatusRequested,
		Price:           in.Price,
		DeliveryType:    delivery,
		VideoLink:       in.VideoLink,
		Room:            in.Room,
		Notes:           in.Notes,
	}
	if in.SkipConfirmation {
		now := s.now()
		session.Status = model.SessionStatusConfirmed
		session.ConfirmedAt = &now
	}

	if err := tx.Sessions().Create(ctx, session); err != nil {
		if errors.Is(err, ErrOverlap) {
			return nil, &ConflictError{Start: in.DateTime, End: end}
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

// Get возвращает занятие по ID
func (s *SessionService) Get(ctx context.Context, id int64) (*model.Session, error) {
	return getSession(ctx, s.store, id)
}

// List выборка занятий по фильтру
func (s *SessionService) List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	if filter.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, invalid("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	filter.Limit = clampLimit(filter.Limit)
	filter.Query = strings.TrimSpace(filter.Query)

	sessions, err := s.store.Sessions().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Confirm requested → confirmed
func (s *SessionService) Confirm(ctx context.Context, id int64) (*model.Session, error) {
	return s.transition(ctx, id, model.EventConfirm, "confirm", func(session *model.Session, now time.Time) {
		session.ConfirmedAt = &now
	})
}

// Start confirmed → in_progress
func (s *SessionService) Start(ctx context.Context, id int64) (*model.Session, error) {
	return s.transition(ctx, id, model.EventStart, "start", func(session *model.Session, now time.Time) {
		session.StartedAt = &now
	})
}

// Complete in_progress → completed, с итогами занятия
func (s *SessionService) Complete(ctx context.Context, id int64, details model.CompletionDetails) (*model.Session, error) {
	if details.Rating != nil && (*details.Rating < 1 || *details.Rating > 5) {
		return nil, invalid("rating", "must be between 1 and 5")
	}

	return s.transition(ctx, id, model.EventComplete, "complete", func(session *model.Session, now time.Time) {
		session.CompletedAt = &now
		session.Summary = trimmedOrNil(details.Summary)
		session.Feedback = trimmedOrNil(details.Feedback)
		session.Rating = details.Rating
	})
}

// Cancel отменяет занятие из requested, confirmed или in_progress. Причина дописывается в заметки.
func (s *SessionService) Cancel(ctx context.Context, id int64, reason string) (*model.Session, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, id, model.EventCancel, "cancel", func(session *model.Session, now time.Time) {
		session.CancelledAt = &now
		if reason != "" {
			session.AppendNote(fmt.Sprintf("Cancelled at %s: %s", now.Format(noteTimeLayout), reason))
		}
	})
}

var transitionNotifications = map[model.SessionEvent]model.NotificationKind{
	model.EventConfirm:   model.NotifySessionConfirmed,
	model.EventStart:     model.NotifySessionStarted,
	model.EventAutoStart: model.NotifySessionStarted,
	model.EventComplete:  model.NotifySessionCompleted,
	model.EventCancel:    model.NotifySessionCancelled,
	model.EventNoShow:    model.NotifySessionNoShow,
}

// maxWriteAttempts сколько раз перечитывать занятие, если его изменили между чтением и записью
const maxWriteAttempts = 3

// errStaleSession версия занятия сменилась между чтением и записью
var errStaleSession = errors.New("session changed concurrently")

// transition меняет статус по таблице переходов и пишет его compare-and-set по версии
func (s *SessionService) transition(ctx context.Context, id int64, event model.SessionEvent, op string, apply func(*model.Session, time.Time)) (*model.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService."+op, trace.WithAttributes(attribute.Int64("session_id", id)))
	defer span.End()

	var session *model.Session
	err := s.retryStale(ctx, id, op, func() error {
		current, err := getSession(ctx, s.store, id)
		if err != nil {
			return err
		}
		if err := applyTransition(ctx, s.store, current, event, op, s.now(), apply); err != nil {
			return err
		}
		session = current
		return nil
	})
	if err != nil {
		s.observeConflict(err, op)
		return nil, err
	}

	s.logger.Info("Session status changed",
		zap.Int64("session_id", session.ID),
		zap.String("event", string(event)),
		zap.String("status", string(session.Status)),
	)
	s.metrics.SessionTransition(session.Status)
	s.notifyParticipants(ctx, session, transitionNotifications[event])

	return session, nil
}

// retryStale повторяет чтение и запись, пока версия не совпадёт, не дольше maxWriteAttempts раз
func (s *SessionService) retryStale(ctx context.Context, id int64, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, errStaleSession) {
			return err
		}
		if attempt == maxWriteAttempts {
			return staleSessionError(ctx, s.store, id, op)
		}
		s.logger.Debug("Session changed concurrently, retrying",
			zap.Int64("session_id", id),
			zap.String("operation", op),
			zap.Int("attempt", attempt),
		)
	}
}

// applyTransition общая часть для сервиса и фонового планировщика.
// Если занятие изменили после чтения, возвращает errStaleSession.
func applyTransition(ctx context.Context, store Store, session *model.Session, event model.SessionEvent, op string, now time.Time, apply func(*model.Session, time.Time)) error {
	next, ok := model.NextSessionStatus(session.Status, event)
	if !ok {
		return sessionTransitionError(session, op)
	}

	session.Status = next
	if apply != nil {
		apply(session, now)
	}

	return writeSession(ctx, store, session)
}

// writeSession compare-and-set по прочитанной версии занятия
func writeSession(ctx context.Context, store Store, session *model.Session) error {
	updated, err := store.Sessions().UpdateIfVersion(ctx, session, session.Version)
	if err != nil {
		if errors.Is(err, ErrOverlap) {
			return &ConflictError{Start: session.DateTime, End: session.EndTime()}
		}
		return fmt.Errorf("update session: %w", err)
	}
	if !updated {
		return errStaleSession
	}
	return nil
}

// Reschedule переносит занятие на newDateTime. Статус не меняется, в заметки пишется история.
func (s *SessionService) Reschedule(ctx context.Context, id int64, newDateTime time.Time, reason string) (*model.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Reschedule", trace.WithAttributes(attribute.Int64("session_id", id)))
	defer span.End()

	now := s.now()
	if !newDateTime.After(now) {
		return nil, invalid("date_time", "must be in the future")
	}

	session, err := getSession(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkReschedulable(session, now); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, participantKeys(session.TutorID, session.StudentID)...)
	if err != nil {
		return nil, fmt.Errorf("acquire participant locks: %w", err)
	}
	defer release()

	var oldDateTime time.Time
	err = s.retryStale(ctx, id, "reschedule", func() error {
		return s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
			current, err := getSession(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := s.checkReschedulable(current, now); err != nil {
				return err
			}

			end := newDateTime.Add(time.Duration(current.DurationMinutes) * time.Minute)
			conflicts, err := conflictsIn(ctx, tx, current.TutorID, current.StudentID, newDateTime, end, current.ID)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 {
				return &ConflictError{Start: newDateTime, End: end, Conflicts: conflicts}
			}

			oldDateTime = current.DateTime
			current.DateTime = newDateTime
			current.AppendNote(rescheduleNote(oldDateTime, newDateTime, reason))

			if err := writeSession(ctx, tx, current); err != nil {
				return err
			}

			// Напоминания должны прийти заново для нового времени
			if err := tx.Reminders().ClearForSession(ctx, id); err != nil {
				return err
			}

			session = current
			return nil
		})
	})
	if err != nil {
		s.observeConflict(err, "reschedule")
		return nil, err
	}

	s.logger.Info("Session rescheduled",
		zap.Int64("session_id", session.ID),
		zap.Time("from", oldDateTime),
		zap.Time("to", session.DateTime),
	)
	s.notifyParticipants(ctx, session, model.NotifySessionMoved)

	return session, nil
}

func (s *SessionService) checkReschedulable(session *model.Session, now time.Time) error {
	switch session.Status {
	case model.SessionStatusRequested:
		return nil
	case model.SessionStatusConfirmed:
		if session.DateTime.Sub(now) > s.rescheduleNotice {
			return nil
		}
	}
	return sessionTransitionError(session, "reschedule")
}

func rescheduleNote(from, to time.Time, reason string) string {
	note := fmt.Sprintf("Rescheduled from %s to %s", from.Format(noteTimeLayout), to.Format(noteTimeLayout))
	if reason = strings.TrimSpace(reason); reason != "" {
		note += ": " + reason
	}
	return note
}

// Update меняет цену, заметки, ссылку, аудиторию и формат.
// Только для requested/confirmed и пока занятие не началось.
func (s *SessionService) Update(ctx context.Context, id int64, patch model.SessionPatch) (*model.Session, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Update", trace.WithAttributes(attribute.Int64("session_id", id)))
	defer span.End()

	if patch.Price != nil {
		if err := validatePrice("price", *patch.Price); err != nil {
			return nil, err
		}
	}
	if patch.DeliveryType != nil && !patch.DeliveryType.IsValid() {
		return nil, invalid("delivery_type", "must be online or in_person")
	}

	var session *model.Session
	err := s.retryStale(ctx, id, "update", func() error {
		current, err := getSession(ctx, s.store, id)
		if err != nil {
			return err
		}
		if !isEditable(current.Status) || !current.DateTime.After(s.now()) {
			return sessionTransitionError(current, "update")
		}

		applyPatch(current, patch)
		if err := writeSession(ctx, s.store, current); err != nil {
			return err
		}
		session = current
		return nil
	})
	if err != nil {
		s.observeConflict(err, "update")
		return nil, err
	}

	s.logger.Info("Session updated", zap.Int64("session_id", session.ID))
	return session, nil
}

func applyPatch(session *model.Session, patch model.SessionPatch) {
	if patch.Price != nil {
		session.Price = *patch.Price
	}
	if patch.Notes != nil {
		session.Notes = *patch.Notes
	}
	if patch.VideoLink != nil {
		session.VideoLink = strings.TrimSpace(*patch.VideoLink)
	}
	if patch.Room != nil {
		session.Room = strings.TrimSpace(*patch.Room)
	}
	if patch.DeliveryType != nil {
		session.DeliveryType = *patch.DeliveryType
	}
}

// Delete удаляет занятие в статусе requested или confirmed
func (s *SessionService) Delete(ctx context.Context, id int64) error {
	session, err := getSession(ctx, s.store, id)
	if err != nil {
		return err
	}
	if !isEditable(session.Status) {
		return sessionTransitionError(session, "delete")
	}

	deleted, err := s.store.Sessions().DeleteIfStatus(ctx, id, session.Status)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !deleted {
		return staleSessionError(ctx, s.store, id, "delete")
	}

	s.logger.Info("Session deleted",
		zap.Int64("session_id", id),
		zap.String("status", string(session.Status)),
	)
	return nil
}

func isEditable(status model.SessionStatus) bool {
	return status == model.SessionStatusRequested || status == model.SessionStatusConfirmed
}

func getSession(ctx context.Context, store Store, id int64) (*model.Session, error) {
	session, err := store.Sessions().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, notFound("session", id)
	}
	return session, nil
}

// staleSessionError compare-and-set так и не прошёл: объясняем по текущему состоянию занятия
func staleSessionError(ctx context.Context, store Store, id int64, op string) error {
	current, err := getSession(ctx, store, id)
	if err != nil {
		return err
	}
	return sessionTransitionError(current, op)
}

func (s *SessionService) observeConflict(err error, op string) {
	if errors.Is(err, ErrConflict) {
		s.metrics.Conflict(op)
		s.logger.Warn("Session time conflict", zap.String("operation", op), zap.Error(err))
	}
}

func validateDuration(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return invalid("duration_minutes", "must be between 30 and 480")
	}
	return nil
}

func validatePrice(field string, price int64) error {
	if price < 0 {
		return invalid(field, "must not be negative")
	}
	if price > MaxPrice {
		return invalid(field, fmt.Sprintf("must not exceed %d", MaxPrice))
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
