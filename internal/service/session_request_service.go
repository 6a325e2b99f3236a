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

// CreateRequestInput данные заявки студента
type CreateRequestInput struct {
	StudentID       int64
	TutorID         int64
	SubjectID       int64
	DesiredDateTime time.Time
	DurationMinutes int
	Message         string
	Urgency         model.Urgency // пусто = medium
	MaxBudget       int64
	DateFlexible    bool
	AcceptsOnline   *bool // nil = true
	AcceptsInPerson bool
}

// RequestPatch изменения заявки студентом. nil = не менять
type RequestPatch struct {
	DesiredDateTime *time.Time     `json:"desired_date_time"`
	DurationMinutes *int           `json:"duration_minutes"`
	Message         *string        `json:"message"`
	Urgency         *model.Urgency `json:"urgency"`
	MaxBudget       *int64         `json:"max_budget"`
	DateFlexible    *bool          `json:"date_flexible"`
	AcceptsOnline   *bool          `json:"accepts_online"`
	AcceptsInPerson *bool          `json:"accepts_in_person"`
}

// RespondResult итог ответа репетитора. Session заполнен только при принятии.
type RespondResult struct {
	Request *model.SessionRequest `json:"request"`
	Session *model.Session        `json:"session,omitempty"`
}

type SessionRequestService struct {
	store    Store
	sessions *SessionService
	logger   *zap.Logger
	deps
}

func NewSessionRequestService(store Store, sessions *SessionService, logger *zap.Logger, opts ...Option) *SessionRequestService {
	return &SessionRequestService{
		store:    store,
		sessions: sessions,
		logger:   logger,
		deps:     newDeps(opts),
	}
}

// Create сохраняет заявку в статусе pending и уведомляет репетитора
func (s *SessionRequestService) Create(ctx context.Context, in CreateRequestInput) (*model.SessionRequest, error) {
	ctx, span := s.tracer.Start(ctx, "SessionRequestService.Create", trace.WithAttributes(
		attribute.Int64("tutor_id", in.TutorID),
		attribute.Int64("student_id", in.StudentID),
	))
	defer span.End()

	if in.Urgency == "" {
		in.Urgency = model.UrgencyMedium
	}
	acceptsOnline := true
	if in.AcceptsOnline != nil {
		acceptsOnline = *in.AcceptsOnline
	}

	req := &model.SessionRequest{
		StudentID:       in.StudentID,
		TutorID:         in.TutorID,
		SubjectID:       in.SubjectID,
		DesiredDateTime: in.DesiredDateTime,
		DurationMinutes: in.DurationMinutes,
		Message:         strings.TrimSpace(in.Message),
		Urgency:         in.Urgency,
		MaxBudget:       in.MaxBudget,
		Status:          model.RequestStatusPending,
		DateFlexible:    in.DateFlexible,
		AcceptsOnline:   acceptsOnline,
		AcceptsInPerson: in.AcceptsInPerson,
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	if err := s.store.Requests().Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create session request: %w", err)
	}

	s.logger.Info("Session request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("student_id", req.StudentID),
		zap.Int64("tutor_id", req.TutorID),
		zap.Time("desired_date_time", req.DesiredDateTime),
	)
	s.notifyRequest(ctx, req, req.TutorID, model.NotifyRequestCreated)

	return req, nil
}

func (s *SessionRequestService) validate(req *model.SessionRequest) error {
	if req.StudentID <= 0 {
		return invalid("student_id", "must be positive")
	}
	if req.TutorID <= 0 {
		return invalid("tutor_id", "must be positive")
	}
	if req.StudentID == req.TutorID {
		return invalid("tutor_id", "must differ from student_id")
	}
	if req.SubjectID <= 0 {
		return invalid("subject_id", "must be positive")
	}
	if !req.DesiredDateTime.After(s.now()) {
		return invalid("desired_date_time", "must be in the future")
	}
	if err := validateDuration(req.DurationMinutes); err != nil {
		return err
	}
	if req.Message == "" {
		return invalid("message", "must not be empty")
	}
	switch req.Urgency {
	case model.UrgencyLow, model.UrgencyMedium, model.UrgencyHigh:
	default:
		return invalid("urgency", "must be low, medium or high")
	}
	if err := validatePrice("max_budget", req.MaxBudget); err != nil {
		return err
	}
	if !req.AcceptsOnline && !req.AcceptsInPerson {
		return invalid("accepts_online", "at least one delivery type must be accepted")
	}
	return nil
}

// Update меняет заявку, пока она ждёт ответа
func (s *SessionRequestService) Update(ctx context.Context, id int64, patch RequestPatch) (*model.SessionRequest, error) {
	req, err := getRequest(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, requestTransitionError(req, "update")
	}

	if patch.DesiredDateTime != nil {
		req.DesiredDateTime = *patch.DesiredDateTime
	}
	if patch.DurationMinutes != nil {
		req.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Message != nil {
		req.Message = strings.TrimSpace(*patch.Message)
	}
	if patch.Urgency != nil {
		req.Urgency = *patch.Urgency
	}
	if patch.MaxBudget != nil {
		req.MaxBudget = *patch.MaxBudget
	}
	if patch.DateFlexible != nil {
		req.DateFlexible = *patch.DateFlexible
	}
	if patch.AcceptsOnline != nil {
		req.AcceptsOnline = *patch.AcceptsOnline
	}
	if patch.AcceptsInPerson != nil {
		req.AcceptsInPerson = *patch.AcceptsInPerson
	}
	if err := s.validate(req); err != nil {
		return nil, err
	}

	updated, err := s.store.Requests().UpdateIfStatus(ctx, req, model.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("update session request: %w", err)
	}
	if !updated {
		return nil, staleRequestError(ctx, s.store, id, "update")
	}

	s.logger.Info("Session request updated", zap.Int64("request_id", req.ID))
	return req, nil
}

// Respond ответ репетитора: accepted создаёт подтверждённое занятие, rejected только закрывает заявку
func (s *SessionRequestService) Respond(ctx context.Context, id int64, status model.RequestStatus, response string, counter *model.CounterProposal) (*RespondResult, error) {
	switch status {
	case model.RequestStatusAccepted:
		return s.accept(ctx, id, response, counter)
	case model.RequestStatusRejected:
		return s.reject(ctx, id, response, counter)
	}
	return nil, invalid("status", "must be accepted or rejected")
}

// Accept принимает заявку
func (s *SessionRequestService) Accept(ctx context.Context, id int64, response string, counter *model.CounterProposal) (*RespondResult, error) {
	return s.Respond(ctx, id, model.RequestStatusAccepted, response, counter)
}

// Reject отклоняет заявку
func (s *SessionRequestService) Reject(ctx context.Context, id int64, response string, counter *model.CounterProposal) (*RespondResult, error) {
	return s.Respond(ctx, id, model.RequestStatusRejected, response, counter)
}

func (s *SessionRequestService) validateCounter(counter *model.CounterProposal) error {
	if counter.IsEmpty() {
		return nil
	}
	if len(counter.AlternativeDates) > model.MaxAlternativeDates {
		return invalid("alternative_dates", fmt.Sprintf("at most %d dates", model.MaxAlternativeDates))
	}
	now := s.now()
	for _, d := range counter.AlternativeDates {
		if !d.After(now) {
			return invalid("alternative_dates", "must be in the future")
		}
	}
	if counter.Price != nil {
		if err := validatePrice("price", *counter.Price); err != nil {
			return err
		}
	}
	if counter.DurationMinutes != nil {
		if err := validateDuration(*counter.DurationMinutes); err != nil {
			return err
		}
	}
	return nil
}

func applyResponse(req *model.SessionRequest, status model.RequestStatus, response string, counter *model.CounterProposal, now time.Time) {
	req.Status = status
	req.TutorResponse = strings.TrimSpace(response)
	req.RespondedAt = &now
	if !counter.IsEmpty() {
		req.AlternativeDates = counter.AlternativeDates
		req.ProposedPrice = counter.Price
		req.ProposedDuration = counter.DurationMinutes
	}
}

// accept в одной транзакции и под блокировками участников закрывает заявку и создаёт занятие.
// Любая ошибка откатывает обе записи.
func (s *SessionRequestService) accept(ctx context.Context, id int64, response string, counter *model.CounterProposal) (*RespondResult, error) {
	ctx, span := s.tracer.Start(ctx, "SessionRequestService.Accept", trace.WithAttributes(attribute.Int64("request_id", id)))
	defer span.End()

	req, err := getRequest(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, requestTransitionError(req, "accept")
	}
	if err := s.validateCounter(counter); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, participantKeys(req.TutorID, req.StudentID)...)
	if err != nil {
		return nil, fmt.Errorf("acquire participant locks: %w", err)
	}
	defer release()

	var result RespondResult
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		current, err := getRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if !current.IsPending() {
			return requestTransitionError(current, "accept")
		}

		applyResponse(current, model.RequestStatusAccepted, response, counter, s.now())

		session, err := s.sessions.createIn(ctx, tx, sessionFromRequest(current, counter))
		if err != nil {
			return err
		}
		current.SessionID = &session.ID

		updated, err := tx.Requests().UpdateIfStatus(ctx, current, model.RequestStatusPending)
		if err != nil {
			return fmt.Errorf("update session request: %w", err)
		}
		if !updated {
			return staleRequestError(ctx, tx, id, "accept")
		}

		result = RespondResult{Request: current, Session: session}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.metrics.Conflict("accept")
			s.logger.Warn("Session request accept conflict", zap.Int64("request_id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("Session request accepted",
		zap.Int64("request_id", result.Request.ID),
		zap.Int64("session_id", result.Session.ID),
		zap.Int64("price", result.Session.Price),
	)
	s.metrics.RequestResponded(model.RequestStatusAccepted)
	s.metrics.SessionTransition(result.Session.Status)
	s.notifyRequest(ctx, result.Request, result.Request.StudentID, model.NotifyRequestAccepted)
	s.notifyParticipants(ctx, result.Session, model.NotifySessionCreated)

	return &result, nil
}

// sessionFromRequest цена: встречная, если репетитор её предложил, иначе бюджет студента.
// Формат: online, кроме случая, когда студент согласен только на очное занятие.
func sessionFromRequest(req *model.SessionRequest, counter *model.CounterProposal) CreateSessionInput {
	price := req.MaxBudget
	if counter != nil && counter.Price != nil {
		price = *counter.Price
	}
	delivery := model.DeliveryOnline
	if req.AcceptsInPerson && !req.AcceptsOnline {
		delivery = model.DeliveryInPerson
	}
	requestID := req.ID
	return CreateSessionInput{
		TutorID:          req.TutorID,
		StudentID:        req.StudentID,
		SubjectID:        req.SubjectID,
		RequestID:        &requestID,
		DateTime:         req.DesiredDateTime,
		DurationMinutes:  req.DurationMinutes,
		Price:            price,
		DeliveryType:     delivery,
		SkipConfirmation: true,
	}
}

func (s *SessionRequestService) reject(ctx context.Context, id int64, response string, counter *model.CounterProposal) (*RespondResult, error) {
	req, err := getRequest(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, requestTransitionError(req, "reject")
	}
	if err := s.validateCounter(counter); err != nil {
		return nil, err
	}

	applyResponse(req, model.RequestStatusRejected, response, counter, s.now())

	updated, err := s.store.Requests().UpdateIfStatus(ctx, req, model.RequestStatusPending)
	if err != nil {
		return nil, fmt.Errorf("update session request: %w", err)
	}
	if !updated {
		return nil, staleRequestError(ctx, s.store, id, "reject")
	}

	s.logger.Info("Session request rejected",
		zap.Int64("request_id", req.ID),
		zap.Int("alternative_dates", len(req.AlternativeDates)),
	)
	s.metrics.RequestResponded(model.RequestStatusRejected)
	s.notifyRequest(ctx, req, req.StudentID, model.NotifyRequestRejected)

	return &RespondResult{Request: req}, nil
}

// Delete удаляет заявку, пока она ждёт ответа
func (s *SessionRequestService) Delete(ctx context.Context, id int64) error {
	req, err := getRequest(ctx, s.store, id)
	if err != nil {
		return err
	}
	if !req.IsPending() {
		return requestTransitionError(req, "delete")
	}

	deleted, err := s.store.Requests().DeleteIfStatus(ctx, id, model.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("delete session request: %w", err)
	}
	if !deleted {
		return staleRequestError(ctx, s.store, id, "delete")
	}

	s.logger.Info("Session request deleted", zap.Int64("request_id", id))
	return nil
}

// Get возвращает заявку по ID
func (s *SessionRequestService) Get(ctx context.Context, id int64) (*model.SessionRequest, error) {
	return getRequest(ctx, s.store, id)
}

// List выборка заявок по фильтру
func (s *SessionRequestService) List(ctx context.Context, filter model.RequestFilter) ([]*model.SessionRequest, error) {
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

	requests, err := s.store.Requests().List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list session requests: %w", err)
	}
	return requests, nil
}

func getRequest(ctx context.Context, store Store, id int64) (*model.SessionRequest, error) {
	req, err := store.Requests().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session request: %w", err)
	}
	if req == nil {
		return nil, notFound("session request", id)
	}
	return req, nil
}

func staleRequestError(ctx context.Context, store Store, id int64, op string) error {
	current, err := getRequest(ctx, store, id)
	if err != nil {
		return err
	}
	return requestTransitionError(current, op)
}
