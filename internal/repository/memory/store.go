// Package memory хранилище в памяти процесса: тесты и STORAGE_DRIVER=memory.
// Правила те же, что у Postgres: непересечение активных занятий проверяется при записи.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
)

type reminderKey struct {
	sessionID int64
	kind      string
}

type state struct {
	sessions      map[int64]*model.Session
	requests      map[int64]*model.SessionRequest
	reminders     map[reminderKey]time.Time
	nextSessionID int64
	nextRequestID int64
}

func newState() *state {
	return &state{
		sessions:  make(map[int64]*model.Session),
		requests:  make(map[int64]*model.SessionRequest),
		reminders: make(map[reminderKey]time.Time),
	}
}

func (st *state) clone() *state {
	c := &state{
		sessions:      make(map[int64]*model.Session, len(st.sessions)),
		requests:      make(map[int64]*model.SessionRequest, len(st.requests)),
		reminders:     make(map[reminderKey]time.Time, len(st.reminders)),
		nextSessionID: st.nextSessionID,
		nextRequestID: st.nextRequestID,
	}
	for id, s := range st.sessions {
		c.sessions[id] = copySession(s)
	}
	for id, r := range st.requests {
		c.requests[id] = copyRequest(r)
	}
	for k, v := range st.reminders {
		c.reminders[k] = v
	}
	return c
}

// Store реализует service.Store. Один мьютекс на всё хранилище;
// транзакция работает над копией состояния и подменяет его при успехе.
type Store struct {
	mu   *sync.Mutex
	st   *state
	now  func() time.Time
	inTx bool
}

// Option настраивает хранилище
type Option func(*Store)

// WithClock источник времени для created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New создаёт пустое хранилище
func New(opts ...Option) *Store {
	s := &Store{mu: &sync.Mutex{}, st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Sessions() service.SessionRepository   { return &sessionRepo{s} }
func (s *Store) Requests() service.RequestRepository   { return &requestRepo{s} }
func (s *Store) Reminders() service.ReminderRepository { return &reminderRepo{s} }

// WithinTx выполняет fn над копией состояния. Ошибка fn откатывает все изменения.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx service.Store) error) error {
	unlock := s.lock()
	defer unlock()

	tx := &Store{mu: s.mu, st: s.st.clone(), now: s.now, inTx: true}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	*s.st = *tx.st
	return nil
}

// lock внутри транзакции мьютекс уже взят
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// overlapping активные занятия участников, пересекающие [start, end), кроме excludeID
func (st *state) overlapping(tutorID, studentID int64, start, end time.Time, excludeID int64) []*model.Session {
	var out []*model.Session
	for _, s := range st.sessions {
		if s.ID == excludeID || !s.IsActive() {
			continue
		}
		if !(tutorID != 0 && s.TutorID == tutorID) && !(studentID != 0 && s.StudentID == studentID) {
			continue
		}
		if model.Overlaps(start, end, s.DateTime, s.EndTime()) {
			out = append(out, s)
		}
	}
	return out
}

// violatesOverlap проверка, которую в Postgres делают EXCLUDE-ограничения
func (st *state) violatesOverlap(s *model.Session) bool {
	if !s.IsActive() {
		return false
	}
	for _, other := range st.sessions {
		if other.ID == s.ID || !other.IsActive() {
			continue
		}
		if other.TutorID != s.TutorID && other.StudentID != s.StudentID {
			continue
		}
		if model.Overlaps(s.DateTime, s.EndTime(), other.DateTime, other.EndTime()) {
			return true
		}
	}
	return false
}

type sessionRepo struct{ s *Store }

func (r *sessionRepo) Create(_ context.Context, session *model.Session) error {
	unlock := r.s.lock()
	defer unlock()

	st := r.s.st
	if st.violatesOverlap(session) {
		return service.ErrOverlap
	}

	st.nextSessionID++
	now := r.s.now()
	session.ID = st.nextSessionID
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Version = 1
	st.sessions[session.ID] = copySession(session)
	return nil
}

func (r *sessionRepo) GetByID(_ context.Context, id int64) (*model.Session, error) {
	unlock := r.s.lock()
	defer unlock()

	s, ok := r.s.st.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (r *sessionRepo) UpdateIfVersion(_ context.Context, session *model.Session, expected int64) (bool, error) {
	unlock := r.s.lock()
	defer unlock()

	st := r.s.st
	current, ok := st.sessions[session.ID]
	if !ok || current.Version != expected {
		return false, nil
	}
	if st.violatesOverlap(session) {
		return false, service.ErrOverlap
	}

	updated := copySession(session)
	updated.TutorID = current.TutorID
	updated.StudentID = current.StudentID
	updated.SubjectID = current.SubjectID
	updated.RequestID = current.RequestID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = r.s.now()
	updated.Version = current.Version + 1
	session.UpdatedAt = updated.UpdatedAt
	session.Version = updated.Version
	st.sessions[session.ID] = updated
	return true, nil
}

func (r *sessionRepo) DeleteIfStatus(_ context.Context, id int64, expected model.SessionStatus) (bool, error) {
	unlock := r.s.lock()
	defer unlock()

	st := r.s.st
	current, ok := st.sessions[id]
	if !ok || current.Status != expected {
		return false, nil
	}
	delete(st.sessions, id)
	for k := range st.reminders {
		if k.sessionID == id {
			delete(st.reminders, k)
		}
	}
	for _, req := range st.requests {
		if req.SessionID != nil && *req.SessionID == id {
			req.SessionID = nil
		}
	}
	return true, nil
}

func (r *sessionRepo) ListActiveOverlapping(_ context.Context, tutorID, studentID int64, start, end time.Time) ([]*model.Session, error) {
	unlock := r.s.lock()
	defer unlock()

	if tutorID == 0 && studentID == 0 {
		return nil, nil
	}
	found := r.s.st.overlapping(tutorID, studentID, start, end, 0)
	out := make([]*model.Session, 0, len(found))
	for _, s := range found {
		out = append(out, copySession(s))
	}
	sortSessions(out)
	return out, nil
}

func (r *sessionRepo) List(_ context.Context, f model.SessionFilter) ([]*model.Session, error) {
	unlock := r.s.lock()
	defer unlock()

	var out []*model.Session
	for _, s := range r.s.st.sessions {
		if matchSession(s, f) {
			out = append(out, copySession(s))
		}
	}
	sortSessions(out)
	return paginate(out, f.Limit, f.Offset), nil
}

func matchSession(s *model.Session, f model.SessionFilter) bool {
	if f.ParticipantID != nil && s.TutorID != *f.ParticipantID && s.StudentID != *f.ParticipantID {
		return false
	}
	if f.TutorID != nil && s.TutorID != *f.TutorID {
		return false
	}
	if f.StudentID != nil && s.StudentID != *f.StudentID {
		return false
	}
	if f.SubjectID != nil && s.SubjectID != *f.SubjectID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status) {
		return false
	}
	if f.From != nil && s.DateTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !s.DateTime.Before(*f.To) {
		return false
	}
	if f.Query != "" {
		summary := ""
		if s.Summary != nil {
			summary = *s.Summary
		}
		if !containsFold(s.Notes, f.Query) && !containsFold(summary, f.Query) {
			return false
		}
	}
	return true
}

func sortSessions(sessions []*model.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].DateTime.Equal(sessions[j].DateTime) {
			return sessions[i].DateTime.Before(sessions[j].DateTime)
		}
		return sessions[i].ID < sessions[j].ID
	})
}

type requestRepo struct{ s *Store }

func (r *requestRepo) Create(_ context.Context, req *model.SessionRequest) error {
	unlock := r.s.lock()
	defer unlock()

	st := r.s.st
	st.nextRequestID++
	now := r.s.now()
	req.ID = st.nextRequestID
	req.CreatedAt = now
	req.UpdatedAt = now
	st.requests[req.ID] = copyRequest(req)
	return nil
}

func (r *requestRepo) GetByID(_ context.Context, id int64) (*model.SessionRequest, error) {
	unlock := r.s.lock()
	defer unlock()

	req, ok := r.s.st.requests[id]
	if !ok {
		return nil, nil
	}
	return copyRequest(req), nil
}

func (r *requestRepo) UpdateIfStatus(_ context.Context, req *model.SessionRequest, expected model.RequestStatus) (bool, error) {
	unlock := r.s.lock()
	defer unlock()

	st := r.s.st
	current, ok := st.requests[req.ID]
	if !ok || current.Status != expected {
		return false, nil
	}

	updated := copyRequest(req)
	updated.StudentID = current.StudentID
	updated.TutorID = current.TutorID
	updated.SubjectID = current.SubjectID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = r.s.now()
	req.UpdatedAt = updated.UpdatedAt
	st.requests[req.ID] = updated
	return true, nil
}

func (r *requestRepo) DeleteIfStatus(_ context.Context, id int64, expected model.RequestStatus) (bool, error) {
	unlock := r.s.lock()
	defer unlock()

	st := r.s.st
	current, ok := st.requests[id]
	if !ok || current.Status != expected {
		return false, nil
	}
	delete(st.requests, id)
	return true, nil
}

func (r *requestRepo) List(_ context.Context, f model.RequestFilter) ([]*model.SessionRequest, error) {
	unlock := r.s.lock()
	defer unlock()

	var out []*model.SessionRequest
	for _, req := range r.s.st.requests {
		if matchRequest(req, f) {
			out = append(out, copyRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func matchRequest(r *model.SessionRequest, f model.RequestFilter) bool {
	if f.StudentID != nil && r.StudentID != *f.StudentID {
		return false
	}
	if f.TutorID != nil && r.TutorID != *f.TutorID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	if f.From != nil && r.DesiredDateTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !r.DesiredDateTime.Before(*f.To) {
		return false
	}
	if f.Query != "" && !containsFold(r.Message, f.Query) && !containsFold(r.TutorResponse, f.Query) {
		return false
	}
	return true
}

type reminderRepo struct{ s *Store }

func (r *reminderRepo) MarkSent(_ context.Context, sessionID, version int64, kind string, at time.Time) (bool, error) {
	unlock := r.s.lock()
	defer unlock()

	current, ok := r.s.st.sessions[sessionID]
	if !ok || current.Version != version || current.Status != model.SessionStatusConfirmed {
		return false, nil
	}

	key := reminderKey{sessionID: sessionID, kind: kind}
	if _, ok := r.s.st.reminders[key]; ok {
		return false, nil
	}
	r.s.st.reminders[key] = at
	return true, nil
}

func (r *reminderRepo) ClearForSession(_ context.Context, sessionID int64) error {
	unlock := r.s.lock()
	defer unlock()

	for k := range r.s.st.reminders {
		if k.sessionID == sessionID {
			delete(r.s.st.reminders, k)
		}
	}
	return nil
}

func copySession(s *model.Session) *model.Session {
	c := *s
	return &c
}

func copyRequest(r *model.SessionRequest) *model.SessionRequest {
	c := *r
	if r.AlternativeDates != nil {
		c.AlternativeDates = slices.Clone(r.AlternativeDates)
	}
	return &c
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
