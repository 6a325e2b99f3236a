package service_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// hookedStore вызывает afterGet/afterList один раз сразу после первого чтения вне транзакции:
// операция гарантированно продолжает работу с уже устаревшей копией.
type hookedStore struct {
	service.Store
	afterGet  func()
	afterList func()
	updateErr error
}

func (h *hookedStore) Sessions() service.SessionRepository {
	return &hookedSessions{SessionRepository: h.Store.Sessions(), h: h}
}

type hookedSessions struct {
	service.SessionRepository
	h *hookedStore
}

func (r *hookedSessions) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	session, err := r.SessionRepository.GetByID(ctx, id)
	if hook := r.h.afterGet; hook != nil {
		r.h.afterGet = nil
		hook()
	}
	return session, err
}

func (r *hookedSessions) List(ctx context.Context, f model.SessionFilter) ([]*model.Session, error) {
	sessions, err := r.SessionRepository.List(ctx, f)
	if hook := r.h.afterList; hook != nil {
		r.h.afterList = nil
		hook()
	}
	return sessions, err
}

func (r *hookedSessions) UpdateIfVersion(ctx context.Context, session *model.Session, expected int64) (bool, error) {
	if r.h.updateErr != nil {
		return false, r.h.updateErr
	}
	return r.SessionRepository.UpdateIfVersion(ctx, session, expected)
}

func TestSessionService_WritesKeepConcurrentReschedule(t *testing.T) {
	tests := []struct {
		name  string
		run   func(ctx context.Context, svc *service.SessionService, id int64) (*model.Session, error)
		check func(t *testing.T, stored *model.Session)
	}{
		{
			name: "confirm",
			run: func(ctx context.Context, svc *service.SessionService, id int64) (*model.Session, error) {
				return svc.Confirm(ctx, id)
			},
			check: func(t *testing.T, stored *model.Session) {
				assert.Equal(t, model.SessionStatusConfirmed, stored.Status)
				assert.NotNil(t, stored.ConfirmedAt)
			},
		},
		{
			name: "cancel",
			run: func(ctx context.Context, svc *service.SessionService, id int64) (*model.Session, error) {
				return svc.Cancel(ctx, id, "заболел")
			},
			check: func(t *testing.T, stored *model.Session) {
				assert.Equal(t, model.SessionStatusCancelled, stored.Status)
				assert.Contains(t, stored.Notes, "Cancelled at")
			},
		},
		{
			name: "update",
			run: func(ctx context.Context, svc *service.SessionService, id int64) (*model.Session, error) {
				return svc.Update(ctx, id, model.SessionPatch{
					Price:     ptr(int64(4500)),
					VideoLink: ptr("https://meet.example.com/abc"),
				})
			},
			check: func(t *testing.T, stored *model.Session) {
				assert.Equal(t, model.SessionStatusRequested, stored.Status)
				assert.Equal(t, int64(4500), stored.Price)
				assert.Equal(t, "https://meet.example.com/abc", stored.VideoLink)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv()

			created, err := e.sessions.Create(ctx, service.CreateSessionInput{
				TutorID:         2,
				StudentID:       1,
				SubjectID:       5,
				DateTime:        at(10, 10, 0),
				DurationMinutes: 60,
				Price:           3000,
			})
			require.NoError(t, err)

			hooked := &hookedStore{Store: e.store}
			svc := service.NewSessionService(hooked, zap.NewNop(), e.opts...)

			// Перенос успевает закоммититься между чтением и записью операции
			var moved *model.Session
			hooked.afterGet = func() {
				moved, err = e.sessions.Reschedule(ctx, created.ID, at(10, 14, 0), "перенос")
				require.NoError(t, err)
			}

			result, err := tt.run(ctx, svc, created.ID)
			require.NoError(t, err)
			require.NotNil(t, moved)

			stored, err := e.sessions.Get(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, at(10, 14, 0), stored.DateTime)
			assert.Equal(t, stored.DateTime, result.DateTime)
			assert.Contains(t, stored.Notes, "Rescheduled from")
			assert.Equal(t, moved.Version+1, stored.Version)
			tt.check(t, stored)
		})
	}
}

func TestSessionService_StoreOverlapIsConflict(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	created, err := e.sessions.Create(ctx, service.CreateSessionInput{
		TutorID:         2,
		StudentID:       1,
		SubjectID:       5,
		DateTime:        at(10, 10, 0),
		DurationMinutes: 60,
	})
	require.NoError(t, err)

	hooked := &hookedStore{Store: e.store, updateErr: service.ErrOverlap}
	svc := service.NewSessionService(hooked, zap.NewNop(), e.opts...)

	_, err = svc.Confirm(ctx, created.ID)
	var conflict *service.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, at(10, 10, 0), conflict.Start)
	assert.Equal(t, at(10, 11, 0), conflict.End)

	_, err = svc.Update(ctx, created.ID, model.SessionPatch{Price: ptr(int64(100))})
	assert.ErrorIs(t, err, service.ErrConflict)

	stored, err := e.sessions.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRequested, stored.Status)
}

func TestSweeper_SkipsSessionChangedMidSweep(t *testing.T) {
	tests := []struct {
		name     string
		start    time.Time
		sweepAt  time.Time
		expected func(t *testing.T, report service.SweepReport)
	}{
		{
			name:    "reminder",
			start:   at(2, 8, 0),
			sweepAt: at(1, 9, 0),
			expected: func(t *testing.T, report service.SweepReport) {
				assert.Zero(t, report.RemindersSent)
			},
		},
		{
			name:    "auto start",
			start:   at(1, 12, 0),
			sweepAt: at(1, 12, 5),
			expected: func(t *testing.T, report service.SweepReport) {
				assert.Zero(t, report.AutoStarted)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv()

			s, err := e.confirmedSession(ctx, 2, 1, tt.start, 60)
			require.NoError(t, err)

			// Отмена приходит после выборки, но до действия над занятием
			hooked := &hookedStore{Store: e.store}
			hooked.afterList = func() {
				_, err := e.sessions.Cancel(ctx, s.ID, "заболел")
				require.NoError(t, err)
			}
			sweeper := service.NewSweeper(hooked, zap.NewNop(), service.DefaultSweepConfig(), e.opts...)

			e.clock.Set(tt.sweepAt)
			report, err := sweeper.RunOnce(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Checked)
			assert.Zero(t, report.Errors)
			tt.expected(t, report)

			assert.Zero(t, e.notifier.count(model.NotifySessionReminder))
			assert.Zero(t, e.notifier.count(model.NotifySessionStarted))

			stored, err := e.sessions.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, model.SessionStatusCancelled, stored.Status)
		})
	}
}

type recordingLocker struct {
	mu   sync.Mutex
	keys [][]string
}

func (l *recordingLocker) Acquire(_ context.Context, keys ...string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, slices.Clone(keys))
	return func() {}, nil
}

func TestRequestService_LocksParticipantsByUser(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	// Пользователь 2 репетитор в первой заявке и студент во второй
	asTutor, err := e.requests.Create(ctx, requestInput(1, 2, at(10, 10, 0), 60))
	require.NoError(t, err)
	asStudent, err := e.requests.Create(ctx, requestInput(2, 3, at(11, 10, 0), 60))
	require.NoError(t, err)

	locker := &recordingLocker{}
	opts := append(append([]service.Option{}, e.opts...), service.WithLocker(locker))
	sessions := service.NewSessionService(e.store, zap.NewNop(), opts...)
	requests := service.NewSessionRequestService(e.store, sessions, zap.NewNop(), opts...)

	_, err = requests.Accept(ctx, asTutor.ID, "", nil)
	require.NoError(t, err)
	_, err = requests.Accept(ctx, asStudent.ID, "", nil)
	require.NoError(t, err)

	require.Len(t, locker.keys, 2)
	assert.Equal(t, []string{"user:1", "user:2"}, locker.keys[0])
	assert.Equal(t, []string{"user:2", "user:3"}, locker.keys[1])
}

func TestRequestService_ConcurrentCrossRoleAccepts(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	asTutor, err := e.requests.Create(ctx, requestInput(1, 2, at(10, 10, 0), 60))
	require.NoError(t, err)
	asStudent, err := e.requests.Create(ctx, requestInput(2, 3, at(10, 10, 30), 60))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
		start   = make(chan struct{})
	)
	for i, id := range []int64{asTutor.ID, asStudent.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			<-start
			_, results[i] = e.requests.Accept(ctx, id, "", nil)
		}(i, id)
	}
	close(start)
	wg.Wait()

	accepted := 0
	for _, err := range results {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, service.ErrConflict)
	}
	assert.Equal(t, 1, accepted)

	busy, err := e.sessions.List(ctx, model.SessionFilter{
		ParticipantID: ptr(int64(2)),
		Statuses:      model.ActiveSessionStatuses(),
	})
	require.NoError(t, err)
	assert.Len(t, busy, 1)
}
