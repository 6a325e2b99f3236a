package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/repository/memory"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"go.uber.org/zap"
)

var baseNow = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification model.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, notification)
}

func (n *recordingNotifier) kinds() []model.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationKind, 0, len(n.items))
	for _, item := range n.items {
		out = append(out, item.Kind)
	}
	return out
}

func (n *recordingNotifier) count(kind model.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, item := range n.items {
		if item.Kind == kind {
			c++
		}
	}
	return c
}

type env struct {
	clock    *testClock
	store    *memory.Store
	notifier *recordingNotifier
	sessions *service.SessionService
	requests *service.SessionRequestService
	checker  *service.AvailabilityChecker
	finder   *service.SlotFinder
	opts     []service.Option
}

func newEnv() *env {
	clock := newTestClock(baseNow)
	store := memory.New(memory.WithClock(clock.Now))
	notifier := &recordingNotifier{}
	logger := zap.NewNop()

	opts := []service.Option{
		service.WithClock(clock.Now),
		service.WithNotifier(notifier),
	}
	sessions := service.NewSessionService(store, logger, opts...)

	return &env{
		clock:    clock,
		store:    store,
		notifier: notifier,
		sessions: sessions,
		requests: service.NewSessionRequestService(store, sessions, logger, opts...),
		checker:  service.NewAvailabilityChecker(store, opts...),
		finder:   service.NewSlotFinder(store, opts...),
		opts:     opts,
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 1, day, hour, minute, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// confirmedSession создаёт подтверждённое занятие напрямую
func (e *env) confirmedSession(ctx context.Context, tutorID, studentID int64, start time.Time, minutes int) (*model.Session, error) {
	return e.sessions.Create(ctx, service.CreateSessionInput{
		TutorID:          tutorID,
		StudentID:        studentID,
		SubjectID:        5,
		DateTime:         start,
		DurationMinutes:  minutes,
		Price:            3000,
		SkipConfirmation: true,
	})
}

func requestInput(studentID, tutorID int64, start time.Time, minutes int) service.CreateRequestInput {
	return service.CreateRequestInput{
		StudentID:       studentID,
		TutorID:         tutorID,
		SubjectID:       5,
		DesiredDateTime: start,
		DurationMinutes: minutes,
		Message:         "Нужна помощь с матанализом",
		MaxBudget:       3000,
	}
}
