package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeper_RemindersOncePerLead(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	sweeper := service.NewSweeper(e.store, zap.NewNop(), service.DefaultSweepConfig(), e.opts...)

	s, err := e.confirmedSession(ctx, 2, 1, at(2, 8, 0), 60)
	require.NoError(t, err)
	// requested занятия не напоминаются
	_, err = e.sessions.Create(ctx, service.CreateSessionInput{
		TutorID: 3, StudentID: 4, SubjectID: 5, DateTime: at(2, 8, 0), DurationMinutes: 60,
	})
	require.NoError(t, err)

	// 24h, повтор, 1h, повтор, 15m, повтор
	steps := []struct {
		now       time.Time
		reminders int
	}{
		{at(1, 9, 0), 1},
		{at(1, 9, 1), 0},
		{at(2, 7, 10), 1},
		{at(2, 7, 11), 0},
		{at(2, 7, 50), 1},
		{at(2, 7, 55), 0},
	}
	for _, step := range steps {
		e.clock.Set(step.now)
		report, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, step.reminders, report.RemindersSent, "at %s", step.now)
		assert.Zero(t, report.Errors)
	}

	assert.Equal(t, 6, e.notifier.count(model.NotifySessionReminder))

	e.clock.Set(at(2, 8, 1))
	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AutoStarted)

	stored, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, stored.Status)
	require.NotNil(t, stored.StartedAt)
	assert.Equal(t, at(2, 8, 1), *stored.StartedAt)

	report, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.AutoStarted)
}

func TestSweeper_NoShowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	cfg := service.DefaultSweepConfig()
	cfg.AutoStart = false
	sweeper := service.NewSweeper(e.store, zap.NewNop(), cfg, e.opts...)

	s, err := e.confirmedSession(ctx, 2, 1, at(2, 8, 0), 60)
	require.NoError(t, err)

	// В окне ожидания без автостарта ничего не происходит
	e.clock.Set(at(2, 8, 20))
	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.NoShows)
	assert.Zero(t, report.AutoStarted)

	e.clock.Set(at(2, 8, 30))
	report, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NoShows)

	first, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, first.Status)
	assert.True(t, first.NoShow)
	assert.Equal(t, "No-show: not started within 30m of 2025-01-02 08:00", first.Notes)

	e.clock.Set(at(2, 8, 31))
	report, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.NoShows)
	assert.Zero(t, report.Checked)

	second, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Notes, second.Notes)
	assert.Equal(t, *first.CancelledAt, *second.CancelledAt)
	assert.Equal(t, 1, strings.Count(second.Notes, "No-show"))
	assert.Equal(t, 2, e.notifier.count(model.NotifySessionNoShow))
}

func TestSweeper_OverdueAfterDowntimeIsNoShow(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	sweeper := service.NewSweeper(e.store, zap.NewNop(), service.DefaultSweepConfig(), e.opts...)

	s, err := e.confirmedSession(ctx, 2, 1, at(2, 8, 0), 60)
	require.NoError(t, err)

	// Сервис лежал дольше окна ожидания: автостарт уже не делаем
	e.clock.Set(at(3, 12, 0))
	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NoShows)
	assert.Zero(t, report.AutoStarted)
	assert.Zero(t, report.RemindersSent)

	stored, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, stored.Status)
}

func TestSweeper_RescheduleResetsReminders(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	sweeper := service.NewSweeper(e.store, zap.NewNop(), service.DefaultSweepConfig(), e.opts...)

	s, err := e.confirmedSession(ctx, 2, 1, at(2, 8, 0), 60)
	require.NoError(t, err)

	report, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.RemindersSent)

	_, err = e.sessions.Reschedule(ctx, s.ID, at(2, 8, 30), "")
	require.NoError(t, err)

	report, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RemindersSent)
}
