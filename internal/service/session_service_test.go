package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_CreateInitialStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.sessions.Create(ctx, service.CreateSessionInput{
		TutorID:         2,
		StudentID:       1,
		SubjectID:       5,
		DateTime:        at(10, 10, 0),
		DurationMinutes: 60,
		Price:           3000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusRequested, s.Status)
	assert.Equal(t, model.DeliveryOnline, s.DeliveryType)
	assert.Nil(t, s.ConfirmedAt)

	s, err = e.confirmedSession(ctx, 2, 1, at(10, 12, 0), 60)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, s.Status)
	require.NotNil(t, s.ConfirmedAt)
	assert.Equal(t, baseNow, *s.ConfirmedAt)

	// по уведомлению репетитору и студенту на каждое занятие
	assert.Equal(t, 4, e.notifier.count(model.NotifySessionCreated))
}

func TestSessionService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	valid := service.CreateSessionInput{
		TutorID:         2,
		StudentID:       1,
		SubjectID:       5,
		DateTime:        at(10, 10, 0),
		DurationMinutes: 60,
		Price:           3000,
	}

	tests := []struct {
		name   string
		modify func(in *service.CreateSessionInput)
	}{
		{"past date", func(in *service.CreateSessionInput) { in.DateTime = baseNow.Add(-time.Hour) }},
		{"duration below 30", func(in *service.CreateSessionInput) { in.DurationMinutes = 15 }},
		{"duration above 480", func(in *service.CreateSessionInput) { in.DurationMinutes = 500 }},
		{"negative price", func(in *service.CreateSessionInput) { in.Price = -1 }},
		{"excessive price", func(in *service.CreateSessionInput) { in.Price = service.MaxPrice + 1 }},
		{"same participant", func(in *service.CreateSessionInput) { in.StudentID = in.TutorID }},
		{"unknown delivery", func(in *service.CreateSessionInput) { in.DeliveryType = "carrier_pigeon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			_, err := e.sessions.Create(ctx, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, service.ErrValidation)
		})
	}
}

func TestSessionService_CreateConflict(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	first, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)

	_, err = e.confirmedSession(ctx, 2, 3, at(10, 10, 30), 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrConflict)

	var conflict *service.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, first.ID, conflict.Conflicts[0].Session.ID)
	assert.Equal(t, service.ReasonTutorBusy, conflict.Conflicts[0].Reason)

	// Соприкасающиеся интервалы допустимы
	_, err = e.confirmedSession(ctx, 2, 3, at(10, 11, 0), 60)
	require.NoError(t, err)
}

func TestSessionService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.sessions.Create(ctx, service.CreateSessionInput{
		TutorID: 2, StudentID: 1, SubjectID: 5,
		DateTime: at(10, 10, 0), DurationMinutes: 60, Price: 3000,
	})
	require.NoError(t, err)

	s, err = e.sessions.Confirm(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, s.Status)

	e.clock.Set(at(10, 10, 0))
	s, err = e.sessions.Start(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, s.Status)
	require.NotNil(t, s.StartedAt)

	e.clock.Set(at(10, 11, 0))
	s, err = e.sessions.Complete(ctx, s.ID, model.CompletionDetails{
		Summary: ptr("  Разобрали пределы  "),
		Rating:  ptr(5),
	})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, s.Status)
	assert.Equal(t, "Разобрали пределы", *s.Summary)
	assert.Nil(t, s.Feedback)
	assert.Equal(t, 5, *s.Rating)

	stored, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompleted, stored.Status)

	_, err = e.sessions.Cancel(ctx, s.ID, "поздно")
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	assert.Equal(t, []model.NotificationKind{
		model.NotifySessionCreated, model.NotifySessionCreated,
		model.NotifySessionConfirmed, model.NotifySessionConfirmed,
		model.NotifySessionStarted, model.NotifySessionStarted,
		model.NotifySessionCompleted, model.NotifySessionCompleted,
	}, e.notifier.kinds())
}

func TestSessionService_IllegalTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)

	_, err = e.sessions.Complete(ctx, s.ID, model.CompletionDetails{})
	require.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = e.sessions.Confirm(ctx, s.ID)
	require.ErrorIs(t, err, service.ErrInvalidTransition)

	var transitionErr *service.TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "confirmed", transitionErr.Status)
	assert.Equal(t, "confirm", transitionErr.Operation)

	stored, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusConfirmed, stored.Status)

	_, err = e.sessions.Complete(ctx, s.ID, model.CompletionDetails{Rating: ptr(6)})
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = e.sessions.Confirm(ctx, 999)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

// Scenario C
func TestSessionService_CancelTwice(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)

	cancelled, err := e.sessions.Cancel(ctx, s.ID, "заболел")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Contains(t, cancelled.Notes, "заболел")

	_, err = e.sessions.Cancel(ctx, s.ID, "ещё раз")
	require.ErrorIs(t, err, service.ErrInvalidTransition)

	stored, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, stored.Status)
	assert.Equal(t, cancelled.Notes, stored.Notes)
	assert.Equal(t, *cancelled.CancelledAt, *stored.CancelledAt)

	// Отменённое занятие больше не занимает время
	_, err = e.confirmedSession(ctx, 2, 3, at(10, 10, 0), 60)
	assert.NoError(t, err)
}

// Scenario D
func TestSessionService_Reschedule(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)

	moved, err := e.sessions.Reschedule(ctx, s.ID, at(10, 14, 0), "конференция")
	require.NoError(t, err)
	assert.Equal(t, at(10, 14, 0), moved.DateTime)
	assert.Equal(t, model.SessionStatusConfirmed, moved.Status)
	assert.Equal(t, "Rescheduled from 2025-01-10 10:00 to 2025-01-10 14:00: конференция", moved.Notes)

	stored, err := e.sessions.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, at(10, 14, 0), stored.DateTime)
	assert.Equal(t, 2, e.notifier.count(model.NotifySessionMoved))
}

func TestSessionService_RescheduleRules(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)
	other, err := e.confirmedSession(ctx, 2, 3, at(10, 14, 0), 60)
	require.NoError(t, err)

	t.Run("overlapping itself is allowed", func(t *testing.T) {
		moved, err := e.sessions.Reschedule(ctx, s.ID, at(10, 10, 30), "")
		require.NoError(t, err)
		assert.Equal(t, "Rescheduled from 2025-01-10 10:00 to 2025-01-10 10:30", moved.Notes)
	})

	t.Run("conflict with another session", func(t *testing.T) {
		_, err := e.sessions.Reschedule(ctx, s.ID, at(10, 14, 30), "")
		require.ErrorIs(t, err, service.ErrConflict)

		var conflict *service.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, other.ID, conflict.Conflicts[0].Session.ID)

		stored, err := e.sessions.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, at(10, 10, 30), stored.DateTime)
	})

	t.Run("new time in the past", func(t *testing.T) {
		_, err := e.sessions.Reschedule(ctx, s.ID, baseNow.Add(-time.Minute), "")
		assert.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("confirmed within two hours", func(t *testing.T) {
		e.clock.Set(at(10, 8, 30))
		defer e.clock.Set(baseNow)

		_, err := e.sessions.Reschedule(ctx, s.ID, at(10, 18, 0), "")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})

	t.Run("requested close to start", func(t *testing.T) {
		req, err := e.sessions.Create(ctx, service.CreateSessionInput{
			TutorID: 4, StudentID: 1, SubjectID: 5,
			DateTime: at(11, 10, 0), DurationMinutes: 60,
		})
		require.NoError(t, err)

		e.clock.Set(at(11, 9, 30))
		defer e.clock.Set(baseNow)

		moved, err := e.sessions.Reschedule(ctx, req.ID, at(11, 16, 0), "")
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusRequested, moved.Status)
	})

	t.Run("terminal session", func(t *testing.T) {
		_, err := e.sessions.Cancel(ctx, other.ID, "")
		require.NoError(t, err)
		_, err = e.sessions.Reschedule(ctx, other.ID, at(12, 10, 0), "")
		assert.ErrorIs(t, err, service.ErrInvalidTransition)
	})
}

func TestSessionService_RescheduleClearsReminderMarks(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)

	marked, err := e.store.Reminders().MarkSent(ctx, s.ID, s.Version, "24h", baseNow)
	require.NoError(t, err)
	require.True(t, marked)

	moved, err := e.sessions.Reschedule(ctx, s.ID, at(11, 10, 0), "")
	require.NoError(t, err)
	assert.Equal(t, s.Version+1, moved.Version)

	// Отметка по старой версии больше не ставится
	marked, err = e.store.Reminders().MarkSent(ctx, s.ID, s.Version, "1h", baseNow)
	require.NoError(t, err)
	assert.False(t, marked)

	marked, err = e.store.Reminders().MarkSent(ctx, s.ID, moved.Version, "24h", baseNow)
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestSessionService_Update(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)

	inPerson := model.DeliveryInPerson
	updated, err := e.sessions.Update(ctx, s.ID, model.SessionPatch{
		Price:        ptr(int64(4500)),
		Room:         ptr(" 101 "),
		DeliveryType: &inPerson,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), updated.Price)
	assert.Equal(t, "101", updated.Room)
	assert.Equal(t, model.DeliveryInPerson, updated.DeliveryType)

	_, err = e.sessions.Update(ctx, s.ID, model.SessionPatch{Price: ptr(int64(-5))})
	assert.ErrorIs(t, err, service.ErrValidation)

	// После начала редактировать нельзя
	e.clock.Set(at(10, 10, 0))
	_, err = e.sessions.Update(ctx, s.ID, model.SessionPatch{Notes: ptr("x")})
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	_, err = e.sessions.Start(ctx, s.ID)
	require.NoError(t, err)
	e.clock.Set(baseNow)
	_, err = e.sessions.Update(ctx, s.ID, model.SessionPatch{Notes: ptr("x")})
	assert.ErrorIs(t, err, service.ErrInvalidTransition)
}

func TestSessionService_Delete(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	s, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)
	require.NoError(t, e.sessions.Delete(ctx, s.ID))

	_, err = e.sessions.Get(ctx, s.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)

	s, err = e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)
	e.clock.Set(at(10, 10, 0))
	_, err = e.sessions.Start(ctx, s.ID)
	require.NoError(t, err)

	err = e.sessions.Delete(ctx, s.ID)
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	assert.ErrorIs(t, e.sessions.Delete(ctx, 999), service.ErrNotFound)
}

func TestSessionService_List(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	a, err := e.confirmedSession(ctx, 2, 1, at(10, 10, 0), 60)
	require.NoError(t, err)
	b, err := e.confirmedSession(ctx, 3, 1, at(11, 10, 0), 60)
	require.NoError(t, err)
	c, err := e.confirmedSession(ctx, 2, 4, at(12, 10, 0), 60)
	require.NoError(t, err)
	_, err = e.sessions.Cancel(ctx, c.ID, "перенос экзамена")
	require.NoError(t, err)

	byStudent, err := e.sessions.List(ctx, model.SessionFilter{StudentID: ptr(int64(1))})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, b.ID}, sessionIDs(byStudent))

	byParticipant, err := e.sessions.List(ctx, model.SessionFilter{ParticipantID: ptr(int64(2))})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID, c.ID}, sessionIDs(byParticipant))

	active, err := e.sessions.List(ctx, model.SessionFilter{
		TutorID:  ptr(int64(2)),
		Statuses: []model.SessionStatus{model.SessionStatusConfirmed},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, sessionIDs(active))

	ranged, err := e.sessions.List(ctx, model.SessionFilter{From: ptr(at(11, 0, 0)), To: ptr(at(12, 0, 0))})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, sessionIDs(ranged))

	found, err := e.sessions.List(ctx, model.SessionFilter{Query: "ЭКЗАМЕН"})
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, sessionIDs(found))

	page, err := e.sessions.List(ctx, model.SessionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, sessionIDs(page))

	_, err = e.sessions.List(ctx, model.SessionFilter{Statuses: []model.SessionStatus{"lost"}})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func sessionIDs(sessions []*model.Session) []int64 {
	ids := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
