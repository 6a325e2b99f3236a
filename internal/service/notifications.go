package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
)

const displayTimeLayout = "02.01.2006 15:04"

func sessionNotification(s *model.Session, kind model.NotificationKind, now time.Time) (title, body string) {
	when := s.DateTime.Format(displayTimeLayout)
	switch kind {
	case model.NotifySessionCreated:
		return "📅 Новое занятие", fmt.Sprintf("Занятие %s (%d мин). Статус: %s", when, s.DurationMinutes, s.Status.Display().Text)
	case model.NotifySessionConfirmed:
		return "✅ Занятие подтверждено", fmt.Sprintf("Занятие %s подтверждено", when)
	case model.NotifySessionStarted:
		return "▶️ Занятие началось", fmt.Sprintf("Занятие %s началось", when)
	case model.NotifySessionCompleted:
		return "✔️ Занятие завершено", fmt.Sprintf("Занятие %s завершено", when)
	case model.NotifySessionCancelled:
		return "❌ Занятие отменено", fmt.Sprintf("Занятие %s отменено", when)
	case model.NotifySessionMoved:
		return "🔄 Занятие перенесено", fmt.Sprintf("Новое время занятия: %s", when)
	case model.NotifySessionNoShow:
		return "⚠️ Занятие не состоялось", fmt.Sprintf("Занятие %s отменено: не началось вовремя", when)
	case model.NotifySessionReminder:
		left := s.DateTime.Sub(now).Round(time.Minute)
		return "⏰ Напоминание о занятии", fmt.Sprintf("Занятие %s начнётся через %s", when, formatLeft(left))
	}
	return "📅 Занятие", when
}

func requestNotification(r *model.SessionRequest, kind model.NotificationKind) (title, body string) {
	when := r.DesiredDateTime.Format(displayTimeLayout)
	switch kind {
	case model.NotifyRequestCreated:
		return "📨 Новая заявка", fmt.Sprintf("Заявка на %s (%d мин): %s", when, r.DurationMinutes, r.Message)
	case model.NotifyRequestAccepted:
		return "✅ Заявка принята", fmt.Sprintf("Репетитор принял заявку на %s", when)
	case model.NotifyRequestRejected:
		body := fmt.Sprintf("Репетитор отклонил заявку на %s", when)
		if len(r.AlternativeDates) > 0 {
			body += "\nПредложенные даты:"
			for _, d := range r.AlternativeDates {
				body += "\n• " + d.Format(displayTimeLayout)
			}
		}
		return "🚫 Заявка отклонена", body
	}
	return "📨 Заявка", when
}

// notifyParticipants отправляет событие репетитору и студенту
func (d *deps) notifyParticipants(ctx context.Context, s *model.Session, kind model.NotificationKind) {
	now := d.now()
	title, body := sessionNotification(s, kind, now)
	for _, recipient := range []int64{s.TutorID, s.StudentID} {
		d.notifier.Notify(ctx, model.Notification{
			RecipientID:     recipient,
			Kind:            kind,
			Title:           title,
			Body:            body,
			RelatedEntityID: s.ID,
			CreatedAt:       now,
		})
	}
}

func (d *deps) notifyRequest(ctx context.Context, r *model.SessionRequest, recipient int64, kind model.NotificationKind) {
	title, body := requestNotification(r, kind)
	d.notifier.Notify(ctx, model.Notification{
		RecipientID:     recipient,
		Kind:            kind,
		Title:           title,
		Body:            body,
		RelatedEntityID: r.ID,
		CreatedAt:       d.now(),
	})
}

func formatLeft(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d мин", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if minutes == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, minutes)
}
