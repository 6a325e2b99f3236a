package formatting

import "github.com/Freeeeeet/tutoring_backend/internal/model"

var urgencyTexts = map[model.Urgency]string{
	model.UrgencyLow:    "🐢 низкая",
	model.UrgencyMedium: "⚡ средняя",
	model.UrgencyHigh:   "🔥 высокая",
}

// FormatUrgency срочность заявки для пользователя
func FormatUrgency(u model.Urgency) string {
	if text, ok := urgencyTexts[u]; ok {
		return text
	}
	return "❓ неизвестно"
}

// FormatSessionStatus emoji и текст статуса занятия
func FormatSessionStatus(s model.SessionStatus) string {
	d := s.Display()
	return d.Emoji + " " + d.Text
}

// FormatRequestStatus emoji и текст статуса заявки
func FormatRequestStatus(s model.RequestStatus) string {
	d := s.Display()
	return d.Emoji + " " + d.Text
}
