package model

// StatusDisplay отображение статуса для пользователя
type StatusDisplay struct {
	Emoji string
	Text  string
}

// AllSessionStatuses все статусы занятия. Новый статус добавляется сюда и в таблицы ниже,
// status_test.go проверяет, что таблицы полные.
var AllSessionStatuses = []SessionStatus{
	SessionStatusRequested,
	SessionStatusConfirmed,
	SessionStatusInProgress,
	SessionStatusCompleted,
	SessionStatusCancelled,
}

// AllRequestStatuses все статусы заявки
var AllRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusAccepted,
	RequestStatusRejected,
}

var sessionStatusDisplays = map[SessionStatus]StatusDisplay{
	SessionStatusRequested:  {"⏳", "Ожидает подтверждения"},
	SessionStatusConfirmed:  {"✅", "Подтверждено"},
	SessionStatusInProgress: {"▶️", "Идёт"},
	SessionStatusCompleted:  {"✔️", "Завершено"},
	SessionStatusCancelled:  {"❌", "Отменено"},
}

var requestStatusDisplays = map[RequestStatus]StatusDisplay{
	RequestStatusPending:  {"⏳", "Ожидает ответа"},
	RequestStatusAccepted: {"✅", "Принята"},
	RequestStatusRejected: {"🚫", "Отклонена"},
}

// Display возвращает emoji и текст статуса занятия
func (s SessionStatus) Display() StatusDisplay {
	if display, ok := sessionStatusDisplays[s]; ok {
		return display
	}
	return StatusDisplay{"❓", "Неизвестно"}
}

// IsValid проверяет, что статус объявлен
func (s SessionStatus) IsValid() bool {
	_, ok := sessionStatusDisplays[s]
	return ok
}

// IsActive статусы, которые занимают время в календаре
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusRequested || s == SessionStatusConfirmed || s == SessionStatusInProgress
}

// IsTerminal после этих статусов занятие не меняется
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Display возвращает emoji и текст статуса заявки
func (s RequestStatus) Display() StatusDisplay {
	if display, ok := requestStatusDisplays[s]; ok {
		return display
	}
	return StatusDisplay{"❓", "Неизвестно"}
}

// IsValid проверяет, что статус объявлен
func (s RequestStatus) IsValid() bool {
	_, ok := requestStatusDisplays[s]
	return ok
}

// ActiveSessionStatuses статусы, учитываемые при проверке пересечений
func ActiveSessionStatuses() []SessionStatus {
	return []SessionStatus{SessionStatusRequested, SessionStatusConfirmed, SessionStatusInProgress}
}

// SessionEvent событие, меняющее статус занятия
type SessionEvent string

const (
	EventConfirm   SessionEvent = "confirm"
	EventStart     SessionEvent = "start"
	EventComplete  SessionEvent = "complete"
	EventCancel    SessionEvent = "cancel"
	EventAutoStart SessionEvent = "auto_start"
	EventNoShow    SessionEvent = "no_show"
)

// SessionTransition разрешённое ребро автомата
type SessionTransition struct {
	From  SessionStatus
	Event SessionEvent
	To    SessionStatus
}

// sessionTransitions все разрешённые переходы. Всё, чего здесь нет, запрещено.
var sessionTransitions = []SessionTransition{
	{From: SessionStatusRequested, Event: EventConfirm, To: SessionStatusConfirmed},
	{From: SessionStatusConfirmed, Event: EventStart, To: SessionStatusInProgress},
	{From: SessionStatusInProgress, Event: EventComplete, To: SessionStatusCompleted},

	{From: SessionStatusRequested, Event: EventCancel, To: SessionStatusCancelled},
	{From: SessionStatusConfirmed, Event: EventCancel, To: SessionStatusCancelled},
	{From: SessionStatusInProgress, Event: EventCancel, To: SessionStatusCancelled},

	// Фоновый планировщик
	{From: SessionStatusConfirmed, Event: EventAutoStart, To: SessionStatusInProgress},
	{From: SessionStatusConfirmed, Event: EventNoShow, To: SessionStatusCancelled},
}

// NextSessionStatus возвращает статус после события или false, если переход запрещён
func NextSessionStatus(from SessionStatus, event SessionEvent) (SessionStatus, bool) {
	for _, tr := range sessionTransitions {
		if tr.From == from && tr.Event == event {
			return tr.To, true
		}
	}
	return "", false
}

// SessionTransitions копия таблицы переходов
func SessionTransitions() []SessionTransition {
	out := make([]SessionTransition, len(sessionTransitions))
	copy(out, sessionTransitions)
	return out
}
