package model

import "time"

// SessionStatus статус занятия
type SessionStatus string

const (
	SessionStatusRequested  SessionStatus = "requested"   // Создано, ждёт подтверждения
	SessionStatusConfirmed  SessionStatus = "confirmed"   // Подтверждено
	SessionStatusInProgress SessionStatus = "in_progress" // Идёт
	SessionStatusCompleted  SessionStatus = "completed"   // Завершено
	SessionStatusCancelled  SessionStatus = "cancelled"   // Отменено
)

// DeliveryType формат проведения занятия
type DeliveryType string

const (
	DeliveryOnline   DeliveryType = "online"
	DeliveryInPerson DeliveryType = "in_person"
)

// IsValid проверяет формат проведения
func (d DeliveryType) IsValid() bool {
	return d == DeliveryOnline || d == DeliveryInPerson
}

// Session конкретное забронированное занятие
type Session struct {
	ID              int64         `json:"id"`
	TutorID         int64         `json:"tutor_id"`
	StudentID       int64         `json:"student_id"`
	SubjectID       int64         `json:"subject_id"`
	RequestID       *int64        `json:"request_id"` // заявка, из которой создано занятие
	DateTime        time.Time     `json:"date_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `json:"status"`
	Price           int64         `json:"price"` // в копейках/центах
	DeliveryType    DeliveryType  `json:"delivery_type"`
	VideoLink       string        `json:"video_link"`
	Room            string        `json:"room"`
	Notes           string        `json:"notes"`

	// Заполняются только при завершении
	Summary  *string `json:"summary"`
	Feedback *string `json:"feedback"`
	Rating   *int    `json:"rating"`

	NoShow      bool       `json:"no_show"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Version растёт при каждой записи, запись идёт compare-and-set по версии
	Version int64 `json:"version"`
}

// EndTime конец занятия (не включительно)
func (s *Session) EndTime() time.Time {
	return s.DateTime.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// IsActive занимает ли занятие время в календаре
func (s *Session) IsActive() bool {
	return s.Status.IsActive()
}

// AppendNote дописывает строку в историю заметок
func (s *Session) AppendNote(line string) {
	if s.Notes == "" {
		s.Notes = line
		return
	}
	s.Notes += "\n" + line
}

// Overlaps проверяет пересечение полуинтервалов [aStart, aEnd) и [bStart, bEnd).
// Соприкасающиеся интервалы не пересекаются.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// CompletionDetails итоги занятия
type CompletionDetails struct {
	Summary  *string `json:"summary"`
	Feedback *string `json:"feedback"`
	Rating   *int    `json:"rating"`
}

// SessionPatch изменяемые поля занятия. nil = не менять
type SessionPatch struct {
	Price        *int64        `json:"price"`
	Notes        *string       `json:"notes"`
	VideoLink    *string       `json:"video_link"`
	Room         *string       `json:"room"`
	DeliveryType *DeliveryType `json:"delivery_type"`
}

// SessionFilter параметры выборки занятий
type SessionFilter struct {
	ParticipantID *int64 // репетитор или студент
	TutorID       *int64
	StudentID     *int64
	SubjectID     *int64
	Statuses      []SessionStatus
	From          *time.Time // date_time >= From
	To            *time.Time // date_time < To
	Query         string     // поиск по заметкам и итогам
	Limit         int
	Offset        int
}
