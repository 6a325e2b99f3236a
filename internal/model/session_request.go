package model

import "time"

// RequestStatus статус заявки на занятие
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"  // Ожидает ответа репетитора
	RequestStatusAccepted RequestStatus = "accepted" // Принята, занятие создано
	RequestStatusRejected RequestStatus = "rejected" // Отклонена репетитором
)

// Urgency срочность заявки
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// MaxAlternativeDates сколько альтернативных дат может предложить репетитор
const MaxAlternativeDates = 3

// SessionRequest заявка студента на время занятия (ещё не бронь)
type SessionRequest struct {
	ID              int64         `json:"id"`
	StudentID       int64         `json:"student_id"`
	TutorID         int64         `json:"tutor_id"`
	SubjectID       int64         `json:"subject_id"`
	DesiredDateTime time.Time     `json:"desired_date_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Message         string        `json:"message"`
	Urgency         Urgency       `json:"urgency"`
	MaxBudget       int64         `json:"max_budget"` // в копейках/центах
	Status          RequestStatus `json:"status"`

	TutorResponse string     `json:"tutor_response"`
	RespondedAt   *time.Time `json:"responded_at"`

	// Встречное предложение репетитора. nil = не предлагалось
	AlternativeDates []time.Time `json:"alternative_dates"`
	ProposedPrice    *int64      `json:"proposed_price"`
	ProposedDuration *int        `json:"proposed_duration"`

	DateFlexible    bool `json:"date_flexible"`
	AcceptsOnline   bool `json:"accepts_online"`
	AcceptsInPerson bool `json:"accepts_in_person"`

	SessionID *int64    `json:"session_id"` // занятие, созданное при принятии заявки
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPending проверяет, ждёт ли заявка ответа
func (r *SessionRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// EndTime конец желаемого интервала
func (r *SessionRequest) EndTime() time.Time {
	return r.DesiredDateTime.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// CounterProposal встречное предложение репетитора при ответе на заявку
type CounterProposal struct {
	AlternativeDates []time.Time `json:"alternative_dates"`
	Price            *int64      `json:"price"`
	DurationMinutes  *int        `json:"duration_minutes"`
}

// IsEmpty true, если репетитор ничего не предложил
func (c *CounterProposal) IsEmpty() bool {
	return c == nil || (c.AlternativeDates == nil && c.Price == nil && c.DurationMinutes == nil)
}

// RequestFilter параметры выборки заявок
type RequestFilter struct {
	StudentID *int64
	TutorID   *int64
	Statuses  []RequestStatus
	From      *time.Time // desired_date_time >= From
	To        *time.Time // desired_date_time < To
	Query     string     // поиск по тексту сообщения и ответа
	Limit     int
	Offset    int
}
