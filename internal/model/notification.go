package model

import "time"

// NotificationKind тип события для уведомления
type NotificationKind string

const (
	NotifyRequestCreated   NotificationKind = "request_created"
	NotifyRequestAccepted  NotificationKind = "request_accepted"
	NotifyRequestRejected  NotificationKind = "request_rejected"
	NotifySessionCreated   NotificationKind = "session_created"
	NotifySessionConfirmed NotificationKind = "session_confirmed"
	NotifySessionStarted   NotificationKind = "session_started"
	NotifySessionCompleted NotificationKind = "session_completed"
	NotifySessionCancelled NotificationKind = "session_cancelled"
	NotifySessionMoved     NotificationKind = "session_rescheduled"
	NotifySessionReminder  NotificationKind = "session_reminder"
	NotifySessionNoShow    NotificationKind = "session_no_show"
)

// Notification событие для доставки получателю
type Notification struct {
	RecipientID     int64            `json:"recipient_id"`
	Kind            NotificationKind `json:"kind"`
	Title           string           `json:"title"`
	Body            string           `json:"body"`
	RelatedEntityID int64            `json:"related_entity_id"`
	CreatedAt       time.Time        `json:"created_at"`
}
