package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
)

// Классы ошибок, которые видит вызывающий код. Проверять через errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrConflict          = errors.New("time conflict")
)

// NotFoundError неизвестный ID заявки или занятия
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError нарушение ограничения поля
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError операция запрещена в текущем статусе
type TransitionError struct {
	Entity    string
	ID        int64
	Status    string
	Operation string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in status %s", e.Operation, e.Entity, e.ID, e.Status)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError пересечение по времени у участника
type ConflictError struct {
	Start     time.Time
	End       time.Time
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return fmt.Sprintf("time conflict for %s-%s",
			e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
	}
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("%s with session %d", c.Reason, c.Session.ID))
	}
	return fmt.Sprintf("time conflict for %s-%s: %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), strings.Join(parts, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func notFound(entity string, id int64) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func sessionTransitionError(s *model.Session, op string) error {
	return &TransitionError{Entity: "session", ID: s.ID, Status: string(s.Status), Operation: op}
}

func requestTransitionError(r *model.SessionRequest, op string) error {
	return &TransitionError{Entity: "session request", ID: r.ID, Status: string(r.Status), Operation: op}
}
