package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Причина пересечения
const (
	ReasonTutorBusy   = "tutor_busy"
	ReasonStudentBusy = "student_busy"
)

// Conflict занятие, которое мешает окну, и чьё время оно занимает
type Conflict struct {
	Session *model.Session `json:"session"`
	Reason  string         `json:"reason"`
}

// FindConflicts чистая проверка по уже загруженным занятиям.
// Учитываются только активные; excludeID (если не 0) пропускается.
// Ноль в tutorID или studentID отключает проверку этой роли.
// Одно занятие может дать два конфликта, если заняты оба участника.
func FindConflicts(sessions []*model.Session, tutorID, studentID int64, start, end time.Time, excludeID int64) []Conflict {
	var conflicts []Conflict
	for _, s := range sessions {
		if s == nil || (excludeID != 0 && s.ID == excludeID) || !s.IsActive() {
			continue
		}
		if !model.Overlaps(start, end, s.DateTime, s.EndTime()) {
			continue
		}
		if tutorID != 0 && (s.TutorID == tutorID || s.StudentID == tutorID) {
			conflicts = append(conflicts, Conflict{Session: s, Reason: ReasonTutorBusy})
		}
		if studentID != 0 && (s.StudentID == studentID || s.TutorID == studentID) {
			conflicts = append(conflicts, Conflict{Session: s, Reason: ReasonStudentBusy})
		}
	}
	return conflicts
}

// AvailabilityChecker проверка занятости участников по хранилищу. Ничего не пишет.
type AvailabilityChecker struct {
	store  Store
	tracer trace.Tracer
}

func NewAvailabilityChecker(store Store, opts ...Option) *AvailabilityChecker {
	d := newDeps(opts)
	return &AvailabilityChecker{store: store, tracer: d.tracer}
}

// HasTutorConflict занят ли репетитор в окне [start, end)
func (c *AvailabilityChecker) HasTutorConflict(ctx context.Context, tutorID int64, start, end time.Time) (bool, error) {
	conflicts, err := c.Conflicts(ctx, tutorID, 0, start, end, 0)
	return len(conflicts) > 0, err
}

// HasStudentConflict занят ли студент в окне [start, end)
func (c *AvailabilityChecker) HasStudentConflict(ctx context.Context, studentID int64, start, end time.Time) (bool, error) {
	conflicts, err := c.Conflicts(ctx, 0, studentID, start, end, 0)
	return len(conflicts) > 0, err
}

// HasConflict занят ли хотя бы один из участников
func (c *AvailabilityChecker) HasConflict(ctx context.Context, tutorID, studentID int64, start, end time.Time) (bool, error) {
	conflicts, err := c.Conflicts(ctx, tutorID, studentID, start, end, 0)
	return len(conflicts) > 0, err
}

// Conflicts полный список пересечений с причинами
func (c *AvailabilityChecker) Conflicts(ctx context.Context, tutorID, studentID int64, start, end time.Time, excludeID int64) ([]Conflict, error) {
	ctx, span := c.tracer.Start(ctx, "AvailabilityChecker.Conflicts", trace.WithAttributes(
		attribute.Int64("tutor_id", tutorID),
		attribute.Int64("student_id", studentID),
	))
	defer span.End()

	if !start.Before(end) {
		return nil, invalid("window", "end must be after start")
	}
	return conflictsIn(ctx, c.store, tutorID, studentID, start, end, excludeID)
}

// conflictsIn читает активные занятия участников в окне из store (в том числе из транзакции)
func conflictsIn(ctx context.Context, store Store, tutorID, studentID int64, start, end time.Time, excludeID int64) ([]Conflict, error) {
	sessions, err := loadParticipantSessions(ctx, store, tutorID, studentID, start, end)
	if err != nil {
		return nil, err
	}
	return FindConflicts(sessions, tutorID, studentID, start, end, excludeID), nil
}

// loadParticipantSessions активные занятия, где участник занят в любой роли
func loadParticipantSessions(ctx context.Context, store Store, tutorID, studentID int64, start, end time.Time) ([]*model.Session, error) {
	var sessions []*model.Session
	seen := make(map[int64]struct{})
	for _, id := range []int64{tutorID, studentID} {
		if id == 0 {
			continue
		}
		found, err := store.Sessions().ListActiveOverlapping(ctx, id, id, start, end)
		if err != nil {
			return nil, fmt.Errorf("list overlapping sessions: %w", err)
		}
		for _, s := range found {
			if _, ok := seen[s.ID]; ok {
				continue
			}
			seen[s.ID] = struct{}{}
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}
