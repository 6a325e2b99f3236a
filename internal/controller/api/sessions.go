package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/gin-gonic/gin"
)

type createSessionBody struct {
	TutorID          int64              `json:"tutor_id"`
	StudentID        int64              `json:"student_id"`
	SubjectID        int64              `json:"subject_id"`
	DateTime         time.Time          `json:"date_time"`
	DurationMinutes  int                `json:"duration_minutes"`
	Price            int64              `json:"price"`
	DeliveryType     model.DeliveryType `json:"delivery_type"`
	VideoLink        string             `json:"video_link"`
	Room             string             `json:"room"`
	Notes            string             `json:"notes"`
	SkipConfirmation bool               `json:"skip_confirmation"`
}

type cancelBody struct {
	Reason string `json:"reason"`
}

type rescheduleBody struct {
	DateTime time.Time `json:"date_time"`
	Reason   string    `json:"reason"`
}

func (h *handler) createSession(c *gin.Context) {
	var body createSessionBody
	if !bindJSON(c, &body) {
		return
	}

	session, err := h.sessions.Create(c.Request.Context(), service.CreateSessionInput{
		TutorID:          body.TutorID,
		StudentID:        body.StudentID,
		SubjectID:        body.SubjectID,
		DateTime:         body.DateTime,
		DurationMinutes:  body.DurationMinutes,
		Price:            body.Price,
		DeliveryType:     body.DeliveryType,
		VideoLink:        body.VideoLink,
		Room:             body.Room,
		Notes:            body.Notes,
		SkipConfirmation: body.SkipConfirmation,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *handler) listSessions(c *gin.Context) {
	q := newQueryParser(c)
	filter := model.SessionFilter{
		ParticipantID: q.int64Ptr("participant_id"),
		TutorID:       q.int64Ptr("tutor_id"),
		StudentID:     q.int64Ptr("student_id"),
		SubjectID:     q.int64Ptr("subject_id"),
		From:          q.timePtr("from"),
		To:            q.timePtr("to"),
		Query:         c.Query("q"),
		Limit:         q.int("limit"),
		Offset:        q.int("offset"),
	}
	for _, st := range q.list("status") {
		filter.Statuses = append(filter.Statuses, model.SessionStatus(st))
	}
	if !q.ok() {
		return
	}

	sessions, err := h.sessions.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": nonNil(sessions)})
}

func (h *handler) getSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	session, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *handler) updateSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch model.SessionPatch
	if !bindJSON(c, &patch) {
		return
	}
	session, err := h.sessions.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *handler) deleteSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) confirmSession(c *gin.Context) {
	h.sessionAction(c, h.sessions.Confirm)
}

func (h *handler) startSession(c *gin.Context) {
	h.sessionAction(c, h.sessions.Start)
}

func (h *handler) completeSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var details model.CompletionDetails
	if !bindOptionalJSON(c, &details) {
		return
	}
	session, err := h.sessions.Complete(c.Request.Context(), id, details)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *handler) cancelSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body cancelBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	session, err := h.sessions.Cancel(c.Request.Context(), id, body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *handler) rescheduleSession(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body rescheduleBody
	if !bindJSON(c, &body) {
		return
	}
	if body.DateTime.IsZero() {
		badRequest(c, "date_time", "date_time is required")
		return
	}
	session, err := h.sessions.Reschedule(c.Request.Context(), id, body.DateTime, body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type sessionOp func(ctx context.Context, id int64) (*model.Session, error)

func (h *handler) sessionAction(c *gin.Context, op sessionOp) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	session, err := op(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func errUnknownStatus(st string) error {
	return fmt.Errorf("unknown status %q", st)
}

// nonNil пустой список отдаётся как [], а не null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
