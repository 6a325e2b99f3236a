package api

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/gin-gonic/gin"
)

type createRequestBody struct {
	StudentID       int64         `json:"student_id"`
	TutorID         int64         `json:"tutor_id"`
	SubjectID       int64         `json:"subject_id"`
	DesiredDateTime time.Time     `json:"desired_date_time"`
	DurationMinutes int           `json:"duration_minutes"`
	Message         string        `json:"message"`
	Urgency         model.Urgency `json:"urgency"`
	MaxBudget       int64         `json:"max_budget"`
	DateFlexible    bool          `json:"date_flexible"`
	AcceptsOnline   *bool         `json:"accepts_online"`
	AcceptsInPerson bool          `json:"accepts_in_person"`
}

type respondBody struct {
	Status   model.RequestStatus    `json:"status"`
	Response string                 `json:"response"`
	Counter  *model.CounterProposal `json:"counter"`
}

func (h *handler) createRequest(c *gin.Context) {
	var body createRequestBody
	if !bindJSON(c, &body) {
		return
	}

	req, err := h.requests.Create(c.Request.Context(), service.CreateRequestInput{
		StudentID:       body.StudentID,
		TutorID:         body.TutorID,
		SubjectID:       body.SubjectID,
		DesiredDateTime: body.DesiredDateTime,
		DurationMinutes: body.DurationMinutes,
		Message:         body.Message,
		Urgency:         body.Urgency,
		MaxBudget:       body.MaxBudget,
		DateFlexible:    body.DateFlexible,
		AcceptsOnline:   body.AcceptsOnline,
		AcceptsInPerson: body.AcceptsInPerson,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (h *handler) listRequests(c *gin.Context) {
	q := newQueryParser(c)
	filter := model.RequestFilter{
		StudentID: q.int64Ptr("student_id"),
		TutorID:   q.int64Ptr("tutor_id"),
		From:      q.timePtr("from"),
		To:        q.timePtr("to"),
		Query:     c.Query("q"),
		Limit:     q.int("limit"),
		Offset:    q.int("offset"),
	}
	for _, st := range q.list("status") {
		status := model.RequestStatus(st)
		if !status.IsValid() {
			q.fail("status", errUnknownStatus(st))
			break
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if !q.ok() {
		return
	}

	requests, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": nonNil(requests)})
}

func (h *handler) getRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	req, err := h.requests.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *handler) updateRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch service.RequestPatch
	if !bindJSON(c, &patch) {
		return
	}
	req, err := h.requests.Update(c.Request.Context(), id, patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *handler) deleteRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.requests.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) respondRequest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body respondBody
	if !bindJSON(c, &body) {
		return
	}
	h.respond(c, id, body.Status, body)
}

func (h *handler) acceptRequest(c *gin.Context) {
	h.respondWith(c, model.RequestStatusAccepted)
}

func (h *handler) rejectRequest(c *gin.Context) {
	h.respondWith(c, model.RequestStatusRejected)
}

func (h *handler) respondWith(c *gin.Context, status model.RequestStatus) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body respondBody
	if !bindOptionalJSON(c, &body) {
		return
	}
	h.respond(c, id, status, body)
}

func (h *handler) respond(c *gin.Context, id int64, status model.RequestStatus, body respondBody) {
	result, err := h.requests.Respond(c.Request.Context(), id, status, body.Response, body.Counter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
