package api

import (
	"net/http"

	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/gin-gonic/gin"
)

// checkAvailability GET /api/availability?tutor_id=&student_id=&start=&end=&exclude_id=
func (h *handler) checkAvailability(c *gin.Context) {
	q := newQueryParser(c)
	tutorID := q.int64Value("tutor_id")
	studentID := q.int64Value("student_id")
	start := q.timeValue("start")
	end := q.timeValue("end")
	excludeID := q.int64Value("exclude_id")
	if !q.ok() {
		return
	}
	if tutorID <= 0 && studentID <= 0 {
		badRequest(c, "tutor_id", "tutor_id or student_id is required")
		return
	}

	conflicts, err := h.availability.Conflicts(c.Request.Context(), tutorID, studentID, start, end, excludeID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available": len(conflicts) == 0,
		"conflicts": nonNil(conflicts),
	})
}

// findSlots GET /api/slots?tutor_id=&student_id=&from=&to=&duration=&granularity=&time_of_day=&weekdays=&preferred_start=&limit=
func (h *handler) findSlots(c *gin.Context) {
	q := newQueryParser(c)
	query := service.SlotQuery{
		TutorID:            q.int64Value("tutor_id"),
		StudentID:          q.int64Ptr("student_id"),
		HorizonStart:       q.timeValue("from"),
		HorizonEnd:         q.timeValue("to"),
		DurationMinutes:    q.int("duration"),
		GranularityMinutes: q.int("granularity"),
		MaxResults:         q.int("limit"),
	}
	prefs := service.SlotPreferences{
		TimeOfDay:      service.TimeOfDay(c.Query("time_of_day")),
		Weekdays:       q.weekdays("weekdays"),
		PreferredStart: q.timePtr("preferred_start"),
	}
	if !q.ok() {
		return
	}
	if prefs.TimeOfDay != "" || prefs.Weekdays != nil || prefs.PreferredStart != nil {
		query.Preferences = &prefs
	}

	slots, err := h.slots.FindSlots(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": nonNil(slots)})
}
