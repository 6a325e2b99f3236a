package service

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Ограничения поиска слотов
const (
	MinDurationMinutes        = 30
	MaxDurationMinutes        = 480
	DefaultGranularityMinutes = 30
	DefaultMaxSlots           = 10
	MaxSlots                  = 100
	MaxSearchHorizon          = 90 * 24 * time.Hour
)

// TimeOfDay часть суток для предпочтений
type TimeOfDay string

const (
	TimeOfDayAny       TimeOfDay = "any"
	TimeOfDayMorning   TimeOfDay = "morning"   // 06:00–12:00
	TimeOfDayAfternoon TimeOfDay = "afternoon" // 12:00–17:00
	TimeOfDayEvening   TimeOfDay = "evening"   // 17:00–22:00
)

var timeOfDayHours = map[TimeOfDay][2]int{
	TimeOfDayMorning:   {6, 12},
	TimeOfDayAfternoon: {12, 17},
	TimeOfDayEvening:   {17, 22},
}

// IsValid проверяет значение. Пустое = any.
func (t TimeOfDay) IsValid() bool {
	if t == "" || t == TimeOfDayAny {
		return true
	}
	_, ok := timeOfDayHours[t]
	return ok
}

// SlotPreferences мягкие предпочтения. Часы и дни недели считаются в часовом поясе начала горизонта.
type SlotPreferences struct {
	TimeOfDay      TimeOfDay      `json:"time_of_day"`
	Weekdays       []time.Weekday `json:"weekdays"`
	PreferredStart *time.Time     `json:"preferred_start"`
}

// SlotQuery параметры поиска
type SlotQuery struct {
	TutorID            int64
	StudentID          *int64
	HorizonStart       time.Time
	HorizonEnd         time.Time
	DurationMinutes    int
	GranularityMinutes int
	Preferences        *SlotPreferences
	MaxResults         int
}

// Slot свободное окно. Score в [0, 1], больше = ближе к желаемому времени.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Score float64   `json:"score"`
}

// SlotFinder поиск свободных окон у репетитора (и студента)
type SlotFinder struct {
	store Store
	deps  deps
}

func NewSlotFinder(store Store, opts ...Option) *SlotFinder {
	return &SlotFinder{store: store, deps: newDeps(opts)}
}

// FindSlots возвращает отсортированные кандидаты. Пустой результат не ошибка.
func (f *SlotFinder) FindSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	ctx, span := f.deps.tracer.Start(ctx, "SlotFinder.FindSlots", trace.WithAttributes(
		attribute.Int64("tutor_id", q.TutorID),
		attribute.Int("duration_minutes", q.DurationMinutes),
	))
	defer span.End()

	q, err := normalizeSlotQuery(q)
	if err != nil {
		return nil, err
	}

	var studentID int64
	if q.StudentID != nil {
		studentID = *q.StudentID
	}

	// Одно чтение на весь поиск
	sessions, err := loadParticipantSessions(ctx, f.store, q.TutorID, studentID, q.HorizonStart, q.HorizonEnd)
	if err != nil {
		return nil, err
	}

	now := f.deps.now()
	prefs := q.Preferences
	if prefs == nil {
		prefs = &SlotPreferences{}
	}

	var slots []Slot
	for slot := range freeWindows(q, sessions, studentID, now) {
		if matchesPreferences(slot, prefs, q.HorizonStart.Location()) {
			slots = append(slots, slot)
		}
	}

	preferred := q.HorizonStart
	if now.After(preferred) {
		preferred = now
	}
	if prefs.PreferredStart != nil {
		preferred = *prefs.PreferredStart
	}
	rankSlots(slots, preferred, q.HorizonEnd.Sub(q.HorizonStart))

	if len(slots) > q.MaxResults {
		slots = slots[:q.MaxResults]
	}
	span.SetAttributes(attribute.Int("slots_found", len(slots)))
	return slots, nil
}

func normalizeSlotQuery(q SlotQuery) (SlotQuery, error) {
	if q.DurationMinutes < MinDurationMinutes || q.DurationMinutes > MaxDurationMinutes {
		return q, invalid("duration_minutes", "must be between 30 and 480")
	}
	if q.TutorID <= 0 {
		return q, invalid("tutor_id", "must be positive")
	}
	if q.StudentID != nil && (*q.StudentID <= 0 || *q.StudentID == q.TutorID) {
		return q, invalid("student_id", "must be positive and differ from tutor_id")
	}
	if !q.HorizonEnd.After(q.HorizonStart) {
		return q, invalid("horizon", "end must be after start")
	}
	if q.HorizonEnd.Sub(q.HorizonStart) > MaxSearchHorizon {
		return q, invalid("horizon", "must not exceed 90 days")
	}
	if q.GranularityMinutes == 0 {
		q.GranularityMinutes = DefaultGranularityMinutes
	}
	if q.GranularityMinutes < 5 || q.GranularityMinutes > 24*60 {
		return q, invalid("granularity_minutes", "must be between 5 and 1440")
	}
	if q.MaxResults <= 0 {
		q.MaxResults = DefaultMaxSlots
	}
	if q.MaxResults > MaxSlots {
		q.MaxResults = MaxSlots
	}
	if q.Preferences != nil && !q.Preferences.TimeOfDay.IsValid() {
		return q, invalid("time_of_day", "must be one of any, morning, afternoon, evening")
	}
	return q, nil
}

// freeWindows лениво обходит горизонт с шагом granularity и отдаёт окна без пересечений
func freeWindows(q SlotQuery, sessions []*model.Session, studentID int64, now time.Time) iter.Seq[Slot] {
	duration := time.Duration(q.DurationMinutes) * time.Minute
	step := time.Duration(q.GranularityMinutes) * time.Minute

	return func(yield func(Slot) bool) {
		for start := q.HorizonStart; !start.Add(duration).After(q.HorizonEnd); start = start.Add(step) {
			if start.Before(now) {
				continue
			}
			end := start.Add(duration)
			if len(FindConflicts(sessions, q.TutorID, studentID, start, end, 0)) > 0 {
				continue
			}
			if !yield(Slot{Start: start, End: end}) {
				return
			}
		}
	}
}

func matchesPreferences(slot Slot, prefs *SlotPreferences, loc *time.Location) bool {
	start := slot.Start.In(loc)
	end := slot.End.In(loc)

	if len(prefs.Weekdays) > 0 && !slices.Contains(prefs.Weekdays, start.Weekday()) {
		return false
	}

	hours, ok := timeOfDayHours[prefs.TimeOfDay]
	if !ok {
		return true
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	from := day.Add(time.Duration(hours[0]) * time.Hour)
	to := day.Add(time.Duration(hours[1]) * time.Hour)
	return !start.Before(from) && !end.After(to)
}

// rankSlots score = 1 - |start - preferred| / maxDistance, по убыванию score, затем по времени
func rankSlots(slots []Slot, preferred time.Time, maxDistance time.Duration) {
	for i := range slots {
		distance := slots[i].Start.Sub(preferred)
		if distance < 0 {
			distance = -distance
		}
		score := 1 - float64(distance)/float64(maxDistance)
		slots[i].Score = min(max(score, 0), 1)
	}
	slices.SortStableFunc(slots, func(a, b Slot) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return a.Start.Compare(b.Start)
	})
}
