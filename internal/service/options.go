package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/lock"
	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Freeeeeet/tutoring_backend/internal/service"

// Notifier принимает события без ожидания доставки
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// Locker взаимное исключение по ключам участников.
// Возвращённую функцию нужно вызвать ровно один раз.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (func(), error)
}

// Metrics счётчики доменных событий
type Metrics interface {
	SessionTransition(to model.SessionStatus)
	Conflict(operation string)
	RequestResponded(status model.RequestStatus)
	ReminderSent(kind string)
	SweepFinished(d time.Duration, report SweepReport)
}

// Option настраивает сервисы
type Option func(*deps)

type deps struct {
	now              func() time.Time
	locker           Locker
	notifier         Notifier
	metrics          Metrics
	tracer           trace.Tracer
	rescheduleNotice time.Duration
}

// DefaultRescheduleMinNotice подтверждённое занятие можно перенести не позже чем за это время до начала
const DefaultRescheduleMinNotice = 2 * time.Hour

// defaultLocker общий для всех сервисов процесса, если WithLocker не задан
var defaultLocker = lock.NewLocal()

func newDeps(opts []Option) deps {
	d := deps{
		now:              time.Now,
		locker:           defaultLocker,
		notifier:         noopNotifier{},
		metrics:          noopMetrics{},
		tracer:           otel.Tracer(tracerName),
		rescheduleNotice: DefaultRescheduleMinNotice,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// WithLocker задаёт блокировки участников
func WithLocker(l Locker) Option {
	return func(d *deps) {
		if l != nil {
			d.locker = l
		}
	}
}

// WithNotifier задаёт получателя событий
func WithNotifier(n Notifier) Option {
	return func(d *deps) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithMetrics задаёт сборщик метрик
func WithMetrics(m Metrics) Option {
	return func(d *deps) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithRescheduleMinNotice минимальный запас до начала для переноса подтверждённого занятия
func WithRescheduleMinNotice(notice time.Duration) Option {
	return func(d *deps) {
		if notice > 0 {
			d.rescheduleNotice = notice
		}
	}
}

// participantKeys ключи блокировок в стабильном порядке, чтобы не было взаимоблокировок.
// Ключ по пользователю, а не по роли: занятость проверяется в любой роли.
func participantKeys(tutorID, studentID int64) []string {
	keys := []string{
		fmt.Sprintf("user:%d", tutorID),
		fmt.Sprintf("user:%d", studentID),
	}
	sort.Strings(keys)
	return keys
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, model.Notification) {}

type noopMetrics struct{}

func (noopMetrics) SessionTransition(model.SessionStatus)    {}
func (noopMetrics) Conflict(string)                          {}
func (noopMetrics) RequestResponded(model.RequestStatus)     {}
func (noopMetrics) ReminderSent(string)                      {}
func (noopMetrics) SweepFinished(time.Duration, SweepReport) {}
