// Package observability метрики Prometheus и трассировка OpenTelemetry
package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"github.com/Freeeeeet/tutoring_backend/internal/notify"
	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector доменные метрики бронирования и доставки уведомлений.
// Методы безопасно вызывать на nil.
type Collector struct {
	gatherer prometheus.Gatherer

	SessionTransitions *prometheus.CounterVec
	Conflicts          *prometheus.CounterVec
	RequestResponses   *prometheus.CounterVec
	RemindersSent      *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	SweepActions       *prometheus.CounterVec
	NotificationsSent  *prometheus.CounterVec
	NotificationsDrop  prometheus.Counter
}

var (
	_ service.Metrics = (*Collector)(nil)
	_ notify.Metrics  = (*Collector)(nil)
)

// NewCollector регистрирует метрики в reg (по умолчанию глобальный реестр)
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.SessionTransitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tutoring_session_transitions_total",
		Help: "Session status changes by target status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}

	if c.Conflicts, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tutoring_time_conflicts_total",
		Help: "Operations rejected because of a participant time conflict.",
	}, []string{"operation"})); err != nil {
		return nil, err
	}

	if c.RequestResponses, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tutoring_request_responses_total",
		Help: "Tutor responses to session requests by resulting status.",
	}, []string{"status"})); err != nil {
		return nil, err
	}

	if c.RemindersSent, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tutoring_reminders_sent_total",
		Help: "Session reminders emitted by lead.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}

	if c.SweepDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tutoring_sweep_duration_seconds",
		Help:    "Duration of one background sweep.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})); err != nil {
		return nil, err
	}

	if c.SweepActions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tutoring_sweep_actions_total",
		Help: "Actions taken by the background sweep.",
	}, []string{"action"})); err != nil {
		return nil, err
	}

	if c.NotificationsSent, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tutoring_notifications_sent_total",
		Help: "Notification delivery attempts by sink and result.",
	}, []string{"sink", "result"})); err != nil {
		return nil, err
	}

	if c.NotificationsDrop, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tutoring_notifications_dropped_total",
		Help: "Notifications dropped because the dispatch queue was full or stopped.",
	})); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer реестр, из которого отдаётся /metrics
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *Collector) SessionTransition(to model.SessionStatus) {
	if c == nil {
		return
	}
	c.SessionTransitions.WithLabelValues(string(to)).Inc()
}

func (c *Collector) Conflict(operation string) {
	if c == nil {
		return
	}
	c.Conflicts.WithLabelValues(operation).Inc()
}

func (c *Collector) RequestResponded(status model.RequestStatus) {
	if c == nil {
		return
	}
	c.RequestResponses.WithLabelValues(string(status)).Inc()
}

func (c *Collector) ReminderSent(kind string) {
	if c == nil {
		return
	}
	c.RemindersSent.WithLabelValues(kind).Inc()
}

func (c *Collector) SweepFinished(d time.Duration, report service.SweepReport) {
	if c == nil {
		return
	}
	c.SweepDuration.Observe(d.Seconds())
	c.SweepActions.WithLabelValues("reminder").Add(float64(report.RemindersSent))
	c.SweepActions.WithLabelValues("auto_start").Add(float64(report.AutoStarted))
	c.SweepActions.WithLabelValues("no_show").Add(float64(report.NoShows))
	c.SweepActions.WithLabelValues("error").Add(float64(report.Errors))
}

func (c *Collector) NotificationSent(sink string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.NotificationsSent.WithLabelValues(sink, result).Inc()
}

func (c *Collector) NotificationDropped() {
	if c == nil {
		return
	}
	c.NotificationsDrop.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.New("counter vec already registered with incompatible type")
		}
		return nil, fmt.Errorf("register counter vec: %w", err)
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, errors.New("counter already registered with incompatible type")
		}
		return nil, fmt.Errorf("register counter: %w", err)
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, errors.New("histogram already registered with incompatible type")
		}
		return nil, fmt.Errorf("register histogram: %w", err)
	}
	return hist, nil
}
