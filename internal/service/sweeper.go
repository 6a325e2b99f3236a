package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SweepConfig параметры фонового прохода
type SweepConfig struct {
	ReminderLeads []time.Duration // за сколько до начала напоминать
	NoShowGrace   time.Duration   // после start+grace неначатое занятие отменяется
	AutoStart     bool            // переводить в in_progress в момент начала
}

// DefaultSweepConfig напоминания за 24ч, 1ч и 15 минут, неявка через 30 минут
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		ReminderLeads: []time.Duration{24 * time.Hour, time.Hour, 15 * time.Minute},
		NoShowGrace:   30 * time.Minute,
		AutoStart:     true,
	}
}

// SweepReport итог одного прохода
type SweepReport struct {
	Checked       int `json:"checked"`
	RemindersSent int `json:"reminders_sent"`
	AutoStarted   int `json:"auto_started"`
	NoShows       int `json:"no_shows"`
	Errors        int `json:"errors"`
}

// Sweeper переводы по времени и напоминания для подтверждённых занятий.
// Повторный проход ничего не делает дважды: статусы пишутся compare-and-set,
// напоминание отмечается в хранилище до отправки.
type Sweeper struct {
	store  Store
	logger *zap.Logger
	cfg    SweepConfig
	deps
}

func NewSweeper(store Store, logger *zap.Logger, cfg SweepConfig, opts ...Option) *Sweeper {
	// От меньшего к большему: берём самое близкое наступившее
	leads := slices.Clone(cfg.ReminderLeads)
	slices.Sort(leads)
	cfg.ReminderLeads = leads

	return &Sweeper{
		store:  store,
		logger: logger,
		cfg:    cfg,
		deps:   newDeps(opts),
	}
}

// RunOnce один проход. Ошибка по отдельному занятию логируется и не прерывает проход.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	ctx, span := s.tracer.Start(ctx, "Sweeper.RunOnce")
	defer span.End()

	started := time.Now()
	now := s.now()
	var report SweepReport

	horizon := now
	if n := len(s.cfg.ReminderLeads); n > 0 {
		horizon = now.Add(s.cfg.ReminderLeads[n-1])
	}

	// Все подтверждённые, начинающиеся не позже последнего окна напоминаний.
	// Нижней границы нет: после простоя сервиса просроченные тоже должны закрыться.
	sessions, err := s.store.Sessions().List(ctx, model.SessionFilter{
		Statuses: []model.SessionStatus{model.SessionStatusConfirmed},
		To:       &horizon,
	})
	if err != nil {
		return report, fmt.Errorf("list confirmed sessions: %w", err)
	}

	for _, session := range sessions {
		report.Checked++
		if err := s.process(ctx, session, now, &report); err != nil {
			report.Errors++
			s.logger.Error("Failed to process session in sweep",
				zap.Int64("session_id", session.ID),
				zap.Error(err),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.checked", report.Checked),
		attribute.Int("sweep.reminders", report.RemindersSent),
		attribute.Int("sweep.auto_started", report.AutoStarted),
		attribute.Int("sweep.no_shows", report.NoShows),
	)
	s.metrics.SweepFinished(time.Since(started), report)

	if report.RemindersSent+report.AutoStarted+report.NoShows+report.Errors > 0 {
		s.logger.Info("Sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("reminders_sent", report.RemindersSent),
			zap.Int("auto_started", report.AutoStarted),
			zap.Int("no_shows", report.NoShows),
			zap.Int("errors", report.Errors),
		)
	}

	return report, nil
}

func (s *Sweeper) process(ctx context.Context, session *model.Session, now time.Time, report *SweepReport) error {
	start := session.DateTime

	switch {
	case !now.Before(start.Add(s.cfg.NoShowGrace)):
		return s.markNoShow(ctx, session, now, report)
	case !now.Before(start):
		if s.cfg.AutoStart {
			return s.autoStart(ctx, session, now, report)
		}
		return nil
	default:
		return s.remind(ctx, session, now, report)
	}
}

func (s *Sweeper) markNoShow(ctx context.Context, session *model.Session, now time.Time, report *SweepReport) error {
	err := applyTransition(ctx, s.store, session, model.EventNoShow, "no_show", now, func(sess *model.Session, now time.Time) {
		sess.NoShow = true
		sess.CancelledAt = &now
		sess.AppendNote(fmt.Sprintf("No-show: not started within %s of %s",
			formatLead(s.cfg.NoShowGrace), sess.DateTime.Format(noteTimeLayout)))
	})
	if err != nil {
		return ignoreStale(err)
	}

	report.NoShows++
	s.logger.Info("Session cancelled as no-show", zap.Int64("session_id", session.ID))
	s.metrics.SessionTransition(session.Status)
	s.notifyParticipants(ctx, session, model.NotifySessionNoShow)
	return nil
}

func (s *Sweeper) autoStart(ctx context.Context, session *model.Session, now time.Time, report *SweepReport) error {
	err := applyTransition(ctx, s.store, session, model.EventAutoStart, "auto_start", now, func(sess *model.Session, now time.Time) {
		sess.StartedAt = &now
	})
	if err != nil {
		return ignoreStale(err)
	}

	report.AutoStarted++
	s.logger.Info("Session auto-started", zap.Int64("session_id", session.ID))
	s.metrics.SessionTransition(session.Status)
	s.notifyParticipants(ctx, session, model.NotifySessionStarted)
	return nil
}

// remind отправляет только самое близкое наступившее напоминание (24h → 1h → 15m)
func (s *Sweeper) remind(ctx context.Context, session *model.Session, now time.Time, report *SweepReport) error {
	left := session.DateTime.Sub(now)

	var lead time.Duration
	for _, l := range s.cfg.ReminderLeads {
		if left <= l {
			lead = l
			break
		}
	}
	if lead == 0 {
		return nil
	}

	// Отметка ставится, только если занятие не отменили и не перенесли после выборки
	kind := formatLead(lead)
	marked, err := s.store.Reminders().MarkSent(ctx, session.ID, session.Version, kind, now)
	if err != nil {
		return err
	}
	if !marked {
		return nil
	}

	report.RemindersSent++
	s.metrics.ReminderSent(kind)
	s.notifyParticipants(ctx, session, model.NotifySessionReminder)
	return nil
}

// ignoreStale занятие уже изменили (другой проход или пользователь успел раньше), разберётся следующий проход
func ignoreStale(err error) error {
	if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) || errors.Is(err, errStaleSession) {
		return nil
	}
	return err
}

// formatLead 24h, 1h, 15m
func formatLead(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
	return d.String()
}
