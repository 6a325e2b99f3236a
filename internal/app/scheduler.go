package app

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"go.uber.org/zap"
)

// SweepRunner один фоновый проход по занятиям
type SweepRunner interface {
	RunOnce(ctx context.Context) (service.SweepReport, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	sweeper  SweepRunner
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler создаёт новый планировщик
func NewScheduler(sweeper SweepRunner, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.runSweepTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт текущий проход
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping background scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

// runSweepTask периодически запускает проход: напоминания, автостарт, неявки
func (s *Scheduler) runSweepTask(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Sweep task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sweep task cancelled")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	report, err := s.sweeper.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		return
	}

	if report.RemindersSent+report.AutoStarted+report.NoShows+report.Errors > 0 {
		s.logger.Info("Sweep completed",
			zap.Int("checked", report.Checked),
			zap.Int("reminders_sent", report.RemindersSent),
			zap.Int("auto_started", report.AutoStarted),
			zap.Int("no_shows", report.NoShows),
			zap.Int("errors", report.Errors),
		)
	}
}
