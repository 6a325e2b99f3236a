package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct {
	runs atomic.Int32
	err  error
}

func (s *countingSweeper) RunOnce(context.Context) (service.SweepReport, error) {
	s.runs.Add(1)
	return service.SweepReport{Checked: 1, RemindersSent: 1}, s.err
}

func TestSchedulerRunsImmediatelyAndOnTick(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := sweeper.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, sweeper.runs.Load())

	// Повторный Stop безопасен
	s.Stop()
}

func TestSchedulerSurvivesErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("db down")}
	s := NewScheduler(sweeper, 5*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	sweeper := &countingSweeper{}
	s := NewScheduler(sweeper, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return sweeper.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	logger := NewLogger("production", path)
	logger.Info("booking accepted", zap.Int64("request_id", 7))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"booking accepted"`)
	assert.Contains(t, string(data), `"request_id":7`)
}
