// Package notify асинхронная доставка уведомлений по каналам (лог, Telegram, WebSocket).
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.uber.org/zap"
)

// Sink канал доставки уведомлений
type Sink interface {
	Name() string
	Send(ctx context.Context, n model.Notification) error
}

// Metrics счётчики доставки
type Metrics interface {
	NotificationDropped()
	NotificationSent(sink string, err error)
}

// Config параметры пула доставки
type Config struct {
	Workers     int
	Buffer      int
	SendTimeout time.Duration
}

// DefaultConfig 4 воркера, очередь на 256 событий
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		Buffer:      256,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher раздаёт уведомления по каналам в фоновых воркерах.
// Notify никогда не блокирует вызывающего: при полной очереди событие отбрасывается.
type Dispatcher struct {
	cfg     Config
	sinks   []Sink
	logger  *zap.Logger
	metrics Metrics

	queue chan model.Notification

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDispatcher(cfg Config, logger *zap.Logger, metrics Metrics, sinks ...Sink) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		cfg:     cfg,
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
		queue:   make(chan model.Notification, cfg.Buffer),
	}
}

// Start запускает воркеры. ctx ограничивает отправки, а не время жизни очереди:
// очередь закрывает Stop.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.logger.Info("Notification dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("buffer", d.cfg.Buffer),
		zap.Int("sinks", len(d.sinks)),
	)
}

// Stop закрывает очередь и ждёт, пока воркеры доставят то, что уже в ней
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

// Notify ставит уведомление в очередь
func (d *Dispatcher) Notify(_ context.Context, n model.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.NotificationDropped()
		d.logger.Warn("Notification dropped: dispatcher stopped",
			zap.String("kind", string(n.Kind)),
			zap.Int64("recipient_id", n.RecipientID),
		)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.metrics.NotificationDropped()
		d.logger.Warn("Notification dropped: queue is full",
			zap.String("kind", string(n.Kind)),
			zap.Int64("recipient_id", n.RecipientID),
			zap.Int("buffer", d.cfg.Buffer),
		)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := sink.Send(sendCtx, n)
		cancel()

		d.metrics.NotificationSent(sink.Name(), err)
		if err != nil {
			d.logger.Error("Failed to deliver notification",
				zap.String("sink", sink.Name()),
				zap.String("kind", string(n.Kind)),
				zap.Int64("recipient_id", n.RecipientID),
				zap.Error(err),
			)
		}
	}
}

type noopMetrics struct{}

func (noopMetrics) NotificationDropped()           {}
func (noopMetrics) NotificationSent(string, error) {}
