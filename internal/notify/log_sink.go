package notify

import (
	"context"

	"github.com/Freeeeeet/tutoring_backend/internal/model"
	"go.uber.org/zap"
)

// LogSink пишет уведомления в лог
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(_ context.Context, n model.Notification) error {
	s.logger.Info("Notification",
		zap.String("kind", string(n.Kind)),
		zap.Int64("recipient_id", n.RecipientID),
		zap.Int64("entity_id", n.RelatedEntityID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}
