package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/community-services/internal/events"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notifications")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, event events.Event) error {
	s.logger.Info("ticket event",
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("kind", string(event.Kind)),
		zap.String("actor", event.Actor),
		zap.Time("timestamp", event.Timestamp),
		zap.Strings("recipients", event.Recipients),
		zap.Any("detail", event.Detail),
	)
	return nil
}
