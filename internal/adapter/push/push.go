// Package push holds the outbound notification channels. Every sender takes
// a batch and reports how many messages the channel accepted; the scheduler
// does not care which channel is wired in.
package push

import (
	"context"
	"log/slog"

	"github.com/ondamlab/yesterday/internal/domain"
)

// LogSender writes notifications to the log instead of delivering them. Used
// in development and as the default when no push channel is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs each notification and reports the whole batch as accepted.
func (s *LogSender) Send(_ context.Context, batch []domain.Notification) (int, error) {
	for _, n := range batch {
		s.logger.Info("notification (log channel)",
			"destination", n.Destination, "title", n.Title, "body", n.Body)
	}
	return len(batch), nil
}
