package email

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. It is the
// fallback when neither SMTP nor a queue is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email not sent, no transport configured",
		"to", msg.To,
		"subject", msg.Subject,
		"size", len(msg.HTML),
	)
	return nil
}
