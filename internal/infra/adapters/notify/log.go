package notify

import (
	"context"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/logging"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the log instead of sending them. Used when no SMTP host is set.
type LogNotifier struct {
	log *zerolog.Logger
	dev bool
}

func NewLogNotifier(logger *zerolog.Logger, dev bool) *LogNotifier {
	l := logger.With().Str("component", "log_notifier").Logger()
	return &LogNotifier{log: &l, dev: dev}
}

func (n *LogNotifier) Notify(ctx context.Context, recipientEmail, subject, body string) bool {
	if recipientEmail == "" {
		return false
	}
	n.log.Info().
		Str("to", logging.Redact(recipientEmail, n.dev)).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("notification")
	return true
}
