// File: internal/infra/adapters/notify/smtp.go
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/logging"
)

var _ adapter.Notifier = (*SMTPNotifier)(nil)

// sender is the part of *gomail.Dialer used here.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPNotifier delivers plain-text mail. Failures are logged and reported as false.
type SMTPNotifier struct {
	dialer sender
	from   string
	log    *zerolog.Logger
	dev    bool
}

func NewSMTPNotifier(cfg config.MailConfig, logger *zerolog.Logger, dev bool) *SMTPNotifier {
	l := logger.With().Str("component", "smtp_notifier").Logger()
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		log:    &l,
		dev:    dev,
	}
}

func (n *SMTPNotifier) Notify(ctx context.Context, recipientEmail, subject, body string) bool {
	if recipientEmail == "" {
		n.log.Warn().Str("subject", subject).Msg("notification without recipient dropped")
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", recipientEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		n.log.Error().Err(err).
			Str("to", logging.Redact(recipientEmail, n.dev)).
			Str("subject", subject).
			Msg("failed to send email")
		return false
	}
	n.log.Debug().Str("to", logging.Redact(recipientEmail, n.dev)).Str("subject", subject).Msg("email sent")
	return true
}
