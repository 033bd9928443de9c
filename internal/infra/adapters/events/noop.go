package events

import (
	"context"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*LogPublisher)(nil)

// LogPublisher records events at debug level when no broker is configured.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(logger *zerolog.Logger) *LogPublisher {
	l := logger.With().Str("component", "event_log").Logger()
	return &LogPublisher{log: &l}
}

func (p *LogPublisher) Publish(ctx context.Context, e adapter.Event) error {
	p.log.Debug().Str("type", e.Type).Interface("payload", e.Payload).Msg("event")
	metrics.IncEventPublished(e.Type, "skipped")
	return nil
}
