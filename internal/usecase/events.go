package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/ports/adapter"
)

// publish emits an event after a commit. Failures only reach the log.
func publish(ctx context.Context, pub adapter.EventPublisher, log *zerolog.Logger, typ string, payload map[string]any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, adapter.NewEvent(typ, payload)); err != nil {
		log.Warn().Err(err).Str("event", typ).Msg("failed to publish event")
	}
}
