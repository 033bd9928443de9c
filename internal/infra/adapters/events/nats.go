// File: internal/infra/adapters/events/nats.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*NATSPublisher)(nil)

// NATSPublisher sends domain events to a JetStream stream.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
	log    *zerolog.Logger
}

// NewNATSPublisher connects and makes sure the stream exists.
func NewNATSPublisher(ctx context.Context, cfg config.NATSConfig, logger *zerolog.Logger) (*NATSPublisher, error) {
	l := logger.With().Str("component", "nats_publisher").Logger()
	nc, err := nats.Connect(cfg.URL,
		nats.Name("subscription-billing"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(sctx, jetstream.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		// The stream may be managed elsewhere.
		l.Warn().Err(err).Str("stream", cfg.Stream).Msg("failed to ensure stream")
	}

	return &NATSPublisher{nc: nc, js: js, prefix: cfg.SubjectPrefix, log: &l}, nil
}

// Subject maps an event type onto the stream subject space.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		prefix = "billing"
	}
	return prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, e adapter.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	subject := Subject(p.prefix, e.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		metrics.IncEventPublished(e.Type, "error")
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	metrics.IncEventPublished(e.Type, "ok")
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
