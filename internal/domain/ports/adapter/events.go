package adapter

import (
	"context"
	"time"
)

const (
	EventPaymentConfirmed      = "payment.confirmed"
	EventPaymentFailed         = "payment.failed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionRenewed   = "subscription.renewed"
	EventSubscriptionGrace     = "subscription.grace"
	EventSubscriptionExpired   = "subscription.expired"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventCancellationRequested = "cancellation.requested"
	EventCancellationApproved  = "cancellation.approved"
	EventCancellationRejected  = "cancellation.rejected"
	EventCancellationExpired   = "cancellation.expired"
	EventCommissionAccrued     = "referral.commission_accrued"
)

type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

func NewEvent(typ string, payload map[string]any) Event {
	return Event{Type: typ, OccurredAt: time.Now().UTC(), Payload: payload}
}

// EventPublisher emits domain events after commits. Callers log and drop errors.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
