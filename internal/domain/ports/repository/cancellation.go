package repository

import (
	"context"
	"time"

	"subscription-billing/internal/domain/model"
)

// CancellationRepository keeps at most one pending request per subscription.
type CancellationRepository interface {
	// Create yields domain.ErrAlreadyExists when a pending request already covers the subscription.
	Create(ctx context.Context, tx Tx, r *model.CancellationRequest) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.CancellationRequest, error)
	FindPendingByUserProduct(ctx context.Context, tx Tx, userProductID string) (*model.CancellationRequest, error)

	// Resolve moves a pending request to a terminal status; false when it was no longer pending.
	Resolve(ctx context.Context, tx Tx, id string, to model.CancellationStatus, decidedBy *string, comment string, at time.Time) (bool, error)

	ListExpired(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.CancellationRequest, error)
	// ListReminderDue returns pending, unreminded requests with a referrer and now < expires_at <= until.
	ListReminderDue(ctx context.Context, tx Tx, now, until time.Time, limit int) ([]*model.CancellationRequest, error)
	// MarkReminderSent flips the flag once; false when it was already set.
	MarkReminderSent(ctx context.Context, tx Tx, id string) (bool, error)
	MarkReferrerNotified(ctx context.Context, tx Tx, id string) error

	ListByRequester(ctx context.Context, tx Tx, userID string) ([]*model.CancellationRequest, error)
	ListByReferrer(ctx context.Context, tx Tx, referrerID string) ([]*model.CancellationRequest, error)
}
