package repository

import (
	"context"
	"time"

	"subscription-billing/internal/domain/model"
)

// UserProductRepository is the port for subscriptions.
// At most one live (active or pending) row exists per (user, product).
type UserProductRepository interface {
	// Lock serializes writers of one (user, product) pair until tx ends.
	Lock(ctx context.Context, tx Tx, userID, productID string) error
	// Save inserts up; a second live row yields domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, up *model.UserProduct) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserProduct, error)
	FindLive(ctx context.Context, tx Tx, userID, productID string) (*model.UserProduct, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.UserProduct, error)

	// ListDueForRenewal selects live subscription-type rows ending before `before`
	// whose attached payment method is active.
	ListDueForRenewal(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.UserProduct, error)

	// Renew sets end_date, the attached card and status active; false when the row is no longer live.
	Renew(ctx context.Context, tx Tx, id string, endDate time.Time, methodID *string) (bool, error)
	// TransitionStatus applies `to` only when the current status is one of `from`.
	TransitionStatus(ctx context.Context, tx Tx, id string, to model.SubscriptionStatus, from []model.SubscriptionStatus) (bool, error)

	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
