package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Billing
	ErrProviderFailure  = errors.New("payment provider rejected the request")
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrLockNotAcquired  = errors.New("lock is held by another worker")

	// Subscriptions and cancellations
	ErrSubscriptionNotActive = errors.New("subscription is not active")
	ErrPendingRequestExists  = errors.New("a pending cancellation request already exists")
	ErrRequestExpired        = errors.New("cancellation request has already expired")
)

// PendingRequestError carries the blocking request so callers can surface its remaining time.
type PendingRequestError struct {
	RequestID string
	ExpiresAt time.Time
	TimeLeft  string
}

func (e *PendingRequestError) Error() string {
	return fmt.Sprintf("%s (time left: %s)", ErrPendingRequestExists.Error(), e.TimeLeft)
}

func (e *PendingRequestError) Unwrap() error { return ErrPendingRequestExists }
