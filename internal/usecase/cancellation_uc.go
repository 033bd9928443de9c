// File: internal/usecase/cancellation_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	ucport "subscription-billing/internal/domain/ports/usecase"
	"subscription-billing/internal/infra/metrics"
)

var _ ucport.CancellationSweeper = (*CancellationUseCase)(nil)

// CancellationUseCase runs the referral-gated cancellation workflow. Deadlines are
// evaluated when a sweep runs, never by timers.
type CancellationUseCase struct {
	tm     repository.TransactionManager
	st     Stores
	subs   *SubscriptionUseCase
	notes  *NotificationUseCase
	events adapter.EventPublisher
	policy Policy
	log    *zerolog.Logger
}

func NewCancellationUseCase(tm repository.TransactionManager, st Stores, subs *SubscriptionUseCase, notes *NotificationUseCase,
	events adapter.EventPublisher, policy Policy, logger *zerolog.Logger) *CancellationUseCase {
	l := logger.With().Str("component", "cancellations").Logger()
	return &CancellationUseCase{tm: tm, st: st, subs: subs, notes: notes, events: events, policy: policy, log: &l}
}

func pendingError(r *model.CancellationRequest, now time.Time) error {
	return &domain.PendingRequestError{RequestID: r.ID, ExpiresAt: r.ExpiresAt, TimeLeft: r.TimeLeft(now)}
}

// Create opens a request for the requester's own active subscription. A second
// request while one is pending fails with *domain.PendingRequestError.
func (uc *CancellationUseCase) Create(ctx context.Context, requesterID, userProductID, reason string) (*model.CancellationRequest, error) {
	now := time.Now()
	var req *model.CancellationRequest

	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		pair, err := uc.st.Subscriptions.FindByID(ctx, repository.NoTX, userProductID)
		if err != nil {
			return err
		}
		if pair.UserID != requesterID {
			return domain.ErrNotFound
		}
		if err := uc.st.Subscriptions.Lock(ctx, tx, pair.UserID, pair.ProductID); err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		up, err := uc.st.Subscriptions.FindByID(ctx, tx, userProductID)
		if err != nil {
			return err
		}
		if up.Status != model.SubscriptionStatusActive {
			return domain.ErrSubscriptionNotActive
		}

		existing, err := uc.st.Cancellations.FindPendingByUserProduct(ctx, tx, up.ID)
		if err == nil {
			return pendingError(existing, now)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("find pending request: %w", err)
		}

		var referrerID *string
		ref, err := uc.st.Referrals.FindByReferredUser(ctx, tx, requesterID)
		switch {
		case err == nil:
			referrerID = &ref.ReferrerID
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("find referral: %w", err)
		}

		r, err := model.NewCancellationRequest(up.ID, requesterID, referrerID, reason, uc.policy.DecisionWindow, now)
		if err != nil {
			return err
		}
		if err := uc.st.Cancellations.Create(ctx, tx, r); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCancellation("requested")
	publish(ctx, uc.events, uc.log, adapter.EventCancellationRequested, requestPayload(req))
	uc.log.Info().Str("request_id", req.ID).Bool("has_referrer", req.ReferrerID != nil).Msg("cancellation requested")

	if req.ReferrerID != nil {
		uc.notifyReferrerOfRequest(ctx, req)
	}
	return req, nil
}

func (uc *CancellationUseCase) notifyReferrerOfRequest(ctx context.Context, req *model.CancellationRequest) {
	referrer, err := uc.st.Users.FindByID(ctx, repository.NoTX, *req.ReferrerID)
	if err != nil {
		uc.log.Warn().Err(err).Str("request_id", req.ID).Msg("referrer not found for notification")
		return
	}
	requester, err := uc.st.Users.FindByID(ctx, repository.NoTX, req.RequesterID)
	if err != nil {
		uc.log.Warn().Err(err).Str("request_id", req.ID).Msg("requester not found for notification")
		return
	}
	if !uc.notes.CancellationRequested(ctx, referrer, requester, req) {
		return
	}
	if err := uc.st.Cancellations.MarkReferrerNotified(ctx, repository.NoTX, req.ID); err != nil {
		uc.log.Warn().Err(err).Str("request_id", req.ID).Msg("failed to flag referrer notification")
		return
	}
	req.ReferrerNotified = true
}

// Decide applies the referrer's decision. A request that is not pending or not
// addressed to actorID reads as not found; one past its deadline yields
// domain.ErrRequestExpired because the expiry sweep owns that transition.
func (uc *CancellationUseCase) Decide(ctx context.Context, actorID, requestID string, decision model.Decision, comment string) (*model.CancellationRequest, error) {
	to, err := decision.Status()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	comment = strings.TrimSpace(comment)
	var req *model.CancellationRequest

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r, err := uc.st.Cancellations.FindByID(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if !r.CanBeDecidedBy(actorID) || r.Status != model.CancellationPending {
			return domain.ErrNotFound
		}
		if r.IsPastExpiry(now) {
			return domain.ErrRequestExpired
		}
		ok, err := uc.st.Cancellations.Resolve(ctx, tx, r.ID, to, &actorID, comment, now)
		if err != nil {
			return fmt.Errorf("resolve request: %w", err)
		}
		if !ok {
			return domain.ErrNotFound
		}
		if to.CancelsSubscription() {
			if _, err := uc.subs.Cancel(ctx, tx, r.UserProductID, "cancellation_approved"); err != nil {
				return err
			}
		}
		r.Status, r.DecidedBy, r.DecidedAt, r.DecisionComment = to, &actorID, &now, comment
		req = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCancellation(string(to))
	typ := adapter.EventCancellationRejected
	if to == model.CancellationApproved {
		typ = adapter.EventCancellationApproved
		publish(ctx, uc.events, uc.log, adapter.EventSubscriptionCancelled, map[string]any{"user_product_id": req.UserProductID})
	}
	publish(ctx, uc.events, uc.log, typ, requestPayload(req))

	if requester, err := uc.st.Users.FindByID(ctx, repository.NoTX, req.RequesterID); err == nil {
		uc.notes.CancellationDecided(ctx, requester, req)
	} else {
		uc.log.Warn().Err(err).Str("request_id", req.ID).Msg("requester not found for notification")
	}
	return req, nil
}

// ExpireDue resolves every pending request past its deadline and cancels the
// linked subscription. It returns how many requests it expired.
func (uc *CancellationUseCase) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	due, err := uc.st.Cancellations.ListExpired(ctx, repository.NoTX, now, uc.policy.CancellationBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired requests: %w", err)
	}

	expired := 0
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		ok, err := uc.expireOne(ctx, r, now)
		if err != nil {
			uc.log.Error().Err(err).Str("request_id", r.ID).Msg("failed to expire request")
			continue
		}
		if !ok {
			continue
		}
		expired++
		uc.afterExpiry(ctx, r)
	}
	if len(due) > 0 {
		uc.log.Info().Int("due", len(due)).Int("expired", expired).Msg("cancellation expiry sweep finished")
	}
	return expired, nil
}

func (uc *CancellationUseCase) expireOne(ctx context.Context, r *model.CancellationRequest, now time.Time) (bool, error) {
	var resolved bool
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := uc.st.Cancellations.Resolve(ctx, tx, r.ID, model.CancellationExpired, nil, model.AutoExpiredComment, now)
		if err != nil || !ok {
			return err
		}
		if _, err := uc.subs.Cancel(ctx, tx, r.UserProductID, "cancellation_expired"); err != nil {
			return err
		}
		resolved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if resolved {
		r.Status, r.DecidedAt, r.DecisionComment = model.CancellationExpired, &now, model.AutoExpiredComment
	}
	return resolved, nil
}

func (uc *CancellationUseCase) afterExpiry(ctx context.Context, r *model.CancellationRequest) {
	metrics.IncCancellation(string(model.CancellationExpired))
	publish(ctx, uc.events, uc.log, adapter.EventCancellationExpired, requestPayload(r))
	publish(ctx, uc.events, uc.log, adapter.EventSubscriptionCancelled, map[string]any{"user_product_id": r.UserProductID})

	if requester, err := uc.st.Users.FindByID(ctx, repository.NoTX, r.RequesterID); err == nil {
		uc.notes.CancellationExpired(ctx, requester, r)
	}
	if r.ReferrerID == nil {
		return
	}
	if referrer, err := uc.st.Users.FindByID(ctx, repository.NoTX, *r.ReferrerID); err == nil {
		uc.notes.CancellationExpired(ctx, referrer, r)
	}
}

// SendReminders nudges referrers once per request when the deadline is near. The
// flag is claimed before sending, so a crash loses a reminder rather than doubling it.
func (uc *CancellationUseCase) SendReminders(ctx context.Context, now time.Time) (int, error) {
	due, err := uc.st.Cancellations.ListReminderDue(ctx, repository.NoTX, now, now.Add(uc.policy.ReminderBefore), uc.policy.CancellationBatch)
	if err != nil {
		return 0, fmt.Errorf("list reminder candidates: %w", err)
	}

	sent := 0
	for _, r := range due {
		if ctx.Err() != nil || r.ReferrerID == nil {
			continue
		}
		claimed, err := uc.st.Cancellations.MarkReminderSent(ctx, repository.NoTX, r.ID)
		if err != nil {
			uc.log.Error().Err(err).Str("request_id", r.ID).Msg("failed to claim reminder")
			continue
		}
		if !claimed {
			continue
		}
		referrer, err := uc.st.Users.FindByID(ctx, repository.NoTX, *r.ReferrerID)
		if err != nil {
			uc.log.Warn().Err(err).Str("request_id", r.ID).Msg("referrer not found for reminder")
			continue
		}
		if uc.notes.CancellationReminder(ctx, referrer, r, now) {
			sent++
		}
	}
	return sent, nil
}

func (uc *CancellationUseCase) ListMine(ctx context.Context, userID string) ([]*model.CancellationRequest, error) {
	return uc.st.Cancellations.ListByRequester(ctx, repository.NoTX, userID)
}

func (uc *CancellationUseCase) ListForReferrer(ctx context.Context, referrerID string) ([]*model.CancellationRequest, error) {
	return uc.st.Cancellations.ListByReferrer(ctx, repository.NoTX, referrerID)
}

func requestPayload(r *model.CancellationRequest) map[string]any {
	return map[string]any{
		"request_id":      r.ID,
		"user_product_id": r.UserProductID,
		"requester_id":    r.RequesterID,
		"referrer_id":     deref(r.ReferrerID),
		"status":          string(r.Status),
		"expires_at":      r.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
