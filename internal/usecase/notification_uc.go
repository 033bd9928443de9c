package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/i18n"
	"subscription-billing/internal/infra/metrics"
)

// Notification kinds, used as metric labels.
const (
	NoteWelcome              = "welcome"
	NoteRenewed              = "renewed"
	NotePaymentFailed        = "payment_failed"
	NoteSuspended            = "suspended"
	NoteCardBound            = "card_bound"
	NoteCancellationNew      = "cancellation_requested"
	NoteCancellationDecided  = "cancellation_decided"
	NoteCancellationExpired  = "cancellation_expired"
	NoteCancellationReminder = "cancellation_reminder"
)

// Texts resolves message templates by key.
type Texts interface {
	T(key string, args ...interface{}) string
}

// NotificationUseCase composes subscriber and referrer messages and hands them to the sink.
// Every method is fire-and-forget.
type NotificationUseCase struct {
	sink  adapter.Notifier
	texts Texts
	log   *zerolog.Logger
}

// NewNotificationUseCase builds the composer. A nil texts uses the embedded English catalog.
func NewNotificationUseCase(sink adapter.Notifier, texts Texts, logger *zerolog.Logger) *NotificationUseCase {
	if texts == nil {
		texts = i18n.Default()
	}
	l := logger.With().Str("component", "notifications").Logger()
	return &NotificationUseCase{sink: sink, texts: texts, log: &l}
}

func (n *NotificationUseCase) send(ctx context.Context, kind, to, subject, body string) bool {
	if n == nil || n.sink == nil || to == "" {
		return false
	}
	ok := n.sink.Notify(ctx, to, subject, body)
	status := "sent"
	if !ok {
		status = "failed"
		n.log.Warn().Str("kind", kind).Msg("notification not delivered")
	}
	metrics.IncNotification(kind, status)
	return ok
}

func (n *NotificationUseCase) productName(p *model.Product) string {
	if p == nil {
		return n.texts.T("product.fallback")
	}
	return p.Name
}

func (n *NotificationUseCase) greeting(u *model.User) string {
	if u == nil {
		return n.texts.T("greeting.fallback")
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func day(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (n *NotificationUseCase) Welcome(ctx context.Context, u *model.User, p *model.Product, up *model.UserProduct) bool {
	body := n.texts.T("welcome.body", n.greeting(u), n.productName(p))
	if up != nil {
		body += n.texts.T("welcome.active_until", day(up.EndDate))
	}
	return n.send(ctx, NoteWelcome, u.Email, n.texts.T("welcome.subject"), body)
}

func (n *NotificationUseCase) RenewalSucceeded(ctx context.Context, u *model.User, p *model.Product, up *model.UserProduct) bool {
	body := n.texts.T("renewed.body", n.greeting(u), n.productName(p), day(up.EndDate))
	return n.send(ctx, NoteRenewed, u.Email, n.texts.T("renewed.subject"), body)
}

func (n *NotificationUseCase) PaymentFailed(ctx context.Context, u *model.User, p *model.Product, up *model.UserProduct, graceEnds time.Time) bool {
	body := n.texts.T("payment_failed.body", n.greeting(u), n.productName(p), day(graceEnds))
	return n.send(ctx, NotePaymentFailed, u.Email, n.texts.T("payment_failed.subject"), body)
}

func (n *NotificationUseCase) Suspended(ctx context.Context, u *model.User, p *model.Product) bool {
	body := n.texts.T("suspended.body", n.greeting(u), n.productName(p))
	return n.send(ctx, NoteSuspended, u.Email, n.texts.T("suspended.subject"), body)
}

func (n *NotificationUseCase) CardBound(ctx context.Context, u *model.User, m *model.PaymentMethod) bool {
	pan := ""
	if m != nil {
		pan = m.PanMask
	}
	body := n.texts.T("card_bound.body", n.greeting(u), pan)
	return n.send(ctx, NoteCardBound, u.Email, n.texts.T("card_bound.subject"), body)
}

func (n *NotificationUseCase) CancellationRequested(ctx context.Context, referrer, requester *model.User, r *model.CancellationRequest) bool {
	reason := r.Reason
	if reason == "" {
		reason = n.texts.T("reason.none")
	}
	body := n.texts.T("cancellation_requested.body", n.greeting(referrer), requester.Email, reason, r.TimeLeft(time.Now()))
	return n.send(ctx, NoteCancellationNew, referrer.Email, n.texts.T("cancellation_requested.subject"), body)
}

func (n *NotificationUseCase) CancellationDecided(ctx context.Context, requester *model.User, r *model.CancellationRequest) bool {
	outcome := n.texts.T("cancellation_decided.rejected")
	if r.Status == model.CancellationApproved {
		outcome = n.texts.T("cancellation_decided.approved")
	}
	body := n.texts.T("cancellation_decided.body", n.greeting(requester), outcome)
	if r.DecisionComment != "" {
		body += n.texts.T("cancellation_decided.comment", r.DecisionComment)
	}
	subject := n.texts.T("cancellation_decided.subject", n.texts.T("cancellation_decided.status."+string(r.Status)))
	return n.send(ctx, NoteCancellationDecided, requester.Email, subject, body)
}

func (n *NotificationUseCase) CancellationExpired(ctx context.Context, to *model.User, r *model.CancellationRequest) bool {
	body := n.texts.T("cancellation_expired.body", n.greeting(to), day(r.CreatedAt))
	return n.send(ctx, NoteCancellationExpired, to.Email, n.texts.T("cancellation_expired.subject"), body)
}

func (n *NotificationUseCase) CancellationReminder(ctx context.Context, referrer *model.User, r *model.CancellationRequest, now time.Time) bool {
	body := n.texts.T("cancellation_reminder.body", n.greeting(referrer), r.TimeLeft(now))
	return n.send(ctx, NoteCancellationReminder, referrer.Email, n.texts.T("cancellation_reminder.subject"), body)
}
