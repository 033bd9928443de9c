//go:build !integration

package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/infra/i18n"
	"subscription-billing/internal/usecase"
)

func TestNotificationUseCase(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: "u-1", Email: "ann@example.com", Name: "Ann"}

	t.Run("should render the decision with its comment", func(t *testing.T) {
		// --- Arrange ---
		sink := &MockNotifier{}
		notes := usecase.NewNotificationUseCase(sink, nil, newTestLogger())
		req := &model.CancellationRequest{Status: model.CancellationRejected, DecisionComment: "talk to me first"}

		// --- Act ---
		ok := notes.CancellationDecided(ctx, user, req)

		// --- Assert ---
		if !ok || len(sink.Sent) != 1 {
			t.Fatalf("expected one delivered mail, got %d", len(sink.Sent))
		}
		m := sink.Sent[0]
		if m.To != user.Email || m.Subject != "Cancellation request rejected" {
			t.Errorf("unexpected envelope %+v", m)
		}
		if !strings.Contains(m.Body, "Hello Ann,") || !strings.Contains(m.Body, "stays active") ||
			!strings.HasSuffix(m.Body, "Comment: talk to me first\n") {
			t.Errorf("unexpected body %q", m.Body)
		}
	})

	t.Run("should use the configured catalog", func(t *testing.T) {
		ru, err := i18n.Load("ru")
		if err != nil {
			t.Fatalf("load catalog: %v", err)
		}
		sink := &MockNotifier{}
		notes := usecase.NewNotificationUseCase(sink, ru, newTestLogger())

		notes.Suspended(ctx, user, nil)

		if len(sink.Sent) != 1 || sink.Sent[0].Subject != "Подписка приостановлена" {
			t.Fatalf("unexpected mail %+v", sink.Sent)
		}
		if !strings.Contains(sink.Sent[0].Body, "вашу подписку") {
			t.Errorf("expected the product fallback, got %q", sink.Sent[0].Body)
		}
	})

	t.Run("should skip recipients without an address", func(t *testing.T) {
		sink := &MockNotifier{}
		notes := usecase.NewNotificationUseCase(sink, nil, newTestLogger())

		ok := notes.CancellationReminder(ctx, &model.User{ID: "u-2"}, &model.CancellationRequest{ExpiresAt: time.Now().Add(time.Hour)}, time.Now())

		if ok || len(sink.Sent) != 0 {
			t.Fatalf("expected nothing sent, got %+v", sink.Sent)
		}
	})
}
