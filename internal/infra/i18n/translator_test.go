//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	// 1. Arrange
	translator, err := newTranslatorFromBytes([]byte("greeting: \"Hello\"\nwelcome_user: \"Hello %s\"\n"))
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	// 2. Act & Assert
	t.Run("should translate a simple key", func(t *testing.T) {
		if got := translator.T("greeting"); got != "Hello" {
			t.Errorf("wanted 'Hello', got '%s'", got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got := translator.T("nonexistent_key"); got != "nonexistent_key" {
			t.Errorf("wanted 'nonexistent_key', got '%s'", got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		if got := translator.T("welcome_user", "Ann"); got != "Hello Ann" {
			t.Errorf("wanted 'Hello Ann', got '%s'", got)
		}
	})
}

func TestNewTranslator(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/de.yaml": {Data: []byte("greeting: \"Hallo\"\n")},
		"locales/xx.yaml": {Data: []byte("greeting: [unclosed\n")},
	}

	t.Run("should load a catalog by language code", func(t *testing.T) {
		tr, err := NewTranslator(fsys, "de")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tr.Lang() != "de" || tr.T("greeting") != "Hallo" {
			t.Errorf("unexpected catalog %q: %q", tr.Lang(), tr.T("greeting"))
		}
	})

	t.Run("should fail for a missing language", func(t *testing.T) {
		if _, err := NewTranslator(fsys, "fr"); err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("should fail for broken yaml", func(t *testing.T) {
		if _, err := NewTranslator(fsys, "xx"); err == nil {
			t.Fatal("expected an error")
		}
	})
}

// Every key the notification templates use must exist in every shipped catalog.
func TestEmbeddedCatalogs(t *testing.T) {
	keys := []string{
		"greeting.fallback", "product.fallback", "reason.none",
		"welcome.subject", "welcome.body", "welcome.active_until",
		"renewed.subject", "renewed.body",
		"payment_failed.subject", "payment_failed.body",
		"suspended.subject", "suspended.body",
		"card_bound.subject", "card_bound.body",
		"cancellation_requested.subject", "cancellation_requested.body",
		"cancellation_decided.subject", "cancellation_decided.body",
		"cancellation_decided.approved", "cancellation_decided.rejected",
		"cancellation_decided.status.approved", "cancellation_decided.status.rejected",
		"cancellation_decided.comment",
		"cancellation_expired.subject", "cancellation_expired.body",
		"cancellation_reminder.subject", "cancellation_reminder.body",
	}
	for _, lang := range []string{"en", "ru"} {
		tr, err := Load(lang)
		if err != nil {
			t.Fatalf("%s: %v", lang, err)
		}
		for _, k := range keys {
			if !tr.Has(k) {
				t.Errorf("%s: missing key %q", lang, k)
			}
		}
	}

	t.Run("should render multi-line templates", func(t *testing.T) {
		got := Default().T("renewed.body", "Ann", "Pro", "2026-01-31")
		want := "Hello Ann,\n\nyour Pro subscription was renewed. Next billing date: 2026-01-31.\n"
		if got != want {
			t.Errorf("wanted %q, got %q", want, got)
		}
	})
}
