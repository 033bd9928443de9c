//go:build !integration

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  url: postgres://localhost/db\nprovider:\n  name: noop\n"), false)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, []string{"Token", "Receipt", "DATA"}, cfg.Provider.ExcludeFromSignature)
	assert.True(t, *cfg.Provider.ASCIIJSON)
	assert.True(t, *cfg.Provider.VerifyNotifications)
	assert.Equal(t, 72*time.Hour, cfg.Billing.GracePeriod)
	assert.Equal(t, 72*time.Hour, cfg.Billing.Lookahead)
	assert.Equal(t, 30*24*time.Hour, cfg.Billing.MonthlyPeriod)
	assert.Equal(t, 365*24*time.Hour, cfg.Billing.YearlyPeriod)
	assert.Equal(t, 24*time.Hour, cfg.Cancellation.DecisionWindow)
	assert.Equal(t, 6*time.Hour, cfg.Cancellation.ReminderBefore)
	assert.Equal(t, "OK", cfg.HTTP.WebhookAck)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)

	rate, err := cfg.CommissionRate()
	require.NoError(t, err)
	assert.Equal(t, "20", rate.String())
}

func TestParse_Validation(t *testing.T) {
	t.Run("should require a database url", func(t *testing.T) {
		_, err := Parse([]byte("provider:\n  name: noop\n"), false)
		assert.ErrorContains(t, err, "database.url")
	})

	t.Run("should require provider credentials outside dev", func(t *testing.T) {
		_, err := Parse([]byte("database:\n  url: x\n"), false)
		assert.ErrorContains(t, err, "terminal_key")

		_, err = Parse([]byte("database:\n  url: x\n"), true)
		assert.NoError(t, err)
	})

	t.Run("should reject an out of range commission rate", func(t *testing.T) {
		_, err := Parse([]byte("database:\n  url: x\nprovider:\n  name: noop\nreferral:\n  default_commission_rate: \"150\"\n"), false)
		assert.ErrorContains(t, err, "default_commission_rate")
	})

	t.Run("should keep explicit false flags", func(t *testing.T) {
		cfg, err := Parse([]byte("database:\n  url: x\nprovider:\n  name: noop\n  verify_notifications: false\n"), false)
		require.NoError(t, err)
		assert.False(t, *cfg.Provider.VerifyNotifications)
	})
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("BILLING_TEST_DB_URL", "postgres://user:pw@db/billing")
	t.Setenv("BILLING_TEST_TERMINAL", "TerminalKeyDEMO")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  url: ${BILLING_TEST_DB_URL}\nprovider:\n  terminal_key: ${BILLING_TEST_TERMINAL}\n  password: secret\nbilling:\n  grace_period: 48h\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, "postgres://user:pw@db/billing", cfg.Database.URL)
	assert.Equal(t, "TerminalKeyDEMO", cfg.Provider.TerminalKey)
	assert.Equal(t, 48*time.Hour, cfg.Billing.GracePeriod)
}
