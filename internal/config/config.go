// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level      string `yaml:"level"`    // trace|debug|info|warn|error
	Format     string `yaml:"format"`   // json|console
	Sampling   bool   `yaml:"sampling"` // enable sampling in prod
	File       string `yaml:"file"`     // optional rotating file sink
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type HTTPConfig struct {
	Port               int           `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	JWTSecret          string        `yaml:"jwt_secret"`
	AdminAPIKey        string        `yaml:"admin_api_key"`
	WebhookAck         string        `yaml:"webhook_ack"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty -> in-memory fallback
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type ProviderConfig struct {
	Name            string        `yaml:"name"` // tbank | noop
	APIURL          string        `yaml:"api_url"`
	TerminalKey     string        `yaml:"terminal_key"`
	Password        string        `yaml:"password"`
	SuccessURL      string        `yaml:"success_url"`
	FailURL         string        `yaml:"fail_url"`
	NotificationURL string        `yaml:"notification_url"`
	Timeout         time.Duration `yaml:"timeout"`

	// Signing rule
	SignatureField       string   `yaml:"signature_field"`
	SecretField          string   `yaml:"secret_field"`
	ExcludeFromSignature []string `yaml:"exclude_from_signature"`
	Digest               string   `yaml:"digest"` // sha256 | sha512
	ASCIIJSON            *bool    `yaml:"ascii_json"`

	MinorUnitExponent   int32  `yaml:"minor_unit_exponent"`
	Taxation            string `yaml:"taxation"`
	PayType             string `yaml:"pay_type"`
	Currency            string `yaml:"currency"`
	VerifyNotifications *bool  `yaml:"verify_notifications"`
	CardBindingAmount   string `yaml:"card_binding_amount"`
	UserAgent           string `yaml:"user_agent"`
	MaxConcurrent       int    `yaml:"max_concurrent"` // in-flight provider calls per process
}

type BillingConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Lookahead       time.Duration `yaml:"lookahead"`
	GracePeriod     time.Duration `yaml:"grace_period"`
	MonthlyPeriod   time.Duration `yaml:"monthly_period"`
	YearlyPeriod    time.Duration `yaml:"yearly_period"`
	MaxCardAttempts int           `yaml:"max_card_attempts"`
	BatchSize       int           `yaml:"batch_size"`
	OrderPrefix     string        `yaml:"order_prefix"`
}

type CancellationConfig struct {
	DecisionWindow   time.Duration `yaml:"decision_window"`
	ReminderBefore   time.Duration `yaml:"reminder_before"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	ReminderOffset   time.Duration `yaml:"reminder_offset"`
	BatchSize        int           `yaml:"batch_size"`
}

type ReferralConfig struct {
	DefaultCommissionRate string `yaml:"default_commission_rate"` // percent
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type MailConfig struct {
	Host     string `yaml:"host"` // empty -> log-only notifier
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	Language string `yaml:"language"` // message catalog, en | ru
}

type NATSConfig struct {
	URL           string `yaml:"url"` // empty -> events are dropped
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type WorkersConfig struct {
	Size       int           `yaml:"size"`
	Queue      int           `yaml:"queue"`
	JobLockTTL time.Duration `yaml:"job_lock_ttl"`
}

type Config struct {
	Log          LogConfig          `yaml:"log"`
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Provider     ProviderConfig     `yaml:"provider"`
	Billing      BillingConfig      `yaml:"billing"`
	Cancellation CancellationConfig `yaml:"cancellation"`
	Referral     ReferralConfig     `yaml:"referral"`
	Reconciler   ReconcilerConfig   `yaml:"reconciler"`
	Mail         MailConfig         `yaml:"mail"`
	NATS         NATSConfig         `yaml:"nats"`
	Workers      WorkersConfig      `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads .env (if any), expands ${VAR} references in the YAML file,
// applies defaults and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(b))), dev)
}

// Parse decodes YAML text that has already been env-expanded.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.Log.MaxSizeMB = orInt(c.Log.MaxSizeMB, 10)
	c.Log.MaxBackups = orInt(c.Log.MaxBackups, 5)
	c.Log.MaxAgeDays = orInt(c.Log.MaxAgeDays, 30)

	c.HTTP.Port = orInt(c.HTTP.Port, 8080)
	c.HTTP.RequestTimeout = orDur(c.HTTP.RequestTimeout, 15*time.Second)
	if c.HTTP.WebhookAck == "" {
		c.HTTP.WebhookAck = "OK"
	}
	c.HTTP.RateLimitPerMinute = orInt(c.HTTP.RateLimitPerMinute, 5)

	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	p := &c.Provider
	if p.Name == "" {
		p.Name = "tbank"
	}
	if p.APIURL == "" {
		p.APIURL = "https://securepay.tinkoff.ru/v2"
	}
	p.Timeout = orDur(p.Timeout, 30*time.Second)
	if p.SignatureField == "" {
		p.SignatureField = "Token"
	}
	if p.SecretField == "" {
		p.SecretField = "Password"
	}
	if len(p.ExcludeFromSignature) == 0 {
		p.ExcludeFromSignature = []string{"Token", "Receipt", "DATA"}
	}
	if p.Digest == "" {
		p.Digest = "sha256"
	}
	if p.ASCIIJSON == nil {
		p.ASCIIJSON = boolPtr(true)
	}
	if p.MinorUnitExponent <= 0 {
		p.MinorUnitExponent = 2
	}
	if p.Taxation == "" {
		p.Taxation = "usn_income"
	}
	if p.PayType == "" {
		p.PayType = "O"
	}
	if p.Currency == "" {
		p.Currency = "RUB"
	}
	if p.VerifyNotifications == nil {
		p.VerifyNotifications = boolPtr(true)
	}
	if p.CardBindingAmount == "" {
		p.CardBindingAmount = "1.00"
	}
	if p.UserAgent == "" {
		p.UserAgent = "subscription-billing/1.0"
	}
	p.MaxConcurrent = orInt(p.MaxConcurrent, 8)

	b := &c.Billing
	b.Interval = orDur(b.Interval, 24*time.Hour)
	b.Lookahead = orDur(b.Lookahead, 72*time.Hour)
	b.GracePeriod = orDur(b.GracePeriod, 72*time.Hour)
	b.MonthlyPeriod = orDur(b.MonthlyPeriod, 30*24*time.Hour)
	b.YearlyPeriod = orDur(b.YearlyPeriod, 365*24*time.Hour)
	b.MaxCardAttempts = orInt(b.MaxCardAttempts, 3)
	b.BatchSize = orInt(b.BatchSize, 500)
	if b.OrderPrefix == "" {
		b.OrderPrefix = "RECURRING"
	}

	cc := &c.Cancellation
	cc.DecisionWindow = orDur(cc.DecisionWindow, 24*time.Hour)
	cc.ReminderBefore = orDur(cc.ReminderBefore, 6*time.Hour)
	cc.SweepInterval = orDur(cc.SweepInterval, time.Hour)
	cc.ReminderInterval = orDur(cc.ReminderInterval, time.Hour)
	cc.ReminderOffset = orDur(cc.ReminderOffset, 30*time.Minute)
	cc.BatchSize = orInt(cc.BatchSize, 200)

	if c.Referral.DefaultCommissionRate == "" {
		c.Referral.DefaultCommissionRate = "20"
	}

	c.Reconciler.Interval = orDur(c.Reconciler.Interval, 10*time.Minute)
	c.Reconciler.StaleAfter = orDur(c.Reconciler.StaleAfter, 15*time.Minute)
	c.Reconciler.BatchSize = orInt(c.Reconciler.BatchSize, 100)

	c.Mail.Port = orInt(c.Mail.Port, 587)
	if c.Mail.Language == "" {
		c.Mail.Language = "en"
	}

	if c.NATS.Stream == "" {
		c.NATS.Stream = "BILLING"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "billing"
	}

	c.Workers.Size = orInt(c.Workers.Size, 4)
	c.Workers.Queue = orInt(c.Workers.Queue, 16)
	c.Workers.JobLockTTL = orDur(c.Workers.JobLockTTL, time.Hour)
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Provider.Name != "noop" && !c.Runtime.Dev {
		if c.Provider.TerminalKey == "" || c.Provider.Password == "" {
			return errors.New("provider.terminal_key and provider.password are required")
		}
	}
	if _, err := c.CommissionRate(); err != nil {
		return fmt.Errorf("referral.default_commission_rate: %w", err)
	}
	if _, err := c.CardBindingAmount(); err != nil {
		return fmt.Errorf("provider.card_binding_amount: %w", err)
	}
	if c.Billing.MaxCardAttempts < 1 {
		return errors.New("billing.max_card_attempts must be positive")
	}
	return nil
}

// CommissionRate is the percentage applied when a referral is created lazily.
func (c *Config) CommissionRate() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Referral.DefaultCommissionRate)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, errors.New("must be within 0..100")
	}
	return d, nil
}

func (c *Config) CardBindingAmount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Provider.CardBindingAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("must be positive")
	}
	return d, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func boolPtr(b bool) *bool { return &b }
