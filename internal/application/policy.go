package application

import (
	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/usecase"
)

// PolicyFromConfig maps configuration onto the business constants the use cases read.
func PolicyFromConfig(cfg *config.Config) (usecase.Policy, error) {
	rate, err := cfg.CommissionRate()
	if err != nil {
		return usecase.Policy{}, err
	}
	binding, err := cfg.CardBindingAmount()
	if err != nil {
		return usecase.Policy{}, err
	}

	p := usecase.DefaultPolicy()
	p.Periods = model.PeriodLengths{Monthly: cfg.Billing.MonthlyPeriod, Yearly: cfg.Billing.YearlyPeriod}
	p.GracePeriod = cfg.Billing.GracePeriod
	p.Lookahead = cfg.Billing.Lookahead
	p.MaxCardAttempts = cfg.Billing.MaxCardAttempts
	p.RenewalBatch = cfg.Billing.BatchSize
	p.RecurringPrefix = cfg.Billing.OrderPrefix
	p.Currency = cfg.Provider.Currency
	p.MinorUnitExponent = cfg.Provider.MinorUnitExponent

	p.DecisionWindow = cfg.Cancellation.DecisionWindow
	p.ReminderBefore = cfg.Cancellation.ReminderBefore
	p.CancellationBatch = cfg.Cancellation.BatchSize

	p.CommissionRate = rate
	p.CardBindingAmount = binding

	p.StaleAfter = cfg.Reconciler.StaleAfter
	p.ReconcileBatch = cfg.Reconciler.BatchSize

	p.VerifyNotifications = cfg.Provider.VerifyNotifications == nil || *cfg.Provider.VerifyNotifications
	return p, nil
}
