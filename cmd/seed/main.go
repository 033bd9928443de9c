package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
	pg "subscription-billing/internal/infra/db/postgres"
)

func main() {
	// ---- Config ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	products := pg.NewProductRepo(pool)

	// If products already exist, do nothing
	existing, err := products.ListActive(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list products: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d products already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s %q (%s/%s, %s %s)\n", p.ID, p.Name, p.Type, p.Period, p.Price.StringFixed(2), p.Currency)
		}
		return
	}

	// A small catalog for exercising checkout and renewals
	seed := []struct {
		ID     string
		Name   string
		Type   model.ProductType
		Period model.BillingPeriod
		Price  string
	}{
		{"basic-monthly", "Basic", model.ProductTypeSubscription, model.BillingPeriodMonthly, "490.00"},
		{"pro-monthly", "Pro", model.ProductTypeSubscription, model.BillingPeriodMonthly, "990.00"},
		{"pro-yearly", "Pro (yearly)", model.ProductTypeSubscription, model.BillingPeriodYearly, "9900.00"},
		{"setup-session", "Onboarding session", model.ProductTypeOneTime, "", "1500.00"},
	}

	for _, s := range seed {
		p, err := model.NewProduct(s.ID, s.Name, s.Type, s.Period, decimal.RequireFromString(s.Price), cfg.Provider.Currency)
		if err != nil {
			log.Fatalf("product %q: %v", s.ID, err)
		}
		if err := products.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("save product %q: %v", s.ID, err)
		}
		fmt.Printf("seeded: %s (%s, %s %s)\n", p.ID, p.Name, p.Price.StringFixed(2), p.Currency)
	}

	fmt.Println("Seeding complete.")
}
