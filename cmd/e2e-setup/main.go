package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/api"
	"subscription-billing/internal/infra/db/postgres"
	"subscription-billing/internal/infra/redis"
	"subscription-billing/internal/infra/sched"
)

// This script is for setting up a clean, predictable database state
// for manual end-to-end testing.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	// --- Connect to Postgres ---
	pool, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Release job locks left behind by crashed passes.
	if cfg.Redis.URL != "" {
		log.Println("[1/4] Releasing job locks...")
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisClient.Close()
		keys := []string{sched.LockKey(sched.JobDBPoolStats)}
		for _, name := range sched.Names() {
			keys = append(keys, sched.LockKey(name))
		}
		if err := redisClient.Del(ctx, keys...); err != nil {
			log.Fatalf("failed to release locks: %v", err)
		}
	} else {
		log.Println("[1/4] No Redis configured, skipping lock cleanup")
	}

	// 2. Clean the database completely.
	log.Println("[2/4] Wiping all existing database data...")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			cancellation_requests, referral_commissions, referrals, transactions,
			payments, orders, user_products, mandates, payment_methods, products, users
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Seed a catalog and a referred subscriber whose renewal is due tomorrow.
	log.Println("[3/4] Seeding catalog, users and a due subscription...")
	referrer, subscriber := seedFixtures(ctx, pool, cfg)

	// 4. Print bearer tokens for the subscriber API.
	log.Println("[4/4] Minting API tokens...")
	auth := api.NewAuthenticator(cfg.HTTP.JWTSecret, 7*24*time.Hour)
	for _, u := range []*model.User{referrer, subscriber} {
		token, err := auth.Mint(u.ID, u.Email)
		if err != nil {
			log.Fatalf("mint token for %s: %v", u.Email, err)
		}
		fmt.Printf("%s\t%s\t%s\n", u.Email, u.ID, token)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}

// seedFixtures contains the standard data the manual scenarios start from.
func seedFixtures(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) (*model.User, *model.User) {
	products := postgres.NewProductRepo(pool)
	users := postgres.NewUserRepo(pool)
	subs := postgres.NewUserProductRepo(pool)
	referrals := postgres.NewReferralRepo(pool)

	pro, err := model.NewProduct("pro-monthly", "Pro", model.ProductTypeSubscription, model.BillingPeriodMonthly, decimal.NewFromInt(990), cfg.Provider.Currency)
	if err != nil {
		log.Fatalf("product: %v", err)
	}
	if err := products.Save(ctx, repository.NoTX, pro); err != nil {
		log.Fatalf("failed to save product: %v", err)
	}

	referrer, _ := model.NewUser("", "referrer@example.com", "Referrer", "", nil)
	if err := users.Save(ctx, repository.NoTX, referrer); err != nil {
		log.Fatalf("failed to save referrer: %v", err)
	}
	subscriber, _ := model.NewUser("", "subscriber@example.com", "Subscriber", "", &referrer.ID)
	if err := users.Save(ctx, repository.NoTX, subscriber); err != nil {
		log.Fatalf("failed to save subscriber: %v", err)
	}

	rate, err := cfg.CommissionRate()
	if err != nil {
		log.Fatalf("commission rate: %v", err)
	}
	ref, err := model.NewReferral(referrer.ID, subscriber.ID, rate)
	if err != nil {
		log.Fatalf("referral: %v", err)
	}
	if _, err := referrals.GetOrCreate(ctx, repository.NoTX, ref); err != nil {
		log.Fatalf("failed to save referral: %v", err)
	}

	periods := model.PeriodLengths{Monthly: cfg.Billing.MonthlyPeriod, Yearly: cfg.Billing.YearlyPeriod}
	start := time.Now().Add(24*time.Hour - periods.Of(pro.Period))
	up, err := model.NewUserProduct(subscriber.ID, pro, periods, nil, start)
	if err != nil {
		log.Fatalf("subscription: %v", err)
	}
	if err := subs.Save(ctx, repository.NoTX, up); err != nil {
		log.Fatalf("failed to save subscription: %v", err)
	}
	return referrer, subscriber
}
