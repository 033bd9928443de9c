// Command demo posts a signed provider notification to a running instance, so the
// webhook flow can be exercised without the real provider.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"subscription-billing/internal/config"
	"subscription-billing/internal/infra/adapters/payment"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	target := flag.String("url", "http://localhost:8080/api/v1/payments/webhook", "webhook endpoint")
	orderRef := flag.String("order", "", "order reference (OrderId)")
	paymentID := flag.String("payment-id", "", "provider payment id")
	status := flag.String("status", "CONFIRMED", "provider status, e.g. AUTHORIZED, CONFIRMED, REJECTED")
	amount := flag.Int64("amount", 0, "amount in minor units")
	rebill := flag.String("rebill", "", "RebillId to attach, for card-saving checkouts")
	pan := flag.String("pan", "430000******0777", "masked card number")
	flag.Parse()

	if *orderRef == "" || *paymentID == "" {
		log.Fatal("-order and -payment-id are required")
	}

	// 1. Load config
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	p := cfg.Provider
	signer := payment.NewSigner(payment.SignerOptions{
		Secret:         p.Password,
		SignatureField: p.SignatureField,
		SecretField:    p.SecretField,
		Exclude:        p.ExcludeFromSignature,
		Digest:         p.Digest,
		ASCIIJSON:      p.ASCIIJSON != nil && *p.ASCIIJSON,
	})

	// 2. Build and sign the notification
	fields := map[string]any{
		"TerminalKey": p.TerminalKey,
		"OrderId":     *orderRef,
		"PaymentId":   *paymentID,
		"Status":      *status,
		"Success":     *status != "REJECTED",
		"Amount":      *amount,
		"ErrorCode":   "0",
		"Pan":         *pan,
		"ExpDate":     "1230",
	}
	if *status == "REJECTED" {
		fields["ErrorCode"] = "1051"
	}
	if *rebill != "" {
		fields["RebillId"] = *rebill
	}
	token, err := signer.Sign(fields)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fields[signer.SignatureField()] = token
	body, err := json.Marshal(fields)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}

	// 3. Deliver it
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *target, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	ack, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	fmt.Printf("%s -> %d %s\n", *status, res.StatusCode, bytes.TrimSpace(ack))
}
