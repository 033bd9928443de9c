// File: internal/infra/adapters/payment/tbank_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-billing/internal/config"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*TBankGateway)(nil)

const (
	maxDescriptionLen = 250
	maxItemNameLen    = 128
)

// TBankGateway implements adapter.PaymentGateway against the T-Bank acquiring API (v2).
// Every method returns a structured adapter.Result; transport errors are folded into it.
type TBankGateway struct {
	cfg         config.ProviderConfig
	signer      *Signer
	client      *http.Client
	log         *zerolog.Logger
	minorFactor int32
	verify      bool
}

func NewTBankGateway(cfg config.ProviderConfig, logger *zerolog.Logger) (*TBankGateway, error) {
	if cfg.TerminalKey == "" || cfg.Password == "" {
		return nil, errors.New("tbank: terminal key and password are required")
	}
	if cfg.APIURL == "" {
		return nil, errors.New("tbank: api url is required")
	}
	ascii := true
	if cfg.ASCIIJSON != nil {
		ascii = *cfg.ASCIIJSON
	}
	verify := true
	if cfg.VerifyNotifications != nil {
		verify = *cfg.VerifyNotifications
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "tbank_gateway").Logger()
	return &TBankGateway{
		cfg: cfg,
		signer: NewSigner(SignerOptions{
			Secret:         cfg.Password,
			SignatureField: cfg.SignatureField,
			SecretField:    cfg.SecretField,
			Exclude:        cfg.ExcludeFromSignature,
			Digest:         cfg.Digest,
			ASCIIJSON:      ascii,
		}),
		client:      &http.Client{Timeout: timeout},
		log:         &l,
		minorFactor: cfg.MinorUnitExponent,
		verify:      verify,
	}, nil
}

func (g *TBankGateway) Name() string { return "tbank" }

// ToMinor converts a domain amount into integer minor units.
func ToMinor(amount decimal.Decimal, exponent int32) int64 {
	return model.MinorUnits(amount, exponent)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (g *TBankGateway) receipt(req adapter.PaymentRequest, amountMinor int64) map[string]any {
	name := req.ItemName
	if name == "" {
		name = req.Description
	}
	r := map[string]any{
		"Taxation": g.cfg.Taxation,
		"Items": []map[string]any{{
			"Name":     truncate(name, maxItemNameLen),
			"Price":    amountMinor,
			"Quantity": 1,
			"Amount":   amountMinor,
			"Tax":      "none",
		}},
	}
	if req.Customer.Email != "" {
		r["Email"] = req.Customer.Email
	}
	if req.Customer.Phone != "" {
		r["Phone"] = req.Customer.Phone
	}
	return r
}

func (g *TBankGateway) initPayload(req adapter.PaymentRequest) map[string]any {
	amountMinor := ToMinor(req.Amount, g.minorFactor)
	p := map[string]any{
		"TerminalKey": g.cfg.TerminalKey,
		"Amount":      amountMinor,
		"OrderId":     req.OrderRef,
		"Description": truncate(req.Description, maxDescriptionLen),
		"Receipt":     g.receipt(req, amountMinor),
	}
	if g.cfg.SuccessURL != "" {
		p["SuccessURL"] = withOrder(g.cfg.SuccessURL, req.OrderRef)
	}
	if g.cfg.FailURL != "" {
		p["FailURL"] = withOrder(g.cfg.FailURL, req.OrderRef)
	}
	if g.cfg.NotificationURL != "" {
		p["NotificationURL"] = g.cfg.NotificationURL
	}
	if req.Recurring {
		p["Recurrent"] = "Y"
		if g.cfg.PayType != "" {
			p["PayType"] = g.cfg.PayType
		}
		if req.Customer.CustomerKey != "" {
			p["CustomerKey"] = req.Customer.CustomerKey
		}
	}
	return p
}

func withOrder(base, ref string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "orderId=" + ref
}

func (g *TBankGateway) InitPayment(ctx context.Context, req adapter.PaymentRequest) adapter.Result {
	return g.call(ctx, "Init", g.initPayload(req))
}

// ChargeBySavedToken runs Init without the recurrent flag, then Charge with the rebill token.
func (g *TBankGateway) ChargeBySavedToken(ctx context.Context, token string, req adapter.PaymentRequest) adapter.Result {
	req.Recurring = false
	payload := g.initPayload(req)
	delete(payload, "SuccessURL")
	delete(payload, "FailURL")
	initRes := g.call(ctx, "Init", payload)
	if !initRes.Success {
		return initRes
	}
	if initRes.ProviderPaymentID == "" {
		return adapter.Result{ErrorCode: "INIT_NO_PAYMENT_ID", Message: "init returned no payment id"}
	}

	chargeRes := g.call(ctx, "Charge", map[string]any{
		"TerminalKey": g.cfg.TerminalKey,
		"PaymentId":   initRes.ProviderPaymentID,
		"RebillId":    token,
	})
	if chargeRes.ProviderPaymentID == "" {
		chargeRes.ProviderPaymentID = initRes.ProviderPaymentID
	}
	if chargeRes.Success && chargeRes.Status != "CONFIRMED" && chargeRes.Status != "AUTHORIZED" {
		chargeRes.Success = false
		if chargeRes.ErrorCode == "" {
			chargeRes.ErrorCode = chargeRes.Status
		}
	}
	return chargeRes
}

func (g *TBankGateway) QueryStatus(ctx context.Context, providerPaymentID string) adapter.Result {
	return g.call(ctx, "GetState", map[string]any{
		"TerminalKey": g.cfg.TerminalKey,
		"PaymentId":   providerPaymentID,
	})
}

func (g *TBankGateway) Confirm(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	return g.call(ctx, "Confirm", g.paymentOp(providerPaymentID, amount))
}

func (g *TBankGateway) Cancel(ctx context.Context, providerPaymentID string, amount *decimal.Decimal) adapter.Result {
	return g.call(ctx, "Cancel", g.paymentOp(providerPaymentID, amount))
}

func (g *TBankGateway) paymentOp(providerPaymentID string, amount *decimal.Decimal) map[string]any {
	p := map[string]any{
		"TerminalKey": g.cfg.TerminalKey,
		"PaymentId":   providerPaymentID,
	}
	if amount != nil {
		p["Amount"] = ToMinor(*amount, g.minorFactor)
	}
	return p
}

type apiResponse struct {
	Success    bool        `json:"Success"`
	ErrorCode  string      `json:"ErrorCode"`
	Message    string      `json:"Message"`
	Details    string      `json:"Details"`
	Status     string      `json:"Status"`
	PaymentID  json.Number `json:"PaymentId"`
	PaymentURL string      `json:"PaymentURL"`
}

// call signs payload, posts it to the named method and normalizes the outcome.
func (g *TBankGateway) call(ctx context.Context, method string, payload map[string]any) (res adapter.Result) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if !res.Success {
			outcome = res.ErrorCode
			if outcome == "" {
				outcome = "declined"
			}
		}
		metrics.ObserveGatewayCall(g.Name(), method, outcome, time.Since(start).Seconds())
	}()

	token, err := g.signer.Sign(payload)
	if err != nil {
		g.log.Error().Err(err).Str("method", method).Msg("failed to sign request")
		return adapter.Result{ErrorCode: adapter.ErrCodeUnknown, Message: err.Error()}
	}
	payload[g.signer.SignatureField()] = token

	body, err := json.Marshal(payload)
	if err != nil {
		return adapter.Result{ErrorCode: adapter.ErrCodeUnknown, Message: err.Error()}
	}
	url := strings.TrimRight(g.cfg.APIURL, "/") + "/" + method
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return adapter.Result{ErrorCode: adapter.ErrCodeUnknown, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", g.cfg.UserAgent)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		code := classifyTransportError(err)
		g.log.Warn().Err(err).Str("method", method).Str("error_code", code).Msg("provider request failed")
		return adapter.Result{ErrorCode: code, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return adapter.Result{ErrorCode: adapter.ErrCodeConnection, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.log.Warn().Int("status", resp.StatusCode).Str("method", method).Msg("provider returned non-2xx")
		return adapter.Result{ErrorCode: adapter.ErrCodeHTTP, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	}

	var out apiResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return adapter.Result{ErrorCode: adapter.ErrCodeInvalidResponse, Message: err.Error()}
	}

	res = adapter.Result{
		Success:           out.Success && (out.ErrorCode == "" || out.ErrorCode == "0"),
		ProviderPaymentID: out.PaymentID.String(),
		RedirectURL:       out.PaymentURL,
		Status:            out.Status,
	}
	if !res.Success {
		res.ErrorCode = out.ErrorCode
		res.Message = strings.TrimSpace(strings.Join([]string{out.Message, out.Details}, " "))
		g.log.Info().Str("method", method).Str("error_code", out.ErrorCode).Str("message", res.Message).Msg("provider declined request")
	}
	return res
}

func classifyTransportError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return adapter.ErrCodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return adapter.ErrCodeTimeout
	case errors.As(err, &netErr):
		return adapter.ErrCodeConnection
	default:
		return adapter.ErrCodeUnknown
	}
}

func (g *TBankGateway) ParseNotification(body []byte) (*adapter.PaymentNotification, error) {
	return parseNotification(body)
}

// VerifyNotification checks the callback token unless verification is disabled.
func (g *TBankGateway) VerifyNotification(n *adapter.PaymentNotification) bool {
	if !g.verify {
		return true
	}
	return n != nil && g.signer.Verify(n.Fields)
}
