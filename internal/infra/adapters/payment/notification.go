package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/adapter"
)

// parseNotification decodes a provider callback. Numbers stay json.Number so the
// signature can be recomputed over the exact values received.
func parseNotification(body []byte) (*adapter.PaymentNotification, error) {
	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: notification body: %v", domain.ErrInvalidArgument, err)
	}

	n := &adapter.PaymentNotification{
		OrderRef:          str(fields["OrderId"]),
		ProviderPaymentID: str(fields["PaymentId"]),
		Status:            strings.ToUpper(str(fields["Status"])),
		RebillID:          first(fields, "RebillId", "RebillID", "rebill_id"),
		CardID:            str(fields["CardId"]),
		Pan:               str(fields["Pan"]),
		ExpDate:           str(fields["ExpDate"]),
		ReceiptURL:        first(fields, "ReceiptURL", "ReceiptUrl", "receipt_url"),
		ErrorCode:         str(fields["ErrorCode"]),
		Fields:            fields,
	}
	switch v := fields["Success"].(type) {
	case bool:
		n.Success = v
	case string:
		n.Success = strings.EqualFold(v, "true")
	}
	if amt, ok := fields["Amount"].(json.Number); ok {
		n.AmountMinor, _ = amt.Int64()
	}
	if n.OrderRef == "" || n.Status == "" {
		return nil, fmt.Errorf("%w: notification lacks OrderId or Status", domain.ErrInvalidArgument)
	}
	return n, nil
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

func first(fields map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := str(fields[k]); v != "" {
			return v
		}
	}
	return ""
}
