// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/shopspring/decimal"
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
