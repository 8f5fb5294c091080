// Package money holds the cent arithmetic shared by the cart, checkout and templates.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TaxRate is the flat sales tax applied at checkout (8.25%).
var TaxRate = decimal.RequireFromString("0.0825")

// Tax returns subtotal * TaxRate rounded half-up to a whole cent.
func Tax(subtotal int64) int64 {
	return decimal.NewFromInt(subtotal).Mul(TaxRate).Round(0).IntPart()
}

// TaxRatePercent renders the rate for display, e.g. "8.25%".
func TaxRatePercent() string {
	return TaxRate.Shift(2).String() + "%"
}

// Format renders cents as US dollars, e.g. 1299999 -> "$12,999.99".
func Format(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	s := decimal.New(cents, -2).StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	return sign + "$" + group(whole) + "." + frac
}

func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
