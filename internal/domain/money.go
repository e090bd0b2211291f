package domain

import "github.com/shopspring/decimal"

// DefaultCurrencySymbol prefixes amounts in human-readable messages.
const DefaultCurrencySymbol = "₹"

var hundred = decimal.NewFromInt(100)

// RoundMoney rounds to two decimal places, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PercentOf returns round(amount * percent / 100, 2).
func PercentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(percent).Div(hundred))
}

// FormatMoney renders an amount for display. Whole amounts drop the fraction.
func FormatMoney(symbol string, d decimal.Decimal) string {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	d = RoundMoney(d)
	if d.Equal(d.Truncate(0)) {
		return symbol + d.StringFixed(0)
	}
	return symbol + d.StringFixed(2)
}

// MinMoney returns the smaller of a and b.
func MinMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
