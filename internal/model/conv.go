package model

import "github.com/shopspring/decimal"

// FormatPrice renders a price with 8 decimals, the ledger's price precision.
func FormatPrice(v float64) string {
	return FormatFixed(v, 8)
}

// FormatFixed renders v rounded half away from zero to the given number of decimals.
func FormatFixed(v float64, decimals int) string {
	return decimal.NewFromFloat(v).StringFixed(int32(decimals))
}
