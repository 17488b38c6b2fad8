package domain

import (
	"github.com/shopspring/decimal"
)

// Balance is an account snapshot for one asset.
type Balance struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
}

// Reserved returns the amount locked by open orders.
func (b *Balance) Reserved() decimal.Decimal {
	return b.Total.Sub(b.Available)
}
