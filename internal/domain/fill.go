package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is an execution report for a quantity traded against an order.
// Fills are immutable once created; books treat them as append-only.
type Fill struct {
	ID         string
	OrderID    string
	Symbol     string
	Side       Side
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	IsMaker    bool
	Timestamp  time.Time
}

// Notional returns qty * price.
func (f *Fill) Notional() decimal.Decimal {
	return f.Qty.Mul(f.Price)
}

// SignedQty returns the quantity signed by direction (BUY positive).
func (f *Fill) SignedQty() decimal.Decimal {
	if f.Side == SideSell {
		return f.Qty.Neg()
	}
	return f.Qty
}
