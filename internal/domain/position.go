package domain

import (
	"github.com/shopspring/decimal"
)

// Position represents net exposure in one symbol.
// NetQty is signed: positive for long, negative for short.
type Position struct {
	Symbol      string
	NetQty      decimal.Decimal
	AvgCost     decimal.Decimal
	RealizedPnL decimal.Decimal
}

// IsLong checks if the position is long.
func (p *Position) IsLong() bool {
	return p.NetQty.IsPositive()
}

// IsShort checks if the position is short.
func (p *Position) IsShort() bool {
	return p.NetQty.IsNegative()
}

// IsFlat checks if the position has no exposure.
func (p *Position) IsFlat() bool {
	return p.NetQty.IsZero()
}

// ApplyFill folds one fill into the position.
//
// Same-direction fills grow the position and recompute AvgCost as the
// quantity-weighted average. Opposite-direction fills realize PnL against
// AvgCost and leave it unchanged, unless the fill flips the position's
// sign, in which case AvgCost resets to the flipping fill's price.
func (p *Position) ApplyFill(f Fill) {
	signed := f.SignedQty()

	switch {
	case p.NetQty.IsZero() || p.NetQty.Sign() == signed.Sign():
		// Opening or increasing: weighted average cost.
		oldAbs := p.NetQty.Abs()
		newAbs := oldAbs.Add(f.Qty)
		totalCost := p.AvgCost.Mul(oldAbs).Add(f.Price.Mul(f.Qty))
		p.AvgCost = totalCost.Div(newAbs)
		p.NetQty = p.NetQty.Add(signed)

	default:
		// Reducing or flipping.
		closeQty := decimal.Min(p.NetQty.Abs(), f.Qty)
		pnlPerUnit := f.Price.Sub(p.AvgCost)
		if p.IsShort() {
			pnlPerUnit = pnlPerUnit.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(pnlPerUnit.Mul(closeQty))
		p.NetQty = p.NetQty.Add(signed)

		if p.NetQty.IsZero() {
			p.AvgCost = decimal.Zero
		} else if p.NetQty.Sign() == signed.Sign() {
			// Flipped through zero: remainder opened at the fill price.
			p.AvgCost = f.Price
		}
	}
}

// UnrealizedPnL computes open PnL against a mark price. The mark is
// supplied by the caller and never stored on the position.
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.NetQty.IsZero() {
		return decimal.Zero
	}
	return mark.Sub(p.AvgCost).Mul(p.NetQty)
}
