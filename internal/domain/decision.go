package domain

import (
	"github.com/shopspring/decimal"
)

// Action is the intent carried by a strategy decision.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionFlat  Action = "FLAT"
	ActionHold  Action = "HOLD"
)

// DecisionMeta carries optional execution hints attached to a decision.
type DecisionMeta struct {
	LimitPrice decimal.Decimal
	OrderType  OrderType
}

// Decision is the value produced by the external strategy collaborator.
// HOLD decisions are no-ops for the execution engine.
type Decision struct {
	Action         Action
	Symbol         string
	Size           decimal.Decimal
	Confidence     float64
	ExpectedProfit decimal.Decimal
	MaxRisk        decimal.Decimal
	Meta           DecisionMeta
}

// IsActionable reports whether the decision requires an order.
func (d *Decision) IsActionable() bool {
	return d.Action != ActionHold && d.Action != ""
}

// OrderSide maps the decision action to an order direction.
// FLAT direction depends on the current position and is resolved by the
// engine, so only LONG and SHORT map directly.
func (d *Decision) OrderSide() (Side, bool) {
	switch d.Action {
	case ActionLong:
		return SideBuy, true
	case ActionShort:
		return SideSell, true
	}
	return "", false
}
