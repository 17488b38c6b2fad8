package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the venue execution style of an order.
type OrderType string

const (
	TypeMarket    OrderType = "MARKET"
	TypeLimit     OrderType = "LIMIT"
	TypeIOC       OrderType = "IOC"
	TypeFOK       OrderType = "FOK"
	TypeStop      OrderType = "STOP"
	TypeStopLimit OrderType = "STOP_LIMIT"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusSubmitted   Status = "SUBMITTED"
	StatusPartialFill Status = "PARTIAL_FILL"
	StatusFilled      Status = "FILLED"
	StatusCancelled   Status = "CANCELLED"
	StatusRejected    Status = "REJECTED"
	StatusExpired     Status = "EXPIRED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// transitions encodes the order state machine. Terminal states have no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:     {StatusSubmitted, StatusRejected},
	StatusSubmitted:   {StatusPartialFill, StatusFilled, StatusCancelled, StatusRejected, StatusExpired},
	StatusPartialFill: {StatusPartialFill, StatusFilled, StatusCancelled, StatusExpired},
}

// CanTransitionTo reports whether the state machine permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Order represents a trading order.
// Once submitted it is owned exclusively by the order manager; adapters
// report state transitions but never mutate the manager's copy.
type Order struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	RequestedQty  decimal.Decimal
	LimitPrice    decimal.Decimal // zero for MARKET orders
	Status        Status
	FilledQty     decimal.Decimal
	AvgFillPrice  decimal.Decimal // defined only while FilledQty > 0
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return !o.Status.IsTerminal()
}

// RemainingQty returns the unfilled quantity.
func (o *Order) RemainingQty() decimal.Decimal {
	return o.RequestedQty.Sub(o.FilledQty)
}
