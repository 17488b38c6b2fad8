package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatus_TerminalStatesHaveNoTransitions(t *testing.T) {
	terminals := []Status{StatusFilled, StatusCancelled, StatusRejected, StatusExpired}
	all := []Status{
		StatusPending, StatusSubmitted, StatusPartialFill,
		StatusFilled, StatusCancelled, StatusRejected, StatusExpired,
	}

	for _, from := range terminals {
		if !from.IsTerminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range all {
			if from.CanTransitionTo(to) {
				t.Errorf("terminal state %s must not transition to %s", from, to)
			}
		}
	}
}

func TestStatus_LifecyclePaths(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusFilled, false},
		{StatusSubmitted, StatusPartialFill, true},
		{StatusSubmitted, StatusFilled, true},
		{StatusSubmitted, StatusCancelled, true},
		{StatusSubmitted, StatusExpired, true},
		{StatusPartialFill, StatusFilled, true},
		{StatusPartialFill, StatusCancelled, true},
		{StatusPartialFill, StatusExpired, true},
		{StatusPartialFill, StatusRejected, false},
		{StatusSubmitted, StatusPending, false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.ok, got)
		}
	}
}

func TestOrder_RemainingQty(t *testing.T) {
	o := Order{
		RequestedQty: decimal.NewFromFloat(2.5),
		FilledQty:    decimal.NewFromFloat(1.0),
	}

	if !o.RemainingQty().Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("expected remaining 1.5, got %s", o.RemainingQty())
	}
}

func TestOrder_IsOpen(t *testing.T) {
	o := Order{Status: StatusSubmitted}
	if !o.IsOpen() {
		t.Error("SUBMITTED order should be open")
	}

	o.Status = StatusFilled
	if o.IsOpen() {
		t.Error("FILLED order should not be open")
	}
}
