package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func fill(side Side, qty, price float64) Fill {
	return Fill{
		Side:  side,
		Qty:   decimal.NewFromFloat(qty),
		Price: decimal.NewFromFloat(price),
	}
}

func TestPosition_OpenLong(t *testing.T) {
	p := Position{Symbol: "BTCUSD"}
	p.ApplyFill(fill(SideBuy, 1.0, 50000))

	if !p.NetQty.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected net qty 1, got %s", p.NetQty)
	}
	if !p.AvgCost.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("expected avg cost 50000, got %s", p.AvgCost)
	}
	if !p.IsLong() {
		t.Error("expected long position")
	}
}

func TestPosition_WeightedAverageOnIncrease(t *testing.T) {
	p := Position{Symbol: "ETHUSD"}
	p.ApplyFill(fill(SideBuy, 2.0, 100))
	p.ApplyFill(fill(SideBuy, 2.0, 110))

	if !p.NetQty.Equal(decimal.NewFromInt(4)) {
		t.Errorf("expected net qty 4, got %s", p.NetQty)
	}
	if !p.AvgCost.Equal(decimal.NewFromInt(105)) {
		t.Errorf("expected avg cost 105, got %s", p.AvgCost)
	}
}

func TestPosition_ReduceRealizesPnL(t *testing.T) {
	p := Position{Symbol: "BTCUSD"}
	p.ApplyFill(fill(SideBuy, 2.0, 100))
	p.ApplyFill(fill(SideSell, 1.0, 120))

	if !p.NetQty.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected net qty 1, got %s", p.NetQty)
	}
	if !p.RealizedPnL.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected realized pnl 20, got %s", p.RealizedPnL)
	}
	// Avg cost unchanged until the position flips.
	if !p.AvgCost.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected avg cost 100, got %s", p.AvgCost)
	}
}

func TestPosition_FlipResetsAvgCost(t *testing.T) {
	p := Position{Symbol: "BTCUSD"}
	p.ApplyFill(fill(SideBuy, 1.0, 100))
	p.ApplyFill(fill(SideSell, 3.0, 110))

	if !p.NetQty.Equal(decimal.NewFromInt(-2)) {
		t.Errorf("expected net qty -2, got %s", p.NetQty)
	}
	// Closed 1 @ +10, remainder opened short at the flipping fill's price.
	if !p.RealizedPnL.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected realized pnl 10, got %s", p.RealizedPnL)
	}
	if !p.AvgCost.Equal(decimal.NewFromInt(110)) {
		t.Errorf("expected avg cost 110 after flip, got %s", p.AvgCost)
	}
}

func TestPosition_CloseToFlat(t *testing.T) {
	p := Position{Symbol: "BTCUSD"}
	p.ApplyFill(fill(SideSell, 2.0, 200))
	p.ApplyFill(fill(SideBuy, 2.0, 180))

	if !p.IsFlat() {
		t.Errorf("expected flat position, got net qty %s", p.NetQty)
	}
	// Short 2 @ 200 covered at 180: +40.
	if !p.RealizedPnL.Equal(decimal.NewFromInt(40)) {
		t.Errorf("expected realized pnl 40, got %s", p.RealizedPnL)
	}
	if !p.AvgCost.IsZero() {
		t.Errorf("expected avg cost reset to zero, got %s", p.AvgCost)
	}
}

func TestPosition_NetQtyEqualsSignedSum(t *testing.T) {
	fills := []Fill{
		fill(SideBuy, 1.5, 100),
		fill(SideSell, 0.5, 101),
		fill(SideBuy, 2.0, 99),
		fill(SideSell, 1.0, 103),
	}

	p := Position{Symbol: "BTCUSD"}
	expected := decimal.Zero
	for _, f := range fills {
		p.ApplyFill(f)
		expected = expected.Add(f.SignedQty())
	}

	if !p.NetQty.Equal(expected) {
		t.Errorf("net qty %s does not equal signed sum %s", p.NetQty, expected)
	}
}

func TestPosition_UnrealizedPnL(t *testing.T) {
	p := Position{Symbol: "BTCUSD"}
	p.ApplyFill(fill(SideBuy, 2.0, 100))

	upnl := p.UnrealizedPnL(decimal.NewFromInt(110))
	if !upnl.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected unrealized pnl 20, got %s", upnl)
	}

	flat := Position{Symbol: "ETHUSD"}
	if !flat.UnrealizedPnL(decimal.NewFromInt(500)).IsZero() {
		t.Error("flat position should have zero unrealized pnl")
	}
}
