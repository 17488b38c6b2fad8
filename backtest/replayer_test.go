package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/storage"
)

func TestReplay_RebuildsPositionsFromJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")

	journal, err := storage.OpenJournal(dbPath)
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}

	ctx := context.Background()
	base := time.Now().Add(-time.Minute)
	fills := []domain.Fill{
		{ID: "f1", OrderID: "o1", Symbol: "BTC-USD", Side: domain.SideBuy,
			Qty: decimal.NewFromInt(2), Price: decimal.NewFromInt(100),
			Commission: decimal.NewFromFloat(0.2), Timestamp: base},
		{ID: "f2", OrderID: "o2", Symbol: "BTC-USD", Side: domain.SideSell,
			Qty: decimal.NewFromInt(1), Price: decimal.NewFromInt(110),
			Commission: decimal.NewFromFloat(0.1), Timestamp: base.Add(time.Second)},
		{ID: "f3", OrderID: "o3", Symbol: "ETH-USD", Side: domain.SideSell,
			Qty: decimal.NewFromInt(5), Price: decimal.NewFromInt(30),
			Timestamp: base.Add(2 * time.Second)},
	}
	for _, f := range fills {
		if err := journal.RecordFill(ctx, f); err != nil {
			t.Fatalf("RecordFill: %v", err)
		}
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	replayer, err := NewReplayer(dbPath)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	defer replayer.Close()

	report, err := replayer.Replay(ctx)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if report.Fills != 3 {
		t.Fatalf("fills = %d, want 3", report.Fills)
	}
	// 2*100 + 1*110 + 5*30 = 460
	if !report.TotalNotional.Equal(decimal.NewFromInt(460)) {
		t.Fatalf("notional = %s, want 460", report.TotalNotional)
	}
	if len(report.Positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(report.Positions))
	}

	btc := report.Positions[0]
	if btc.Symbol != "BTC-USD" || !btc.NetQty.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("BTC position = %+v, want net 1", btc)
	}
	// Sold 1 at 110 against cost 100.
	if !btc.RealizedPnL.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("BTC realized = %s, want 10", btc.RealizedPnL)
	}

	eth := report.Positions[1]
	if eth.Symbol != "ETH-USD" || !eth.NetQty.Equal(decimal.NewFromInt(-5)) {
		t.Fatalf("ETH position = %+v, want net -5", eth)
	}
}
