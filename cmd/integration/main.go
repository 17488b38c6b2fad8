package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/engine"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/execution"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/oms"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/resilience"
)

// End-to-end smoke against the simulator: open, rest, fill on a price
// move, flatten through the kill switch. Exercises every layer the live
// binary uses without touching a real venue.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting paper integration run...")

	paperCfg := execution.DefaultPaperConfig()
	paper := execution.NewPaperAdapter(paperCfg)

	res := resilience.NewManager(paper, resilience.DefaultConfig("paper"), nil)
	orders := oms.NewManager(res, oms.DefaultConfig(), nil, nil)
	eng := engine.NewEngine(paper, res, orders, engine.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		slog.Error("❌ Engine start failed", slog.Any("error", err))
		os.Exit(1)
	}

	paper.PushPrice("BTC-USD", decimal.NewFromInt(50_000))

	// STEP 1: market long.
	slog.Info("STEP 1: Market long 0.5 BTC...")
	out, err := eng.ExecuteDecision(ctx, domain.Decision{
		Action: domain.ActionLong,
		Symbol: "BTC-USD",
		Size:   decimal.NewFromFloat(0.5),
	})
	if err != nil {
		slog.Error("❌ Market order failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("✅ Market order done",
		slog.String("status", string(out.Status)),
		slog.String("avg_price", out.AvgFillPrice.String()))

	// STEP 2: rest a limit below the market, then trade through it.
	slog.Info("STEP 2: Resting limit at $49,500...")
	resting, err := eng.ExecuteDecision(ctx, domain.Decision{
		Action: domain.ActionLong,
		Symbol: "BTC-USD",
		Size:   decimal.NewFromFloat(0.1),
		Meta: domain.DecisionMeta{
			OrderType:  domain.TypeLimit,
			LimitPrice: decimal.NewFromInt(49_500),
		},
	})
	if err != nil {
		slog.Error("❌ Limit order failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("✅ Limit order resting", slog.String("oid", resting.ID))

	paper.PushPrice("BTC-USD", decimal.NewFromInt(49_400))
	time.Sleep(100 * time.Millisecond)

	if o, ok := orders.GetOrder(resting.ID); ok {
		slog.Info("📈 After price move",
			slog.String("status", string(o.Status)),
			slog.String("filled", o.FilledQty.String()))
	}

	// STEP 3: emergency flatten.
	slog.Info("STEP 3: Kill switch with position close...")
	eng.ActivateKillSwitch(ctx, true)

	status := eng.GetStatus()
	for _, p := range status.Positions {
		slog.Info("final position",
			slog.String("symbol", p.Symbol),
			slog.String("net", p.NetQty.String()),
			slog.String("realized", p.RealizedPnL.String()))
		if !p.IsFlat() {
			slog.Error("❌ Position not flat after kill switch")
			os.Exit(1)
		}
	}
	if status.OpenOrders != 0 {
		slog.Error("❌ Open orders remain after kill switch")
		os.Exit(1)
	}

	slog.Info("🎉 Integration run passed!",
		slog.Int("fills", status.OMS.FillsApplied),
		slog.String("notional", status.OMS.TotalNotional.String()))
}
