package engine

import (
	"context"
	"log/slog"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
)

// ActivateKillSwitch is the emergency stop. It permanently halts new
// decision execution, cancels every active order, optionally flattens
// all positions with market orders, and disconnects. Flattening orders
// go through the direct venue path with a single attempt each: retry
// loops and an open breaker must not stand between an emergency and
// the venue. Idempotent; only the first call acts.
func (e *Engine) ActivateKillSwitch(ctx context.Context, closePositions bool) {
	if !e.killed.CompareAndSwap(false, true) {
		slog.Warn("kill switch already active")
		return
	}

	slog.Error("KILL SWITCH ACTIVATED", slog.Bool("close_positions", closePositions))

	e.orders.CancelAllForShutdown(ctx)

	if closePositions {
		e.flattenAll(ctx)
	}

	e.Stop()
	slog.Error("kill switch sequence complete")
}

// flattenAll sends one market order per open position to bring the book
// flat. Failures are logged and the sweep continues; a position that
// cannot be closed must not block closing the others.
func (e *Engine) flattenAll(ctx context.Context) {
	for _, pos := range e.orders.GetPositions() {
		if pos.IsFlat() {
			continue
		}
		side := domain.SideSell
		if pos.IsShort() {
			side = domain.SideBuy
		}
		order := domain.Order{
			Symbol:       pos.Symbol,
			Side:         side,
			Type:         domain.TypeMarket,
			RequestedQty: pos.NetQty.Abs(),
		}
		if _, err := e.orders.ForceSubmit(ctx, order); err != nil {
			slog.Error("flatten failed",
				slog.String("symbol", pos.Symbol),
				slog.String("qty", order.RequestedQty.String()),
				slog.Any("error", err))
			continue
		}
		slog.Info("position flattened",
			slog.String("symbol", pos.Symbol),
			slog.String("side", string(side)),
			slog.String("qty", order.RequestedQty.String()))
	}
}
