package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/execution"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/infra"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/oms"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/resilience"
)

// DecisionSource produces the next trading decision for the live loop.
// The strategy layer satisfies this; the engine never decides direction
// itself.
type DecisionSource interface {
	NextDecision(ctx context.Context) (domain.Decision, error)
}

// Config tunes the trading loop.
type Config struct {
	CycleInterval time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{CycleInterval: 5 * time.Second}
}

// ConfigFrom maps the application config onto engine settings.
func ConfigFrom(cfg *infra.Config) Config {
	c := DefaultConfig()
	if cfg.Engine.CycleIntervalSec > 0 {
		c.CycleInterval = time.Duration(cfg.Engine.CycleIntervalSec) * time.Second
	}
	return c
}

// Status is the aggregate health snapshot for operators.
type Status struct {
	Connected        bool
	KillSwitchActive bool
	OpenOrders       int
	Positions        []domain.Position
	OMS              oms.Metrics
	Resilience       resilience.Metrics
}

// Engine is the top-level coordinator. It converts strategy decisions
// into orders, runs the live trading loop, fans out execution events,
// and owns the kill switch.
type Engine struct {
	cfg     Config
	adapter execution.BrokerAdapter
	res     *resilience.Manager
	orders  *oms.Manager

	connected atomic.Bool
	killed    atomic.Bool

	subMu        sync.RWMutex
	fillSubs     []func(domain.Fill)
	decisionSubs []func(domain.Decision, domain.Order)
}

// NewEngine wires the event path: adapter fills flow into the OMS for
// reconciliation, then deduplicated fills fan out to engine subscribers.
func NewEngine(adapter execution.BrokerAdapter, res *resilience.Manager, orders *oms.Manager, cfg Config) *Engine {
	e := &Engine{
		cfg:     cfg,
		adapter: adapter,
		res:     res,
		orders:  orders,
	}
	adapter.SubscribeFills(orders.OnFill)
	orders.SubscribeFills(e.publishFill)
	return e
}

// Start connects to the venue through the resiliency wrapper and
// launches the health and order-timeout monitors. The monitors stop
// when ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	if e.killed.Load() {
		return fmt.Errorf("engine is killed, refusing to start")
	}
	if err := e.res.Connect(ctx); err != nil {
		return fmt.Errorf("venue connect failed: %w", err)
	}
	e.connected.Store(true)
	e.res.StartHealthMonitor(ctx)
	e.orders.StartTimeoutMonitor(ctx)
	slog.Info("execution engine started")
	return nil
}

// Stop disconnects from the venue. Orders and positions are left as-is;
// use ActivateKillSwitch for an emergency flatten.
func (e *Engine) Stop() {
	if e.connected.CompareAndSwap(true, false) {
		e.adapter.Disconnect()
		slog.Info("execution engine stopped")
	}
}

// SubscribeFills registers a listener for reconciled fills. Each fill
// is delivered exactly once.
func (e *Engine) SubscribeFills(cb func(domain.Fill)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.fillSubs = append(e.fillSubs, cb)
}

// SubscribeDecisions registers a listener invoked after each actionable
// decision with the resulting order.
func (e *Engine) SubscribeDecisions(cb func(domain.Decision, domain.Order)) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.decisionSubs = append(e.decisionSubs, cb)
}

func (e *Engine) publishFill(f domain.Fill) {
	e.subMu.RLock()
	subs := make([]func(domain.Fill), len(e.fillSubs))
	copy(subs, e.fillSubs)
	e.subMu.RUnlock()
	for _, sub := range subs {
		sub(f)
	}
}

func (e *Engine) publishDecision(d domain.Decision, o domain.Order) {
	e.subMu.RLock()
	subs := make([]func(domain.Decision, domain.Order), len(e.decisionSubs))
	copy(subs, e.decisionSubs)
	e.subMu.RUnlock()
	for _, sub := range subs {
		sub(d, o)
	}
}

// ExecuteDecision converts one strategy decision into an order and
// submits it. HOLD decisions and FLAT decisions against an already-flat
// book are no-ops returning a zero order. FLAT resolves its direction
// and size from the current position.
func (e *Engine) ExecuteDecision(ctx context.Context, d domain.Decision) (domain.Order, error) {
	if e.killed.Load() {
		return domain.Order{}, &domain.RejectedOrderError{Reason: "kill switch active"}
	}
	if !d.IsActionable() {
		return domain.Order{}, nil
	}
	if d.Symbol == "" {
		return domain.Order{}, &domain.InvalidParameterError{Param: "symbol", Reason: "empty"}
	}

	order, ok, err := e.orderFor(d)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, nil
	}

	out, err := e.orders.SubmitOrder(ctx, order)
	if err != nil {
		slog.Warn("decision execution failed",
			slog.String("action", string(d.Action)),
			slog.String("symbol", d.Symbol),
			slog.Any("error", err))
		return out, err
	}

	slog.Info("decision executed",
		slog.String("action", string(d.Action)),
		slog.String("symbol", d.Symbol),
		slog.String("order_id", out.ID),
		slog.String("qty", out.RequestedQty.String()))
	e.publishDecision(d, out)
	return out, nil
}

// orderFor builds the order a decision implies. The second return is
// false when no order is required.
func (e *Engine) orderFor(d domain.Decision) (domain.Order, bool, error) {
	orderType := d.Meta.OrderType
	if orderType == "" {
		orderType = domain.TypeMarket
	}

	var side domain.Side
	qty := d.Size

	if d.Action == domain.ActionFlat {
		pos, _ := e.orders.GetPosition(d.Symbol)
		if pos.IsFlat() {
			return domain.Order{}, false, nil
		}
		if pos.IsLong() {
			side = domain.SideSell
		} else {
			side = domain.SideBuy
		}
		qty = pos.NetQty.Abs()
	} else {
		var ok bool
		side, ok = d.OrderSide()
		if !ok {
			return domain.Order{}, false, &domain.InvalidParameterError{
				Param:  "action",
				Reason: "unknown action " + string(d.Action),
			}
		}
		if !qty.IsPositive() {
			return domain.Order{}, false, &domain.InvalidParameterError{Param: "size", Reason: "must be positive"}
		}
	}

	return domain.Order{
		Symbol:       d.Symbol,
		Side:         side,
		Type:         orderType,
		RequestedQty: qty,
		LimitPrice:   d.Meta.LimitPrice,
	}, true, nil
}

// RunLiveTrading drives the decision loop until ctx is cancelled or the
// kill switch trips. Decision errors are logged and the loop continues;
// the loop owns pacing, not the source.
func (e *Engine) RunLiveTrading(ctx context.Context, source DecisionSource) error {
	slog.Info("live trading loop started", slog.Duration("cycle", e.cfg.CycleInterval))
	for {
		if e.killed.Load() {
			slog.Warn("live trading loop halted by kill switch")
			return nil
		}

		decision, err := source.NextDecision(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			slog.Warn("decision source failed", slog.Any("error", err))
		default:
			if _, execErr := e.ExecuteDecision(ctx, decision); execErr != nil {
				slog.Warn("cycle execution failed", slog.Any("error", execErr))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.CycleInterval):
		}
	}
}

// GetStatus returns the aggregate snapshot for operators and tests.
func (e *Engine) GetStatus() Status {
	omsMetrics := e.orders.GetMetrics()
	return Status{
		Connected:        e.connected.Load(),
		KillSwitchActive: e.killed.Load(),
		OpenOrders:       omsMetrics.OpenOrders,
		Positions:        e.orders.GetPositions(),
		OMS:              omsMetrics,
		Resilience:       e.res.Metrics(),
	}
}
