package oms

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/infra"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/metrics"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/resilience"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/storage"
)

// Config tunes order book limits and the timeout monitor.
type Config struct {
	MaxOpenOrders   int
	OrderTimeout    time.Duration
	MonitorInterval time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenOrders:   50,
		OrderTimeout:    300 * time.Second,
		MonitorInterval: 10 * time.Second,
	}
}

// ConfigFrom maps the application config onto OMS limits.
func ConfigFrom(cfg *infra.Config) Config {
	c := DefaultConfig()
	if cfg.OMS.MaxOpenOrders > 0 {
		c.MaxOpenOrders = cfg.OMS.MaxOpenOrders
	}
	if cfg.OMS.OrderTimeoutSec > 0 {
		c.OrderTimeout = time.Duration(cfg.OMS.OrderTimeoutSec) * time.Second
	}
	if cfg.OMS.MonitorIntervalSec > 0 {
		c.MonitorInterval = time.Duration(cfg.OMS.MonitorIntervalSec) * time.Second
	}
	return c
}

// Metrics is the OMS monitoring snapshot.
type Metrics struct {
	OpenOrders      int
	CompletedOrders int
	FillsApplied    int
	FillRate        float64 // share of completed orders that ended FILLED
	AvgFillLatency  time.Duration
	TotalNotional   decimal.Decimal
	TotalCommission decimal.Decimal
}

// Manager is the single source of truth for order and position state.
// All mutation flows through its entry points: SubmitOrder/CancelOrder
// on the request side and OnFill on the reconciliation side. Adapters
// report events but never write the books directly.
type Manager struct {
	cfg     Config
	res     *resilience.Manager
	journal *storage.Journal
	prom    *metrics.Metrics

	mu        sync.Mutex
	active    map[string]*domain.Order
	completed map[string]*domain.Order
	positions map[string]*domain.Position
	fills     []domain.Fill
	seenFills map[string]struct{}

	totalNotional   decimal.Decimal
	totalCommission decimal.Decimal
	fillLatencySum  time.Duration
	filledOrders    int

	subMu sync.RWMutex
	subs  []func(domain.Fill)
}

// NewManager creates an order manager over one resiliency-wrapped venue.
// journal and prom may be nil.
func NewManager(res *resilience.Manager, cfg Config, journal *storage.Journal, prom *metrics.Metrics) *Manager {
	return &Manager{
		cfg:       cfg,
		res:       res,
		journal:   journal,
		prom:      prom,
		active:    make(map[string]*domain.Order),
		completed: make(map[string]*domain.Order),
		positions: make(map[string]*domain.Position),
		seenFills: make(map[string]struct{}),
	}
}

// SubscribeFills registers a listener invoked after each fill has been
// reconciled. Duplicates are filtered before this point, so subscribers
// see each fill exactly once.
func (m *Manager) SubscribeFills(cb func(domain.Fill)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subs = append(m.subs, cb)
}

// SubmitOrder registers the order and delegates to the venue through
// the resiliency wrapper. When max open orders is reached it rejects
// with CapacityExceededError before any network traffic (backpressure).
func (m *Manager) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	return m.submit(ctx, order, false)
}

// ForceSubmit is the kill-switch path: it bypasses the open-order limit
// and the retry/breaker policy, going to the venue directly with a
// single attempt. Nothing else may use it.
func (m *Manager) ForceSubmit(ctx context.Context, order domain.Order) (domain.Order, error) {
	return m.submit(ctx, order, true)
}

func (m *Manager) submit(ctx context.Context, order domain.Order, force bool) (domain.Order, error) {
	if order.Symbol == "" {
		return order, &domain.InvalidParameterError{Param: "symbol", Reason: "empty"}
	}
	if !order.RequestedQty.IsPositive() {
		return order, &domain.InvalidParameterError{Param: "qty", Reason: "must be positive"}
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now()
	order.Status = domain.StatusPending
	order.FilledQty = decimal.Zero
	order.AvgFillPrice = decimal.Zero
	order.CreatedAt = now
	order.UpdatedAt = now

	m.mu.Lock()
	if !force && len(m.active) >= m.cfg.MaxOpenOrders {
		m.mu.Unlock()
		return order, &domain.CapacityExceededError{Limit: m.cfg.MaxOpenOrders}
	}
	stored := order
	m.active[order.ID] = &stored
	openOrders := len(m.active)
	m.mu.Unlock()

	m.prom.SetOpenOrders(openOrders)
	if err := m.journal.RecordOrderEvent(ctx, order, "created"); err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}

	var venueOrder domain.Order
	var err error
	if force {
		venueOrder, err = m.res.Adapter().SubmitOrder(ctx, order)
	} else {
		venueOrder, err = m.res.SubmitOrder(ctx, order)
	}

	snapshot, applyErr := m.applySubmitResult(order.ID, venueOrder, err)
	if journalErr := m.journal.RecordOrderEvent(ctx, snapshot, submitDetail(applyErr)); journalErr != nil {
		slog.Warn("journal write failed", slog.Any("error", journalErr))
	}
	return snapshot, applyErr
}

func submitDetail(err error) string {
	if err != nil {
		return "submit failed"
	}
	return "accepted"
}

// applySubmitResult merges the venue's response into the book. Fills may
// already have been reconciled before the submit call returns, so it
// only advances orders still PENDING and never clobbers fill progress.
func (m *Manager) applySubmitResult(orderID string, venueOrder domain.Order, err error) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.active[orderID]
	if !ok {
		// Reconciliation already completed the order (e.g. an immediate
		// full fill); the completed copy is the authoritative snapshot.
		if done, found := m.completed[orderID]; found {
			if err == nil {
				m.prom.IncOrdersSubmitted()
			}
			return *done, err
		}
		return venueOrder, err
	}

	if err != nil {
		cur.Status = domain.StatusRejected
		cur.UpdatedAt = time.Now()
		m.completeLocked(cur)
		m.prom.IncOrdersRejected()
		return *cur, err
	}

	// Venue may re-key the order; follow its identifier.
	if venueOrder.ID != "" && venueOrder.ID != cur.ID {
		delete(m.active, cur.ID)
		cur.ID = venueOrder.ID
		m.active[cur.ID] = cur
	}

	if cur.Status == domain.StatusPending {
		switch {
		case venueOrder.Status == domain.StatusCancelled:
			// IOC/FOK that missed: terminal immediately.
			cur.Status = domain.StatusCancelled
			m.completeLocked(cur)
		default:
			cur.Status = domain.StatusSubmitted
		}
		cur.UpdatedAt = time.Now()
	}

	m.prom.IncOrdersSubmitted()
	return *cur, nil
}

// completeLocked moves an order from the active book to the completed
// collection. Caller holds m.mu.
func (m *Manager) completeLocked(o *domain.Order) {
	delete(m.active, o.ID)
	m.completed[o.ID] = o
	if o.Status == domain.StatusFilled {
		m.filledOrders++
	}
}

// OnFill reconciles one execution report into order and position state.
// Safe under concurrent invocation: all mutation happens under one lock,
// which gives fills for a single order a serial apply order. Duplicate
// fill IDs and fills referencing unknown or terminal orders are ignored.
func (m *Manager) OnFill(f domain.Fill) {
	if f.ID == "" || !f.Qty.IsPositive() {
		slog.Warn("ignoring malformed fill", slog.String("fill_id", f.ID))
		return
	}

	m.mu.Lock()

	if _, dup := m.seenFills[f.ID]; dup {
		m.mu.Unlock()
		m.prom.IncDuplicateFills()
		slog.Debug("ignoring duplicate fill", slog.String("fill_id", f.ID))
		return
	}

	cur, ok := m.active[f.OrderID]
	if !ok {
		m.mu.Unlock()
		slog.Warn("ignoring fill for unknown or terminal order",
			slog.String("fill_id", f.ID),
			slog.String("order_id", f.OrderID))
		return
	}

	if f.Qty.GreaterThan(cur.RemainingQty()) {
		m.mu.Unlock()
		slog.Warn("ignoring over-fill",
			slog.String("fill_id", f.ID),
			slog.String("order_id", f.OrderID),
			slog.String("qty", f.Qty.String()),
			slog.String("remaining", cur.RemainingQty().String()))
		return
	}

	m.seenFills[f.ID] = struct{}{}

	// Order bookkeeping: weighted mean over all fills for the order.
	prevNotional := cur.AvgFillPrice.Mul(cur.FilledQty)
	cur.FilledQty = cur.FilledQty.Add(f.Qty)
	cur.AvgFillPrice = prevNotional.Add(f.Notional()).Div(cur.FilledQty)
	cur.UpdatedAt = f.Timestamp

	completedNow := false
	if cur.FilledQty.Equal(cur.RequestedQty) {
		cur.Status = domain.StatusFilled
		m.completeLocked(cur)
		completedNow = true
	} else {
		cur.Status = domain.StatusPartialFill
	}

	// Position bookkeeping per the netting rule.
	pos, found := m.positions[f.Symbol]
	if !found {
		pos = &domain.Position{Symbol: f.Symbol}
		m.positions[f.Symbol] = pos
	}
	pos.ApplyFill(f)

	m.fills = append(m.fills, f)
	m.totalNotional = m.totalNotional.Add(f.Notional())
	m.totalCommission = m.totalCommission.Add(f.Commission)

	latency := f.Timestamp.Sub(cur.CreatedAt)
	if latency > 0 {
		m.fillLatencySum += latency
	}

	snapshot := *cur
	openOrders := len(m.active)
	m.mu.Unlock()

	m.prom.ObserveFill(latency.Seconds())
	m.prom.SetOpenOrders(openOrders)

	ctx := context.Background()
	if err := m.journal.RecordFill(ctx, f); err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}
	if completedNow {
		if err := m.journal.RecordOrderEvent(ctx, snapshot, "fully filled"); err != nil {
			slog.Warn("journal write failed", slog.Any("error", err))
		}
	}

	m.subMu.RLock()
	subs := make([]func(domain.Fill), len(m.subs))
	copy(subs, m.subs)
	m.subMu.RUnlock()
	for _, sub := range subs {
		sub(f)
	}
}

// CancelOrder requests cancellation of an active order. Terminal orders
// are a no-op. When the venue reports the order already terminal, the
// venue's view is polled and adopted to heal stale local state.
func (m *Manager) CancelOrder(ctx context.Context, orderID string) error {
	m.mu.Lock()
	_, isActive := m.active[orderID]
	_, isCompleted := m.completed[orderID]
	m.mu.Unlock()

	if !isActive {
		if isCompleted {
			return nil
		}
		return domain.ErrOrderNotFound
	}

	acked, err := m.res.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if acked {
		m.transitionTerminal(ctx, orderID, domain.StatusCancelled, "cancel acknowledged")
		return nil
	}

	// Venue says the order is already terminal; reconcile its view.
	venueOrder, statusErr := m.res.GetOrderStatus(ctx, orderID)
	if statusErr == nil && venueOrder.Status.IsTerminal() {
		m.adoptVenueState(ctx, orderID, venueOrder)
	}
	return nil
}

// transitionTerminal moves an active order to the given terminal state.
func (m *Manager) transitionTerminal(ctx context.Context, orderID string, status domain.Status, detail string) {
	m.mu.Lock()
	cur, ok := m.active[orderID]
	if !ok || !cur.Status.CanTransitionTo(status) {
		m.mu.Unlock()
		return
	}
	cur.Status = status
	cur.UpdatedAt = time.Now()
	m.completeLocked(cur)
	snapshot := *cur
	openOrders := len(m.active)
	m.mu.Unlock()

	m.prom.SetOpenOrders(openOrders)
	if err := m.journal.RecordOrderEvent(ctx, snapshot, detail); err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}
}

// adoptVenueState overwrites stale local state with the venue's
// terminal view of an order.
func (m *Manager) adoptVenueState(ctx context.Context, orderID string, venueOrder domain.Order) {
	m.mu.Lock()
	cur, ok := m.active[orderID]
	if !ok {
		m.mu.Unlock()
		return
	}
	cur.Status = venueOrder.Status
	cur.FilledQty = venueOrder.FilledQty
	cur.AvgFillPrice = venueOrder.AvgFillPrice
	cur.UpdatedAt = time.Now()
	m.completeLocked(cur)
	snapshot := *cur
	m.mu.Unlock()

	if err := m.journal.RecordOrderEvent(ctx, snapshot, "adopted venue state"); err != nil {
		slog.Warn("journal write failed", slog.Any("error", err))
	}
}

// CancelAllForShutdown is the kill-switch sweep. It contacts the venue
// directly (no retry or breaker gating) and transitions every active
// order to CANCELLED locally regardless of acknowledgment: stale local
// state is worse than a possibly-redundant cancel.
func (m *Manager) CancelAllForShutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	adapter := m.res.Adapter()
	for _, id := range ids {
		if _, err := adapter.CancelOrder(ctx, id); err != nil {
			slog.Warn("shutdown cancel failed, expiring locally anyway",
				slog.String("order_id", id),
				slog.Any("error", err))
		}
		m.transitionTerminal(ctx, id, domain.StatusCancelled, "kill switch")
	}
}

// GetOrder returns a snapshot of an order from either book.
func (m *Manager) GetOrder(orderID string) (domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.active[orderID]; ok {
		return *o, true
	}
	if o, ok := m.completed[orderID]; ok {
		return *o, true
	}
	return domain.Order{}, false
}

// ActiveOrders returns a snapshot of all active orders.
func (m *Manager) ActiveOrders() []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.active))
	for _, o := range m.active {
		out = append(out, *o)
	}
	return out
}

// GetFills returns reconciled fills, all symbols when symbol is empty.
func (m *Manager) GetFills(symbol string) []domain.Fill {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Fill, 0, len(m.fills))
	for _, f := range m.fills {
		if symbol == "" || f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out
}

// GetPositions returns a snapshot of all positions.
func (m *Manager) GetPositions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// GetPosition returns the position for one symbol.
func (m *Manager) GetPosition(symbol string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return domain.Position{Symbol: symbol}, false
	}
	return *p, true
}

// GetMetrics returns the OMS monitoring snapshot.
func (m *Manager) GetMetrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	completed := len(m.completed)
	var fillRate float64
	if completed > 0 {
		fillRate = float64(m.filledOrders) / float64(completed)
	}
	var avgLatency time.Duration
	if n := len(m.fills); n > 0 {
		avgLatency = m.fillLatencySum / time.Duration(n)
	}

	return Metrics{
		OpenOrders:      len(m.active),
		CompletedOrders: completed,
		FillsApplied:    len(m.fills),
		FillRate:        fillRate,
		AvgFillLatency:  avgLatency,
		TotalNotional:   m.totalNotional,
		TotalCommission: m.totalCommission,
	}
}
