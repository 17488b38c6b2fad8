package execution

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/infra"
)

const paperVenue = "paper"

var (
	bpsDivisor      = decimal.NewFromInt(10000)
	errNotConnected = errors.New("not connected")
)

// PaperConfig controls the simulated venue.
type PaperConfig struct {
	InitialBalance decimal.Decimal
	QuoteAsset     string

	// Uniformly sampled per call to model network round trips.
	LatencyMin time.Duration
	LatencyMax time.Duration

	// Applied against the reference price in the adverse direction
	// for MARKET and STOP executions.
	SlippageBps int64

	// Applied to the notional of every fill.
	CommissionBps int64

	// Probability a resting LIMIT order fills when the reference price
	// touches it, modelling queue position.
	LimitFillProbability float64

	// Simulated venue throttle. Zero disables it.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// DefaultPaperConfig returns the simulation parameters used when no
// config file overrides them.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		InitialBalance:       decimal.NewFromInt(100_000),
		QuoteAsset:           "USD",
		LatencyMin:           5 * time.Millisecond,
		LatencyMax:           50 * time.Millisecond,
		SlippageBps:          5,
		CommissionBps:        10,
		LimitFillProbability: 0.8,
		RateLimitPerSecond:   10,
		RateLimitBurst:       20,
	}
}

// PaperAdapter is the in-process venue simulator. It is both the default
// execution mode and the conformance target for the BrokerAdapter
// contract: latency, slippage, commission, and probabilistic limit fills
// are all configurable, and balances/positions update synchronously with
// each simulated fill.
//
// Reference prices are injected through PushPrice, decoupling the
// simulator from any real market-data feed.
type PaperAdapter struct {
	cfg PaperConfig

	mu        sync.Mutex
	connected bool
	balance   domain.Balance
	positions map[string]*domain.Position
	orders    map[string]*domain.Order
	prices    map[string]decimal.Decimal
	fills     []domain.Fill

	cbMu      sync.RWMutex
	callbacks []FillCallback

	limiter *infra.RateLimiter

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewPaperAdapter creates a simulator with the given parameters.
func NewPaperAdapter(cfg PaperConfig) *PaperAdapter {
	p := &PaperAdapter{
		cfg: cfg,
		balance: domain.Balance{
			Asset:     cfg.QuoteAsset,
			Total:     cfg.InitialBalance,
			Available: cfg.InitialBalance,
		},
		positions: make(map[string]*domain.Position),
		orders:    make(map[string]*domain.Order),
		prices:    make(map[string]decimal.Decimal),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.RateLimitPerSecond > 0 {
		p.limiter = infra.NewRateLimiter(cfg.RateLimitBurst, cfg.RateLimitPerSecond)
	}
	return p
}

// Seed makes the limit-fill lottery deterministic. Test hook.
func (p *PaperAdapter) Seed(seed int64) {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	p.rng = rand.New(rand.NewSource(seed))
}

// Connect establishes the simulated session. Idempotent.
func (p *PaperAdapter) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	slog.Info("paper adapter connected",
		slog.String("quote", p.cfg.QuoteAsset),
		slog.String("balance", p.balance.Total.String()))
	return nil
}

// Disconnect closes the simulated session.
func (p *PaperAdapter) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	slog.Info("paper adapter disconnected")
}

// SubscribeFills registers a push-based fill listener.
func (p *PaperAdapter) SubscribeFills(cb FillCallback) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}

// PushPrice injects a new reference price and wakes any resting orders
// it crosses. This is the drive hook used by tests and the price feed.
func (p *PaperAdapter) PushPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[symbol] = price

	var fired []domain.Fill
	for _, o := range p.orders {
		if o.Symbol != symbol || !o.IsOpen() || o.Status == domain.StatusPending {
			continue
		}
		if f, ok := p.tryRestingFill(o, price); ok {
			fired = append(fired, f)
		}
	}
	p.mu.Unlock()

	for _, f := range fired {
		p.dispatch(f)
	}
}

// tryRestingFill fills a resting order if the pushed price triggers it.
// Caller holds p.mu.
func (p *PaperAdapter) tryRestingFill(o *domain.Order, price decimal.Decimal) (domain.Fill, bool) {
	switch o.Type {
	case domain.TypeLimit, domain.TypeStopLimit:
		if !limitCrossed(o.Side, o.LimitPrice, price) {
			return domain.Fill{}, false
		}
		if !p.rollLimitFill() {
			return domain.Fill{}, false
		}
		return p.applyFillLocked(o, o.RemainingQty(), o.LimitPrice), true

	case domain.TypeStop:
		// Trigger on the adverse side, execute at market with slippage.
		if !stopTriggered(o.Side, o.LimitPrice, price) {
			return domain.Fill{}, false
		}
		return p.applyFillLocked(o, o.RemainingQty(), p.slip(o.Side, price)), true
	}
	return domain.Fill{}, false
}

func limitCrossed(side domain.Side, limit, price decimal.Decimal) bool {
	if side == domain.SideBuy {
		return price.LessThanOrEqual(limit)
	}
	return price.GreaterThanOrEqual(limit)
}

func stopTriggered(side domain.Side, stop, price decimal.Decimal) bool {
	if side == domain.SideBuy {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

func (p *PaperAdapter) rollLimitFill() bool {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64() < p.cfg.LimitFillProbability
}

// SubmitOrder accepts a new order after the sampled latency. MARKET
// orders fill immediately at the slipped reference price; LIMIT, STOP
// and STOP_LIMIT orders rest until a pushed price triggers them; IOC and
// FOK fill against the current reference price or cancel.
func (p *PaperAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := p.checkSession("SubmitOrder"); err != nil {
		return order, err
	}
	if !order.RequestedQty.IsPositive() {
		return order, &domain.InvalidParameterError{Param: "qty", Reason: "must be positive"}
	}
	if order.Type != domain.TypeMarket && !order.LimitPrice.IsPositive() {
		return order, &domain.InvalidParameterError{Param: "limit_price", Reason: "required for non-market orders"}
	}
	if err := p.sleepLatency(ctx, "SubmitOrder"); err != nil {
		return order, err
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.Status = domain.StatusSubmitted
	order.UpdatedAt = time.Now()

	p.mu.Lock()

	price, havePrice := p.prices[order.Symbol]

	var fill domain.Fill
	var filled bool

	switch order.Type {
	case domain.TypeMarket:
		if !havePrice {
			p.mu.Unlock()
			return order, &domain.RejectedOrderError{OrderID: order.ID, Reason: "no reference price for " + order.Symbol}
		}
		execPrice := p.slip(order.Side, price)
		if err := p.checkFunds(order, execPrice); err != nil {
			p.mu.Unlock()
			return order, err
		}
		stored := order
		p.orders[order.ID] = &stored
		fill = p.applyFillLocked(&stored, order.RequestedQty, execPrice)
		order = stored
		filled = true

	case domain.TypeIOC, domain.TypeFOK:
		if havePrice && limitCrossed(order.Side, order.LimitPrice, price) {
			if err := p.checkFunds(order, order.LimitPrice); err != nil {
				p.mu.Unlock()
				return order, err
			}
			stored := order
			p.orders[order.ID] = &stored
			fill = p.applyFillLocked(&stored, order.RequestedQty, order.LimitPrice)
			order = stored
			filled = true
		} else {
			order.Status = domain.StatusCancelled
			stored := order
			p.orders[order.ID] = &stored
		}

	default:
		// LIMIT / STOP / STOP_LIMIT rest on the simulated book.
		stored := order
		p.orders[order.ID] = &stored
	}
	p.mu.Unlock()

	if filled {
		p.dispatch(fill)
	}

	slog.Info("paper order accepted",
		slog.String("id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("type", string(order.Type)),
		slog.String("status", string(order.Status)))
	return order, nil
}

// CancelOrder cancels a resting order. Returns false without error if
// the order is already terminal.
func (p *PaperAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := p.checkSession("CancelOrder"); err != nil {
		return false, err
	}
	if err := p.sleepLatency(ctx, "CancelOrder"); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return false, domain.ErrOrderNotFound
	}
	if !o.IsOpen() {
		return false, nil
	}

	o.Status = domain.StatusCancelled
	o.UpdatedAt = time.Now()
	slog.Info("paper order cancelled", slog.String("id", orderID))
	return true, nil
}

// ModifyOrder amends a resting order's quantity and/or limit price.
// The paper venue has a native amend, so the order keeps its identifier.
func (p *PaperAdapter) ModifyOrder(ctx context.Context, orderID string, changes OrderChanges) (domain.Order, error) {
	if err := p.checkSession("ModifyOrder"); err != nil {
		return domain.Order{}, err
	}
	if err := p.sleepLatency(ctx, "ModifyOrder"); err != nil {
		return domain.Order{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if !o.IsOpen() {
		return *o, &domain.RejectedOrderError{OrderID: orderID, Reason: "order is terminal"}
	}

	if changes.Qty.IsPositive() {
		if changes.Qty.LessThan(o.FilledQty) {
			return *o, &domain.InvalidParameterError{Param: "qty", Reason: "below filled quantity"}
		}
		o.RequestedQty = changes.Qty
	}
	if changes.LimitPrice.IsPositive() {
		o.LimitPrice = changes.LimitPrice
	}
	o.UpdatedAt = time.Now()
	return *o, nil
}

// GetOrderStatus returns the venue's view of an order.
func (p *PaperAdapter) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	if err := p.checkSession("GetOrderStatus"); err != nil {
		return domain.Order{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return *o, nil
}

// GetPositions returns a snapshot of all non-flat positions.
func (p *PaperAdapter) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := p.checkSession("GetPositions"); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if !pos.IsFlat() {
			out = append(out, *pos)
		}
	}
	return out, nil
}

// GetAccountBalance returns the quote-asset snapshot.
func (p *PaperAdapter) GetAccountBalance(ctx context.Context) (domain.Balance, error) {
	if err := p.checkSession("GetAccountBalance"); err != nil {
		return domain.Balance{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// Fills returns all fills the venue has produced this session.
func (p *PaperAdapter) Fills() []domain.Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Fill, len(p.fills))
	copy(out, p.fills)
	return out
}

func (p *PaperAdapter) checkSession(op string) error {
	p.mu.Lock()
	connected := p.connected
	p.mu.Unlock()

	if !connected {
		return &domain.ConnectionError{Venue: paperVenue, Cause: errNotConnected}
	}
	if op == "SubmitOrder" || op == "CancelOrder" || op == "ModifyOrder" {
		if p.limiter != nil && !p.limiter.TryAcquire() {
			return &domain.RateLimitError{Venue: paperVenue, RetryAfter: time.Second}
		}
	}
	return nil
}

func (p *PaperAdapter) sleepLatency(ctx context.Context, op string) error {
	d := p.cfg.LatencyMin
	if span := p.cfg.LatencyMax - p.cfg.LatencyMin; span > 0 {
		p.rngMu.Lock()
		d += time.Duration(p.rng.Int63n(int64(span)))
		p.rngMu.Unlock()
	}
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return &domain.TimeoutError{Op: op, Elapsed: d}
	case <-time.After(d):
		return nil
	}
}

// slip applies slippage against the caller: buys pay up, sells receive less.
func (p *PaperAdapter) slip(side domain.Side, price decimal.Decimal) decimal.Decimal {
	if p.cfg.SlippageBps == 0 {
		return price
	}
	adj := price.Mul(decimal.NewFromInt(p.cfg.SlippageBps)).Div(bpsDivisor)
	if side == domain.SideBuy {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

func (p *PaperAdapter) commission(notional decimal.Decimal) decimal.Decimal {
	if p.cfg.CommissionBps == 0 {
		return decimal.Zero
	}
	return notional.Mul(decimal.NewFromInt(p.cfg.CommissionBps)).Div(bpsDivisor)
}

// checkFunds rejects buys the quote balance cannot cover. Caller holds p.mu.
func (p *PaperAdapter) checkFunds(order domain.Order, price decimal.Decimal) error {
	if order.Side != domain.SideBuy {
		return nil
	}
	notional := order.RequestedQty.Mul(price)
	needed := notional.Add(p.commission(notional))
	if p.balance.Available.LessThan(needed) {
		return &domain.InsufficientBalanceError{
			Asset: p.cfg.QuoteAsset,
			Need:  needed.String(),
			Have:  p.balance.Available.String(),
		}
	}
	return nil
}

// applyFillLocked books a fill against order, position, and balance.
// Caller holds p.mu; the produced fill must be dispatched after unlock.
func (p *PaperAdapter) applyFillLocked(o *domain.Order, qty, price decimal.Decimal) domain.Fill {
	notional := qty.Mul(price)
	fill := domain.Fill{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        qty,
		Price:      price,
		Commission: p.commission(notional),
		IsMaker:    o.Type != domain.TypeMarket,
		Timestamp:  time.Now(),
	}

	// Order bookkeeping: weighted average over all fills so far.
	prevNotional := o.AvgFillPrice.Mul(o.FilledQty)
	o.FilledQty = o.FilledQty.Add(qty)
	o.AvgFillPrice = prevNotional.Add(notional).Div(o.FilledQty)
	if o.FilledQty.GreaterThanOrEqual(o.RequestedQty) {
		o.Status = domain.StatusFilled
	} else {
		o.Status = domain.StatusPartialFill
	}
	o.UpdatedAt = fill.Timestamp

	// Position bookkeeping.
	pos, ok := p.positions[o.Symbol]
	if !ok {
		pos = &domain.Position{Symbol: o.Symbol}
		p.positions[o.Symbol] = pos
	}
	pos.ApplyFill(fill)

	// Balance bookkeeping: buys debit notional, sells credit it;
	// commission always debits.
	if o.Side == domain.SideBuy {
		p.balance.Total = p.balance.Total.Sub(notional)
	} else {
		p.balance.Total = p.balance.Total.Add(notional)
	}
	p.balance.Total = p.balance.Total.Sub(fill.Commission)
	p.balance.Available = p.balance.Total

	p.fills = append(p.fills, fill)
	return fill
}

// dispatch pushes a fill to every subscriber. At-least-once; invoked
// from whichever goroutine produced the fill.
func (p *PaperAdapter) dispatch(fill domain.Fill) {
	p.cbMu.RLock()
	cbs := make([]FillCallback, len(p.callbacks))
	copy(cbs, p.callbacks)
	p.cbMu.RUnlock()

	for _, cb := range cbs {
		cb(fill)
	}
}
