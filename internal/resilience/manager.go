package resilience

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
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/metrics"
)

// recentFailureWindow is the rolling window reported by Metrics.
const recentFailureWindow = 5 * time.Minute

// Config tunes retry, breaker, and health-probe behavior for one venue.
type Config struct {
	Venue             string
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	FailureThreshold  int
	SuccessThreshold  int
	CircuitTimeout    time.Duration
	HealthInterval    time.Duration
	MaxDLQSize        int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig(venue string) Config {
	return Config{
		Venue:             venue,
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		BackoffMultiplier: 2.0,
		FailureThreshold:  5,
		SuccessThreshold:  2,
		CircuitTimeout:    60 * time.Second,
		HealthInterval:    30 * time.Second,
		MaxDLQSize:        1000,
	}
}

// ConfigFrom maps the application config onto a venue resilience config.
func ConfigFrom(venue string, cfg *infra.Config) Config {
	c := DefaultConfig(venue)
	if cfg.Resilience.MaxRetries > 0 {
		c.MaxRetries = cfg.Resilience.MaxRetries
	}
	if cfg.Resilience.InitialBackoffMS > 0 {
		c.InitialBackoff = time.Duration(cfg.Resilience.InitialBackoffMS) * time.Millisecond
	}
	if cfg.Resilience.BackoffMultiplier >= 1 {
		c.BackoffMultiplier = cfg.Resilience.BackoffMultiplier
	}
	if cfg.Resilience.FailureThreshold > 0 {
		c.FailureThreshold = cfg.Resilience.FailureThreshold
	}
	if cfg.Resilience.SuccessThreshold > 0 {
		c.SuccessThreshold = cfg.Resilience.SuccessThreshold
	}
	if cfg.Resilience.CircuitTimeoutSec > 0 {
		c.CircuitTimeout = time.Duration(cfg.Resilience.CircuitTimeoutSec) * time.Second
	}
	if cfg.Resilience.HealthIntervalSec > 0 {
		c.HealthInterval = time.Duration(cfg.Resilience.HealthIntervalSec) * time.Second
	}
	if cfg.Resilience.MaxDLQSize > 0 {
		c.MaxDLQSize = cfg.Resilience.MaxDLQSize
	}
	return c
}

// Metrics is the monitoring snapshot exposed by a Manager.
type Metrics struct {
	CircuitState    string
	FailureCount    int
	RecentFailures  int
	DLQSize         int
	TotalFailures   uint64
	RetriesAttempts uint64
}

// request labels an adapter call for logging and dead-lettering.
type request struct {
	Op      string
	OrderID string
	Symbol  string
}

// Manager shields the OMS and engine from one venue's instability.
// Every adapter call goes through Execute, which applies the breaker,
// classifies errors, retries transient failures with exponential
// backoff, and dead-letters requests that exhaust their retries.
// One Manager wraps exactly one adapter; each venue gets its own.
type Manager struct {
	cfg     Config
	adapter execution.BrokerAdapter
	breaker *infra.CircuitBreaker
	dlq     *DeadLetterQueue
	prom    *metrics.Metrics

	retries atomic.Uint64

	mu           sync.Mutex
	failureTimes []time.Time
}

// NewManager wraps adapter with the resiliency policy in cfg.
func NewManager(adapter execution.BrokerAdapter, cfg Config, prom *metrics.Metrics) *Manager {
	return &Manager{
		cfg:     cfg,
		adapter: adapter,
		breaker: infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
			Name:             cfg.Venue,
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			Timeout:          cfg.CircuitTimeout,
		}),
		dlq:  NewDeadLetterQueue(cfg.MaxDLQSize),
		prom: prom,
	}
}

// Adapter returns the wrapped adapter. The kill switch uses it to reach
// the venue directly, outside retry and breaker gating.
func (m *Manager) Adapter() execution.BrokerAdapter {
	return m.adapter
}

// DLQ exposes the dead-letter queue for inspection and manual replay.
func (m *Manager) DLQ() *DeadLetterQueue {
	return m.dlq
}

// execute runs one adapter call under the full policy.
//
// Permanent errors propagate after a single attempt and are never
// dead-lettered: retrying a rejected order cannot help. Transient errors
// are retried with backoff; in-flight backoff sleeps abort when ctx is
// cancelled so the kill switch is never stuck behind a retry schedule.
func (m *Manager) execute(ctx context.Context, req request, fn func(context.Context) error) error {
	if !m.breaker.Allow() {
		m.prom.SetCircuitState(float64(m.breaker.GetState()))
		return &domain.CircuitOpenError{Venue: m.cfg.Venue}
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			m.breaker.RecordSuccess()
			m.prom.SetCircuitState(float64(m.breaker.GetState()))
			return nil
		}

		if !domain.IsTransient(err) {
			// Venue answered and said no. Not an instability signal.
			return err
		}

		m.recordFailure()
		if attempt >= m.cfg.MaxRetries {
			break
		}

		retry := attempt + 1
		delay := infra.RetryDelay(m.cfg.InitialBackoff, m.cfg.BackoffMultiplier, retry)
		slog.Warn("transient adapter failure, backing off",
			slog.String("venue", m.cfg.Venue),
			slog.String("op", req.Op),
			slog.Int("retry", retry),
			slog.Duration("delay", delay),
			slog.Any("error", err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		m.retries.Add(1)
		m.prom.IncRetries()

		if !m.breaker.Allow() {
			return &domain.CircuitOpenError{Venue: m.cfg.Venue}
		}
	}

	seq := m.dlq.Add(DLQEntry{
		Op:       req.Op,
		OrderID:  req.OrderID,
		Symbol:   req.Symbol,
		Err:      err,
		Attempts: m.cfg.MaxRetries + 1,
	})
	m.prom.IncDLQ()
	m.prom.SetDLQSize(m.dlq.Size())
	slog.Error("retries exhausted, request dead-lettered",
		slog.String("venue", m.cfg.Venue),
		slog.String("op", req.Op),
		slog.Uint64("dlq_seq", seq),
		slog.Any("error", err))

	return fmt.Errorf("%s failed after %d attempts: %w", req.Op, m.cfg.MaxRetries+1, err)
}

func (m *Manager) recordFailure() {
	m.breaker.RecordFailure()
	m.prom.SetCircuitState(float64(m.breaker.GetState()))

	now := time.Now()
	m.mu.Lock()
	m.failureTimes = append(m.failureTimes, now)
	m.pruneLocked(now)
	m.mu.Unlock()
}

// pruneLocked drops failure timestamps outside the rolling window.
func (m *Manager) pruneLocked(now time.Time) {
	cutoff := now.Add(-recentFailureWindow)
	i := 0
	for i < len(m.failureTimes) && m.failureTimes[i].Before(cutoff) {
		i++
	}
	m.failureTimes = m.failureTimes[i:]
}

// Connect establishes the venue session through the policy.
func (m *Manager) Connect(ctx context.Context) error {
	return m.execute(ctx, request{Op: "Connect"}, func(ctx context.Context) error {
		return m.adapter.Connect(ctx)
	})
}

// SubmitOrder sends an order through the policy.
func (m *Manager) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	out := order
	err := m.execute(ctx, request{Op: "SubmitOrder", OrderID: order.ID, Symbol: order.Symbol},
		func(ctx context.Context) error {
			var callErr error
			out, callErr = m.adapter.SubmitOrder(ctx, order)
			return callErr
		})
	return out, err
}

// CancelOrder requests cancellation through the policy.
func (m *Manager) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var ok bool
	err := m.execute(ctx, request{Op: "CancelOrder", OrderID: orderID},
		func(ctx context.Context) error {
			var callErr error
			ok, callErr = m.adapter.CancelOrder(ctx, orderID)
			return callErr
		})
	return ok, err
}

// ModifyOrder amends an order through the policy.
func (m *Manager) ModifyOrder(ctx context.Context, orderID string, changes execution.OrderChanges) (domain.Order, error) {
	var out domain.Order
	err := m.execute(ctx, request{Op: "ModifyOrder", OrderID: orderID},
		func(ctx context.Context) error {
			var callErr error
			out, callErr = m.adapter.ModifyOrder(ctx, orderID, changes)
			return callErr
		})
	return out, err
}

// GetOrderStatus polls an order through the policy.
func (m *Manager) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	var out domain.Order
	err := m.execute(ctx, request{Op: "GetOrderStatus", OrderID: orderID},
		func(ctx context.Context) error {
			var callErr error
			out, callErr = m.adapter.GetOrderStatus(ctx, orderID)
			return callErr
		})
	return out, err
}

// GetPositions snapshots venue positions through the policy.
func (m *Manager) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	err := m.execute(ctx, request{Op: "GetPositions"},
		func(ctx context.Context) error {
			var callErr error
			out, callErr = m.adapter.GetPositions(ctx)
			return callErr
		})
	return out, err
}

// GetAccountBalance snapshots the account through the policy.
func (m *Manager) GetAccountBalance(ctx context.Context) (domain.Balance, error) {
	var out domain.Balance
	err := m.execute(ctx, request{Op: "GetAccountBalance"},
		func(ctx context.Context) error {
			var callErr error
			out, callErr = m.adapter.GetAccountBalance(ctx)
			return callErr
		})
	return out, err
}

// StartHealthMonitor launches the background probe loop. The probe is a
// lightweight balance query, single attempt, feeding the same breaker as
// trading traffic so recovery is detected even with no active orders.
func (m *Manager) StartHealthMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.HealthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

func (m *Manager) probe(ctx context.Context) {
	// Allow drives the OPEN -> HALF_OPEN transition once the cooldown
	// elapses; while the breaker is firmly open the probe stays home.
	if !m.breaker.Allow() {
		return
	}

	if _, err := m.adapter.GetAccountBalance(ctx); err != nil {
		if domain.IsTransient(err) {
			m.recordFailure()
		}
		slog.Warn("health probe failed",
			slog.String("venue", m.cfg.Venue),
			slog.Any("error", err))
		return
	}

	m.breaker.RecordSuccess()
	m.prom.SetCircuitState(float64(m.breaker.GetState()))
}

// Metrics returns the monitoring snapshot.
func (m *Manager) Metrics() Metrics {
	now := time.Now()
	m.mu.Lock()
	m.pruneLocked(now)
	recent := len(m.failureTimes)
	m.mu.Unlock()

	return Metrics{
		CircuitState:    m.breaker.GetState().String(),
		FailureCount:    m.breaker.FailureCount(),
		RecentFailures:  recent,
		DLQSize:         m.dlq.Size(),
		TotalFailures:   m.breaker.TotalFailures(),
		RetriesAttempts: m.retries.Load(),
	}
}
