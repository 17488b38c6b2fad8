package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/execution"
)

// scriptedAdapter fails SubmitOrder and GetAccountBalance with the
// configured errors until the script runs out, then succeeds.
type scriptedAdapter struct {
	mu      sync.Mutex
	script  []error
	calls   int
	balance int
}

func (a *scriptedAdapter) next() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if len(a.script) == 0 {
		return nil
	}
	err := a.script[0]
	a.script = a.script[1:]
	return err
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *scriptedAdapter) Connect(ctx context.Context) error { return nil }
func (a *scriptedAdapter) Disconnect()                       {}

func (a *scriptedAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := a.next(); err != nil {
		return order, err
	}
	order.Status = domain.StatusSubmitted
	return order, nil
}

func (a *scriptedAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, a.next()
}

func (a *scriptedAdapter) ModifyOrder(ctx context.Context, orderID string, changes execution.OrderChanges) (domain.Order, error) {
	return domain.Order{}, a.next()
}

func (a *scriptedAdapter) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	return domain.Order{}, a.next()
}

func (a *scriptedAdapter) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, a.next()
}

func (a *scriptedAdapter) GetAccountBalance(ctx context.Context) (domain.Balance, error) {
	a.mu.Lock()
	a.balance++
	a.mu.Unlock()
	return domain.Balance{Asset: "USD", Total: decimal.NewFromInt(1000)}, a.next()
}

func (a *scriptedAdapter) SubscribeFills(cb execution.FillCallback) {}

func fastConfig() Config {
	cfg := DefaultConfig("test")
	cfg.InitialBackoff = 5 * time.Millisecond
	cfg.CircuitTimeout = 50 * time.Millisecond
	return cfg
}

func connErr() error {
	return &domain.ConnectionError{Venue: "test", Cause: errors.New("refused")}
}

func TestManager_RetriesTransientThenSucceeds(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{connErr(), connErr()}}
	m := NewManager(adapter, fastConfig(), nil)

	out, err := m.SubmitOrder(context.Background(), domain.Order{ID: "o1", Symbol: "BTCUSD"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if out.Status != domain.StatusSubmitted {
		t.Errorf("expected SUBMITTED, got %s", out.Status)
	}
	if adapter.callCount() != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", adapter.callCount())
	}
	if m.Metrics().DLQSize != 0 {
		t.Error("successful request must not be dead-lettered")
	}
}

func TestManager_ExhaustedRetriesDeadLetterExactlyOnce(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{connErr(), connErr(), connErr(), connErr(), connErr()}}
	cfg := fastConfig()
	cfg.MaxRetries = 3
	cfg.FailureThreshold = 100 // keep the breaker out of this test
	m := NewManager(adapter, cfg, nil)

	start := time.Now()
	_, err := m.SubmitOrder(context.Background(), domain.Order{ID: "o1", Symbol: "BTCUSD"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected surfaced error after exhausted retries")
	}
	var ce *domain.ConnectionError
	if !errors.As(err, &ce) {
		t.Errorf("surfaced error should wrap the last failure, got %v", err)
	}
	if adapter.callCount() != 4 {
		t.Errorf("expected exactly 4 attempts (1 + max_retries), got %d", adapter.callCount())
	}

	// Delays 5ms, 10ms, 20ms.
	if elapsed < 35*time.Millisecond {
		t.Errorf("backoff schedule not honored: elapsed %s", elapsed)
	}

	entries := m.DLQ().Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 DLQ entry, got %d", len(entries))
	}
	if entries[0].Op != "SubmitOrder" || entries[0].OrderID != "o1" {
		t.Errorf("DLQ entry mislabeled: %+v", entries[0])
	}
	if entries[0].Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", entries[0].Attempts)
	}
}

func TestManager_PermanentErrorNeverRetriedOrDeadLettered(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{
		&domain.RejectedOrderError{OrderID: "o1", Reason: "lot size"},
	}}
	m := NewManager(adapter, fastConfig(), nil)

	_, err := m.SubmitOrder(context.Background(), domain.Order{ID: "o1", Symbol: "BTCUSD"})

	var roe *domain.RejectedOrderError
	if !errors.As(err, &roe) {
		t.Fatalf("expected RejectedOrderError, got %v", err)
	}
	if adapter.callCount() != 1 {
		t.Errorf("permanent error must be single-attempt, got %d calls", adapter.callCount())
	}
	if m.DLQ().Size() != 0 {
		t.Error("permanent errors must not be dead-lettered")
	}
	if m.Metrics().RetriesAttempts != 0 {
		t.Error("zero retry attempts expected for a permanent error")
	}
}

func TestManager_CircuitOpensAndRecovers(t *testing.T) {
	script := make([]error, 5)
	for i := range script {
		script[i] = connErr()
	}
	adapter := &scriptedAdapter{script: script}
	cfg := fastConfig()
	cfg.MaxRetries = 0 // one attempt per call
	cfg.FailureThreshold = 5
	cfg.SuccessThreshold = 2
	m := NewManager(adapter, cfg, nil)

	ctx := context.Background()
	order := domain.Order{ID: "o1", Symbol: "BTCUSD"}

	for i := 0; i < 5; i++ {
		if _, err := m.SubmitOrder(ctx, order); err == nil {
			t.Fatalf("call %d should fail", i+1)
		}
	}
	if got := m.Metrics().CircuitState; got != "OPEN" {
		t.Fatalf("expected OPEN after 5 failures, got %s", got)
	}

	// 6th call rejected without touching the adapter.
	before := adapter.callCount()
	_, err := m.SubmitOrder(ctx, order)
	var coe *domain.CircuitOpenError
	if !errors.As(err, &coe) {
		t.Fatalf("expected CircuitOpenError, got %v", err)
	}
	if adapter.callCount() != before {
		t.Error("open circuit must not invoke the adapter")
	}

	// After the cooldown the next call is allowed through (half-open)
	// and consecutive successes restore CLOSED.
	time.Sleep(60 * time.Millisecond)
	if _, err := m.SubmitOrder(ctx, order); err != nil {
		t.Fatalf("half-open probe should pass: %v", err)
	}
	if _, err := m.SubmitOrder(ctx, order); err != nil {
		t.Fatalf("second probe should pass: %v", err)
	}
	if got := m.Metrics().CircuitState; got != "CLOSED" {
		t.Errorf("expected CLOSED after recovery, got %s", got)
	}
}

func TestManager_ContextCancelAbortsBackoff(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{connErr(), connErr(), connErr(), connErr()}}
	cfg := fastConfig()
	cfg.InitialBackoff = 10 * time.Second // would block without cancellation
	m := NewManager(adapter, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.SubmitOrder(ctx, domain.Order{ID: "o1"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation did not abort the backoff sleep")
	}

	if adapter.callCount() != 1 {
		t.Errorf("expected 1 attempt before cancellation, got %d", adapter.callCount())
	}
}

func TestManager_HealthProbeFeedsBreaker(t *testing.T) {
	script := make([]error, 3)
	for i := range script {
		script[i] = connErr()
	}
	adapter := &scriptedAdapter{script: script}
	cfg := fastConfig()
	cfg.FailureThreshold = 3
	m := NewManager(adapter, cfg, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.probe(ctx)
	}

	if got := m.Metrics().CircuitState; got != "OPEN" {
		t.Errorf("probes alone should trip the breaker, got %s", got)
	}

	// Recovery: cooldown elapses, successful probes close it again.
	time.Sleep(60 * time.Millisecond)
	m.probe(ctx)
	m.probe(ctx)
	if got := m.Metrics().CircuitState; got != "CLOSED" {
		t.Errorf("successful probes should close the breaker, got %s", got)
	}
}

func TestManager_MetricsSnapshot(t *testing.T) {
	adapter := &scriptedAdapter{script: []error{connErr()}}
	cfg := fastConfig()
	cfg.MaxRetries = 0
	m := NewManager(adapter, cfg, nil)

	_, _ = m.SubmitOrder(context.Background(), domain.Order{ID: "o1"})

	got := m.Metrics()
	if got.FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", got.FailureCount)
	}
	if got.RecentFailures != 1 {
		t.Errorf("expected 1 recent failure, got %d", got.RecentFailures)
	}
	if got.TotalFailures != 1 {
		t.Errorf("expected 1 total failure, got %d", got.TotalFailures)
	}
	if got.DLQSize != 1 {
		t.Errorf("expected DLQ size 1, got %d", got.DLQSize)
	}
}
