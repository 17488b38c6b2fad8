package execution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
)

// MockAdapter is a safe BrokerAdapter that only logs. Orders are
// acknowledged as SUBMITTED but never fill; useful for dry runs of the
// orchestration path without a venue behind it.
type MockAdapter struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	callbacks []FillCallback
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{orders: make(map[string]domain.Order)}
}

func (m *MockAdapter) Connect(ctx context.Context) error {
	slog.Info("MOCK: connect")
	return nil
}

func (m *MockAdapter) Disconnect() {
	slog.Info("MOCK: disconnect")
}

func (m *MockAdapter) SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	slog.Info("MOCK: submit order",
		slog.String("id", order.ID),
		slog.String("symbol", order.Symbol),
		slog.String("side", string(order.Side)),
		slog.String("qty", order.RequestedQty.String()))

	order.Status = domain.StatusSubmitted
	m.mu.Lock()
	m.orders[order.ID] = order
	m.mu.Unlock()
	return order, nil
}

func (m *MockAdapter) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	slog.Info("MOCK: cancel order", slog.String("id", orderID))
	return true, nil
}

func (m *MockAdapter) ModifyOrder(ctx context.Context, orderID string, changes OrderChanges) (domain.Order, error) {
	slog.Info("MOCK: modify order", slog.String("id", orderID))
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockAdapter) GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockAdapter) GetPositions(ctx context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (m *MockAdapter) GetAccountBalance(ctx context.Context) (domain.Balance, error) {
	return domain.Balance{Asset: "USD"}, nil
}

func (m *MockAdapter) SubscribeFills(cb FillCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}
