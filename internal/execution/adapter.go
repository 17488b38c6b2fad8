package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
)

// FillCallback receives execution reports pushed by an adapter.
// The adapter may invoke it from a different goroutine than the caller's;
// delivery is at-least-once per fill with no ordering guarantee across
// symbols.
type FillCallback func(domain.Fill)

// OrderChanges describes an amend request. Zero-valued fields are
// left unchanged.
type OrderChanges struct {
	Qty        decimal.Decimal
	LimitPrice decimal.Decimal
}

// BrokerAdapter is the contract every venue integration must satisfy.
// It abstracts away the difference between the in-process simulator and
// real exchanges; wire protocol, authentication, and venue rate limits
// live behind this seam.
//
// Errors returned from these methods must come from the domain taxonomy
// so callers can distinguish transient failures (connectivity, rate
// limit, timeout) from permanent ones (rejected order, invalid
// parameters, insufficient balance). Only transient errors are retried.
type BrokerAdapter interface {
	// Connect establishes the venue session. Idempotent.
	Connect(ctx context.Context) error

	// Disconnect closes the session best-effort. Never fails.
	Disconnect()

	// SubmitOrder sends a new order and returns it with the
	// venue-assigned identifier merged in.
	SubmitOrder(ctx context.Context, order domain.Order) (domain.Order, error)

	// CancelOrder requests cancellation. Returns false without error if
	// the order is already terminal.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// ModifyOrder amends a resting order. Adapters without a native
	// amend may cancel and replace internally.
	ModifyOrder(ctx context.Context, orderID string, changes OrderChanges) (domain.Order, error)

	// GetOrderStatus polls the venue's view of an order, used for
	// reconciliation when push notifications are suspected stale.
	GetOrderStatus(ctx context.Context, orderID string) (domain.Order, error)

	// GetPositions returns the venue's account positions.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccountBalance returns the quote-asset account snapshot.
	GetAccountBalance(ctx context.Context) (domain.Balance, error)

	// SubscribeFills registers a push-based fill listener.
	SubscribeFills(cb FillCallback)
}
