package oms

import (
	"context"
	"log/slog"
	"time"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
)

// StartTimeoutMonitor launches the background loop that expires stale
// orders. It stops when ctx is cancelled.
func (m *Manager) StartTimeoutMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireStale(ctx, time.Now())
			}
		}
	}()
}

// expireStale transitions every zero-fill order older than the order
// timeout to EXPIRED. A venue cancel is attempted first, but the local
// transition does not wait on acknowledgment: an order the venue never
// confirms must not hold an open-order slot forever. Orders with
// partial fills are left to complete or be cancelled explicitly.
func (m *Manager) expireStale(ctx context.Context, now time.Time) {
	m.mu.Lock()
	var stale []string
	for id, o := range m.active {
		if o.Status != domain.StatusSubmitted {
			continue
		}
		if !o.FilledQty.IsZero() {
			continue
		}
		if now.Sub(o.CreatedAt) <= m.cfg.OrderTimeout {
			continue
		}
		stale = append(stale, id)
	}
	m.mu.Unlock()

	for _, id := range stale {
		if _, err := m.res.CancelOrder(ctx, id); err != nil {
			slog.Warn("cancel for expiring order failed",
				slog.String("order_id", id),
				slog.Any("error", err))
		}
		m.transitionTerminal(ctx, id, domain.StatusExpired, "timed out")
		m.prom.IncOrdersExpired()
		slog.Info("order expired", slog.String("order_id", id))
	}
}
