package backtest

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/storage"
)

// Replayer rebuilds position state from a recorded session journal.
// Replaying the fill log through the same netting rule the live path
// uses makes a session auditable after the fact: the recomputed books
// must match what the OMS reported while trading.
type Replayer struct {
	journal *storage.Journal
}

// NewReplayer opens the journal at dbPath for replay.
func NewReplayer(dbPath string) (*Replayer, error) {
	journal, err := storage.OpenJournal(dbPath)
	if err != nil {
		return nil, err
	}
	return &Replayer{journal: journal}, nil
}

// Close releases the underlying journal.
func (r *Replayer) Close() error {
	return r.journal.Close()
}

// SessionReport summarizes one replayed session.
type SessionReport struct {
	Fills           int
	TotalNotional   decimal.Decimal
	TotalCommission decimal.Decimal
	Positions       []domain.Position
}

// Replay runs every journaled fill through the position netting rule in
// recorded order and returns the resulting books.
func (r *Replayer) Replay(ctx context.Context) (*SessionReport, error) {
	fills, err := r.journal.Fills(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read fills: %w", err)
	}

	report := &SessionReport{}
	positions := make(map[string]*domain.Position)

	for _, f := range fills {
		pos, ok := positions[f.Symbol]
		if !ok {
			pos = &domain.Position{Symbol: f.Symbol}
			positions[f.Symbol] = pos
		}
		pos.ApplyFill(f)

		report.Fills++
		report.TotalNotional = report.TotalNotional.Add(f.Notional())
		report.TotalCommission = report.TotalCommission.Add(f.Commission)
	}

	for _, pos := range positions {
		report.Positions = append(report.Positions, *pos)
	}
	sort.Slice(report.Positions, func(i, j int) bool {
		return report.Positions[i].Symbol < report.Positions[j].Symbol
	})
	return report, nil
}
