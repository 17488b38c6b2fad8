package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/glebarez/go-sqlite"

	"github.com/CrisisCore-Systems/Autotrader-sub002/internal/domain"
)

// Journal is the SQLite session audit trail: every reconciled fill and
// every order state transition is appended here. It is an audit log,
// not the source of truth; the OMS's in-memory books remain
// authoritative for the session.
//
// A nil *Journal is valid and turns every call into a no-op, so the
// subsystem runs without persistence when none is configured.
type Journal struct {
	db *sql.DB
}

// OpenJournal creates the session journal at dbPath with WAL mode enabled.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Configure SQLite for append-heavy session logging
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fills (
			fill_id TEXT PRIMARY KEY,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty TEXT NOT NULL,
			price TEXT NOT NULL,
			commission TEXT NOT NULL,
			is_maker INTEGER NOT NULL,
			ts INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create fills table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS order_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create order_events table: %w", err)
	}

	return &Journal{db: db}, nil
}

// RecordFill appends a reconciled fill.
func (j *Journal) RecordFill(ctx context.Context, f domain.Fill) error {
	if j == nil {
		return nil
	}

	isMaker := 0
	if f.IsMaker {
		isMaker = 1
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO fills (fill_id, order_id, symbol, side, qty, price, commission, is_maker, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.OrderID, f.Symbol, string(f.Side),
		f.Qty.String(), f.Price.String(), f.Commission.String(),
		isMaker, f.Timestamp.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}
	return nil
}

// RecordOrderEvent appends an order state transition.
func (j *Journal) RecordOrderEvent(ctx context.Context, o domain.Order, detail string) error {
	if j == nil {
		return nil
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO order_events (order_id, symbol, status, detail, ts) VALUES (?, ?, ?, ?, ?)",
		o.ID, o.Symbol, string(o.Status), detail, time.Now().UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order event: %w", err)
	}
	return nil
}

// Fills loads fills recorded this session, all symbols when symbol is empty.
func (j *Journal) Fills(ctx context.Context, symbol string) ([]domain.Fill, error) {
	if j == nil {
		return nil, nil
	}

	query := "SELECT fill_id, order_id, symbol, side, qty, price, commission, is_maker, ts FROM fills"
	args := []any{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY ts ASC"

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side string
		var qty, price, commission string
		var isMaker int
		var ts int64

		if err := rows.Scan(&f.ID, &f.OrderID, &f.Symbol, &side, &qty, &price, &commission, &isMaker, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}

		f.Side = domain.Side(side)
		if f.Qty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("corrupt qty %q: %w", qty, err)
		}
		if f.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("corrupt price %q: %w", price, err)
		}
		if f.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("corrupt commission %q: %w", commission, err)
		}
		f.IsMaker = isMaker == 1
		f.Timestamp = time.UnixMicro(ts)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// OrderEvent is one journaled state transition.
type OrderEvent struct {
	Seq     int64
	OrderID string
	Symbol  string
	Status  domain.Status
	Detail  string
	At      time.Time
}

// OrderEvents loads the transition history for one order.
func (j *Journal) OrderEvents(ctx context.Context, orderID string) ([]OrderEvent, error) {
	if j == nil {
		return nil, nil
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT seq, order_id, symbol, status, detail, ts FROM order_events WHERE order_id = ? ORDER BY seq ASC",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	defer rows.Close()

	var events []OrderEvent
	for rows.Next() {
		var ev OrderEvent
		var status string
		var ts int64
		if err := rows.Scan(&ev.Seq, &ev.OrderID, &ev.Symbol, &status, &ev.Detail, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan order event: %w", err)
		}
		ev.Status = domain.Status(status)
		ev.At = time.UnixMicro(ts)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}
