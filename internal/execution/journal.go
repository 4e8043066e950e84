package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id     TEXT NOT NULL,
		run_id       TEXT,
		strategy     TEXT NOT NULL,
		direction    TEXT NOT NULL,
		side         TEXT NOT NULL,
		symbol       TEXT NOT NULL,
		qty          INTEGER NOT NULL,
		price        INTEGER NOT NULL,
		slippage     INTEGER DEFAULT 0,
		realized_pnl INTEGER DEFAULT 0,
		reason       TEXT,
		filled_at    TEXT NOT NULL,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(ctx context.Context, fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO trades (order_id, run_id, strategy, direction, side, symbol, qty, price, slippage, realized_pnl, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.RunID,
		fill.Signal.Strategy,
		string(fill.Signal.Direction),
		string(fill.Side),
		fill.Signal.Symbol,
		fill.Qty,
		fill.FillPrice,
		fill.Slippage,
		fill.RealizedPnL,
		fill.Signal.Reason,
		fill.FilledAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", fill.OrderID, err)
	}
	return nil
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"order_id"`
	RunID       string `json:"run_id"`
	Strategy    string `json:"strategy"`
	Direction   string `json:"direction"`
	Side        string `json:"side"`
	Symbol      string `json:"symbol"`
	Qty         int64  `json:"qty"`
	Price       int64  `json:"price"`
	Slippage    int64  `json:"slippage"`
	RealizedPnL int64  `json:"realized_pnl"`
	Reason      string `json:"reason"`
	FilledAt    string `json:"filled_at"`
}

// Trades returns the last limit trades, newest first.
func (j *Journal) Trades(ctx context.Context, limit int) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, order_id, COALESCE(run_id, ''), strategy, direction, side, symbol, qty, price,
		        slippage, realized_pnl, COALESCE(reason, ''), filled_at
		 FROM trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.OrderID, &t.RunID, &t.Strategy, &t.Direction, &t.Side, &t.Symbol,
			&t.Qty, &t.Price, &t.Slippage, &t.RealizedPnL, &t.Reason, &t.FilledAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
