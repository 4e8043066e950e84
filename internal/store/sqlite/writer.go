// Package sqlite stores enriched candles in SQLite and reads them back as a
// pipeline source.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"candlepipe/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBatchSize = 100

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath    string // path to SQLite database file, e.g. "data/candles.db"
	BatchSize int    // candles per transaction; <= 0 uses the default
}

// Writer persists candles with transaction batching. Persist buffers and
// Flush commits what is left, so a run must end with a Flush.
type Writer struct {
	mu        sync.Mutex
	db        *sql.DB
	batch     []*model.Candle
	batchSize int
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, batchSize: size, batch: make([]*model.Candle, 0, size)}, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol      TEXT    NOT NULL,
			exchange    TEXT    NOT NULL DEFAULT '',
			timespan    TEXT    NOT NULL,
			ts          INTEGER NOT NULL,
			open        INTEGER NOT NULL,
			high        INTEGER NOT NULL,
			low         INTEGER NOT NULL,
			close       INTEGER NOT NULL,
			volume      INTEGER,
			attachments TEXT    NOT NULL DEFAULT '{}',
			updated_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			PRIMARY KEY (symbol, timespan, ts)
		);

		CREATE INDEX IF NOT EXISTS idx_candles_span_ts ON candles(timespan, ts);
	`)
	return err
}

// Persist queues c and commits once a full batch is queued. The candle is
// written with INSERT OR REPLACE, so re-running a pipeline is idempotent.
func (w *Writer) Persist(ctx context.Context, c *model.Candle) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, c)
	if len(w.batch) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush commits all queued candles.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(ctx)
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	start := time.Now()
	err := w.insertBatch(ctx, w.batch)
	n := len(w.batch)
	w.batch = w.batch[:0]
	if err != nil {
		return fmt.Errorf("sqlite batch insert (%d candles): %w", n, err)
	}
	log.Printf("[sqlite] committed %d candles in %v", n, time.Since(start))
	return nil
}

// insertBatch inserts a batch of candles in a single transaction.
func (w *Writer) insertBatch(ctx context.Context, candles []*model.Candle) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, exchange, timespan, ts, open, high, low, close, volume, attachments)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		att, err := json.Marshal(c.Attachments)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("encode attachments %s: %w", c.Key(), err)
		}
		_, err = stmt.ExecContext(ctx, c.Symbol, c.Exchange, string(c.Timespan), c.TS.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, string(att))
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// LastTimestamp returns the newest stored candle time for symbol, or the
// zero time if none is stored.
func (w *Writer) LastTimestamp(ctx context.Context, symbol string, span model.Timespan) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND timespan = ?`,
		symbol, string(span),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

// ResumePoint implements model.ResumeReader. Queued candles are committed
// first so the answer reflects everything persisted so far.
func (w *Writer) ResumePoint(ctx context.Context, symbol string, span model.Timespan) (time.Time, *model.Candle, error) {
	if err := w.Flush(ctx); err != nil {
		return time.Time{}, nil, err
	}
	last, err := w.LastTimestamp(ctx, symbol, span)
	if err != nil || last.IsZero() {
		return last, nil, err
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT symbol, exchange, timespan, ts, open, high, low, close, volume, attachments
		FROM candles WHERE symbol = ? AND timespan = ? AND ts < ?
		ORDER BY ts DESC LIMIT 1
	`, symbol, string(span), last.Unix())
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("sqlite resume point %s: %w", symbol, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return last, nil, rows.Err()
	}
	prev, err := scanCandle(rows)
	if err != nil {
		return time.Time{}, nil, err
	}
	return last, prev, nil
}

// Close flushes queued candles and closes the database.
func (w *Writer) Close() error {
	if err := w.Flush(context.Background()); err != nil {
		log.Printf("[sqlite] flush on close: %v", err)
	}
	return w.db.Close()
}
