package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"candlepipe/internal/model"
)

// Reader provides read-only access to stored candles.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// ReadCandles loads every candle matching q, ordered by TS then symbol.
func (r *Reader) ReadCandles(ctx context.Context, q model.CandleQuery) ([]*model.Candle, error) {
	rows, err := r.query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []*model.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Source streams the candles matching q one row at a time. The query runs on
// the first call to Next.
func (r *Reader) Source(q model.CandleQuery) *Source {
	return &Source{r: r, q: q}
}

func (r *Reader) query(ctx context.Context, q model.CandleQuery) (*sql.Rows, error) {
	var (
		where []string
		args  []any
	)
	if q.Timespan != "" {
		where = append(where, "timespan = ?")
		args = append(args, string(q.Timespan))
	}
	if len(q.Symbols) > 0 {
		where = append(where, "symbol IN (?"+strings.Repeat(", ?", len(q.Symbols)-1)+")")
		for _, s := range q.Symbols {
			args = append(args, s)
		}
	}
	if !q.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.From.Unix())
	}
	if !q.To.IsZero() {
		where = append(where, "ts < ?")
		args = append(args, q.To.Unix())
	}

	stmt := `SELECT symbol, exchange, timespan, ts, open, high, low, close, volume, attachments FROM candles`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ts ASC, symbol ASC"

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	return rows, nil
}

func scanCandle(rows *sql.Rows) (*model.Candle, error) {
	var (
		c      model.Candle
		span   string
		tsUnix int64
		volume sql.NullInt64
		att    string
	)
	if err := rows.Scan(&c.Symbol, &c.Exchange, &span, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &volume, &att); err != nil {
		return nil, fmt.Errorf("sqlite scan candles: %w", err)
	}
	c.Timespan = model.Timespan(span)
	c.TS = time.Unix(tsUnix, 0).UTC()
	c.Volume = volume.Int64
	if att != "" {
		if err := json.Unmarshal([]byte(att), &c.Attachments); err != nil {
			return nil, fmt.Errorf("sqlite decode %s: %w", c.Key(), err)
		}
	}
	return &c, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

// Source is a lazy pipeline source over a candle query.
type Source struct {
	r    *Reader
	q    model.CandleQuery
	rows *sql.Rows
	done bool
}

// Next returns the next stored candle or io.EOF.
func (s *Source) Next(ctx context.Context) (*model.Candle, error) {
	if s.done {
		return nil, io.EOF
	}
	if s.rows == nil {
		rows, err := s.r.query(ctx, s.q)
		if err != nil {
			s.done = true
			return nil, err
		}
		s.rows = rows
	}
	if !s.rows.Next() {
		err := s.rows.Err()
		s.Close()
		if err != nil {
			return nil, fmt.Errorf("sqlite iterate candles: %w", err)
		}
		return nil, io.EOF
	}
	c, err := scanCandle(s.rows)
	if err != nil {
		s.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the cursor. It is safe to call more than once.
func (s *Source) Close() error {
	s.done = true
	if s.rows == nil {
		return nil
	}
	err := s.rows.Close()
	s.rows = nil
	return err
}
