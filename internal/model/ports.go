package model

import (
	"context"
	"time"
)

// These interfaces decouple the pipeline builders from concrete storage
// implementations (SQLite, Redis).

// CandlePersister writes one enriched candle. Implementations must be
// idempotent on the candle identity.
type CandlePersister interface {
	Persist(ctx context.Context, c *Candle) error
}

// CandleQuery selects stored candles.
type CandleQuery struct {
	Symbols  []string
	Timespan Timespan
	From     time.Time // inclusive
	To       time.Time // exclusive; zero means unbounded
}

// ResumeReader reports where a symbol's stored history ends so a loader
// can continue from there instead of from the lookback start.
type ResumeReader interface {
	// ResumePoint returns the time of the newest stored candle, which the
	// loader fetches again since it may have been stored while still
	// forming, and the newest stored candle strictly before that time.
	// Both are zero when nothing is stored.
	ResumePoint(ctx context.Context, symbol string, span Timespan) (time.Time, *Candle, error)
}
