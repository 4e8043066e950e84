// Package history turns broker candle history into a pipeline source. Each
// instrument is fetched lazily, window by window, only once the previous
// one has been consumed.
package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"candlepipe/internal/markethours"
	"candlepipe/internal/model"
	"candlepipe/internal/universe"
	"candlepipe/pkg/smartconnect"
)

// ErrUnsupportedTimespan is returned for timespans the broker cannot serve.
var ErrUnsupportedTimespan = errors.New("history: unsupported timespan")

// Fetcher is the subset of the broker client the source needs.
type Fetcher interface {
	GetCandles(ctx context.Context, p smartconnect.CandleParams) ([]smartconnect.Bar, error)
}

// Config selects what to fetch.
type Config struct {
	Instruments []universe.Instrument
	Timespan    model.Timespan
	From        time.Time
	// To is exclusive. Zero stops before the bar that is still forming.
	To time.Time
	// Start overrides From per symbol when it is later, e.g. to continue
	// from the newest stored bar.
	Start map[string]time.Time

	// Window caps the range of one request. Zero uses the broker limit
	// for the timespan.
	Window time.Duration
	// MinInterval spaces consecutive requests. Zero disables pacing.
	MinInterval time.Duration
}

// Per-request range limits of the historical endpoint.
var maxWindow = map[model.Timespan]time.Duration{
	model.Minute: 30 * 24 * time.Hour,
	model.Hour:   400 * 24 * time.Hour,
	model.Day:    2000 * 24 * time.Hour,
}

var intervals = map[model.Timespan]smartconnect.Interval{
	model.Minute: smartconnect.OneMinute,
	model.Hour:   smartconnect.OneHour,
	model.Day:    smartconnect.OneDay,
}

// Source yields every candle of the first instrument, then the next, and so
// on. Within an instrument candles ascend by TS.
type Source struct {
	fetcher  Fetcher
	cfg      Config
	interval smartconnect.Interval

	inst     int       // current instrument index
	cursor   time.Time // start of the next window for the current instrument
	buf      []*model.Candle
	lastTS   time.Time
	lastCall time.Time
	fetched  int
}

// NewSource validates cfg and returns a source positioned at the first
// instrument.
func NewSource(f Fetcher, cfg Config) (*Source, error) {
	iv, ok := intervals[cfg.Timespan]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTimespan, cfg.Timespan)
	}
	if len(cfg.Instruments) == 0 {
		return nil, universe.ErrEmpty
	}
	if cfg.To.IsZero() {
		cfg.To = markethours.CompletedBefore(time.Now(), cfg.Timespan).UTC()
	}
	if !cfg.From.Before(cfg.To) {
		return nil, fmt.Errorf("history: empty range %s..%s", cfg.From.Format(time.RFC3339), cfg.To.Format(time.RFC3339))
	}
	if lim := maxWindow[cfg.Timespan]; cfg.Window <= 0 || cfg.Window > lim {
		cfg.Window = lim
	}
	s := &Source{fetcher: f, cfg: cfg, interval: iv}
	s.cursor = s.start()
	return s, nil
}

// Next implements pipeline.Source.
func (s *Source) Next(ctx context.Context) (*model.Candle, error) {
	for len(s.buf) == 0 {
		if s.inst >= len(s.cfg.Instruments) {
			return nil, io.EOF
		}
		if !s.cursor.Before(s.cfg.To) {
			s.advance()
			continue
		}
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	c := s.buf[0]
	s.buf = s.buf[1:]
	return c, nil
}

// Fetched reports the number of requests made so far.
func (s *Source) Fetched() int { return s.fetched }

func (s *Source) advance() {
	s.inst++
	s.lastTS = time.Time{}
	if s.inst < len(s.cfg.Instruments) {
		s.cursor = s.start()
	}
}

// start is where the current instrument's first window begins.
func (s *Source) start() time.Time {
	from := s.cfg.From
	if t, ok := s.cfg.Start[s.cfg.Instruments[s.inst].Symbol]; ok && t.After(from) {
		from = t
	}
	return from
}

func (s *Source) fill(ctx context.Context) error {
	in := s.cfg.Instruments[s.inst]
	end := s.cursor.Add(s.cfg.Window)
	if end.After(s.cfg.To) {
		end = s.cfg.To
	}

	if err := s.pace(ctx); err != nil {
		return err
	}
	bars, err := s.fetcher.GetCandles(ctx, smartconnect.CandleParams{
		Exchange:    in.Exchange,
		SymbolToken: in.Token,
		Interval:    s.interval,
		From:        s.cursor,
		To:          end,
	})
	s.fetched++
	if err != nil {
		return fmt.Errorf("history: %s %s..%s: %w", in.Symbol, s.cursor.Format("2006-01-02"), end.Format("2006-01-02"), err)
	}

	for _, b := range bars {
		c := toCandle(in, s.cfg.Timespan, b)
		// Adjacent windows share their boundary bar.
		if !c.TS.After(s.lastTS) || !c.TS.Before(s.cfg.To) {
			continue
		}
		s.lastTS = c.TS
		s.buf = append(s.buf, c)
	}
	log.Printf("[history] %s: %d bars %s..%s", in.Symbol, len(bars), s.cursor.Format("2006-01-02"), end.Format("2006-01-02"))
	s.cursor = end
	return nil
}

func (s *Source) pace(ctx context.Context) error {
	if s.cfg.MinInterval <= 0 || s.lastCall.IsZero() {
		s.lastCall = time.Now()
		return nil
	}
	wait := s.cfg.MinInterval - time.Since(s.lastCall)
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	s.lastCall = time.Now()
	return nil
}

// toCandle converts a broker bar (rupees) into a cents-denominated candle.
func toCandle(in universe.Instrument, span model.Timespan, b smartconnect.Bar) *model.Candle {
	return &model.Candle{
		Symbol:   in.Symbol,
		Exchange: in.Exchange,
		Timespan: span,
		TS:       b.TS.UTC(),
		Open:     cents(b.Open),
		High:     cents(b.High),
		Low:      cents(b.Low),
		Close:    cents(b.Close),
		Volume:   b.Volume,
	}
}

func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}
