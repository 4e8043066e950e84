// Package agg rolls candles of a finer timespan up into a coarser one, e.g.
// daily bars into weekly bars. It wraps a pipeline source and is itself a
// source.
package agg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

// ErrNotCoarser is returned when the target timespan is not coarser than
// the candles being aggregated.
var ErrNotCoarser = errors.New("agg: target timespan must be coarser than input")

// candleState holds the in-progress candle for one symbol in its bucket.
type candleState struct {
	bucket time.Time
	candle model.Candle
}

// Aggregator consumes candles in TS order per symbol and emits one candle
// per (symbol, bucket) once the bucket rolls over or the input ends.
type Aggregator struct {
	src    pipeline.Source
	target model.Timespan
	loc    *time.Location

	states map[string]*candleState
	order  []string // symbols in order of first appearance, for the final flush
	ready  []*model.Candle
	done   bool

	dropped int
	// OnDropped is called for every late candle, if set.
	OnDropped func(c *model.Candle)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLocation sets the zone whose calendar defines bucket boundaries. The
// exchange zone must be used for bars stamped at local midnight.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) { a.loc = loc }
}

// New wraps src. Candles are bucketed by Bucket(ts, target, loc), UTC unless
// WithLocation is given.
func New(src pipeline.Source, target model.Timespan, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:    src,
		target: target,
		loc:    time.UTC,
		states: make(map[string]*candleState),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Bucket returns the start of the target bar containing ts, computed on the
// calendar of loc and returned in UTC. Weeks start on Monday.
func Bucket(ts time.Time, target model.Timespan, loc *time.Location) time.Time {
	t := ts.In(loc)
	y, m, d := t.Date()
	var start time.Time
	switch target {
	case model.Week:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		start = day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case model.Day:
		start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	case model.Hour:
		start = time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	default:
		start = time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
	}
	return start.UTC()
}

// Dropped returns the number of late candles discarded.
func (a *Aggregator) Dropped() int { return a.dropped }

// Next implements pipeline.Source.
func (a *Aggregator) Next(ctx context.Context) (*model.Candle, error) {
	for len(a.ready) == 0 {
		if a.done {
			return nil, io.EOF
		}
		c, err := a.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			a.flushAll()
			a.done = true
			continue
		}
		if err != nil {
			return nil, err
		}
		if err := a.add(c); err != nil {
			return nil, err
		}
	}
	c := a.ready[0]
	a.ready = a.ready[1:]
	return c, nil
}

// Close closes the wrapped source if it is closable.
func (a *Aggregator) Close() error {
	if cl, ok := a.src.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (a *Aggregator) add(c *model.Candle) error {
	if c.Timespan.Duration() >= a.target.Duration() {
		return fmt.Errorf("%w: %s -> %s", ErrNotCoarser, c.Timespan, a.target)
	}
	bucket := Bucket(c.TS, a.target, a.loc)
	state, exists := a.states[c.Symbol]

	if exists && bucket.Before(state.bucket) {
		// Late candle: belongs to a bucket already closed.
		a.dropped++
		log.Printf("[agg] late candle %s dropped (bucket %s open)", c.Key(), state.bucket.Format(time.RFC3339))
		if a.OnDropped != nil {
			a.OnDropped(c)
		}
		return nil
	}

	if exists && bucket.After(state.bucket) {
		a.emit(state)
		exists = false
	}

	if !exists {
		if state == nil {
			a.order = append(a.order, c.Symbol)
		}
		a.states[c.Symbol] = &candleState{
			bucket: bucket,
			candle: model.Candle{
				Symbol:   c.Symbol,
				Exchange: c.Exchange,
				Timespan: a.target,
				TS:       bucket,
				Open:     c.Open,
				High:     c.High,
				Low:      c.Low,
				Close:    c.Close,
				Volume:   c.Volume,
			},
		}
		return nil
	}

	// Same bucket: update OHLCV.
	agg := &state.candle
	if c.High > agg.High {
		agg.High = c.High
	}
	if c.Low < agg.Low {
		agg.Low = c.Low
	}
	agg.Close = c.Close
	agg.Volume += c.Volume
	return nil
}

func (a *Aggregator) emit(state *candleState) {
	c := state.candle
	a.ready = append(a.ready, &c)
}

// flushAll emits every open bucket in order of first appearance.
func (a *Aggregator) flushAll() {
	for _, sym := range a.order {
		if state, ok := a.states[sym]; ok {
			a.emit(state)
			delete(a.states, sym)
		}
	}
}
