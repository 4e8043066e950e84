package pipeline

import (
	"context"
	"errors"
	"io"

	"candlepipe/internal/model"
)

// Source produces a finite, non-restartable sequence of candles, ascending
// by TS within each symbol. Next returns io.EOF once the sequence is
// exhausted; any other error is fatal to the run.
type Source interface {
	Next(ctx context.Context) (*model.Candle, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (*model.Candle, error)

func (f SourceFunc) Next(ctx context.Context) (*model.Candle, error) { return f(ctx) }

// SliceSource yields candles from memory in slice order.
type SliceSource struct {
	candles []*model.Candle
	pos     int
}

// NewSliceSource yields the given candles in order.
func NewSliceSource(candles ...*model.Candle) *SliceSource {
	return &SliceSource{candles: candles}
}

// FromCandles yields pointers into cs, so stage mutations are visible in cs.
func FromCandles(cs []model.Candle) *SliceSource {
	ptrs := make([]*model.Candle, len(cs))
	for i := range cs {
		ptrs[i] = &cs[i]
	}
	return &SliceSource{candles: ptrs}
}

func (s *SliceSource) Next(ctx context.Context) (*model.Candle, error) {
	if s.pos >= len(s.candles) {
		return nil, io.EOF
	}
	c := s.candles[s.pos]
	s.pos++
	return c, nil
}

// Drain reads src to exhaustion.
func Drain(ctx context.Context, src Source) ([]*model.Candle, error) {
	var out []*model.Candle
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		c, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
}

// ReverseSource yields the complete underlying sequence back to front.
//
// The wrapped source is read to exhaustion on the first call to Next, so
// memory grows with the length of the sequence. Do not wrap unbounded
// sources.
type ReverseSource struct {
	src    Source
	buf    []*model.Candle
	pos    int
	loaded bool
	err    error
}

// NewReverseSource wraps src.
func NewReverseSource(src Source) *ReverseSource {
	return &ReverseSource{src: src}
}

func (r *ReverseSource) Next(ctx context.Context) (*model.Candle, error) {
	if !r.loaded {
		r.loaded = true
		r.buf, r.err = Drain(ctx, r.src)
		r.pos = len(r.buf)
		if r.err != nil {
			r.buf = nil
			r.pos = 0
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.pos == 0 {
		return nil, io.EOF
	}
	r.pos--
	c := r.buf[r.pos]
	r.buf[r.pos] = nil
	return c, nil
}

// Buffered reports how many candles are still held in memory.
func (r *ReverseSource) Buffered() int { return r.pos }
