package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"candlepipe/internal/model"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func makeCandle(symbol string, day int, closeCents int64) *model.Candle {
	return &model.Candle{
		Symbol:   symbol,
		Timespan: model.Day,
		TS:       t0.AddDate(0, 0, day),
		Open:     closeCents,
		High:     closeCents + 100,
		Low:      closeCents - 100,
		Close:    closeCents,
		Volume:   1000,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext() *SharedContext {
	return NewSharedContext("test-run", quietLogger(), nil)
}

// recordStage remembers what it saw and what the cache held at that moment.
type recordStage struct {
	name     string
	seen     []*model.Candle
	previous []*model.Candle
	verdict  Verdict
	err      error
	reads    bool
}

func (r *recordStage) Name() string        { return r.name }
func (r *recordStage) ReadsPrevious() bool { return r.reads }

func (r *recordStage) Process(ctx context.Context, sc *SharedContext, c *model.Candle) (Verdict, error) {
	r.seen = append(r.seen, c)
	prev, _ := sc.Last(c.Symbol)
	r.previous = append(r.previous, prev)
	return r.verdict, r.err
}

type stubStrategy struct {
	name string
	sig  *model.Signal
	err  error
	pan  bool
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Evaluate(current, previous *model.Candle) (*model.Signal, error) {
	if s.pan {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.sig == nil {
		return nil, nil
	}
	cp := *s.sig
	return &cp, nil
}

type captureExecutor struct {
	calls [][]model.Signal
}

func (c *captureExecutor) OnSignals(ctx context.Context, signals []model.Signal) {
	c.calls = append(c.calls, signals)
}

type fakePersister struct {
	saved []*model.Candle
	err   error
}

func (f *fakePersister) Persist(ctx context.Context, c *model.Candle) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, c)
	return nil
}

type fakeTerminator struct {
	consumed []*model.Candle
	flushed  int
	flushErr error
}

func (f *fakeTerminator) Name() string { return "fake_terminator" }

func (f *fakeTerminator) Consume(ctx context.Context, sc *SharedContext, c *model.Candle) error {
	f.consumed = append(f.consumed, c)
	return nil
}

func (f *fakeTerminator) Flush(ctx context.Context) error {
	f.flushed++
	return f.flushErr
}

var errBoom = errors.New("boom")
