package returns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func day(d int, closeCents int64) *model.Candle {
	return &model.Candle{Symbol: "AAPL", Timespan: model.Day, TS: t0.AddDate(0, 0, d), Close: closeCents}
}

func TestCompute(t *testing.T) {
	r, err := Compute(day(0, 10000), day(1, 11000))
	if err != nil {
		t.Fatal(err)
	}
	if r.Change != 1000 {
		t.Errorf("change: got %d, want 1000", r.Change)
	}
	if math.Abs(r.Pct-0.1) > 1e-12 {
		t.Errorf("pct: got %v, want 0.1", r.Pct)
	}
	if math.Abs(r.LogReturn-math.Log(1.1)) > 1e-12 {
		t.Errorf("log return: got %v", r.LogReturn)
	}
	if !r.ReferenceTS.Equal(t0.AddDate(0, 0, 1)) {
		t.Errorf("reference ts: got %v", r.ReferenceTS)
	}

	// a third of a cent must not drift
	r, _ = Compute(day(0, 30000), day(1, 20000))
	if r.Change != -10000 || math.Abs(r.Pct+1.0/3.0) > 1e-12 {
		t.Errorf("got change=%d pct=%v", r.Change, r.Pct)
	}

	if _, err := Compute(day(0, 0), day(1, 100)); !errors.Is(err, ErrZeroClose) {
		t.Errorf("expected ErrZeroClose, got %v", err)
	}
}

// Behind a ReverseSource the reference is the next day, so each candle is
// labelled with its forward return and the last day has none.
func TestStage_ForwardReturnsWithReverseSource(t *testing.T) {
	candles := []*model.Candle{day(0, 10000), day(1, 10500), day(2, 9450)}

	src := pipeline.NewReverseSource(pipeline.NewSliceSource(candles...))
	chain := pipeline.NewChain(New(), pipeline.NewCandleCache())
	stats, err := pipeline.NewRunner(src, chain,
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := model.ReturnsOf(candles[2]); ok {
		t.Error("the newest candle has no forward reference")
	}
	if stats.Issues != 1 {
		t.Errorf("expected one missing-reference issue, got %d", stats.Issues)
	}

	r0, ok := model.ReturnsOf(candles[0])
	if !ok || r0.Change != 500 || math.Abs(r0.Pct-0.05) > 1e-12 {
		t.Errorf("day 0: %+v", r0)
	}
	r1, ok := model.ReturnsOf(candles[1])
	if !ok || r1.Change != -1050 || math.Abs(r1.Pct+0.1) > 1e-12 {
		t.Errorf("day 1: %+v", r1)
	}
}

func TestStage_BackwardReturnsInOrder(t *testing.T) {
	candles := []*model.Candle{day(0, 10000), day(1, 10500)}
	chain := pipeline.NewChain(New(), pipeline.NewCandleCache())
	_, err := pipeline.NewRunner(pipeline.NewSliceSource(candles...), chain,
		pipeline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r, ok := model.ReturnsOf(candles[1])
	if !ok || r.Change != -500 {
		t.Errorf("expected change back to the prior close, got %+v", r)
	}
}
