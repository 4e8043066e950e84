package pipeline

import (
	"context"
	"testing"

	"candlepipe/internal/model"
)

func TestCandleCache_Recency(t *testing.T) {
	sc := newTestContext()
	cache := NewCandleCache()
	ctx := context.Background()

	seq := []struct {
		symbol string
		day    int
	}{
		{"AAPL", 0}, {"MSFT", 0}, {"AAPL", 1}, {"AAPL", 2}, {"MSFT", 1}, {"AAPL", 1},
	}
	for i, s := range seq {
		c := makeCandle(s.symbol, s.day, int64(10000+i))
		v, err := cache.Process(ctx, sc, c)
		if err != nil {
			t.Fatalf("step %d: unexpected error %v", i, err)
		}
		if v != Forward {
			t.Fatalf("step %d: expected Forward, got %v", i, v)
		}
		got, ok := sc.Last(s.symbol)
		if !ok || got != c {
			t.Fatalf("step %d: cache for %s = %p, want %p", i, s.symbol, got, c)
		}
	}
	if sc.CachedSymbols() != 2 {
		t.Errorf("expected 2 cached symbols, got %d", sc.CachedSymbols())
	}
}

func TestCandleCache_AbsentSymbol(t *testing.T) {
	sc := newTestContext()
	if _, err := NewCandleCache().Process(context.Background(), sc, makeCandle("AAPL", 0, 100)); err != nil {
		t.Fatal(err)
	}

	c, ok := sc.Last("TSLA")
	if ok {
		t.Fatal("expected absence for an unseen symbol")
	}
	if c != nil {
		t.Errorf("expected nil candle for an unseen symbol, got %+v", c)
	}
}

func TestCandleCache_StagesBeforeSeePrevious(t *testing.T) {
	sc := newTestContext()
	ctx := context.Background()
	reader := &recordStage{name: "reader", reads: true}
	chain := NewChain(reader, NewCandleCache())
	if err := chain.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	first := makeCandle("AAPL", 0, 100)
	second := makeCandle("AAPL", 1, 101)
	for _, c := range []*model.Candle{first, second} {
		if _, err := chain.Process(ctx, sc, c); err != nil {
			t.Fatal(err)
		}
	}

	if reader.previous[0] != nil {
		t.Errorf("first candle should see no previous, got %+v", reader.previous[0])
	}
	if reader.previous[1] != first {
		t.Errorf("second candle should see the first as previous")
	}
}

func TestSharedContext_Reset(t *testing.T) {
	sc := newTestContext()
	NewCandleCache().Process(context.Background(), sc, makeCandle("AAPL", 0, 100))
	sc.Report("x", nil, errBoom)

	sc.Reset()
	if _, ok := sc.Last("AAPL"); ok {
		t.Error("expected cache cleared after Reset")
	}
	if sc.IssueCount() != 0 {
		t.Errorf("expected issues cleared, got %d", sc.IssueCount())
	}
}
