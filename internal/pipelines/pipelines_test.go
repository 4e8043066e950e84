package pipelines

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"candlepipe/internal/binning"
	"candlepipe/internal/execution"
	"candlepipe/internal/indicator"
	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
	"candlepipe/internal/portfolio"
	"candlepipe/internal/strategy"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type memSink struct {
	saved   []*model.Candle
	flushed int
}

func (m *memSink) Persist(ctx context.Context, c *model.Candle) error {
	m.saved = append(m.saved, c)
	return nil
}

func (m *memSink) Flush(ctx context.Context) error {
	m.flushed++
	return nil
}

// series builds daily candles for symbol with the given closes in major
// units.
func series(symbol string, closes ...int64) []*model.Candle {
	out := make([]*model.Candle, len(closes))
	for i, px := range closes {
		c := px * 100
		out[i] = &model.Candle{
			Symbol: symbol, Timespan: model.Day, TS: day0.AddDate(0, 0, i),
			Open: c, High: c + 50, Low: c - 50, Close: c, Volume: 100,
		}
	}
	return out
}

func opts(t *testing.T, specs string) Options {
	t.Helper()
	s, err := indicator.ParseSpecs(specs)
	if err != nil {
		t.Fatal(err)
	}
	return Options{Specs: s, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestDailyLoader(t *testing.T) {
	sink := &memSink{}
	src := pipeline.NewSliceSource(append(series("AAA", 10, 11, 12, 13), series("BBB", 20, 21)...)...)
	r, err := DailyLoader(src, sink, opts(t, "sma3"))
	if err != nil {
		t.Fatal(err)
	}
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Read != 6 || len(sink.saved) != 6 || sink.flushed != 1 {
		t.Fatalf("stats %+v saved %d flushed %d", stats, len(sink.saved), sink.flushed)
	}
	// Warm-up: two AAA and two BBB candles have no sma3.
	if stats.Issues != 4 {
		t.Errorf("issues: got %d, want 4", stats.Issues)
	}
	ind, ok := model.IndicatorsOf(sink.saved[3])
	if !ok {
		t.Fatal("AAA day 3 has no indicators")
	}
	if v, _ := ind.Get("sma3"); v != 12 {
		t.Errorf("sma3: got %v, want 12", v)
	}
	if _, ok := model.IndicatorsOf(sink.saved[5]); ok {
		t.Error("BBB state leaked from AAA")
	}
}

// ResumePoint lets memSink stand in for the store between loader runs.
func (m *memSink) ResumePoint(ctx context.Context, symbol string, span model.Timespan) (time.Time, *model.Candle, error) {
	var last, prev *model.Candle
	for _, c := range m.saved {
		if c.Symbol != symbol || c.Timespan != span {
			continue
		}
		if last == nil || c.TS.After(last.TS) {
			prev, last = last, c
		}
	}
	if last == nil {
		return time.Time{}, nil, nil
	}
	return last.TS, prev, nil
}

func TestDailyLoader_ResumesStoredHistory(t *testing.T) {
	ctx := context.Background()
	sink := &memSink{}
	r, err := DailyLoader(pipeline.NewSliceSource(series("AAA", 10, 11, 12, 13)...), sink, opts(t, "sma3"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	cp, err := Resume(ctx, sink, []string{"AAA", "BBB"}, model.Day)
	if err != nil {
		t.Fatal(err)
	}
	if len(cp.Start) != 1 || !cp.Start["AAA"].Equal(day0.AddDate(0, 0, 3)) {
		t.Fatalf("start: %v", cp.Start)
	}
	if len(cp.Seed) != 1 || !cp.Seed[0].TS.Equal(day0.AddDate(0, 0, 2)) {
		t.Fatalf("seed: %+v", cp.Seed)
	}

	// The broker serves the newest stored bar again, then two new ones.
	o := opts(t, "sma3")
	o.Seed = cp.Seed
	next := &memSink{}
	r, err = DailyLoader(pipeline.NewSliceSource(series("AAA", 10, 11, 12, 13, 14, 15)[3:]...), next, o)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := r.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Issues != 0 {
		t.Errorf("a resumed run has no warm-up, got %d issues", stats.Issues)
	}
	for i, want := range []float64{12, 13, 14} {
		ind, ok := model.IndicatorsOf(next.saved[i])
		if !ok {
			t.Fatalf("candle %d has no indicators", i)
		}
		if v, _ := ind.Get("sma3"); v != want {
			t.Errorf("candle %d sma3: got %v, want %v", i, v, want)
		}
	}
}

type failingResume struct{}

func (failingResume) ResumePoint(ctx context.Context, symbol string, span model.Timespan) (time.Time, *model.Candle, error) {
	return time.Time{}, nil, errors.New("db locked")
}

func TestResume_StoreError(t *testing.T) {
	if _, err := Resume(context.Background(), failingResume{}, []string{"AAA"}, model.Day); err == nil {
		t.Fatal("expected store error")
	}
}

func TestReturnsCalculator_Forward(t *testing.T) {
	sink := &memSink{}
	r, err := ReturnsCalculator(pipeline.NewSliceSource(series("AAA", 100, 110, 99)...), sink, opts(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(sink.saved) != 3 {
		t.Fatalf("saved: %d", len(sink.saved))
	}
	// Persisted newest first.
	newest, mid, oldest := sink.saved[0], sink.saved[1], sink.saved[2]
	if _, ok := model.ReturnsOf(newest); ok {
		t.Error("newest candle has no future reference")
	}
	rm, ok := model.ReturnsOf(mid)
	if !ok || rm.Change != -1100 || !rm.ReferenceTS.Equal(newest.TS) {
		t.Errorf("mid returns: %+v", rm)
	}
	ro, ok := model.ReturnsOf(oldest)
	if !ok || ro.Change != 1000 || ro.Pct != 0.1 {
		t.Errorf("oldest returns: %+v", ro)
	}
}

func TestTechnicalsWithBuckets(t *testing.T) {
	sink := &memSink{}
	path := filepath.Join(t.TempDir(), "bins.yaml")
	b, err := binning.New(binning.Config{Path: path, Edges: map[string][]float64{"sma2": {0}}})
	if err != nil {
		t.Fatal(err)
	}
	src := pipeline.NewSliceSource(series("AAA", 10, 12, 14, 12)...)
	r, err := TechnicalsWithBuckets(src, sink, b, opts(t, "sma2"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	n, ok := model.NormalizedOf(sink.saved[2])
	if !ok {
		t.Fatal("normalized indicators missing")
	}
	// close 14 over sma2 13.
	if v, _ := n.Get("sma2"); v < 0.0769 || v > 0.077 {
		t.Errorf("normalized sma2: %v", v)
	}

	rep, err := binning.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	// Days 1..3: +1/11, +1/13, -1/13.
	if got := rep.Indicators["sma2"].Total; len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("bins: %v", got)
	}
}

func TestStrategyBacktest_Crossover(t *testing.T) {
	var got []model.Signal
	exec := pipeline.ExecutorFunc(func(ctx context.Context, s []model.Signal) { got = append(got, s...) })
	src := pipeline.NewSliceSource(series("AAA", 10, 9, 8, 7, 8, 10, 12)...)

	r, err := StrategyBacktest(src, []pipeline.Strategy{strategy.NewSMACrossover("sma2", "sma3")}, exec, nil, opts(t, "sma2,sma3"))
	if err != nil {
		t.Fatal(err)
	}
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || stats.Signals != 1 {
		t.Fatalf("signals: %+v", got)
	}
	if got[0].Direction != model.Long || !got[0].TS.Equal(day0.AddDate(0, 0, 5)) || got[0].Strategy != "sma2_sma3_crossover" {
		t.Errorf("signal: %+v", got[0])
	}
}

func TestStrategyBacktest_PaperBookFollowsCloses(t *testing.T) {
	book := portfolio.New()
	rec := &fillRecorder{}
	paper := execution.NewPaperExecutor(book, 10, execution.WithRecorder(rec))

	o := opts(t, "sma2,sma3")
	o.Terminators = []pipeline.Terminator{execution.NewMarkToMarket(book)}
	src := pipeline.NewSliceSource(series("AAA", 10, 9, 8, 7, 8, 10, 12, 15)...)
	r, err := StrategyBacktest(src, []pipeline.Strategy{strategy.NewSMACrossover("sma2", "sma3")}, paper, nil, o)
	if err != nil {
		t.Fatal(err)
	}
	stats, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(rec.fills) != 1 || rec.fills[0].RunID != stats.RunID || stats.RunID == "" {
		t.Fatalf("fills %+v, run %q", rec.fills, stats.RunID)
	}
	// Long 10 @ 10.00 on day 5, last close 15.00.
	if s := book.Summary(); s.UnrealizedPnL != 10*500 || s.OpenPositions != 1 {
		t.Errorf("summary: %+v", s)
	}
}

type fillRecorder struct{ fills []execution.Fill }

func (f *fillRecorder) RecordFill(ctx context.Context, fill execution.Fill) error {
	f.fills = append(f.fills, fill)
	return nil
}

func TestBuilders_RejectMissingCollaborators(t *testing.T) {
	src := pipeline.NewSliceSource()
	o := Options{}
	if _, err := DailyLoader(src, nil, o); !errors.Is(err, ErrNoSink) {
		t.Errorf("DailyLoader: %v", err)
	}
	if _, err := ReturnsCalculator(src, nil, o); !errors.Is(err, ErrNoSink) {
		t.Errorf("ReturnsCalculator: %v", err)
	}
	if _, err := TechnicalsWithBuckets(src, &memSink{}, nil, o); !errors.Is(err, ErrNoBinner) {
		t.Errorf("TechnicalsWithBuckets: %v", err)
	}
	if _, err := StrategyBacktest(src, nil, nil, nil, o); !errors.Is(err, ErrNoExecutor) {
		t.Errorf("StrategyBacktest: %v", err)
	}
	if _, err := DailyLoader(src, &memSink{}, Options{Specs: []indicator.Spec{{Type: "ATR", Period: 3}}}); err == nil {
		t.Error("bad spec accepted")
	}
}
