package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"candlepipe/internal/metrics"
	"candlepipe/internal/model"
)

// Issue is one recoverable problem absorbed at a stage boundary.
type Issue struct {
	Stage  string
	Symbol string
	TS     time.Time
	Err    error
}

// maxKeptIssues bounds the issues retained for inspection after a run.
const maxKeptIssues = 256

// SharedContext is the mutable state of a single pipeline run.
//
// It is owned by exactly one Runner invocation and is not safe for
// concurrent use. The per-symbol candle map is written only by CandleCache.
type SharedContext struct {
	RunID  string
	Logger *slog.Logger

	metrics *metrics.Pipeline
	last    map[string]*model.Candle

	issueCount  int
	issuesBy    map[string]int
	issues      []Issue
	signalCount int
}

// NewSharedContext creates an empty run context. logger and m may be nil.
func NewSharedContext(runID string, logger *slog.Logger, m *metrics.Pipeline) *SharedContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedContext{
		RunID:    runID,
		Logger:   logger.With(slog.String("run_id", runID)),
		metrics:  m,
		last:     make(map[string]*model.Candle, 512),
		issuesBy: make(map[string]int),
	}
}

// Last returns the most recent candle the CandleCache recorded for symbol.
// The second result is false if the symbol has not been seen this run.
func (sc *SharedContext) Last(symbol string) (*model.Candle, bool) {
	c, ok := sc.last[symbol]
	return c, ok
}

// CachedSymbols returns the number of symbols with a cached candle.
func (sc *SharedContext) CachedSymbols() int { return len(sc.last) }

func (sc *SharedContext) remember(c *model.Candle) {
	sc.last[c.Symbol] = c
}

// Reset clears all run state so the context can be reused for another run.
func (sc *SharedContext) Reset() {
	sc.last = make(map[string]*model.Candle, len(sc.last))
	sc.issueCount = 0
	sc.issuesBy = make(map[string]int)
	sc.issues = nil
	sc.signalCount = 0
}

// Report records a recoverable problem for c at stage. It never aborts the
// run; the issue is logged, counted, and kept for inspection.
func (sc *SharedContext) Report(stage string, c *model.Candle, err error) {
	is := Issue{Stage: stage, Err: err}
	if c != nil {
		is.Symbol = c.Symbol
		is.TS = c.TS
	}

	sc.issueCount++
	sc.issuesBy[stage]++
	if len(sc.issues) < maxKeptIssues {
		sc.issues = append(sc.issues, is)
	}
	sc.metrics.ObserveIssue(stage)

	level := slog.LevelWarn
	if errors.Is(err, ErrInsufficientHistory) {
		level = slog.LevelDebug
	}
	sc.Logger.Log(context.Background(), level, "recoverable stage issue",
		slog.String("stage", stage),
		slog.String("symbol", is.Symbol),
		slog.Time("ts", is.TS),
		slog.String("error", err.Error()),
	)
}

// IssueCount returns the total number of reported issues.
func (sc *SharedContext) IssueCount() int { return sc.issueCount }

// IssuesFor returns how many issues stage reported.
func (sc *SharedContext) IssuesFor(stage string) int { return sc.issuesBy[stage] }

// Issues returns the first reported issues (bounded).
func (sc *SharedContext) Issues() []Issue {
	out := make([]Issue, len(sc.issues))
	copy(out, sc.issues)
	return out
}

func (sc *SharedContext) countSignal(sig model.Signal) {
	sc.signalCount++
	sc.metrics.ObserveSignal(sig.Strategy, string(sig.Direction))
}

// SignalCount returns the number of signals produced this run.
func (sc *SharedContext) SignalCount() int { return sc.signalCount }
