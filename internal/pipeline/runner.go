package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"candlepipe/internal/logger"
	"candlepipe/internal/metrics"
	"candlepipe/internal/model"
)

// Stats summarizes one run.
type Stats struct {
	RunID     string        `json:"run_id"`
	Read      int           `json:"read"`
	Forwarded int           `json:"forwarded"`
	Dropped   int           `json:"dropped"`
	Issues    int           `json:"issues"`
	Signals   int           `json:"signals"`
	Duration  time.Duration `json:"duration"`
}

// Runner pulls candles from a Source and pushes each one through a Chain,
// then through the terminators.
type Runner struct {
	name        string
	source      Source
	chain       *Chain
	terminators []Terminator
	seed        []*model.Candle
	logger      *slog.Logger
	metrics     *metrics.Pipeline
}

// Option configures a Runner.
type Option func(*Runner)

// WithName labels the run in logs and metrics.
func WithName(name string) Option { return func(r *Runner) { r.name = name } }

// WithTerminators adds end-of-chain consumers.
func WithTerminators(ts ...Terminator) Option {
	return func(r *Runner) { r.terminators = append(r.terminators, ts...) }
}

// WithSeed primes every run's candle cache with cs, as if they had passed
// the CandleCache before the first candle. A loader continuing stored
// history seeds the last stored candle per symbol so indicator state
// carries over.
func WithSeed(cs ...*model.Candle) Option {
	return func(r *Runner) { r.seed = append(r.seed, cs...) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Pipeline) Option { return func(r *Runner) { r.metrics = m } }

// NewRunner builds a runner over source and chain.
func NewRunner(source Source, chain *Chain, opts ...Option) *Runner {
	r := &Runner{
		name:   "pipeline",
		source: source,
		chain:  chain,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Name returns the run label.
func (r *Runner) Name() string { return r.name }

// Chain returns the chain the runner drives.
func (r *Runner) Chain() *Chain { return r.chain }

// Run drives the source to exhaustion. Each call uses a fresh SharedContext.
//
// Run stops at the first fatal error from the source, a stage or a
// terminator and returns that error unchanged. Cancellation of ctx is
// checked once per candle. Stages implementing Flusher and then the
// terminators are flushed only after the source is exhausted. A source
// implementing io.Closer is closed when the run ends.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: logger.NewRunID()}

	if r.source == nil {
		return stats, ErrNoSource
	}
	if err := r.chain.Validate(); err != nil {
		return stats, err
	}

	// Executors tag their side effects with the run via logger.RunID(ctx).
	ctx = logger.WithRunID(ctx, stats.RunID)
	sc := NewSharedContext(stats.RunID, r.logger.With(slog.String("pipeline", r.name)), r.metrics)
	for _, c := range r.seed {
		sc.remember(c)
	}
	sc.Logger.Info("run started",
		slog.Any("stages", r.chain.Names()),
		slog.Int("terminators", len(r.terminators)),
		slog.Int("seeded", sc.CachedSymbols()),
	)

	err := r.loop(ctx, sc, &stats)
	if err == nil {
		err = r.flush(ctx)
	}
	if c, ok := r.source.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			sc.Logger.Warn("source close failed", slog.String("error", cerr.Error()))
		}
	}

	stats.Issues = sc.IssueCount()
	stats.Signals = sc.SignalCount()
	stats.Duration = time.Since(start)
	r.metrics.ObserveRun(r.name, stats.Duration, err)

	if err != nil {
		sc.Logger.Error("run failed", slog.String("error", err.Error()), slog.Int("read", stats.Read))
		return stats, err
	}
	sc.Logger.Info("run completed",
		slog.Int("read", stats.Read),
		slog.Int("forwarded", stats.Forwarded),
		slog.Int("dropped", stats.Dropped),
		slog.Int("issues", stats.Issues),
		slog.Int("signals", stats.Signals),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// flush drains buffering stages in chain order, then the terminators.
func (r *Runner) flush(ctx context.Context) error {
	for _, s := range r.chain.stages {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				return err
			}
		}
	}
	for _, t := range r.terminators {
		if err := t.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) loop(ctx context.Context, sc *SharedContext, stats *Stats) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c, err := r.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNilCandle
		}
		stats.Read++
		r.metrics.ObserveRead()

		v, err := r.chain.Process(ctx, sc, c)
		if err != nil {
			return err
		}
		if v == Drop {
			stats.Dropped++
			r.metrics.ObserveDrop()
			continue
		}
		stats.Forwarded++

		for _, t := range r.terminators {
			if err := t.Consume(ctx, sc, c); err != nil {
				return err
			}
		}
	}
}
