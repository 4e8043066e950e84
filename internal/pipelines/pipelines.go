// Package pipelines assembles the standard runs out of pipeline stages.
// Every builder follows the same composition: stages that read the
// previous candle first, then the candle cache, then the sink.
package pipelines

import (
	"errors"
	"log/slog"

	"candlepipe/internal/binning"
	"candlepipe/internal/indicator"
	"candlepipe/internal/metrics"
	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
	"candlepipe/internal/returns"
	"candlepipe/internal/technicals"
)

// Builder names, used as run labels and on the command line.
const (
	DailyLoaderName           = "daily_loader"
	ReturnsCalculatorName     = "returns"
	TechnicalsCalculatorName  = "technicals"
	TechnicalsWithBucketsName = "technicals_buckets"
	StrategyBacktestName      = "backtest"
)

var (
	ErrNoSink     = errors.New("pipelines: no sink configured")
	ErrNoBinner   = errors.New("pipelines: no binner configured")
	ErrNoExecutor = errors.New("pipelines: no executor configured")
)

// Options are shared by every builder.
type Options struct {
	// Specs are the indicators the technicals stage computes. Empty means
	// indicator.DefaultSpecs.
	Specs []indicator.Spec
	// FailFast makes sink write errors fatal.
	FailFast bool

	// Terminators are appended to the builder's own, e.g. a mark-to-market
	// pass over a backtest's candles.
	Terminators []pipeline.Terminator
	// Seed primes the candle cache, see Resume.
	Seed []*model.Candle

	Logger  *slog.Logger
	Metrics *metrics.Pipeline
}

func (o Options) runnerOpts(name string, extra ...pipeline.Option) []pipeline.Option {
	opts := []pipeline.Option{pipeline.WithName(name), pipeline.WithMetrics(o.Metrics)}
	if o.Logger != nil {
		opts = append(opts, pipeline.WithLogger(o.Logger))
	}
	opts = append(opts, extra...)
	if len(o.Seed) > 0 {
		opts = append(opts, pipeline.WithSeed(o.Seed...))
	}
	if len(o.Terminators) > 0 {
		opts = append(opts, pipeline.WithTerminators(o.Terminators...))
	}
	return opts
}

func (o Options) sink(name string, p model.CandlePersister) *pipeline.SinkStage {
	var opts []pipeline.SinkOption
	if o.FailFast {
		opts = append(opts, pipeline.FailFast())
	}
	return pipeline.NewSink(name, p, opts...)
}

// build validates the chain before handing it to a runner.
func build(src pipeline.Source, chain *pipeline.Chain, opts ...pipeline.Option) (*pipeline.Runner, error) {
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return pipeline.NewRunner(src, chain, opts...), nil
}

// DailyLoader computes technicals for freshly downloaded history and
// persists it: source -> technicals -> cache -> sink.
func DailyLoader(src pipeline.Source, sink model.CandlePersister, o Options) (*pipeline.Runner, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	tech, err := technicals.New(o.Specs...)
	if err != nil {
		return nil, err
	}
	chain := pipeline.NewChain(tech, pipeline.NewCandleCache(), o.sink("store", sink))
	return build(src, chain, o.runnerOpts(DailyLoaderName)...)
}

// ReturnsCalculator attaches forward returns to stored candles. The source
// is replayed newest first so each candle's cached "previous" is the next
// bar in time: reverse(source) -> returns -> cache -> sink.
func ReturnsCalculator(src pipeline.Source, sink model.CandlePersister, o Options) (*pipeline.Runner, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	chain := pipeline.NewChain(returns.New(), pipeline.NewCandleCache(), o.sink("store", sink))
	return build(pipeline.NewReverseSource(src), chain, o.runnerOpts(ReturnsCalculatorName)...)
}

func technicalsChain(sink model.CandlePersister, o Options) (*pipeline.Chain, error) {
	tech, err := technicals.New(o.Specs...)
	if err != nil {
		return nil, err
	}
	return pipeline.NewChain(
		tech,
		technicals.NewNormalizer(),
		pipeline.NewCandleCache(),
		o.sink("store", sink),
	), nil
}

// TechnicalsCalculator recomputes raw and normalized technicals over
// stored candles: source -> technicals -> normalizer -> cache -> sink.
func TechnicalsCalculator(src pipeline.Source, sink model.CandlePersister, o Options) (*pipeline.Runner, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	chain, err := technicalsChain(sink, o)
	if err != nil {
		return nil, err
	}
	return build(src, chain, o.runnerOpts(TechnicalsCalculatorName)...)
}

// TechnicalsWithBuckets is TechnicalsCalculator with a binner fed every
// persisted candle and flushed at the end of the run.
func TechnicalsWithBuckets(src pipeline.Source, sink model.CandlePersister, b *binning.Binner, o Options) (*pipeline.Runner, error) {
	if sink == nil {
		return nil, ErrNoSink
	}
	if b == nil {
		return nil, ErrNoBinner
	}
	chain, err := technicalsChain(sink, o)
	if err != nil {
		return nil, err
	}
	return build(src, chain, o.runnerOpts(TechnicalsWithBucketsName, pipeline.WithTerminators(b))...)
}

// StrategyBacktest evaluates strategies over stored candles and hands the
// signals to exec: source -> technicals -> strategies -> cache. The sink
// is optional.
func StrategyBacktest(src pipeline.Source, strategies []pipeline.Strategy, exec pipeline.Executor, sink model.CandlePersister, o Options) (*pipeline.Runner, error) {
	if exec == nil {
		return nil, ErrNoExecutor
	}
	tech, err := technicals.New(o.Specs...)
	if err != nil {
		return nil, err
	}
	stages := []pipeline.Stage{
		tech,
		pipeline.NewStrategyStage(exec, strategies...),
		pipeline.NewCandleCache(),
	}
	if sink != nil {
		stages = append(stages, o.sink("store", sink))
	}
	return build(src, pipeline.NewChain(stages...), o.runnerOpts(StrategyBacktestName)...)
}
