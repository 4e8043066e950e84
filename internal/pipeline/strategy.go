package pipeline

import (
	"context"
	"fmt"

	"candlepipe/internal/model"
)

// Strategy evaluates the current candle against the previous candle of the
// same symbol. previous is nil when the symbol has not been seen before.
// A nil signal means the strategy has nothing to say.
type Strategy interface {
	Name() string
	Evaluate(current, previous *model.Candle) (*model.Signal, error)
}

// Executor receives the signals produced for one candle, in strategy
// declaration order. It is called once per candle, also with an empty list.
type Executor interface {
	OnSignals(ctx context.Context, signals []model.Signal)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, signals []model.Signal)

func (f ExecutorFunc) OnSignals(ctx context.Context, signals []model.Signal) { f(ctx, signals) }

// MultiExecutor hands the same signal list to every executor in order.
type MultiExecutor []Executor

func (m MultiExecutor) OnSignals(ctx context.Context, signals []model.Signal) {
	for _, e := range m {
		e.OnSignals(ctx, signals)
	}
}

// StrategyStage runs a fixed set of strategies over every candle and hands
// the collected signals to an executor. The candle itself is forwarded
// untouched.
type StrategyStage struct {
	strategies []Strategy
	executor   Executor
}

// NewStrategyStage evaluates strategies in the given order.
func NewStrategyStage(executor Executor, strategies ...Strategy) *StrategyStage {
	return &StrategyStage{
		strategies: append([]Strategy(nil), strategies...),
		executor:   executor,
	}
}

func (*StrategyStage) Name() string        { return "strategy" }
func (*StrategyStage) ReadsPrevious() bool { return true }

func (s *StrategyStage) validate() error {
	if s.executor == nil {
		return ErrNoExecutor
	}
	for i, st := range s.strategies {
		if st == nil {
			return fmt.Errorf("strategy %d is nil", i)
		}
	}
	return nil
}

func (s *StrategyStage) Process(ctx context.Context, sc *SharedContext, c *model.Candle) (Verdict, error) {
	prev, _ := sc.Last(c.Symbol)

	signals := make([]model.Signal, 0, len(s.strategies))
	for _, st := range s.strategies {
		sig, err := evaluate(st, c, prev)
		if err != nil {
			sc.Report(s.Name(), c, &StrategyError{Strategy: st.Name(), Symbol: c.Symbol, Err: err})
			continue
		}
		if sig == nil {
			continue
		}
		if sig.Symbol == "" {
			sig.Symbol = c.Symbol
		}
		if sig.Strategy == "" {
			sig.Strategy = st.Name()
		}
		if sig.TS.IsZero() {
			sig.TS = c.TS
		}
		signals = append(signals, *sig)
		sc.countSignal(*sig)
	}

	if s.executor != nil {
		s.executor.OnSignals(ctx, signals)
	}
	return Forward, nil
}

// evaluate isolates one strategy: a panic is turned into an error so the
// remaining strategies still run.
func evaluate(st Strategy, current, previous *model.Candle) (sig *model.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.Evaluate(current, previous)
}
