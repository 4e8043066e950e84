package pipeline

import (
	"context"
	"time"

	"candlepipe/internal/model"
)

// Verdict tells the chain whether to hand the candle to the next stage.
type Verdict int

const (
	Forward Verdict = iota
	Drop
)

func (v Verdict) String() string {
	if v == Drop {
		return "drop"
	}
	return "forward"
}

// Stage processes one candle. It may mutate the candle's attachments and
// returns Forward to pass the candle on or Drop to stop it here. A stage that
// drops a candle must have reported why via SharedContext.Report.
//
// A non-nil error is fatal and aborts the run. Recoverable problems are
// reported through the context and the candle is forwarded.
type Stage interface {
	Name() string
	Process(ctx context.Context, sc *SharedContext, c *model.Candle) (Verdict, error)
}

// PreviousReader is implemented by stages that read SharedContext.Last for
// the current candle's symbol.
type PreviousReader interface {
	ReadsPrevious() bool
}

// Terminal is implemented by stages that end a chain (e.g. persistence).
type Terminal interface {
	Terminal() bool
}

// validator lets stages reject their own misconfiguration at build time.
type validator interface {
	validate() error
}

// Chain is the fixed, ordered list of stages a run pushes candles through.
type Chain struct {
	stages []Stage
}

// NewChain builds a chain from stages in processing order.
func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: append([]Stage(nil), stages...)}
}

// Then appends stages to the end of the chain and returns the chain.
func (ch *Chain) Then(stages ...Stage) *Chain {
	ch.stages = append(ch.stages, stages...)
	return ch
}

// Stages returns a copy of the stage list.
func (ch *Chain) Stages() []Stage {
	return append([]Stage(nil), ch.stages...)
}

// Names returns the stage names in order.
func (ch *Chain) Names() []string {
	names := make([]string, len(ch.stages))
	for i, s := range ch.stages {
		if s != nil {
			names[i] = s.Name()
		}
	}
	return names
}

// Len returns the number of stages.
func (ch *Chain) Len() int { return len(ch.stages) }

// Validate checks the chain topology. Every stage that reads the previous
// candle must come before a CandleCache and after none, and a terminal stage
// may only appear last.
func (ch *Chain) Validate() error {
	if ch == nil || len(ch.stages) == 0 {
		return ErrEmptyChain
	}

	firstCache, lastCache := -1, -1
	for i, s := range ch.stages {
		if s == nil {
			return stageConfigError(i, "<nil>", ErrNilStage)
		}
		if _, ok := s.(*CandleCache); ok {
			if firstCache == -1 {
				firstCache = i
			}
			lastCache = i
		}
		if t, ok := s.(Terminal); ok && t.Terminal() && i != len(ch.stages)-1 {
			return stageConfigError(i, s.Name(), ErrTerminalLast)
		}
		if v, ok := s.(validator); ok {
			if err := v.validate(); err != nil {
				return stageConfigError(i, s.Name(), err)
			}
		}
	}

	for i, s := range ch.stages {
		pr, ok := s.(PreviousReader)
		if !ok || !pr.ReadsPrevious() {
			continue
		}
		if firstCache != -1 && firstCache < i {
			return stageConfigError(i, s.Name(), ErrCacheBefore)
		}
		if lastCache < i {
			return stageConfigError(i, s.Name(), ErrNoCacheAfter)
		}
	}
	return nil
}

// Process runs c through every stage until one drops it or fails.
func (ch *Chain) Process(ctx context.Context, sc *SharedContext, c *model.Candle) (Verdict, error) {
	for _, s := range ch.stages {
		start := time.Now()
		v, err := s.Process(ctx, sc, c)
		sc.metrics.ObserveStage(s.Name(), time.Since(start))
		if err != nil {
			return Drop, err
		}
		if v == Drop {
			return Drop, nil
		}
	}
	return Forward, nil
}
