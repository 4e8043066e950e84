package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrNoSource     = errors.New("pipeline: runner has no source")
	ErrEmptyChain   = errors.New("pipeline: chain has no stages")
	ErrNilStage     = errors.New("pipeline: nil stage in chain")
	ErrNilCandle    = errors.New("pipeline: source yielded a nil candle")
	ErrNoExecutor   = errors.New("pipeline: strategy stage has no executor")
	ErrNoCacheAfter = errors.New("pipeline: stage reads the previous candle but no candle cache follows it")
	ErrCacheBefore  = errors.New("pipeline: candle cache placed before a stage that reads the previous candle")
	ErrTerminalLast = errors.New("pipeline: terminal stage must be the last stage")

	// ErrInsufficientHistory marks a recoverable omission: a stage could not
	// compute its payload yet (e.g. indicator warm-up) and forwarded the
	// candle without it.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// StrategyError records a failed strategy evaluation. It is reported to the
// run context and never becomes a signal.
type StrategyError struct {
	Strategy string
	Symbol   string
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s on %s: %v", e.Strategy, e.Symbol, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// stageConfigError ties a chain misconfiguration to the offending stage.
func stageConfigError(idx int, name string, err error) error {
	return fmt.Errorf("stage %d (%s): %w", idx, name, err)
}
