// Package technicals attaches technical indicator values to candles.
package technicals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"candlepipe/internal/indicator"
	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

// ErrOutOfOrder is reported when a candle is not newer than the cached
// candle of its symbol. The indicators for that candle restart cold.
var ErrOutOfOrder = errors.New("candle not newer than previous")

// Stage computes indicators for each candle.
//
// The stage keeps no state of its own: indicator state travels on the
// candle as an indicator.State attachment and is resumed from the previous
// candle of the same symbol, so the stage must precede the CandleCache.
type Stage struct {
	specs []indicator.Spec
}

// New builds a technicals stage. With no specs, indicator.DefaultSpecs is
// used.
func New(specs ...indicator.Spec) (*Stage, error) {
	if len(specs) == 0 {
		specs = indicator.DefaultSpecs()
	}
	seen := make(map[indicator.Spec]bool, len(specs))
	for _, sp := range specs {
		if _, err := sp.New(); err != nil {
			return nil, err
		}
		if seen[sp] {
			return nil, fmt.Errorf("technicals: duplicate indicator %s", sp.Name())
		}
		seen[sp] = true
	}
	return &Stage{specs: append([]indicator.Spec(nil), specs...)}, nil
}

func (*Stage) Name() string        { return "technicals" }
func (*Stage) ReadsPrevious() bool { return true }

// Specs returns the configured indicators.
func (s *Stage) Specs() []indicator.Spec { return append([]indicator.Spec(nil), s.specs...) }

func (s *Stage) Process(ctx context.Context, sc *pipeline.SharedContext, c *model.Candle) (pipeline.Verdict, error) {
	var state *indicator.State
	if prev, ok := sc.Last(c.Symbol); ok {
		if !prev.TS.Before(c.TS) {
			sc.Report(s.Name(), c, fmt.Errorf("%w: %s after %s", ErrOutOfOrder,
				c.TS.Format("2006-01-02T15:04"), prev.TS.Format("2006-01-02T15:04")))
		} else {
			state, _ = indicator.StateOf(prev)
		}
	}

	set, err := indicator.RestoreSet(s.specs, state)
	if err != nil {
		return pipeline.Drop, fmt.Errorf("technicals: %w", err)
	}
	set.Update(c)
	c.Attachments.Attach(set.State())

	vals := set.Values()
	if len(vals.Values) == 0 {
		sc.Report(s.Name(), c, fmt.Errorf("%w: warming up %s", pipeline.ErrInsufficientHistory,
			strings.Join(set.Pending(), ",")))
		return pipeline.Forward, nil
	}
	c.Attachments.Attach(vals)
	return pipeline.Forward, nil
}
