// Package returns attaches the change between a candle and its reference
// candle.
//
// The reference is the candle the CandleCache holds for the symbol when the
// candle arrives. In a chronological run that is the prior candle, giving
// backward returns. Behind a ReverseSource it is the chronologically next
// candle, giving forward returns, which is how the returns pipeline labels
// each candle with what happened after it.
package returns

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

// ErrZeroClose is reported when a return cannot be expressed relative to
// the candle's close.
var ErrZeroClose = errors.New("returns: zero close")

// Stage computes returns against the cached reference candle.
type Stage struct{}

// New returns a returns stage.
func New() *Stage { return &Stage{} }

func (*Stage) Name() string        { return "returns" }
func (*Stage) ReadsPrevious() bool { return true }

func (s *Stage) Process(ctx context.Context, sc *pipeline.SharedContext, c *model.Candle) (pipeline.Verdict, error) {
	ref, ok := sc.Last(c.Symbol)
	if !ok {
		sc.Report(s.Name(), c, fmt.Errorf("%w: no reference candle", pipeline.ErrInsufficientHistory))
		return pipeline.Forward, nil
	}

	r, err := Compute(c, ref)
	if err != nil {
		sc.Report(s.Name(), c, err)
		return pipeline.Forward, nil
	}
	c.Attachments.Attach(r)
	return pipeline.Forward, nil
}

// Compute returns the change from c to ref: ref.Close - c.Close, relative to
// c.Close.
func Compute(c, ref *model.Candle) (*model.Returns, error) {
	if c.Close == 0 {
		return nil, fmt.Errorf("%w: %s", ErrZeroClose, c.Key())
	}

	base := decimal.NewFromInt(c.Close)
	change := decimal.NewFromInt(ref.Close).Sub(base)
	pct, _ := change.Div(base).Float64()

	r := &model.Returns{
		ReferenceTS: ref.TS,
		Change:      change.IntPart(),
		Pct:         pct,
	}
	// log return is left at 0 when either close is not positive
	if ref.Close > 0 && c.Close > 0 {
		ratio, _ := decimal.NewFromInt(ref.Close).Div(base).Float64()
		r.LogReturn = math.Log(ratio)
	}
	return r, nil
}
