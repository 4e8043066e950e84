package technicals

import (
	"context"
	"fmt"

	"candlepipe/internal/indicator"
	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

// Normalizer turns the indicators attached to a candle into scale-free
// values so they can be compared across symbols:
//
//	moving averages: close/value - 1
//	RSI:             value/100
//
// Candles without indicators are forwarded untouched.
type Normalizer struct{}

// NewNormalizer returns a Normalizer.
func NewNormalizer() *Normalizer { return &Normalizer{} }

func (*Normalizer) Name() string { return "normalizer" }

func (n *Normalizer) Process(ctx context.Context, sc *pipeline.SharedContext, c *model.Candle) (pipeline.Verdict, error) {
	ind, ok := model.IndicatorsOf(c)
	if !ok || len(ind.Values) == 0 {
		sc.Report(n.Name(), c, fmt.Errorf("%w: no indicators to normalize", pipeline.ErrInsufficientHistory))
		return pipeline.Forward, nil
	}

	out := model.NewNormalizedIndicators()
	closePx := c.ClosePrice()
	for _, name := range ind.Names() {
		v, _ := ind.Get(name)
		norm, err := normalize(name, v, closePx)
		if err != nil {
			sc.Report(n.Name(), c, err)
			continue
		}
		out.Set(name, norm)
	}
	c.Attachments.Attach(out)
	return pipeline.Forward, nil
}

func normalize(name string, v, closePx float64) (float64, error) {
	spec, err := indicator.ParseSpec(name)
	if err != nil {
		return 0, err
	}
	switch spec.Type {
	case indicator.TypeRSI:
		return v / 100, nil
	default:
		if v == 0 {
			return 0, fmt.Errorf("normalize %s: zero average", name)
		}
		return closePx/v - 1, nil
	}
}
