package strategy

import (
	"log"

	"candlepipe/internal/model"
)

// Crossover emits a signal when a fast average crosses a slow one between
// the previous and the current candle.
//
// Long: fast crosses above slow (golden cross).
// Short: fast crosses below slow (death cross).
//
// An optional RSI filter suppresses longs when overbought and shorts when
// oversold.
type Crossover struct {
	name string
	fast string
	slow string

	rsi        string
	overbought float64
	oversold   float64
}

// Option configures a Crossover.
type Option func(*Crossover)

// WithRSIFilter gates crossovers on the named RSI indicator.
func WithRSIFilter(rsi string, overbought, oversold float64) Option {
	return func(c *Crossover) {
		c.rsi = rsi
		c.overbought = overbought
		c.oversold = oversold
	}
}

// WithName overrides the strategy name.
func WithName(name string) Option { return func(c *Crossover) { c.name = name } }

// NewSMACrossover compares the indicators named fast and slow, e.g. "sma9"
// and "sma21".
func NewSMACrossover(fast, slow string, opts ...Option) *Crossover {
	c := &Crossover{name: fast + "_" + slow + "_crossover", fast: fast, slow: slow}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewSimpleSMA is the sma5/sma20 crossover without a filter.
func NewSimpleSMA() *Crossover {
	return NewSMACrossover("sma5", "sma20", WithName("simple_sma"))
}

func (c *Crossover) Name() string { return c.name }

func (c *Crossover) Evaluate(current, previous *model.Candle) (*model.Signal, error) {
	if previous == nil {
		return nil, nil
	}
	fast, prevFast, ok, err := indicatorPair(current, previous, c.fast)
	if err != nil || !ok {
		return nil, err
	}
	slow, prevSlow, ok, err := indicatorPair(current, previous, c.slow)
	if err != nil || !ok {
		return nil, err
	}

	switch {
	case prevFast <= prevSlow && fast > slow:
		if rsi, ok := c.rsiValue(current); ok && rsi > c.overbought {
			log.Printf("[strategy] %s %s: golden cross filtered by RSI %.1f > %.0f", c.name, current.Symbol, rsi, c.overbought)
			return nil, nil
		}
		return signal(current, model.Long, c.fast+" crossed above "+c.slow), nil

	case prevFast >= prevSlow && fast < slow:
		if rsi, ok := c.rsiValue(current); ok && rsi < c.oversold {
			log.Printf("[strategy] %s %s: death cross filtered by RSI %.1f < %.0f", c.name, current.Symbol, rsi, c.oversold)
			return nil, nil
		}
		return signal(current, model.Short, c.fast+" crossed below "+c.slow), nil
	}
	return nil, nil
}

func (c *Crossover) rsiValue(current *model.Candle) (float64, bool) {
	if c.rsi == "" {
		return 0, false
	}
	ind, _ := model.IndicatorsOf(current)
	return ind.Get(c.rsi)
}
