// Package strategy provides stateless trading strategies evaluated by the
// pipeline's strategy stage.
//
// A strategy compares the indicators attached to the current candle with
// those attached to the previous candle of the same symbol and emits at most
// one signal.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

// ErrNoIndicators is returned when a candle carries no indicator attachment.
// It wraps pipeline.ErrInsufficientHistory since it is expected while the
// indicators warm up.
var ErrNoIndicators = fmt.Errorf("no indicators attached: %w", pipeline.ErrInsufficientHistory)

// ErrUnknownStrategy is returned by FromNames.
var ErrUnknownStrategy = errors.New("unknown strategy")

// indicatorPair returns the named value on the current and previous candle.
// ok is false while either value is still missing.
func indicatorPair(current, previous *model.Candle, name string) (cur, prev float64, ok bool, err error) {
	ci, found := model.IndicatorsOf(current)
	if !found {
		return 0, 0, false, ErrNoIndicators
	}
	pi, found := model.IndicatorsOf(previous)
	if !found {
		return 0, 0, false, nil
	}
	cur, okc := ci.Get(name)
	prev, okp := pi.Get(name)
	return cur, prev, okc && okp, nil
}

func signal(c *model.Candle, d model.Direction, reason string) *model.Signal {
	return &model.Signal{
		Symbol:    c.Symbol,
		Direction: d,
		TS:        c.TS,
		Price:     c.Close,
		Reason:    reason,
	}
}

var registry = map[string]func() pipeline.Strategy{
	"simple_sma":    func() pipeline.Strategy { return NewSimpleSMA() },
	"sma_crossover": func() pipeline.Strategy { return NewSMACrossover("sma9", "sma21", WithRSIFilter("rsi14", 70, 30)) },
	"ema_crossover": func() pipeline.Strategy { return NewSMACrossover("ema9", "ema21") },
	"rsi_threshold": func() pipeline.Strategy { return NewRSIThreshold("rsi14", 30, 70) },
}

// Names lists the strategies FromNames can build.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FromNames builds strategies in the given order.
func FromNames(names ...string) ([]pipeline.Strategy, error) {
	out := make([]pipeline.Strategy, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		build, ok := registry[n]
		if !ok {
			return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownStrategy, n, strings.Join(Names(), ", "))
		}
		out = append(out, build())
	}
	return out, nil
}
