package strategy

import (
	"fmt"

	"candlepipe/internal/model"
)

// RSIThreshold goes long when RSI crosses up through the oversold level and
// short when it crosses down through the overbought level.
type RSIThreshold struct {
	rsi        string
	oversold   float64
	overbought float64
}

// NewRSIThreshold uses the RSI indicator named rsi, e.g. "rsi14".
func NewRSIThreshold(rsi string, oversold, overbought float64) *RSIThreshold {
	return &RSIThreshold{rsi: rsi, oversold: oversold, overbought: overbought}
}

func (r *RSIThreshold) Name() string { return r.rsi + "_threshold" }

func (r *RSIThreshold) Evaluate(current, previous *model.Candle) (*model.Signal, error) {
	if previous == nil {
		return nil, nil
	}
	cur, prev, ok, err := indicatorPair(current, previous, r.rsi)
	if err != nil || !ok {
		return nil, err
	}

	switch {
	case prev <= r.oversold && cur > r.oversold:
		return signal(current, model.Long, fmt.Sprintf("%s crossed above %.0f", r.rsi, r.oversold)), nil
	case prev >= r.overbought && cur < r.overbought:
		return signal(current, model.Short, fmt.Sprintf("%s crossed below %.0f", r.rsi, r.overbought)), nil
	}
	return nil, nil
}
