// Package indicator provides incremental technical indicators over candle
// closes.
//
// Every indicator can snapshot its state and be rebuilt from that snapshot,
// which lets a pipeline carry indicator state forward on the candle itself
// instead of keeping it in the stage.
package indicator

import "candlepipe/internal/model"

// Indicator is the interface for all technical indicators.
type Indicator interface {
	// Name returns the indicator type (e.g. "SMA").
	Name() string

	// Update feeds the next candle and recalculates.
	Update(c *model.Candle)

	// Value returns the current value in major units. 0 until Ready.
	Value() float64

	// Ready returns true once enough candles have been seen.
	Ready() bool
}

// price converts a close in cents to major units.
func price(cents int64) float64 { return float64(cents) / 100.0 }
