package model

import (
	"sort"
	"time"
)

// Indicators maps indicator name (e.g. "sma20", "rsi14") to its value.
type Indicators struct {
	Values map[string]float64 `json:"values"`
}

// NewIndicators returns an empty indicator set.
func NewIndicators() *Indicators {
	return &Indicators{Values: make(map[string]float64, 8)}
}

func (*Indicators) AttachmentKey() AttachmentKey { return KeyIndicators }

// Get returns the named value and whether it is present.
func (i *Indicators) Get(name string) (float64, bool) {
	if i == nil {
		return 0, false
	}
	v, ok := i.Values[name]
	return v, ok
}

// Set stores a value, allocating the map on first use.
func (i *Indicators) Set(name string, v float64) {
	if i.Values == nil {
		i.Values = make(map[string]float64, 8)
	}
	i.Values[name] = v
}

// Names returns the indicator names in sorted order.
func (i *Indicators) Names() []string {
	names := make([]string, 0, len(i.Values))
	for k := range i.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// NormalizedIndicators holds scale-free versions of Indicators so values
// are comparable across symbols.
type NormalizedIndicators struct {
	Indicators
}

// NewNormalizedIndicators returns an empty normalized set.
func NewNormalizedIndicators() *NormalizedIndicators {
	return &NormalizedIndicators{Indicators: Indicators{Values: make(map[string]float64, 8)}}
}

func (*NormalizedIndicators) AttachmentKey() AttachmentKey { return KeyNormalizedIndicators }

// Returns holds the change between a candle and its reference candle.
type Returns struct {
	ReferenceTS time.Time `json:"reference_ts"`
	Change      int64     `json:"change"` // cents, reference close - close
	Pct         float64   `json:"pct"`    // Change / close
	LogReturn   float64   `json:"log_return"`
}

func (*Returns) AttachmentKey() AttachmentKey { return KeyReturns }
