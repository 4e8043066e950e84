package model

import (
	"strconv"
	"time"
)

// Candle is one OHLCV bar for a symbol over a fixed timespan.
// All prices are in cents (int64) to avoid floating-point drift.
//
// Identity (symbol, timespan, TS) never changes once the candle leaves its
// source; Attachments is mutated by pipeline stages as the candle flows.
type Candle struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange,omitempty"`
	Timespan Timespan  `json:"timespan"`
	TS       time.Time `json:"ts"`     // bar start time (UTC)
	Open     int64     `json:"open"`   // cents
	High     int64     `json:"high"`   // cents
	Low      int64     `json:"low"`    // cents
	Close    int64     `json:"close"`  // cents
	Volume   int64     `json:"volume"` // shares traded in the bar

	Attachments Attachments `json:"-"`
}

// Key returns the identity of the candle: "symbol:timespan:unix".
func (c *Candle) Key() string {
	return c.Symbol + ":" + string(c.Timespan) + ":" + strconv.FormatInt(c.TS.Unix(), 10)
}

// ClosePrice returns the close in major currency units.
func (c *Candle) ClosePrice() float64 {
	return float64(c.Close) / 100.0
}
