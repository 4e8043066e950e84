package model

import "time"

// Direction is the bias of a trading signal. The absence of a signal is
// expressed by not producing one; Flat is an explicit "close the position".
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Flat  Direction = "FLAT"
)

// Signal is a directional recommendation emitted by a strategy.
type Signal struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Strategy  string    `json:"strategy"`
	TS        time.Time `json:"ts"`    // timestamp of the candle that produced it
	Price     int64     `json:"price"` // close of that candle, cents
	Reason    string    `json:"reason,omitempty"`
}
