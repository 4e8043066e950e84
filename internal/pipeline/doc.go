// Package pipeline runs candles from a Source through an ordered chain of
// stages.
//
// A run is single-threaded: the Runner pulls one candle at a time and hands
// it to each stage in chain order. Stages share per-run state through a
// SharedContext, whose only writer is the CandleCache stage. Any stage that
// needs the previous candle of a symbol must sit before the CandleCache in
// the chain, so that it reads the value cached by the prior candle before
// the cache overwrites it with the current one. Chain.Validate enforces this
// ordering.
package pipeline
