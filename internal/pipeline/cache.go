package pipeline

import (
	"context"
	"log/slog"

	"candlepipe/internal/model"
)

// CandleCache records the most recent candle per symbol in the run context
// and forwards the candle unchanged.
//
// It holds exactly one candle per symbol. Stages that need the previous
// candle read it before the cache runs for the current candle.
type CandleCache struct{}

// NewCandleCache returns a cache stage.
func NewCandleCache() *CandleCache { return &CandleCache{} }

func (*CandleCache) Name() string { return "candle_cache" }

func (*CandleCache) Process(ctx context.Context, sc *SharedContext, c *model.Candle) (Verdict, error) {
	if _, seen := sc.Last(c.Symbol); !seen {
		sc.Logger.Debug("first candle for symbol", slog.String("symbol", c.Symbol), slog.Time("ts", c.TS))
	}
	sc.remember(c)
	return Forward, nil
}
