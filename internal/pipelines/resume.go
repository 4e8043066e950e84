package pipelines

import (
	"context"
	"fmt"
	"time"

	"candlepipe/internal/model"
)

// Checkpoint is where a DailyLoader run continues stored history.
type Checkpoint struct {
	// Start is the first bar to fetch per symbol. Symbols without stored
	// history are absent and start at the lookback.
	Start map[string]time.Time
	// Seed holds the stored candle before each start, for Options.Seed.
	Seed []*model.Candle
}

// Resume asks store where each symbol's history ends. The newest stored
// bar is fetched again, so a bar stored while still forming is replaced.
func Resume(ctx context.Context, store model.ResumeReader, symbols []string, span model.Timespan) (Checkpoint, error) {
	cp := Checkpoint{Start: make(map[string]time.Time, len(symbols))}
	for _, sym := range symbols {
		from, prev, err := store.ResumePoint(ctx, sym, span)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("resume %s: %w", sym, err)
		}
		if from.IsZero() {
			continue
		}
		cp.Start[sym] = from
		if prev != nil {
			cp.Seed = append(cp.Seed, prev)
		}
	}
	return cp, nil
}
