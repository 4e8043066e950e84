// Package execution turns strategy signals into simulated fills.
//
// Every type here implements pipeline.Executor and is called once per candle
// with the signals produced for it, in strategy order.
package execution

import (
	"context"
	"log/slog"
	"time"

	"candlepipe/internal/logger"
	"candlepipe/internal/model"
)

// Side is the direction of a fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID     string       `json:"order_id"`
	RunID       string       `json:"run_id,omitempty"`
	Signal      model.Signal `json:"signal"`
	Side        Side         `json:"side"`
	Qty         int64        `json:"qty"`
	FillPrice   int64        `json:"fill_price"` // cents
	Slippage    int64        `json:"slippage"`   // cents
	RealizedPnL int64        `json:"realized_pnl"`
	FilledAt    time.Time    `json:"filled_at"`
}

// Recorder persists fills.
type Recorder interface {
	RecordFill(ctx context.Context, fill Fill) error
}

// LogExecutor logs every signal it receives.
type LogExecutor struct {
	Prefix string
}

func (l LogExecutor) OnSignals(ctx context.Context, signals []model.Signal) {
	for _, s := range signals {
		attrs := append([]any{
			slog.String("strategy", s.Strategy),
			slog.String("direction", string(s.Direction)),
			slog.String("symbol", s.Symbol),
			slog.Int64("price", s.Price),
			slog.String("reason", s.Reason),
		}, logger.LogWithRun(ctx)...)
		slog.InfoContext(ctx, "["+l.prefix()+"] signal", attrs...)
	}
}

func (l LogExecutor) prefix() string {
	if l.Prefix == "" {
		return "signal"
	}
	return l.Prefix
}
