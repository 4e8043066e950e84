package execution

import (
	"context"

	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
	"candlepipe/internal/portfolio"
)

// MarkToMarket is a pipeline terminator that marks open positions in book at
// the close of every candle leaving the chain, so unrealized P&L follows the
// market rather than the fill price.
type MarkToMarket struct {
	book *portfolio.Portfolio
}

func NewMarkToMarket(book *portfolio.Portfolio) *MarkToMarket {
	return &MarkToMarket{book: book}
}

func (*MarkToMarket) Name() string { return "mark_to_market" }

func (m *MarkToMarket) Consume(ctx context.Context, sc *pipeline.SharedContext, c *model.Candle) error {
	m.book.Mark(c.Symbol, c.Close)
	return nil
}

func (*MarkToMarket) Flush(ctx context.Context) error { return nil }
