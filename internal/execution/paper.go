package execution

import (
	"context"
	"fmt"
	"log"
	"sync"

	"candlepipe/internal/logger"
	"candlepipe/internal/model"
	"candlepipe/internal/portfolio"
)

// PaperExecutor simulates execution at the close of the signalling candle.
//
// Each signal sets a target position in its symbol: Long holds +Qty, Short
// holds -Qty and Flat closes. The difference to the current position is
// filled with simulated slippage. Signals that would not change the
// position are ignored.
type PaperExecutor struct {
	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64

	qty         int64
	slippageBps int64 // basis points of slippage, e.g. 5 = 0.05%

	book     *portfolio.Portfolio
	risk     *portfolio.RiskManager
	recorder Recorder
}

// PaperOption configures a PaperExecutor.
type PaperOption func(*PaperExecutor)

// WithSlippage sets simulated slippage in basis points.
func WithSlippage(bps int64) PaperOption { return func(p *PaperExecutor) { p.slippageBps = bps } }

// WithRisk vetoes trades that break limits.
func WithRisk(rm *portfolio.RiskManager) PaperOption { return func(p *PaperExecutor) { p.risk = rm } }

// WithRecorder persists every fill, e.g. to a Journal.
func WithRecorder(r Recorder) PaperOption { return func(p *PaperExecutor) { p.recorder = r } }

// NewPaperExecutor trades qty shares per signal against book.
func NewPaperExecutor(book *portfolio.Portfolio, qty int64, opts ...PaperOption) *PaperExecutor {
	p := &PaperExecutor{
		fills: make([]Fill, 0, 256),
		qty:   qty,
		book:  book,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Fills returns a snapshot of all fills.
func (p *PaperExecutor) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Portfolio returns the book the executor trades against.
func (p *PaperExecutor) Portfolio() *portfolio.Portfolio { return p.book }

// OnSignals fills each signal in order. Fills carry the run ID found in ctx.
func (p *PaperExecutor) OnSignals(ctx context.Context, signals []model.Signal) {
	runID := logger.RunID(ctx)
	for _, sig := range signals {
		if fill, ok := p.execute(sig, runID); ok && p.recorder != nil {
			if err := p.recorder.RecordFill(ctx, fill); err != nil {
				log.Printf("[paper] record fill %s: %v", fill.OrderID, err)
			}
		}
	}
}

func (p *PaperExecutor) execute(sig model.Signal, runID string) (Fill, bool) {
	var target int64
	switch sig.Direction {
	case model.Long:
		target = p.qty
	case model.Short:
		target = -p.qty
	case model.Flat:
		target = 0
	default:
		log.Printf("[paper] %s: unknown direction %q", sig.Symbol, sig.Direction)
		return Fill{}, false
	}

	delta := target - p.book.Qty(sig.Symbol)
	if delta == 0 || sig.Price <= 0 {
		return Fill{}, false
	}
	if p.risk != nil {
		if ok, why := p.risk.CanHold(sig.Symbol, target); !ok {
			log.Printf("[paper] %s %s %s rejected: %s", sig.Strategy, sig.Direction, sig.Symbol, why)
			return Fill{}, false
		}
	}

	side, qty := Buy, delta
	if delta < 0 {
		side, qty = Sell, -delta
	}

	slippage := sig.Price * p.slippageBps / 10000
	price := sig.Price + slippage // buy higher
	if side == Sell {
		price = sig.Price - slippage // sell lower
	}

	realized := p.book.Apply(sig.Symbol, delta, price)
	if p.risk != nil {
		p.risk.RecordPnL(realized)
	}

	p.mu.Lock()
	p.orderSeq++
	fill := Fill{
		OrderID:     fmt.Sprintf("PAPER-%d", p.orderSeq),
		RunID:       runID,
		Signal:      sig,
		Side:        side,
		Qty:         qty,
		FillPrice:   price,
		Slippage:    slippage,
		RealizedPnL: realized,
		FilledAt:    sig.TS,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.Printf("[paper] %s %s %s qty=%d price=%d (slip=%d) pnl=%d order=%s reason=%s",
		side, sig.Strategy, sig.Symbol, qty, price, slippage, realized, fill.OrderID, sig.Reason)
	return fill, true
}
