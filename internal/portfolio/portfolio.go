// Package portfolio tracks simulated positions and P&L for paper execution.
package portfolio

import (
	"sort"
	"sync"
)

// Position is the holding in one symbol.
type Position struct {
	Symbol   string `json:"symbol"`
	Qty      int64  `json:"qty"`       // positive = long, negative = short
	AvgPrice int64  `json:"avg_price"` // average entry price, cents
	Last     int64  `json:"last"`      // last marked price, cents
}

// UnrealizedPnL returns the open P&L in cents.
func (p *Position) UnrealizedPnL() int64 {
	return (p.Last - p.AvgPrice) * p.Qty
}

// Summary is a point-in-time P&L view.
type Summary struct {
	RealizedPnL   int64 `json:"realized_pnl"`
	UnrealizedPnL int64 `json:"unrealized_pnl"`
	TotalPnL      int64 `json:"total_pnl"`
	Trades        int   `json:"trades"`
	OpenPositions int   `json:"open_positions"`
}

// Portfolio tracks positions and realized P&L. Safe for concurrent use.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*Position
	realized  int64
	trades    int
}

// New creates an empty Portfolio.
func New() *Portfolio {
	return &Portfolio{positions: make(map[string]*Position)}
}

// Apply trades delta shares of symbol at price and returns the P&L realized
// by the part of the trade that reduces the existing position.
func (pf *Portfolio) Apply(symbol string, delta, price int64) int64 {
	if delta == 0 {
		return 0
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pf.trades++
	pos, ok := pf.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		pf.positions[symbol] = pos
	}
	pos.Last = price

	if pos.Qty == 0 || sameSign(pos.Qty, delta) {
		total := pos.AvgPrice*abs(pos.Qty) + price*abs(delta)
		pos.Qty += delta
		pos.AvgPrice = total / abs(pos.Qty)
		return 0
	}

	closing := min(abs(delta), abs(pos.Qty))
	realized := (price - pos.AvgPrice) * closing
	if pos.Qty < 0 {
		realized = -realized
	}
	pf.realized += realized

	pos.Qty += delta
	switch {
	case pos.Qty == 0:
		delete(pf.positions, symbol)
	case sameSign(pos.Qty, delta):
		// flipped through zero; the remainder opened at price
		pos.AvgPrice = price
	}
	return realized
}

// Mark updates the last price of an open position.
func (pf *Portfolio) Mark(symbol string, price int64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[symbol]; ok {
		pos.Last = price
	}
}

// Qty returns the current position size in symbol.
func (pf *Portfolio) Qty(symbol string) int64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pos, ok := pf.positions[symbol]; ok {
		return pos.Qty
	}
	return 0
}

// Positions returns a snapshot of open positions sorted by symbol.
func (pf *Portfolio) Positions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Summary returns realized and unrealized P&L.
func (pf *Portfolio) Summary() Summary {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	var unrealized int64
	for _, p := range pf.positions {
		unrealized += p.UnrealizedPnL()
	}
	return Summary{
		RealizedPnL:   pf.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      pf.realized + unrealized,
		Trades:        pf.trades,
		OpenPositions: len(pf.positions),
	}
}

func sameSign(a, b int64) bool { return (a > 0) == (b > 0) }

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
