package portfolio

import (
	"log"
	"sync"
)

// RiskLimits are the thresholds a simulated trade must respect. Zero
// disables a limit.
type RiskLimits struct {
	MaxPositionSize  int64   `json:"max_position_size"`  // max |qty| per symbol
	MaxOpenPositions int     `json:"max_open_positions"` // max concurrent positions
	MaxLoss          int64   `json:"max_loss"`           // max realized loss, cents
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`   // 0-100
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  1000,
		MaxOpenPositions: 20,
		MaxLoss:          1_000_000, // $10,000
		MaxDrawdownPct:   10.0,
	}
}

// RiskManager validates trades against limits and tracks equity.
type RiskManager struct {
	mu        sync.RWMutex
	limits    RiskLimits
	portfolio *Portfolio

	pnl        int64
	equity     int64
	peakEquity int64
}

// NewRiskManager creates a RiskManager over pf with a starting equity in cents.
func NewRiskManager(limits RiskLimits, pf *Portfolio, initialEquity int64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		portfolio:  pf,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanHold reports whether moving symbol to targetQty is allowed, with the
// reason when it is not. Reducing a position is always allowed.
func (rm *RiskManager) CanHold(symbol string, targetQty int64) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	current := rm.portfolio.Qty(symbol)
	if abs(targetQty) <= abs(current) && (targetQty == 0 || sameSign(targetQty, current)) {
		return true, ""
	}

	l := rm.limits
	if l.MaxPositionSize > 0 && abs(targetQty) > l.MaxPositionSize {
		return false, "position size exceeds limit"
	}
	if l.MaxOpenPositions > 0 && current == 0 && len(rm.portfolio.Positions()) >= l.MaxOpenPositions {
		return false, "max open positions reached"
	}
	if l.MaxLoss > 0 && rm.pnl < -l.MaxLoss {
		return false, "max loss reached"
	}
	if l.MaxDrawdownPct > 0 && rm.peakEquity > 0 {
		drawdown := float64(rm.peakEquity-rm.equity) / float64(rm.peakEquity) * 100
		if drawdown > l.MaxDrawdownPct {
			return false, "max drawdown exceeded"
		}
	}
	return true, ""
}

// RecordPnL updates realized P&L and equity.
func (rm *RiskManager) RecordPnL(pnl int64) {
	if pnl == 0 {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.pnl += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}
	log.Printf("[risk] P&L: %d, equity: %d, peak: %d", rm.pnl, rm.equity, rm.peakEquity)
}

// Equity returns the current equity in cents.
func (rm *RiskManager) Equity() int64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.equity
}
