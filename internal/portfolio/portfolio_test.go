package portfolio

import "testing"

func TestPortfolio_LongRoundTrip(t *testing.T) {
	pf := New()
	pf.Apply("AAPL", 10, 10000)
	pf.Apply("AAPL", 10, 11000)

	if q := pf.Qty("AAPL"); q != 20 {
		t.Fatalf("qty: got %d, want 20", q)
	}
	if avg := pf.Positions()[0].AvgPrice; avg != 10500 {
		t.Fatalf("avg: got %d, want 10500", avg)
	}

	if r := pf.Apply("AAPL", -20, 12000); r != 30000 {
		t.Errorf("realized: got %d, want 30000", r)
	}
	s := pf.Summary()
	if s.OpenPositions != 0 || s.RealizedPnL != 30000 || s.Trades != 3 {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestPortfolio_ShortAndFlip(t *testing.T) {
	pf := New()
	pf.Apply("TSLA", -5, 20000)

	// cover 5 at 19000 (+5000) and open 5 long at 19000
	if r := pf.Apply("TSLA", 10, 19000); r != 5000 {
		t.Fatalf("realized: got %d, want 5000", r)
	}
	pos := pf.Positions()
	if len(pos) != 1 || pos[0].Qty != 5 || pos[0].AvgPrice != 19000 {
		t.Fatalf("unexpected position after flip %+v", pos)
	}

	pf.Mark("TSLA", 19500)
	if u := pf.Summary().UnrealizedPnL; u != 2500 {
		t.Errorf("unrealized: got %d, want 2500", u)
	}
}

func TestRiskManager(t *testing.T) {
	pf := New()
	rm := NewRiskManager(RiskLimits{MaxPositionSize: 10, MaxOpenPositions: 1, MaxLoss: 100}, pf, 1_000_000)

	if ok, _ := rm.CanHold("A", 11); ok {
		t.Error("size limit should apply")
	}
	if ok, why := rm.CanHold("A", 10); !ok {
		t.Errorf("expected allowed, got %s", why)
	}
	pf.Apply("A", 10, 100)

	if ok, _ := rm.CanHold("B", 1); ok {
		t.Error("open position limit should apply")
	}
	if ok, _ := rm.CanHold("A", 0); !ok {
		t.Error("closing is always allowed")
	}

	rm.RecordPnL(-200)
	if ok, _ := rm.CanHold("A", -10); ok {
		t.Error("loss limit should block new exposure")
	}
	if rm.Equity() != 999_800 {
		t.Errorf("equity: got %d", rm.Equity())
	}
}
