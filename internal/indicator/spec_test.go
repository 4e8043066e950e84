package indicator

import (
	"math"
	"testing"
)

func TestParseSpec(t *testing.T) {
	cases := map[string]Spec{
		"sma20": {TypeSMA, 20},
		"RSI14": {TypeRSI, 14},
		"ema9":  {TypeEMA, 9},
		"smma7": {TypeSMMA, 7},
	}
	for in, want := range cases {
		got, err := ParseSpec(in)
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Errorf("%s: got %+v, want %+v", in, got, want)
		}
	}

	for _, bad := range []string{"", "20", "sma", "macd12", "sma0"} {
		if _, err := ParseSpec(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}

	specs, err := ParseSpecs("sma5, sma20,,rsi14")
	if err != nil || len(specs) != 3 {
		t.Fatalf("ParseSpecs: %v %v", specs, err)
	}
	if specs[1].Name() != "sma20" {
		t.Errorf("expected sma20, got %s", specs[1].Name())
	}
}

func TestSet_WarmUpAndValues(t *testing.T) {
	set, err := NewSet([]Spec{{TypeSMA, 3}, {TypeRSI, 5}})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		set.Update(candle(10000))
	}
	vals := set.Values()
	if v, ok := vals.Get("sma3"); !ok || math.Abs(v-100) > 1e-9 {
		t.Errorf("expected sma3=100, got %v %v", v, ok)
	}
	if _, ok := vals.Get("rsi5"); ok {
		t.Error("rsi5 should still be warming up")
	}
	if p := set.Pending(); len(p) != 1 || p[0] != "rsi5" {
		t.Errorf("expected rsi5 pending, got %v", p)
	}
}

// Restoring from state per candle must give the same values as one
// long-lived set.
func TestRestoreSet_MatchesContinuousSet(t *testing.T) {
	specs := DefaultSpecs()
	continuous, _ := NewSet(specs)
	var state *State

	for i := 0; i < 60; i++ {
		c := candle(int64(10000 + (i%7)*150 - i*20))
		continuous.Update(c)

		step, err := RestoreSet(specs, state)
		if err != nil {
			t.Fatal(err)
		}
		step.Update(c)
		state = step.State()

		want, got := continuous.Values(), step.Values()
		for _, name := range want.Names() {
			g, ok := got.Get(name)
			w, _ := want.Get(name)
			if !ok || math.Abs(g-w) > 1e-9 {
				t.Fatalf("candle %d %s: continuous=%.6f restored=%.6f", i, name, w, g)
			}
		}
	}
}

func TestRestoreSet_ToleratesConfigChange(t *testing.T) {
	old, _ := NewSet([]Spec{{TypeSMA, 3}, {TypeEMA, 3}})
	for _, p := range []int64{10000, 10200, 10400} {
		old.Update(candle(p))
	}

	set, err := RestoreSet([]Spec{{TypeSMA, 3}, {TypeRSI, 5}}, old.State())
	if err != nil {
		t.Fatal(err)
	}
	vals := set.Values()
	if v, ok := vals.Get("sma3"); !ok || math.Abs(v-102) > 1e-9 {
		t.Errorf("sma3 should be restored, got %v %v", v, ok)
	}
	if _, ok := vals.Get("ema3"); ok {
		t.Error("ema3 is no longer configured")
	}
	if _, ok := vals.Get("rsi5"); ok {
		t.Error("rsi5 should start cold")
	}
}
