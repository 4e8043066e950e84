package indicator

import (
	"math"
	"testing"

	"candlepipe/internal/model"
)

func candle(closeCents int64) *model.Candle {
	return &model.Candle{
		Symbol: "TEST", Exchange: "NYSE", Timespan: model.Day,
		Open: closeCents, High: closeCents + 50, Low: closeCents - 50, Close: closeCents,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func feed(ind Indicator, closes ...int64) {
	for _, c := range closes {
		ind.Update(candle(c))
	}
}

// Hand-calculated series. Closes are in cents, expectations in dollars;
// a zero expectation means the indicator must not be ready yet.
func TestIndicators_HandCalculated(t *testing.T) {
	cases := []struct {
		name   string
		ind    Indicator
		closes []int64
		want   []float64
		tol    float64
	}{
		{
			// (100+102+104)/3, (102+104+103)/3, (104+103+105)/3
			name:   "SMA3",
			ind:    NewSMA(3),
			closes: []int64{10000, 10200, 10400, 10300, 10500},
			want:   []float64{0, 0, 102, 103, 104},
			tol:    1e-4,
		},
		{
			name:   "SMA5",
			ind:    NewSMA(5),
			closes: []int64{1000, 1100, 1200, 1300, 1400, 1500, 1600},
			want:   []float64{0, 0, 0, 0, 12, 13, 14},
			tol:    1e-4,
		},
		{
			// k = 0.5, seeded with SMA: 102, then 103*.5+102*.5, 105*.5+102.5*.5
			name:   "EMA3",
			ind:    NewEMA(3),
			closes: []int64{10000, 10200, 10400, 10300, 10500},
			want:   []float64{0, 0, 102, 102.5, 103.75},
			tol:    1e-4,
		},
		{
			// seed 102, then (102*2+103)/3, (102.3333*2+105)/3
			name:   "SMMA3",
			ind:    NewSMMA(3),
			closes: []int64{10000, 10200, 10400, 10300, 10500},
			want:   []float64{0, 0, 102, 102.3333, 103.2222},
			tol:    1e-3,
		},
		{
			// avgGain 1.56/5, avgLoss 0.73/5 -> 68.112, then Wilder smoothing
			name:   "RSI5",
			ind:    NewRSI(5),
			closes: []int64{4400, 4434, 4409, 4361, 4433, 4483, 4510, 4542, 4584},
			want:   []float64{0, 0, 0, 0, 0, 68.112, 72.219, 76.658, 81.509},
			tol:    0.2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for i, c := range tc.closes {
				tc.ind.Update(candle(c))
				wantReady := tc.want[i] != 0
				if tc.ind.Ready() != wantReady {
					t.Fatalf("candle %d: Ready()=%v, want %v", i, tc.ind.Ready(), wantReady)
				}
				if wantReady {
					assertClose(t, tc.name, tc.ind.Value(), tc.want[i], tc.tol)
				}
			}
		})
	}
}

func TestEMA_Period5_Seed(t *testing.T) {
	ema := NewEMA(5)
	closes := []int64{4400, 4425, 4450, 4375, 4450, 4425, 4400}
	feed(ema, closes[:5]...)

	seed := (44.0 + 44.25 + 44.50 + 43.75 + 44.50) / 5.0
	assertClose(t, "seed", ema.Value(), seed, 0.01)

	k := 2.0 / 6.0
	ema.Update(candle(closes[5]))
	next := 44.25*k + seed*(1-k)
	assertClose(t, "candle 6", ema.Value(), next, 0.01)
}

func TestRSI_Extremes(t *testing.T) {
	up, down, flat := NewRSI(5), NewRSI(5), NewRSI(5)
	for i := 0; i < 10; i++ {
		up.Update(candle(int64(10000 + i*100)))
		down.Update(candle(int64(20000 - i*100)))
		flat.Update(candle(10000))
	}
	assertClose(t, "all up", up.Value(), 100, 1e-3)
	assertClose(t, "all down", down.Value(), 0, 1e-3)
	// no losses at all, including no movement, reads as 100
	assertClose(t, "flat", flat.Value(), 100, 1e-3)

	before := up.Value()
	up.Update(candle(8000))
	if up.Value() >= before {
		t.Errorf("a drop should lower RSI: now=%.2f before=%.2f", up.Value(), before)
	}
}

func TestMovingAverages_TrendOrdering(t *testing.T) {
	sma5, sma20, ema5 := NewSMA(5), NewSMA(20), NewEMA(5)
	for i := 0; i < 30; i++ {
		c := candle(int64(10000 + i*100))
		sma5.Update(c)
		sma20.Update(c)
		ema5.Update(c)
	}
	if sma5.Value() <= sma20.Value() || ema5.Value() <= sma20.Value() {
		t.Errorf("fast averages should lead in an uptrend: sma5=%.2f ema5=%.2f sma20=%.2f",
			sma5.Value(), ema5.Value(), sma20.Value())
	}

	sma, ema := NewSMA(10), NewEMA(10)
	for i := 0; i < 20; i++ {
		sma.Update(candle(10000))
		ema.Update(candle(10000))
	}
	sma.Update(candle(12000))
	ema.Update(candle(12000))
	if ema.Value() <= sma.Value() {
		t.Errorf("EMA should react more than SMA to a jump: EMA=%.4f SMA=%.4f", ema.Value(), sma.Value())
	}
}
