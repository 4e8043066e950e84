package indicator

import "candlepipe/internal/model"

// EMA calculates Exponential Moving Average, seeded with the SMA of the
// first period closes.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return TypeEMA }

func (e *EMA) Update(c *model.Candle) {
	p := price(c.Close)
	e.count++

	if e.count <= e.period {
		e.sum += p
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (p * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

func (e *EMA) Snapshot() Snapshot {
	return Snapshot{
		Type:    TypeEMA,
		Period:  e.period,
		Current: e.current,
		Count:   e.count,
		Sum:     e.sum,
	}
}

func (e *EMA) RestoreFromSnapshot(snap Snapshot) error {
	if err := snap.check(TypeEMA); err != nil {
		return err
	}
	e.period = snap.Period
	e.multiplier = 2.0 / float64(snap.Period+1)
	e.current = snap.Current
	e.count = snap.Count
	e.sum = snap.Sum
	return nil
}
