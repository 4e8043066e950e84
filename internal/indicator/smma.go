package indicator

import "candlepipe/internal/model"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return TypeSMMA }

func (s *SMMA) Update(c *model.Candle) {
	p := price(c.Close)
	s.count++

	if s.count <= s.period {
		s.sum += p
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}

	s.current = (s.current*float64(s.period-1) + p) / float64(s.period)
}

func (s *SMMA) Value() float64 { return s.current }
func (s *SMMA) Ready() bool    { return s.count >= s.period }

func (s *SMMA) Snapshot() Snapshot {
	return Snapshot{
		Type:    TypeSMMA,
		Period:  s.period,
		Count:   s.count,
		Sum:     s.sum,
		Current: s.current,
	}
}

func (s *SMMA) RestoreFromSnapshot(snap Snapshot) error {
	if err := snap.check(TypeSMMA); err != nil {
		return err
	}
	s.period = snap.Period
	s.count = snap.Count
	s.sum = snap.Sum
	s.current = snap.Current
	return nil
}
