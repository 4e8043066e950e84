package indicator

import (
	"fmt"

	"candlepipe/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return TypeSMA }

func (s *SMA) Update(c *model.Candle) {
	p := price(c.Close)

	if s.count >= s.period {
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = p
	s.sum += p
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

func (s *SMA) Snapshot() Snapshot {
	return Snapshot{
		Type:    TypeSMA,
		Period:  s.period,
		Buf:     append([]float64(nil), s.buf...),
		Idx:     s.idx,
		Count:   s.count,
		Sum:     s.sum,
		Current: s.current,
	}
}

func (s *SMA) RestoreFromSnapshot(snap Snapshot) error {
	if err := snap.check(TypeSMA); err != nil {
		return err
	}
	if len(snap.Buf) != 0 && len(snap.Buf) != snap.Period {
		return fmt.Errorf("%w: SMA buffer has %d slots for period %d", ErrBadSnapshot, len(snap.Buf), snap.Period)
	}
	s.period = snap.Period
	s.idx = snap.Idx
	s.count = snap.Count
	s.sum = snap.Sum
	s.current = snap.Current
	s.buf = make([]float64, snap.Period)
	copy(s.buf, snap.Buf)
	return nil
}
