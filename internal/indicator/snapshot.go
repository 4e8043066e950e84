package indicator

import (
	"errors"
	"fmt"

	"candlepipe/internal/model"
)

// ErrBadSnapshot is returned when a snapshot cannot be applied to an
// indicator.
var ErrBadSnapshot = errors.New("indicator: bad snapshot")

// Snapshottable is implemented by indicators that support state serialization.
type Snapshottable interface {
	Indicator
	Snapshot() Snapshot
	RestoreFromSnapshot(snap Snapshot) error
}

// Snapshot holds the serialized state of a single indicator instance.
type Snapshot struct {
	Type   string `json:"type"`
	Period int    `json:"period"`

	// SMA
	Buf []float64 `json:"buf,omitempty"`
	Idx int       `json:"idx,omitempty"`

	Count   int     `json:"count"`
	Sum     float64 `json:"sum,omitempty"`
	Current float64 `json:"current"`

	// RSI
	PrevClose float64 `json:"prev_close,omitempty"`
	AvgGain   float64 `json:"avg_gain,omitempty"`
	AvgLoss   float64 `json:"avg_loss,omitempty"`
}

// Spec returns the spec the snapshot was taken from.
func (s Snapshot) Spec() Spec { return Spec{Type: s.Type, Period: s.Period} }

func (s Snapshot) check(typ string) error {
	if s.Type != typ {
		return fmt.Errorf("%w: %s snapshot applied to %s", ErrBadSnapshot, s.Type, typ)
	}
	if s.Period <= 0 {
		return fmt.Errorf("%w: period %d", ErrBadSnapshot, s.Period)
	}
	return nil
}

// State is the indicator state of one symbol as of a candle. It is attached
// to the candle so the next candle of the same symbol can resume from it.
type State struct {
	Snapshots []Snapshot `json:"snapshots"`
}

func (*State) AttachmentKey() model.AttachmentKey { return model.KeyIndicatorState }

// StateOf returns the indicator state attached to c.
func StateOf(c *model.Candle) (*State, bool) {
	if c == nil {
		return nil, false
	}
	p, ok := c.Attachments.Get(model.KeyIndicatorState)
	if !ok {
		return nil, false
	}
	s, ok := p.(*State)
	return s, ok
}

func init() {
	model.RegisterAttachment(model.KeyIndicatorState, func() model.Attachment { return &State{} })
}
