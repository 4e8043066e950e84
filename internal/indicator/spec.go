package indicator

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"candlepipe/internal/model"
)

const (
	TypeSMA  = "SMA"
	TypeEMA  = "EMA"
	TypeSMMA = "SMMA"
	TypeRSI  = "RSI"
)

// Spec names one indicator instance.
type Spec struct {
	Type   string `json:"type" yaml:"type"`
	Period int    `json:"period" yaml:"period"`
}

// Name is the attachment name of the indicator value, e.g. "sma20".
func (s Spec) Name() string { return strings.ToLower(s.Type) + strconv.Itoa(s.Period) }

func (s Spec) String() string { return s.Name() }

// New returns a fresh indicator for s.
func (s Spec) New() (Snapshottable, error) {
	if s.Period <= 0 {
		return nil, fmt.Errorf("indicator %s: period must be positive", s.Name())
	}
	switch s.Type {
	case TypeSMA:
		return NewSMA(s.Period), nil
	case TypeEMA:
		return NewEMA(s.Period), nil
	case TypeSMMA:
		return NewSMMA(s.Period), nil
	case TypeRSI:
		return NewRSI(s.Period), nil
	}
	return nil, fmt.Errorf("indicator %s: unknown type %q", s.Name(), s.Type)
}

// ParseSpec parses a name such as "sma20" or "RSI14".
func ParseSpec(name string) (Spec, error) {
	i := strings.IndexAny(name, "0123456789")
	if i <= 0 {
		return Spec{}, fmt.Errorf("indicator %q: expected <type><period>", name)
	}
	period, err := strconv.Atoi(name[i:])
	if err != nil {
		return Spec{}, fmt.Errorf("indicator %q: %w", name, err)
	}
	s := Spec{Type: strings.ToUpper(name[:i]), Period: period}
	if _, err := s.New(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// ParseSpecs parses a comma separated list of indicator names.
func ParseSpecs(list string) ([]Spec, error) {
	var specs []Spec
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s, err := ParseSpec(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// DefaultSpecs is the set computed by the daily loaders.
func DefaultSpecs() []Spec {
	return []Spec{
		{Type: TypeSMA, Period: 5},
		{Type: TypeSMA, Period: 20},
		{Type: TypeSMA, Period: 50},
		{Type: TypeEMA, Period: 9},
		{Type: TypeEMA, Period: 21},
		{Type: TypeSMMA, Period: 14},
		{Type: TypeRSI, Period: 14},
	}
}

// Set is the group of indicators tracked for one symbol.
// It is not safe for concurrent use.
type Set struct {
	specs []Spec
	inds  []Snapshottable
}

// NewSet creates cold indicators for specs.
func NewSet(specs []Spec) (*Set, error) {
	s := &Set{
		specs: append([]Spec(nil), specs...),
		inds:  make([]Snapshottable, len(specs)),
	}
	for i, sp := range specs {
		ind, err := sp.New()
		if err != nil {
			return nil, err
		}
		s.inds[i] = ind
	}
	return s, nil
}

// RestoreSet rebuilds a set from state. Indicators are matched by
// Type+Period, so specs added since the state was taken start cold and
// snapshots no longer configured are skipped. A nil state is a cold start.
func RestoreSet(specs []Spec, state *State) (*Set, error) {
	s, err := NewSet(specs)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return s, nil
	}

	lookup := make(map[Spec]Snapshot, len(state.Snapshots))
	for _, snap := range state.Snapshots {
		lookup[snap.Spec()] = snap
	}

	for i, sp := range s.specs {
		snap, ok := lookup[sp]
		if !ok {
			continue
		}
		if err := s.inds[i].RestoreFromSnapshot(snap); err != nil {
			log.Printf("[indicator] %s: cold start after restore failure: %v", sp.Name(), err)
			fresh, _ := sp.New()
			s.inds[i] = fresh
		}
	}
	return s, nil
}

// Update feeds c to every indicator.
func (s *Set) Update(c *model.Candle) {
	for _, ind := range s.inds {
		ind.Update(c)
	}
}

// Values returns the ready indicator values keyed by spec name. The result
// is empty during warm-up.
func (s *Set) Values() *model.Indicators {
	out := model.NewIndicators()
	for i, ind := range s.inds {
		if ind.Ready() {
			out.Set(s.specs[i].Name(), ind.Value())
		}
	}
	return out
}

// Pending returns the names of indicators that are not ready yet.
func (s *Set) Pending() []string {
	var names []string
	for i, ind := range s.inds {
		if !ind.Ready() {
			names = append(names, s.specs[i].Name())
		}
	}
	return names
}

// State snapshots every indicator.
func (s *Set) State() *State {
	st := &State{Snapshots: make([]Snapshot, len(s.inds))}
	for i, ind := range s.inds {
		st.Snapshots[i] = ind.Snapshot()
	}
	return st
}

// Specs returns the configured specs.
func (s *Set) Specs() []Spec { return append([]Spec(nil), s.specs...) }
