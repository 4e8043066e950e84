// Package universe resolves the set of instruments a pipeline run covers.
//
// An entry is either a bare symbol ("AAPL") or "EXCHANGE:TOKEN:SYMBOL"
// ("NSE:3045:SBIN-EQ") when a broker token is needed to fetch history.
// Lists are comma separated; files hold one entry per line with '#'
// comments.
package universe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmpty is returned when a universe resolves to no instruments.
var ErrEmpty = errors.New("universe: no instruments")

// DefaultExchange is used for bare symbols.
const DefaultExchange = "NSE"

// Instrument is one tradable symbol.
type Instrument struct {
	Symbol   string
	Exchange string
	Token    string // broker token; equals Symbol for bare entries
}

func (i Instrument) String() string {
	return i.Exchange + ":" + i.Token + ":" + i.Symbol
}

// Provider yields the instruments of a run in a stable order.
type Provider interface {
	Instruments() []Instrument
}

// Universe is a deduplicated, ordered instrument list.
type Universe struct {
	list []Instrument
}

// Instruments returns a copy of the list.
func (u *Universe) Instruments() []Instrument {
	return append([]Instrument(nil), u.list...)
}

// Symbols returns the symbols in order.
func (u *Universe) Symbols() []string {
	out := make([]string, len(u.list))
	for i, in := range u.list {
		out[i] = in.Symbol
	}
	return out
}

// Lookup finds an instrument by symbol.
func (u *Universe) Lookup(symbol string) (Instrument, bool) {
	for _, in := range u.list {
		if in.Symbol == symbol {
			return in, true
		}
	}
	return Instrument{}, false
}

// ParseEntry parses a single universe entry.
func ParseEntry(s string) (Instrument, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch {
	case len(parts) == 1 && parts[0] != "":
		return Instrument{Symbol: parts[0], Exchange: DefaultExchange, Token: parts[0]}, nil
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "":
		return Instrument{Exchange: parts[0], Token: parts[1], Symbol: parts[2]}, nil
	}
	return Instrument{}, fmt.Errorf("universe: bad entry %q (want SYMBOL or EXCHANGE:TOKEN:SYMBOL)", s)
}

// FromList parses a comma separated list.
func FromList(list string) (*Universe, error) {
	return build(strings.Split(list, ","))
}

// FromReader parses one entry per line. Blank lines and '#' comments are
// ignored.
func FromReader(r io.Reader) (*Universe, error) {
	var entries []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		entries = append(entries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("universe: read: %w", err)
	}
	return build(entries)
}

// FromFile reads a universe file.
func FromFile(path string) (*Universe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("universe: %w", err)
	}
	defer f.Close()
	return FromReader(f)
}

// Load prefers the file when set, otherwise the list.
func Load(list, file string) (*Universe, error) {
	if file != "" {
		return FromFile(file)
	}
	return FromList(list)
}

func build(entries []string) (*Universe, error) {
	u := &Universe{}
	seen := make(map[string]bool)
	for _, e := range entries {
		if strings.TrimSpace(e) == "" {
			continue
		}
		in, err := ParseEntry(e)
		if err != nil {
			return nil, err
		}
		if seen[in.Symbol] {
			continue
		}
		seen[in.Symbol] = true
		u.list = append(u.list, in)
	}
	if len(u.list) == 0 {
		return nil, ErrEmpty
	}
	return u, nil
}
