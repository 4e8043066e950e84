// Package binning accumulates per-symbol histograms of indicator values and
// writes them as YAML at the end of a run.
//
// Each indicator is bucketed against a sorted list of edges. A histogram
// with n edges has n+1 counts: values below edges[0], one bucket per
// interval [edges[i-1], edges[i]), and values at or above the last edge.
// Indicators without configured edges get equal-frequency edges computed
// from every value seen in the run.
package binning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"candlepipe/internal/model"
	"candlepipe/internal/pipeline"
)

// ErrNoValues is reported for candles that carry no values to bin.
var ErrNoValues = errors.New("binning: candle has no indicator values")

// Config controls a Binner.
type Config struct {
	Path string

	// Symbols restricts binning to these symbols. Empty means all.
	Symbols []string
	// Raw bins the indicators attachment instead of the normalized one.
	Raw bool
	// Edges fixes the bucket edges per indicator name.
	Edges map[string][]float64
	// Buckets is the number of equal-frequency buckets for indicators
	// without fixed edges. Defaults to 10.
	Buckets int
}

// DefaultEdges buckets normalized moving-average distance in 2% steps and
// normalized RSI in tenths.
func DefaultEdges() map[string][]float64 {
	ma := []float64{-0.1, -0.08, -0.06, -0.04, -0.02, 0, 0.02, 0.04, 0.06, 0.08, 0.1}
	rsi := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	edges := make(map[string][]float64)
	for _, n := range []string{"sma5", "sma20", "sma50", "ema9", "ema21", "smma14"} {
		edges[n] = ma
	}
	edges["rsi14"] = rsi
	return edges
}

// Histogram is the serialized bucket layout of one indicator.
type Histogram struct {
	Edges   []float64        `yaml:"edges"`
	Total   []int            `yaml:"total"`
	Symbols map[string][]int `yaml:"symbols"`
}

// Report is the YAML document written on Flush.
type Report struct {
	GeneratedAt time.Time             `yaml:"generated_at"`
	Attachment  string                `yaml:"attachment"`
	Candles     int                   `yaml:"candles"`
	Indicators  map[string]*Histogram `yaml:"indicators"`
}

// Binner is a pipeline.Terminator.
type Binner struct {
	cfg     Config
	symbols map[string]bool

	// values[indicator][symbol] in arrival order
	values  map[string]map[string][]float64
	candles int
	now     func() time.Time
}

// New validates cfg and returns an empty Binner.
func New(cfg Config) (*Binner, error) {
	if cfg.Path == "" {
		return nil, errors.New("binning: output path required")
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = 10
	}
	for name, e := range cfg.Edges {
		if len(e) == 0 {
			return nil, fmt.Errorf("binning: %s: no edges", name)
		}
		if !sort.Float64sAreSorted(e) {
			return nil, fmt.Errorf("binning: %s: edges not ascending", name)
		}
	}
	b := &Binner{
		cfg:    cfg,
		values: make(map[string]map[string][]float64),
		now:    time.Now,
	}
	if len(cfg.Symbols) > 0 {
		b.symbols = make(map[string]bool, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			b.symbols[s] = true
		}
	}
	return b, nil
}

func (b *Binner) Name() string { return "binner" }

func (b *Binner) attachment() model.AttachmentKey {
	if b.cfg.Raw {
		return model.KeyIndicators
	}
	return model.KeyNormalizedIndicators
}

// Consume records the candle's values. Candles without values are reported
// and skipped.
func (b *Binner) Consume(ctx context.Context, sc *pipeline.SharedContext, c *model.Candle) error {
	if b.symbols != nil && !b.symbols[c.Symbol] {
		return nil
	}
	var ind *model.Indicators
	if b.cfg.Raw {
		ind, _ = model.IndicatorsOf(c)
	} else if n, ok := model.NormalizedOf(c); ok {
		ind = &n.Indicators
	}
	if ind == nil || len(ind.Values) == 0 {
		sc.Report(b.Name(), c, fmt.Errorf("%w (%s)", ErrNoValues, b.attachment()))
		return nil
	}
	for name, v := range ind.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		bySym, ok := b.values[name]
		if !ok {
			bySym = make(map[string][]float64)
			b.values[name] = bySym
		}
		bySym[c.Symbol] = append(bySym[c.Symbol], v)
	}
	b.candles++
	return nil
}

// Report builds the histograms from the values seen so far.
func (b *Binner) Report() *Report {
	r := &Report{
		GeneratedAt: b.now().UTC(),
		Attachment:  string(b.attachment()),
		Candles:     b.candles,
		Indicators:  make(map[string]*Histogram, len(b.values)),
	}
	for name, bySym := range b.values {
		edges, ok := b.cfg.Edges[name]
		if !ok {
			var all []float64
			for _, vs := range bySym {
				all = append(all, vs...)
			}
			edges = QuantileEdges(all, b.cfg.Buckets)
		}
		h := &Histogram{
			Edges:   edges,
			Total:   make([]int, len(edges)+1),
			Symbols: make(map[string][]int, len(bySym)),
		}
		for sym, vs := range bySym {
			counts := make([]int, len(edges)+1)
			for _, v := range vs {
				i := Bucket(edges, v)
				counts[i]++
				h.Total[i]++
			}
			h.Symbols[sym] = counts
		}
		r.Indicators[name] = h
	}
	return r
}

// Flush writes the report to the configured path, replacing it atomically.
func (b *Binner) Flush(ctx context.Context) error {
	out, err := yaml.Marshal(b.Report())
	if err != nil {
		return fmt.Errorf("binning: encode: %w", err)
	}
	if dir := filepath.Dir(b.cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("binning: %w", err)
		}
	}
	tmp := b.cfg.Path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("binning: write: %w", err)
	}
	if err := os.Rename(tmp, b.cfg.Path); err != nil {
		return fmt.Errorf("binning: rename: %w", err)
	}
	return nil
}

// Load reads a report written by Flush.
func Load(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("binning: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("binning: decode %s: %w", path, err)
	}
	return &r, nil
}

// Bucket returns the index of the bucket v falls in for the given edges.
func Bucket(edges []float64, v float64) int {
	return sort.Search(len(edges), func(i int) bool { return v < edges[i] })
}

// QuantileEdges returns up to n-1 distinct edges splitting values into n
// buckets of roughly equal size.
func QuantileEdges(values []float64, n int) []float64 {
	if len(values) == 0 || n < 2 {
		return []float64{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	edges := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		e := sorted[i*len(sorted)/n]
		if len(edges) > 0 && e <= edges[len(edges)-1] {
			continue
		}
		edges = append(edges, e)
	}
	return edges
}
