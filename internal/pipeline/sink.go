package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"candlepipe/internal/model"
)

// SinkStage persists every candle it receives. It ends the chain.
//
// A failed write is reported and the run continues, unless the sink was
// built with FailFast, in which case the write error aborts the run.
type SinkStage struct {
	name      string
	persister model.CandlePersister
	failFast  bool
}

// SinkOption configures a SinkStage.
type SinkOption func(*SinkStage)

// FailFast makes persistence errors fatal.
func FailFast() SinkOption {
	return func(s *SinkStage) { s.failFast = true }
}

// NewSink wraps p. name distinguishes multiple sinks in logs and metrics.
func NewSink(name string, p model.CandlePersister, opts ...SinkOption) *SinkStage {
	s := &SinkStage{name: name, persister: p}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SinkStage) Name() string { return "sink:" + s.name }
func (*SinkStage) Terminal() bool { return true }

func (s *SinkStage) validate() error {
	if s.persister == nil {
		return fmt.Errorf("sink %s has no persister", s.name)
	}
	return nil
}

func (s *SinkStage) Process(ctx context.Context, sc *SharedContext, c *model.Candle) (Verdict, error) {
	start := time.Now()
	err := s.persister.Persist(ctx, c)
	sc.metrics.ObservePersist(s.name, time.Since(start), err)
	if err != nil {
		if s.failFast {
			return Drop, fmt.Errorf("%s: persist %s: %w", s.Name(), c.Key(), err)
		}
		sc.Report(s.Name(), c, err)
	}
	return Forward, nil
}

// Flush drains a buffering persister.
func (s *SinkStage) Flush(ctx context.Context) error {
	f, ok := s.persister.(Flusher)
	if !ok {
		return nil
	}
	if err := f.Flush(ctx); err != nil {
		return fmt.Errorf("%s: flush: %w", s.Name(), err)
	}
	return nil
}

// Flusher is implemented by stages and persisters that buffer writes. The
// Runner flushes them once after the source is exhausted.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Terminator consumes every candle that made it through the whole chain and
// is flushed once when the run completes without a fatal error.
type Terminator interface {
	Name() string
	Consume(ctx context.Context, sc *SharedContext, c *model.Candle) error
	Flush(ctx context.Context) error
}

// MultiPersister writes each candle to every persister in order. All
// persisters are attempted; their errors are joined.
type MultiPersister []model.CandlePersister

func (m MultiPersister) Persist(ctx context.Context, c *model.Candle) error {
	var errs []error
	for _, p := range m {
		if err := p.Persist(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush flushes every persister that buffers.
func (m MultiPersister) Flush(ctx context.Context) error {
	var errs []error
	for _, p := range m {
		if f, ok := p.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
