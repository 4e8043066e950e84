package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("fail")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int) (*CircuitBreaker, *clock) {
	clk := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, time.Second)
	cb.now = clk.now
	return cb, clk
}

func fail(context.Context) error    { return errFail }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); err != errFail {
			t.Fatalf("expected errFail, got %v", err)
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open after 3 failures, got %v", cb.CurrentState())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if err != ErrCircuitOpen || called {
		t.Errorf("expected rejection without a call, got %v called=%v", err, called)
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	ctx := context.Background()

	cb, clk := newTestBreaker(2)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	clk.advance(2 * time.Second)
	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected Closed after successful probe, got %v", cb.CurrentState())
	}

	cb, clk = newTestBreaker(2)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	clk.advance(2 * time.Second)
	cb.Execute(ctx, fail)
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected Open after failed probe, got %v", cb.CurrentState())
	}
}

func TestCircuitBreaker_SingleProbe(t *testing.T) {
	ctx := context.Background()
	cb, clk := newTestBreaker(1)
	cb.Execute(ctx, fail)
	clk.advance(2 * time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		// a second caller while the probe is in flight is rejected
		if inner := cb.Execute(ctx, succeed); inner != ErrCircuitOpen {
			t.Errorf("expected concurrent call to be rejected, got %v", inner)
		}
		return nil
	})
	if err != nil || cb.CurrentState() != StateClosed {
		t.Errorf("probe: err=%v state=%v", err, cb.CurrentState())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, succeed)
	cb.Execute(ctx, fail)
	cb.Execute(ctx, fail)

	if cb.CurrentState() != StateClosed || cb.Failures() != 2 {
		t.Errorf("expected Closed with 2 failures, got %v/%d", cb.CurrentState(), cb.Failures())
	}
}

func TestCircuitBreaker_IgnoresCancellation(t *testing.T) {
	cb, _ := newTestBreaker(1)
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if !errors.Is(err, context.Canceled) || cb.CurrentState() != StateClosed {
		t.Errorf("cancellation must not trip the breaker: %v %v", err, cb.CurrentState())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []State
	cb, clk := newTestBreaker(1)
	cb.OnStateChange = func(from, to State) { transitions = append(transitions, to) }
	ctx := context.Background()

	cb.Execute(ctx, fail)
	clk.advance(2 * time.Second)
	cb.Execute(ctx, succeed)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("expected %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: got %v, want %v", i, transitions[i], want[i])
		}
	}
}
