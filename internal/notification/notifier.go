// Package notification delivers alerts about signals and run outcomes to
// external channels (Telegram, generic webhooks) or the log.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"candlepipe/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalAlerter is a pipeline executor that turns each non-empty signal
// batch into one alert. Delivery failures are logged and never stop the run.
type SignalAlerter struct {
	n      Notifier
	failed int
}

// NewSignalAlerter wraps n.
func NewSignalAlerter(n Notifier) *SignalAlerter {
	return &SignalAlerter{n: n}
}

// Failed returns the number of alerts that could not be delivered.
func (s *SignalAlerter) Failed() int { return s.failed }

func (s *SignalAlerter) OnSignals(ctx context.Context, signals []model.Signal) {
	if len(signals) == 0 {
		return
	}
	if err := s.n.Send(ctx, SignalAlert(signals)); err != nil {
		s.failed++
		log.Printf("[notify] signal alert failed: %v", err)
	}
}

// SignalAlert formats one candle's signals. All signals in a batch share
// the same symbol and bar.
func SignalAlert(signals []model.Signal) Alert {
	first := signals[0]
	var b strings.Builder
	for i, sig := range signals {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s @ %.2f", sig.Strategy, sig.Direction, float64(sig.Price)/100)
		if sig.Reason != "" {
			fmt.Fprintf(&b, " (%s)", sig.Reason)
		}
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("%s %s", first.Symbol, first.TS.UTC().Format("2006-01-02 15:04")),
		Message: b.String(),
	}
}

// RunFailed builds the alert sent when a pipeline run stops on a fatal error.
func RunFailed(pipeline string, err error) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   "pipeline " + pipeline + " failed",
		Message: err.Error(),
	}
}
