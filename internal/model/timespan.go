package model

import (
	"fmt"
	"strings"
	"time"
)

// Timespan is the bar granularity of a candle.
type Timespan string

const (
	Minute Timespan = "minute"
	Hour   Timespan = "hour"
	Day    Timespan = "day"
	Week   Timespan = "week"
)

// Duration returns the nominal length of one bar.
func (t Timespan) Duration() time.Duration {
	switch t {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

func (t Timespan) String() string { return string(t) }

// ParseTimespan accepts "day", "1d", "hour", "1h", "minute", "1m", "week", "1w".
func ParseTimespan(s string) (Timespan, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minute", "1m", "min":
		return Minute, nil
	case "hour", "1h", "h":
		return Hour, nil
	case "day", "1d", "d", "daily":
		return Day, nil
	case "week", "1w", "w", "weekly":
		return Week, nil
	}
	return "", fmt.Errorf("unknown timespan %q", s)
}
