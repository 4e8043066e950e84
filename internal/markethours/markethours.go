// Package markethours knows the NSE trading calendar. The history loader
// uses it to stop before the bar that is still forming.
package markethours

import (
	"fmt"
	"time"

	"candlepipe/internal/model"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM – 3:30 PM IST, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd >= time.Monday && wd <= time.Friday && !IsHoliday(ist)
}

// TodayOpen returns the open of t's calendar day in IST.
func TodayOpen(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
}

// TodayClose returns the close of t's calendar day in IST.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// NextOpen returns the next market open at or after t.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	if open := TodayOpen(ist); ist.Before(open) && IsTradingDay(ist) {
		return open
	}
	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return TodayOpen(d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return TodayOpen(ist.AddDate(0, 0, 1))
}

// CompletedBefore returns the exclusive upper bound of the bars of span that
// are final at now. A bar that is still forming is excluded: during a
// trading day today's daily bar is excluded, and intraday bars stop at the
// start of the current minute or hour.
func CompletedBefore(now time.Time, span model.Timespan) time.Time {
	ist := now.In(IST)
	midnight := time.Date(ist.Year(), ist.Month(), ist.Day(), 0, 0, 0, 0, IST)
	switch span {
	case model.Minute, model.Hour:
		if !IsMarketOpen(ist) {
			return ist
		}
		d := span.Duration()
		return midnight.Add(ist.Sub(midnight) / d * d)
	default:
		if IsTradingDay(ist) && ist.Before(TodayClose(ist)) {
			return midnight
		}
		return ist
	}
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TodayClose(t).Sub(t)))
	}
	next := NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
