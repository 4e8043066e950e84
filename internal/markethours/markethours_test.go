package markethours

import (
	"strings"
	"testing"
	"time"

	"candlepipe/internal/model"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestIsMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday midday", ist(2026, time.March, 2, 11, 0), true},
		{"before open", ist(2026, time.March, 2, 9, 14), false},
		{"at open", ist(2026, time.March, 2, 9, 15), true},
		{"at close", ist(2026, time.March, 2, 15, 30), false},
		{"saturday", ist(2026, time.March, 7, 11, 0), false},
		{"holiday", ist(2026, time.January, 26, 11, 0), false},
	}
	for _, tt := range tests {
		if got := IsMarketOpen(tt.t); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNextOpen_SkipsWeekendAndHoliday(t *testing.T) {
	// Friday 23 Jan 2026 after close; Monday 26 Jan is Republic Day.
	got := NextOpen(ist(2026, time.January, 23, 16, 0))
	if want := ist(2026, time.January, 27, 9, 15); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got := NextOpen(ist(2026, time.March, 2, 8, 0)); !got.Equal(ist(2026, time.March, 2, 9, 15)) {
		t.Errorf("same-day open: %v", got)
	}
}

func TestCompletedBefore(t *testing.T) {
	midday := ist(2026, time.March, 2, 11, 42)
	if got := CompletedBefore(midday, model.Day); !got.Equal(ist(2026, time.March, 2, 0, 0)) {
		t.Errorf("day during session: %v", got)
	}
	if got := CompletedBefore(midday, model.Hour); !got.Equal(ist(2026, time.March, 2, 11, 0)) {
		t.Errorf("hour during session: %v", got)
	}
	if got := CompletedBefore(midday, model.Minute); !got.Equal(ist(2026, time.March, 2, 11, 42)) {
		t.Errorf("minute during session: %v", got)
	}
	evening := ist(2026, time.March, 2, 18, 0)
	if got := CompletedBefore(evening, model.Day); !got.Equal(evening) {
		t.Errorf("day after close: %v", got)
	}
	weekend := ist(2026, time.March, 7, 11, 0)
	if got := CompletedBefore(weekend, model.Hour); !got.Equal(weekend) {
		t.Errorf("hour on weekend: %v", got)
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(ist(2026, time.March, 2, 15, 0)); !strings.HasPrefix(s, "Market Open") || !strings.Contains(s, "30m") {
		t.Errorf("open status: %q", s)
	}
	if s := StatusString(ist(2026, time.March, 7, 11, 0)); !strings.Contains(s, "Mon 09:15") {
		t.Errorf("closed status: %q", s)
	}
}
