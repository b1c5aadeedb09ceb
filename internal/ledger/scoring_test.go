package ledger

import (
	"testing"
	"time"
)

func TestComputeAward(t *testing.T) {
	cases := []struct {
		name                      string
		base, bonus, max, awarded int
		want                      int
		capped                    bool
	}{
		{"fresh day", 5, 10, 100, 0, 15, false},
		{"exactly fills", 5, 10, 100, 85, 15, false},
		{"partial", 5, 10, 100, 90, 10, true},
		{"exhausted", 5, 10, 100, 100, 0, true},
		{"over recorded", 5, 0, 100, 120, 0, true},
		{"zero cap", 5, 10, 0, 0, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, capped := ComputeAward(tc.base, tc.bonus, tc.max, tc.awarded)
			if got != tc.want || capped != tc.capped {
				t.Fatalf("ComputeAward=%d,%v want %d,%v", got, capped, tc.want, tc.capped)
			}
		})
	}
}

func TestNextStreak(t *testing.T) {
	cases := []struct {
		last, today string
		streak      int
		want        int
	}{
		{"", "2026-10-15", 0, 1},
		{"2026-10-15", "2026-10-15", 4, 4},
		{"2026-10-14", "2026-10-15", 4, 5},
		{"2026-10-13", "2026-10-15", 4, 1},
		{"2026-02-28", "2026-03-01", 2, 3},
		{"2026-12-31", "2027-01-01", 9, 10},
		{"garbage", "2026-10-15", 3, 1},
	}
	for _, tc := range cases {
		if got := NextStreak(tc.last, tc.today, tc.streak); got != tc.want {
			t.Fatalf("NextStreak(%q,%q,%d)=%d want %d", tc.last, tc.today, tc.streak, got, tc.want)
		}
	}
}

func TestLocalDateUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, time.UTC)
	if got := LocalDate(now, time.UTC); got != "2026-10-15" {
		t.Fatalf("utc=%s", got)
	}
	if got := LocalDate(now, tokyo); got != "2026-10-16" {
		t.Fatalf("tokyo=%s", got)
	}
}

func TestDailyRemaining(t *testing.T) {
	if got := DailyRemaining(100, 40, "2026-10-15", "2026-10-15"); got != 60 {
		t.Fatalf("same day=%d", got)
	}
	if got := DailyRemaining(100, 100, "2026-10-14", "2026-10-15"); got != 100 {
		t.Fatalf("stale counter=%d", got)
	}
	if got := DailyRemaining(100, 130, "2026-10-15", "2026-10-15"); got != 0 {
		t.Fatalf("overdrawn=%d", got)
	}
}
