package ledger

import "time"

const dateLayout = "2006-01-02"

// LocalDate is the calendar date of now in loc, as stored on progress records.
func LocalDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(dateLayout)
}

// ComputeAward caps base+bonus by what is left of the daily allowance.
// capped reports whether the cap reduced the award.
func ComputeAward(base, bonus, maxDaily, awardedToday int) (award int, capped bool) {
	want := base + bonus
	if want < 0 {
		want = 0
	}
	headroom := maxDaily - awardedToday
	if headroom < 0 {
		headroom = 0
	}
	if want > headroom {
		return headroom, true
	}
	return want, false
}

// NextStreak advances a daily streak. Same day keeps it, the following day
// extends it and any gap restarts it at 1.
func NextStreak(lastDate, today string, streak int) int {
	if lastDate == "" {
		return 1
	}
	if lastDate == today {
		if streak < 1 {
			return 1
		}
		return streak
	}
	last, err := time.Parse(dateLayout, lastDate)
	if err != nil {
		return 1
	}
	cur, err := time.Parse(dateLayout, today)
	if err != nil {
		return 1
	}
	if last.AddDate(0, 0, 1).Equal(cur) {
		return streak + 1
	}
	return 1
}

// DailyRemaining is the allowance left on today for a counter last reset on date.
func DailyRemaining(maxDaily, awarded int, date, today string) int {
	if date != today {
		awarded = 0
	}
	if r := maxDaily - awarded; r > 0 {
		return r
	}
	return 0
}
