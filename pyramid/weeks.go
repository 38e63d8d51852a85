package pyramid

import "time"

// WeekStart returns Monday 00:00 of the scoring week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	offset := (int(local.Weekday()) + 6) % 7 // Monday = 0
	y, m, d := local.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
}

// PreviousWeekStart returns Monday 00:00 of the scoring week before t's.
// Activity since then covers both the current and the prior scoring week.
func PreviousWeekStart(t time.Time, loc *time.Location) time.Time {
	start := WeekStart(t, loc)
	return time.Date(start.Year(), start.Month(), start.Day()-7, 0, 0, 0, 0, start.Location())
}
