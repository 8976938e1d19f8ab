package schedule

import "time"

// AddYear returns t one calendar year later: same month, day and clock time.
// Feb 29 follows time.AddDate normalization and becomes Mar 1.
func AddYear(t time.Time) time.Time {
	return t.AddDate(1, 0, 0)
}

// NextAnniversary returns the first yearly recurrence of at that is strictly
// after now, never at itself. Each candidate is computed from at, so a leap
// day only shifts the years that lack one.
func NextAnniversary(at, now time.Time) time.Time {
	years := now.Year() - at.Year()
	if years < 1 {
		years = 1
	}
	for {
		next := at.AddDate(years, 0, 0)
		if next.After(now) {
			return next
		}
		years++
	}
}
