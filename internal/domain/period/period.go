// Package period implements ISO-8601 week arithmetic used to key weekly snippets.
//
// All functions are pure. Week boundaries are returned in UTC at midnight; callers
// that care about a user's timezone convert "now" before asking for the current week.
package period

import (
	"fmt"
	"math"
	"time"
)

const (
	MinWeek = 1
	MaxWeek = 53

	// workdays spans Monday..Friday inclusive.
	workdays = 4
)

// ISOWeek returns the ISO-8601 (year, week) containing t. Dates close to a year
// boundary may belong to the neighbouring year (2024-12-30 is week 1 of 2025).
func ISOWeek(t time.Time) (year, week int) {
	return t.ISOWeek()
}

// Start returns the Monday of the given ISO week.
func Start(year, week int) time.Time {
	// January 4th is always in week 1.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (week-1)*7)
}

// End returns the Friday of the given ISO week (Start + 4 days).
func End(year, week int) time.Time {
	return Start(year, week).AddDate(0, 0, workdays)
}

// Current returns the ISO week that contains now.
func Current(now time.Time) (year, week int) {
	return ISOWeek(now)
}

// IsFuture reports whether (year, week) is strictly later than the week containing now.
func IsFuture(week, year int, now time.Time) bool {
	cy, cw := Current(now)
	if year != cy {
		return year > cy
	}
	return week > cw
}

// IsValidNumber reports whether n can be an ISO week number at all.
func IsValidNumber(n int) bool {
	return n >= MinWeek && n <= MaxWeek
}

// IsValidFloat is IsValidNumber for values decoded from loosely typed input
// (JSON numbers); NaN, infinities and non-integers are rejected.
func IsValidFloat(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return false
	}
	return IsValidNumber(int(f))
}

// WeeksInYear returns 53 for long ISO years and 52 otherwise.
func WeeksInYear(year int) int {
	// December 28th is always in the last week of its ISO year.
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

// IsCanonicalSpan reports whether start/end are exactly the Monday..Friday span
// of (year, week). Only the calendar date is compared.
func IsCanonicalSpan(year, week int, start, end time.Time) bool {
	return sameDate(start, Start(year, week)) && sameDate(end, End(year, week))
}

// Key renders a stable identifier like "2025-W07".
func Key(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
