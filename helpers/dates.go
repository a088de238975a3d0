package helpers

import "time"

// MinutesPerDay is the number of minutes in a calendar day
const MinutesPerDay = 1440

// AfterMidnightCutoffMinutes marks bedtimes that belong to the previous evening.
// A bedtime before 04:00 is shifted by a full day so it sorts after 23:59.
const AfterMidnightCutoffMinutes = 4 * 60

// DateOnly truncates t to its calendar date in its own location and returns it as UTC midnight.
// All local_date values in the store use this representation.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the local date n days after date
func AddDays(date time.Time, n int) time.Time {
	return DateOnly(date).AddDate(0, 0, n)
}

// DaysBetween returns the whole number of days from a to b
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// MonthsBetween returns the span between two dates in (fractional) months
func MonthsBetween(a, b time.Time) float64 {
	return float64(DaysBetween(a, b)) / 30.44
}

// MinutesSinceMidnight converts a local wall-clock time to minutes since local midnight
func MinutesSinceMidnight(t time.Time) float64 {
	return float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
}

// BedtimeMinutes converts a bedtime to minutes since midnight of the evening it belongs to.
// 01:00 becomes 1500 so it baselines against 23:00 (1380) rather than wrapping to 60.
func BedtimeMinutes(t time.Time) float64 {
	m := MinutesSinceMidnight(t)
	if m < AfterMidnightCutoffMinutes {
		m += MinutesPerDay
	}
	return m
}
