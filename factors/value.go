package factors

import (
	"time"

	"pulse-insights/helpers"
)

// Value is a typed factor value: numeric, text or time-of-day
type Value struct {
	kind Kind
	num  float64
	text string
}

// Numeric wraps a plain numeric value
func Numeric(v float64) Value {
	return Value{kind: KindNumeric, num: v}
}

// Text wraps a text value
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// ClockTime converts a local wall-clock time to minutes since local midnight
func ClockTime(t time.Time) Value {
	return Value{kind: KindTimeOfDay, num: helpers.MinutesSinceMidnight(t)}
}

// Bedtime converts a bedtime to minutes since midnight, pushing times before
// 04:00 past 1440 so late bedtimes stay comparable to each other
func Bedtime(t time.Time) Value {
	return Value{kind: KindTimeOfDay, num: helpers.BedtimeMinutes(t)}
}

// Kind returns the variant
func (v Value) Kind() Kind {
	return v.kind
}

// Float returns the numeric payload; zero for text values
func (v Value) Float() float64 {
	return v.num
}
