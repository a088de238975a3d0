package helpers

import (
	"fmt"
	"math"
)

// FormatThousands formats a number with comma thousand separators (e.g. 12,345)
func FormatThousands(amount float64) string {
	value := int64(math.Round(amount))

	negative := value < 0
	if negative {
		value = -value
	}

	str := fmt.Sprintf("%d", value)
	length := len(str)

	if length <= 3 {
		if negative {
			return "-" + str
		}
		return str
	}

	var result string
	for i, digit := range str {
		if i > 0 && (length-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}

	if negative {
		return "-" + result
	}
	return result
}

// FormatClock renders minutes since local midnight as HH:MM.
// Values past 1440 (after-midnight bedtimes) wrap back onto the clock face.
func FormatClock(minutes float64) string {
	m := int(math.Round(minutes)) % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// FormatSignedPercent renders a percentage deviation such as "+17%" or "-40%"
func FormatSignedPercent(pct float64) string {
	return fmt.Sprintf("%+.0f%%", pct)
}

// FormatSignedCelsius renders an absolute temperature deviation such as "+0.4°C"
func FormatSignedCelsius(delta float64) string {
	return fmt.Sprintf("%+.1f°C", delta)
}
