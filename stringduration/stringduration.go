package stringduration

import (
	"fmt"
	"strconv"
	"time"
)

// GetHoursAndMinutes splits a duration into whole hours and the remaining minutes as strings.
// Seconds are truncated.
func GetHoursAndMinutes(d time.Duration) (string, string) {
	if d < 0 {
		d = -d
	}

	h := int64(d / time.Hour)
	m := int64((d % time.Hour) / time.Minute)

	return strconv.FormatInt(h, 10), strconv.FormatInt(m, 10)
}

// Ago renders how long ago something happened, e.g. "3h 4m ago". Anything under 30 seconds
// is "Less than 30s ago" since rounding would otherwise give 0m. Anything over two days is
// reported in days.
func Ago(d time.Duration) string {
	if d < 30*time.Second {
		return "Less than 30s ago"
	}

	d = d.Round(time.Minute)

	if d >= 48*time.Hour {
		return fmt.Sprintf("%vd ago", int64(d/(24*time.Hour)))
	}

	h, m := GetHoursAndMinutes(d)
	if h != "0" {
		return fmt.Sprintf("%vh %vm ago", h, m)
	}

	return fmt.Sprintf("%vm ago", m)
}
