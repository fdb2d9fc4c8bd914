package notification

import (
	"strconv"
	"time"
)

const day = 24 * time.Hour

// elapsed splits now-t into floored minutes, hours and days.
// Instants in the future count as zero elapsed.
func elapsed(t, now time.Time) (mins, hours, days int64) {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return int64(d / time.Minute), int64(d / time.Hour), int64(d / day)
}

func relative(t, now time.Time, fallback string) string {
	mins, hours, days := elapsed(t, now)
	switch {
	case mins < 1:
		return "Just now"
	case mins < 60:
		return strconv.FormatInt(mins, 10) + "m ago"
	case hours < 24:
		return strconv.FormatInt(hours, 10) + "h ago"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return strconv.FormatInt(days, 10) + "d ago"
	}
	return t.In(now.Location()).Format(fallback)
}

// FormatRelative renders t relative to now ("5m ago", "Yesterday", ...),
// falling back to a clock time like "3:04 PM" after a week.
func FormatRelative(t, now time.Time) string { return relative(t, now, "3:04 PM") }

// FormatRelativeDate is FormatRelative with a short date ("Jan 2") fallback.
func FormatRelativeDate(t, now time.Time) string { return relative(t, now, "Jan 2") }

// FormatShort is the compact form: "5m", "2h", "3d", then "Jan 2".
func FormatShort(t, now time.Time) string {
	mins, hours, days := elapsed(t, now)
	switch {
	case mins < 60:
		return strconv.FormatInt(mins, 10) + "m"
	case hours < 24:
		return strconv.FormatInt(hours, 10) + "h"
	case days < 7:
		return strconv.FormatInt(days, 10) + "d"
	}
	return t.In(now.Location()).Format("Jan 2")
}
