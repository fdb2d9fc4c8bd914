package view

import (
	"math"
	"time"

	"notifboard/internal/notification"
)

// MockDailySeries stands in for the six days before today when no history is
// recorded. Oldest first.
var MockDailySeries = [...]int{8, 12, 15, 10, 18, 14}

const Days = 7

// DayCount is one bar of the per-day chart.
type DayCount struct {
	Label string    `json:"label"`
	Date  string    `json:"date"`
	Count int       `json:"count"`
	Start time.Time `json:"-"`
	// Real is false when Count comes from the mock series.
	Real bool `json:"real"`
}

// History returns the recorded count for the local calendar day starting at
// dayStart, if there is one.
type History interface {
	Count(dayStart time.Time) (int, bool)
}

// DailyCounts returns the 7 calendar days ending today, oldest first, in
// now's location. Today is always counted from items. Earlier days use hist
// when it has the day and the mock series otherwise.
func DailyCounts(items []notification.Notification, now time.Time, hist History) []DayCount {
	today := StartOfDay(now)
	out := make([]DayCount, 0, Days)
	for i := 0; i < Days; i++ {
		start := today.AddDate(0, 0, i-(Days-1))
		d := DayCount{
			Label: start.Weekday().String()[:3],
			Date:  start.Format("2006-01-02"),
			Start: start,
		}
		switch {
		case i == Days-1:
			d.Count, d.Real = countBetween(items, start, start.AddDate(0, 0, 1)), true
		case hist != nil:
			if n, ok := hist.Count(start); ok {
				d.Count, d.Real = n, true
				break
			}
			d.Count = MockDailySeries[i]
		default:
			d.Count = MockDailySeries[i]
		}
		out = append(out, d)
	}
	return out
}

// StartOfDay is local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func countBetween(items []notification.Notification, from, to time.Time) int {
	n := 0
	for _, it := range items {
		if !it.Timestamp.Before(from) && it.Timestamp.Before(to) {
			n++
		}
	}
	return n
}

// Ratio is the read/unread split of a collection.
type Ratio struct {
	Read          int `json:"read"`
	Unread        int `json:"unread"`
	ReadPercent   int `json:"read_percent"`
	UnreadPercent int `json:"unread_percent"`
}

// ReadRatio rounds each percentage to the nearest integer independently, so
// the two may not sum to 100. An empty collection is 0/0.
func ReadRatio(items []notification.Notification) Ratio {
	unread := notification.UnreadCount(items)
	r := Ratio{Read: len(items) - unread, Unread: unread}
	if len(items) == 0 {
		return r
	}
	total := float64(len(items))
	r.ReadPercent = int(math.Round(float64(r.Read) / total * 100))
	r.UnreadPercent = int(math.Round(float64(r.Unread) / total * 100))
	return r
}
