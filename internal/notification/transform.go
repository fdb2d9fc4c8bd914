package notification

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type SortOrder string

const (
	SortNewest      SortOrder = "newest"
	SortOldest      SortOrder = "oldest"
	SortUnreadFirst SortOrder = "unread-first"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortUnreadFirst:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

type StatusFilter string

const (
	FilterAll    StatusFilter = "all"
	FilterRead   StatusFilter = "read"
	FilterUnread StatusFilter = "unread"
)

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch f := StatusFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterRead, FilterUnread:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q", s)
	}
}

// Sort returns a sorted copy of items. The sort is stable, so records with
// equal keys keep their input order. Unknown orders return an unsorted copy.
func Sort(items []Notification, order SortOrder) []Notification {
	out := Clone(items)
	switch order {
	case SortNewest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	case SortUnreadFirst:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Read != out[j].Read {
				return !out[i].Read
			}
			return out[i].Timestamp.After(out[j].Timestamp)
		})
	}
	return out
}

// FilterByStatus keeps the items matching f. FilterAll (and unknown values)
// keep everything.
func FilterByStatus(items []Notification, f StatusFilter) []Notification {
	if f != FilterRead && f != FilterUnread {
		return Clone(items)
	}
	want := f == FilterRead
	out := make([]Notification, 0, len(items))
	for _, it := range items {
		if it.Read == want {
			out = append(out, it)
		}
	}
	return out
}

// Search keeps the items whose message contains text, ignoring case.
// Blank text matches everything.
func Search(items []Notification, text string) []Notification {
	q := strings.ToLower(strings.TrimSpace(text))
	if q == "" {
		return Clone(items)
	}
	out := make([]Notification, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Message), q) {
			out = append(out, it)
		}
	}
	return out
}

// Page is one window of a paginated collection.
type Page struct {
	Items      []Notification
	TotalPages int
	// Start and End are the zero-based, half-open bounds of the requested
	// window. They are not clamped to the collection.
	Start int
	End   int
}

// Paginate slices items for a 1-indexed page. The page is not validated:
// callers clamp it, and an out-of-range page yields an empty or partial slice.
func Paginate(items []Notification, page, pageSize int) Page {
	if pageSize <= 0 {
		return Page{Items: []Notification{}}
	}
	start := (page - 1) * pageSize
	end := page * pageSize
	p := Page{
		TotalPages: (len(items) + pageSize - 1) / pageSize,
		Start:      start,
		End:        end,
	}
	lo := min(max(start, 0), len(items))
	hi := min(max(end, 0), len(items))
	p.Items = Clone(items[lo:hi])
	return p
}

// FormatBadgeCount renders count for a badge, capping at "{max}+".
func FormatBadgeCount(count, max int) string {
	if count <= max {
		return strconv.Itoa(count)
	}
	return strconv.Itoa(max) + "+"
}
