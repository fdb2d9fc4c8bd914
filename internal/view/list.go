// Package view builds the read-only projections the dashboard renders from
// a notification collection.
package view

import (
	"notifboard/internal/notification"
)

const (
	DefaultPageSize      = 10
	DefaultDropdownLimit = 5
	DefaultBadgeMax      = 9
)

// ListQuery is everything the main list depends on besides the collection.
type ListQuery struct {
	Filter   notification.StatusFilter
	Search   string
	Sort     notification.SortOrder
	Page     int
	PageSize int
}

// ListPage is one rendered page of the main list.
type ListPage struct {
	Items []notification.Notification
	// Page is the page actually rendered, after clamping.
	Page       int
	TotalPages int
	// Matched counts the items left after filter and search.
	Matched int
	Start   int
	End     int
}

// BuildList applies filter, then search, then sort, then pagination. The
// requested page is clamped to [1, TotalPages] (page 1 when nothing matches).
func BuildList(items []notification.Notification, q ListQuery) ListPage {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	order := q.Sort
	if order == "" {
		order = notification.SortNewest
	}

	matched := notification.Search(notification.FilterByStatus(items, q.Filter), q.Search)
	sorted := notification.Sort(matched, order)

	totalPages := (len(sorted) + size - 1) / size
	page := q.Page
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	p := notification.Paginate(sorted, page, size)
	return ListPage{
		Items:      p.Items,
		Page:       page,
		TotalPages: p.TotalPages,
		Matched:    len(sorted),
		Start:      p.Start,
		End:        min(p.End, len(sorted)),
	}
}

// ListState holds the list query across interactions. Changing the filter,
// the search text or the sort order sends the view back to page 1; changing
// only the page does not.
type ListState struct {
	q ListQuery
}

func NewListState(pageSize int) *ListState {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &ListState{q: ListQuery{
		Filter:   notification.FilterAll,
		Sort:     notification.SortNewest,
		Page:     1,
		PageSize: pageSize,
	}}
}

func (s *ListState) Query() ListQuery { return s.q }

func (s *ListState) SetFilter(f notification.StatusFilter) {
	if f != s.q.Filter {
		s.q.Filter = f
		s.q.Page = 1
	}
}

func (s *ListState) SetSearch(text string) {
	if text != s.q.Search {
		s.q.Search = text
		s.q.Page = 1
	}
}

func (s *ListState) SetSort(o notification.SortOrder) {
	if o != s.q.Sort {
		s.q.Sort = o
		s.q.Page = 1
	}
}

func (s *ListState) SetPage(page int) { s.q.Page = page }

// Render builds the current page and remembers the clamped page number.
func (s *ListState) Render(items []notification.Notification) ListPage {
	p := BuildList(items, s.q)
	s.q.Page = p.Page
	return p
}

// Dropdown returns up to limit unread notifications, newest first.
func Dropdown(items []notification.Notification, limit int) []notification.Notification {
	if limit <= 0 {
		limit = DefaultDropdownLimit
	}
	unread := notification.Sort(notification.FilterByStatus(items, notification.FilterUnread), notification.SortNewest)
	if len(unread) > limit {
		unread = unread[:limit]
	}
	return unread
}
