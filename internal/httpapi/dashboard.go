package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"notifboard/internal/mock"
	"notifboard/internal/notification"
	"notifboard/internal/view"
)

const maxPageSize = 100

// Store is the notification collection the dashboard reads and mutates.
// *store.Store satisfies it.
type Store interface {
	Notifications() []notification.Notification
	UnreadCount() int
	Add(n notification.Notification) notification.Notification
	MarkAsRead(id string)
	MarkAsUnread(id string)
	MarkAllAsRead()
	Delete(id string)
	DeleteAll()
}

// DashboardConfig holds the hot-reloadable presentation limits.
type DashboardConfig struct {
	PageSize      int
	DropdownLimit int
	BadgeMax      int
}

func (c DashboardConfig) withDefaults() DashboardConfig {
	if c.PageSize <= 0 {
		c.PageSize = view.DefaultPageSize
	}
	if c.DropdownLimit <= 0 {
		c.DropdownLimit = view.DefaultDropdownLimit
	}
	if c.BadgeMax <= 0 {
		c.BadgeMax = view.DefaultBadgeMax
	}
	return c
}

type dashboardHandler struct {
	store   Store
	gen     *mock.Generator
	history view.History
	now     func() time.Time
	loc     *time.Location
	cfg     *atomic.Pointer[DashboardConfig]
}

type item struct {
	ID           string `json:"id"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
	Read         bool   `json:"read"`
	RelativeTime string `json:"relative_time,omitempty"`
	ShortTime    string `json:"short_time,omitempty"`
}

type listResponse struct {
	Items      []item `json:"items"`
	Page       int    `json:"page"`
	TotalPages int    `json:"total_pages"`
	Total      int    `json:"total"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

func (h *dashboardHandler) clock() time.Time {
	now := h.now()
	if h.loc != nil {
		now = now.In(h.loc)
	}
	return now
}

func (h *dashboardHandler) list(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg.Load()
	q, err := parseListQuery(r, cfg.PageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := view.BuildList(h.store.Notifications(), q)
	now := h.clock()
	resp := listResponse{
		Items:      make([]item, 0, len(page.Items)),
		Page:       page.Page,
		TotalPages: page.TotalPages,
		Total:      page.Matched,
		Start:      page.Start,
		End:        page.End,
	}
	for _, n := range page.Items {
		it := toItem(n)
		it.RelativeTime = notification.FormatRelative(n.Timestamp, now)
		resp.Items = append(resp.Items, it)
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseListQuery(r *http.Request, defPageSize int) (view.ListQuery, error) {
	v := r.URL.Query()
	filter, err := notification.ParseStatusFilter(v.Get("filter"))
	if err != nil {
		return view.ListQuery{}, err
	}
	order, err := notification.ParseSortOrder(v.Get("sort"))
	if err != nil {
		return view.ListQuery{}, err
	}
	page, err := positiveInt(v.Get("page"), 1, "page")
	if err != nil {
		return view.ListQuery{}, err
	}
	size, err := positiveInt(v.Get("page_size"), defPageSize, "page_size")
	if err != nil {
		return view.ListQuery{}, err
	}
	if size > maxPageSize {
		return view.ListQuery{}, badParam("page_size", "at most "+strconv.Itoa(maxPageSize))
	}
	return view.ListQuery{Filter: filter, Search: v.Get("q"), Sort: order, Page: page, PageSize: size}, nil
}

type paramError struct{ name, want string }

func (e paramError) Error() string { return "invalid " + e.name + ": must be " + e.want }

func badParam(name, want string) error { return paramError{name: name, want: want} }

func positiveInt(raw string, def int, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, badParam(name, "a positive integer")
	}
	return n, nil
}

type addRequest struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

func (h *dashboardHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}
	n := notification.Notification{
		ID:      strings.TrimSpace(req.ID),
		Message: strings.TrimSpace(req.Message),
		Read:    req.Read,
	}
	if n.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Timestamp != "" {
		ts, err := notification.ParseTimestamp(req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp")
			return
		}
		n.Timestamp = ts
	}
	if n.ID == "" {
		n.ID = h.gen.NewID(h.now())
	}
	if !n.Timestamp.IsZero() {
		if err := n.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp")
			return
		}
	}
	stored := h.store.Add(n)
	writeJSON(w, http.StatusCreated, toItem(stored))
}

func (h *dashboardHandler) generate(w http.ResponseWriter, _ *http.Request) {
	stored := h.store.Add(h.gen.Next())
	writeJSON(w, http.StatusCreated, toItem(stored))
}

func (h *dashboardHandler) markRead(w http.ResponseWriter, r *http.Request) {
	h.store.MarkAsRead(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *dashboardHandler) markUnread(w http.ResponseWriter, r *http.Request) {
	h.store.MarkAsUnread(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *dashboardHandler) readAll(w http.ResponseWriter, _ *http.Request) {
	h.store.MarkAllAsRead()
	w.WriteHeader(http.StatusNoContent)
}

func (h *dashboardHandler) remove(w http.ResponseWriter, r *http.Request) {
	h.store.Delete(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (h *dashboardHandler) removeAll(w http.ResponseWriter, _ *http.Request) {
	h.store.DeleteAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *dashboardHandler) dropdown(w http.ResponseWriter, _ *http.Request) {
	cfg := h.cfg.Load()
	items := h.store.Notifications()
	now := h.clock()
	top := view.Dropdown(items, cfg.DropdownLimit)
	out := make([]item, 0, len(top))
	for _, n := range top {
		it := toItem(n)
		it.ShortTime = notification.FormatShort(n.Timestamp, now)
		out = append(out, it)
	}
	unread := notification.UnreadCount(items)
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  out,
		"unread": unread,
		"badge":  notification.FormatBadgeCount(unread, cfg.BadgeMax),
	})
}

func (h *dashboardHandler) badge(w http.ResponseWriter, _ *http.Request) {
	unread := h.store.UnreadCount()
	writeJSON(w, http.StatusOK, map[string]any{
		"unread": unread,
		"badge":  notification.FormatBadgeCount(unread, h.cfg.Load().BadgeMax),
	})
}

func (h *dashboardHandler) analytics(w http.ResponseWriter, _ *http.Request) {
	items := h.store.Notifications()
	writeJSON(w, http.StatusOK, map[string]any{
		"daily": view.DailyCounts(items, h.clock(), h.history),
		"ratio": view.ReadRatio(items),
	})
}

func toItem(n notification.Notification) item {
	return item{
		ID:        n.ID,
		Message:   n.Message,
		Timestamp: notification.FormatTimestamp(n.Timestamp),
		Read:      n.Read,
	}
}
