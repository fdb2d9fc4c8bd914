package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifboard/internal/metrics"
	"notifboard/internal/mock"
	"notifboard/internal/storage"
	"notifboard/internal/store"
	"notifboard/internal/view"
	logx "notifboard/pkg/logx"
)

var fixedNow = time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fixture struct {
	store *store.Store
	met   *metrics.Metrics
	svc   *Service
	h     http.Handler
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st := store.New(storage.NewMemory(), store.WithClock(clock), store.WithDebounce(time.Hour))
	st.Initialize(context.Background())
	t.Cleanup(st.Close)

	met := metrics.New()
	svc := New(cfg, DashboardConfig{}, Deps{
		Store:     st,
		Generator: mock.NewGenerator(mock.WithClock(clock), mock.WithRand(1)),
		Metrics:   met,
		Location:  time.UTC,
		Now:       clock,
	}, logx.Nop())
	return &fixture{store: st, met: met, svc: svc, h: svc.Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestMockEndpointGenerate(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/notifications", `{"action":"generate"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var got struct {
		Success      bool `json:"success"`
		Notification struct {
			ID        string `json:"id"`
			Message   string `json:"message"`
			Timestamp string `json:"timestamp"`
			Read      bool   `json:"read"`
		} `json:"notification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.True(t, strings.HasPrefix(got.Notification.ID, "notif-"))
	assert.Contains(t, mock.Messages[:], got.Notification.Message)
	assert.Equal(t, "2025-06-11T12:00:00.000Z", got.Notification.Timestamp)
	assert.False(t, got.Notification.Read)

	// The mock endpoint does not touch the collection.
	assert.Equal(t, mock.SeedSize, f.store.Len())
}

func TestMockEndpointErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/notifications", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid action"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/notifications", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid request body"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/notifications", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{MaxBodyBytes: 16})
	rec := f.do(t, http.MethodPost, "/api/notifications", `{"action":"generate","padding":"xxxxxxxxxxxxxxxx"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDashboardList(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodGet, "/api/dashboard/notifications?filter=unread&page_size=2&page=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[listResponse](t, rec)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Items, 2)
	// Seed items 1,3,5,7,9 are unread; newest first, page 2 holds 5 and 7.
	assert.Equal(t, "Sample notification 5", page.Items[0].Message)
	assert.Equal(t, "1h ago", page.Items[0].RelativeTime)

	rec = f.do(t, http.MethodGet, "/api/dashboard/notifications?page=99", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listResponse](t, rec).Page)

	rec = f.do(t, http.MethodGet, "/api/dashboard/notifications?q=NOTIFICATION%2010", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[listResponse](t, rec).Total)
}

func TestDashboardListRejectsBadParams(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	for _, q := range []string{"filter=archived", "sort=random", "page=0", "page=x", "page_size=1000"} {
		rec := f.do(t, http.MethodGet, "/api/dashboard/notifications?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestDashboardMutations(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	rec := f.do(t, http.MethodPost, "/api/dashboard/notifications", `{"message":"  Deploy finished "}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[item](t, rec)
	assert.Equal(t, "Deploy finished", added.Message)
	assert.True(t, strings.HasPrefix(added.ID, "notif-"))
	assert.Equal(t, 6, f.store.UnreadCount())

	rec = f.do(t, http.MethodPost, "/api/dashboard/notifications/"+added.ID+"/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 5, f.store.UnreadCount())

	rec = f.do(t, http.MethodPost, "/api/dashboard/notifications/"+added.ID+"/unread", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 6, f.store.UnreadCount())

	rec = f.do(t, http.MethodPost, "/api/dashboard/notifications/missing/read", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/dashboard/notifications/"+added.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, mock.SeedSize, f.store.Len())

	rec = f.do(t, http.MethodPost, "/api/dashboard/notifications/read-all", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.store.UnreadCount())

	rec = f.do(t, http.MethodPost, "/api/dashboard/notifications/generate", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, f.store.UnreadCount())

	rec = f.do(t, http.MethodDelete, "/api/dashboard/notifications", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.store.Len())
}

func TestDashboardAddValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	for _, body := range []string{`{"message":""}`, `{"message":"x","timestamp":"yesterday"}`, `{"message":"x","extra":1}`, `[`,
		`{"message":"x","timestamp":"0000-01-01T00:00:00+01:00"}`} {
		rec := f.do(t, http.MethodPost, "/api/dashboard/notifications", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, mock.SeedSize, f.store.Len())

	rec := f.do(t, http.MethodPost, "/api/dashboard/notifications", `{"id":"ext-1","message":"x","timestamp":"2025-06-11T10:00:00+02:00","read":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	got := decode[item](t, rec)
	assert.Equal(t, "ext-1", got.ID)
	assert.Equal(t, "2025-06-11T08:00:00.000Z", got.Timestamp)
	assert.True(t, got.Read)
}

func TestDropdownBadgeAnalytics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.svc.SetDashboard(DashboardConfig{DropdownLimit: 2, BadgeMax: 3})

	rec := f.do(t, http.MethodGet, "/api/dashboard/dropdown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	dd := decode[struct {
		Items  []item `json:"items"`
		Unread int    `json:"unread"`
		Badge  string `json:"badge"`
	}](t, rec)
	require.Len(t, dd.Items, 2)
	assert.Equal(t, "20m", dd.Items[0].ShortTime)
	assert.Equal(t, 5, dd.Unread)
	assert.Equal(t, "3+", dd.Badge)

	rec = f.do(t, http.MethodGet, "/api/dashboard/badge", "")
	assert.JSONEq(t, `{"unread":5,"badge":"3+"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/dashboard/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	an := decode[struct {
		Daily []view.DayCount `json:"daily"`
		Ratio view.Ratio      `json:"ratio"`
	}](t, rec)
	require.Len(t, an.Daily, view.Days)
	assert.Equal(t, 10, an.Daily[6].Count)
	assert.Equal(t, view.Ratio{Read: 5, Unread: 5, ReadPercent: 50, UnreadPercent: 50}, an.Ratio)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Metrics: true})

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	_ = f.do(t, http.MethodGet, "/api/dashboard/badge", "")
	rec = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notifboard_http_requests_total")
	// healthz, badge and the scrape itself.
	assert.Equal(t, 3, testutil.CollectAndCount(f.met.Registry, "notifboard_http_requests_total"))
}

func TestHealthDegraded(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, DashboardConfig{}, Deps{
		Store:     nil,
		Generator: mock.NewGenerator(),
		Health:    func() Health { return Health{Error: "feed.loop: boom"} },
	}, logx.Nop())
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Metrics: false})
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/metrics", "").Code)
}

func TestRecovererReturnsEnvelope(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, DashboardConfig{}, Deps{Generator: mock.NewGenerator()}, logx.Nop())
	// A nil store panics inside the handler.
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/badge", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Internal server error"}`, rec.Body.String())
}

func TestPprofAuth(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Addr: "127.0.0.1:0", Pprof: PprofConfig{Enabled: true, Token: "s3cret"}})

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/debug/pprof/", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/debug/pprof/?token=s3cret", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPprofRefusedOnPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Addr: "0.0.0.0:8080", Pprof: PprofConfig{Enabled: true}})
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/debug/pprof/", "").Code)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{CORSOrigins: []string{"http://localhost:3000"}})
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/badge", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.1:80":    false,
		"garbage":        false,
	}
	for addr, want := range cases {
		assert.Equal(t, want, isLoopbackAddr(addr), addr)
	}
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Enabled: true, Addr: "127.0.0.1:0"})
	ctx := context.Background()
	f.svc.Start(ctx)

	require.Eventually(t, func() bool { return f.svc.Addr() != "" }, 2*time.Second, 5*time.Millisecond)
	resp, err := http.Get("http://" + f.svc.Addr() + "/api/dashboard/badge")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	f.svc.Reconfigure(stopCtx, Config{Enabled: false})
	assert.Empty(t, f.svc.Addr())
	assert.Nil(t, f.svc.Supervisor())
}
