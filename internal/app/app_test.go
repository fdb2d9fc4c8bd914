package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifboard/internal/config"
	"notifboard/internal/mock"
)

func decode(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Decode("config.yaml", []byte(yaml))
	require.NoError(t, err)
	return cfg
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		yaml string
		err  string
	}{
		{"empty is valid", "{}", ""},
		{"json logs", "logging: {format: json}", ""},
		{"unknown log format", "logging: {format: xml}", `logging.format: unknown "xml" (want console or json)`},
		{"file needs path", "storage: {driver: file}", "storage.path is required when storage.driver=file"},
		{"postgres needs dsn", "storage: {driver: postgres}", "storage.dsn is required when storage.driver=postgres"},
		{"redis needs addr", "storage: {driver: redis}", "storage.addr is required when storage.driver=redis"},
		{"unknown driver", "storage: {driver: mongo}", "unknown storage.driver: mongo"},
		{"bad debounce", "store: {debounce: soon}", `store.debounce: invalid duration "soon"`},
		{"bad store key", "store: {key: ../x}", `store.key: invalid "../x"`},
		{"inverted feed bounds", "feed: {min_delay: 30s, max_delay: 10s}", "feed.max_delay (10s) must be >= feed.min_delay (30s)"},
		{"http feed needs url", "feed: {source: http}", "feed.url: an absolute http(s) url is required when feed.source=http"},
		{"unknown feed source", "feed: {source: kafka}", `feed.source: unknown "kafka" (want local or http)`},
		{"bad timezone", "history: {timezone: Mars/Base}", `history.timezone: invalid "Mars/Base"`},
		{"bad schedule", "history: {schedule: sometimes}", "history.schedule:"},
		{"history key clash", "history: {key: notifications}", "history.key must differ from store.key"},
		{"negative body", "http: {max_body_bytes: -1}", "http.max_body_bytes must be >= 0"},
		{"pprof shadows api", "http: {pprof: {enabled: true, prefix: /api/debug}}", "http.pprof.prefix must not shadow /api"},
		{"negative page size", "dashboard: {page_size: -1}", "dashboard: page_size, dropdown_limit and badge_max must be >= 0"},
		{"huge page size", "dashboard: {page_size: 500}", "dashboard.page_size must be <= 100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validateConfig(decode(t, tc.yaml))
			if tc.err == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.err)
		})
	}
}

func TestMapFeedDefaults(t *testing.T) {
	t.Parallel()
	fs, err := mapFeedConfig(decode(t, "{}"))
	require.NoError(t, err)
	assert.True(t, fs.cfg.Enabled)
	assert.Equal(t, 10*time.Second, fs.cfg.MinDelay)
	assert.Equal(t, 30*time.Second, fs.cfg.MaxDelay)
	assert.Equal(t, "local", fs.source)
}

func TestMapHTTPDefaults(t *testing.T) {
	t.Parallel()
	hc, err := mapHTTPConfig(decode(t, "{}"))
	require.NoError(t, err)
	assert.True(t, hc.Enabled)
	assert.True(t, hc.Metrics)
	assert.Equal(t, 10*time.Second, hc.ReadTimeout)
	assert.Equal(t, 60*time.Second, hc.IdleTimeout)
}

const appYAML = `
logging: {level: error}
storage: {driver: sqlite, path: %s}
store: {debounce: 10ms}
feed: {enabled: false}
history: {enabled: true, schedule: "@every 1h", timezone: UTC}
http: {addr: "127.0.0.1:0"}
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestAppLifecycleSeedsOnceAndPersists(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "notifboard.db")
	path := writeConfig(t, dir, fmt.Sprintf(appYAML, db))

	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.Equal(t, mock.SeedSize, a.Store().Len())

	a.Store().DeleteAll()
	assert.Equal(t, "ok", a.Health().Status)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopSignal))

	// A restart reads the persisted empty collection instead of reseeding.
	b, err := New(path)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	assert.Zero(t, b.Store().Len())
	require.NoError(t, b.Stop(ctx, StopSignal))
}

func TestApplyConfigTogglesFeed(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "logging: {level: error}\nfeed: {enabled: false}\nhttp: {enabled: false}\n")

	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopSignal)
	}()
	assert.False(t, a.feed.Running())

	prev := a.cfgm.Get()
	next := decode(t, "logging: {level: error}\nfeed: {enabled: true, min_delay: 1ms, max_delay: 2ms}\nhttp: {enabled: false}\n")
	a.applyConfig(context.Background(), prev, next)
	assert.True(t, a.feed.Running())
	require.Eventually(t, func() bool { return a.Store().Len() > mock.SeedSize }, 2*time.Second, time.Millisecond)

	a.applyConfig(context.Background(), next, prev)
	assert.False(t, a.feed.Running())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "storage: {driver: mongo}\n")
	_, err := New(path)
	require.ErrorContains(t, err, "invalid config")
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()
	m := config.NewManager(filepath.Join("..", "..", "config.example.yaml"))
	cfg, err := m.Parse()
	require.NoError(t, err)
	require.NoError(t, validateConfig(cfg))
}
