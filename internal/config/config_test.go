package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/notifboard.db
  busy_timeout: 2s
store:
  debounce: 300ms
feed:
  enabled: false
  min_delay: 5s
  max_delay: 15s
history:
  enabled: true
  schedule: "@every 30s"
  retain_days: 3
http:
  addr: 127.0.0.1:9090
  pprof:
    enabled: true
    token: secret
dashboard:
  page_size: 20
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "300ms", cfg.Store.Debounce)
	assert.False(t, cfg.Feed.IsEnabled())
	assert.True(t, cfg.HTTP.IsEnabled())
	assert.True(t, cfg.HTTP.MetricsEnabled())
	assert.Equal(t, "secret", cfg.HTTP.Pprof.Token)
	assert.Equal(t, 20, cfg.Dashboard.PageSize)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	_, err := Decode("config.yaml", []byte("store:\n  debounse: 1s\n"))
	require.Error(t, err)

	_, err = Decode("config.json", []byte(`{"telegram":{}}`))
	require.Error(t, err)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Decode("config.json", []byte(`{} {}`))
	require.EqualError(t, err, "invalid config: trailing data")
}

func TestFeedEnabledDefaultsTrue(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.json", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, cfg.Feed.IsEnabled())
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("store.debounce", "", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	_, err = ParseDurationField("feed.min_delay", "-1s")
	require.EqualError(t, err, "feed.min_delay: duration must be >= 0")

	_, err = ParseDurationField("feed.min_delay", "soon")
	require.ErrorContains(t, err, `feed.min_delay: invalid duration "soon"`)
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	next := *old
	next.Dashboard.PageSize = 5
	next.Storage.Password = "hunter2"

	sections, attrs := SummarizeConfigChange(old, &next)
	assert.Equal(t, []string{"storage", "dashboard"}, sections)
	assert.NotEmpty(t, attrs)
	assert.True(t, Contains(sections, "storage"))

	sections, _ = SummarizeConfigChange(old, old)
	assert.Empty(t, sections)
}

func TestManagerLoadSubscribeAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Same content: nothing published.
	assert.False(t, m.reload(context.Background()))

	m.SetValidator(func(ctx context.Context, c *Config) error {
		if c.Dashboard.PageSize > 100 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"  badge_max: 99\n"), 0o600))
	require.True(t, m.reload(context.Background()))

	select {
	case got := <-sub:
		assert.Equal(t, 99, got.Dashboard.BadgeMax)
	default:
		t.Fatal("expected published config")
	}

	require.NoError(t, os.WriteFile(path, []byte("dashboard:\n  page_size: 1000\n"), 0o600))
	assert.False(t, m.reload(context.Background()))
	assert.Equal(t, 99, m.Get().Dashboard.BadgeMax)
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	sub := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-sub)

	m.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok)
}

func TestWatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dashboard":{"page_size":10}}`), 0o600))

	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool {
		// Rewrite until the watcher is attached and a reload lands.
		_ = os.WriteFile(path, []byte(`{"dashboard":{"page_size":25}}`), 0o600)
		select {
		case c := <-sub:
			return c.Dashboard.PageSize == 25
		case <-time.After(2 * ReloadDebounce):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)
}
