package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"notifboard/internal/config"
	"notifboard/internal/feed"
	"notifboard/internal/history"
	"notifboard/internal/httpapi"
	"notifboard/internal/storage"
	"notifboard/internal/store"
	logx "notifboard/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	dial, err := config.ParseDurationField("storage.dial_timeout", sc.DialTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	out := storage.Config{
		Driver:      driver,
		Path:        path,
		DSN:         strings.TrimSpace(sc.DSN),
		Addr:        strings.TrimSpace(sc.Addr),
		Password:    sc.Password,
		DB:          sc.DB,
		KeyPrefix:   sc.KeyPrefix,
		BusyTimeout: busy,
		DialTimeout: dial,
	}

	switch driver {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	case "postgres", "postgresql":
		if out.DSN == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
	case "redis":
		if out.Addr == "" {
			return storage.Config{}, fmt.Errorf("storage.addr is required when storage.driver=redis")
		}
		if sc.DB < 0 {
			return storage.Config{}, fmt.Errorf("storage.db must be >= 0")
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	return out, nil
}

type storeSettings struct {
	key          string
	debounce     time.Duration
	writeTimeout time.Duration
}

func mapStoreConfig(cfg *config.Config) (storeSettings, error) {
	key := strings.TrimSpace(cfg.Store.Key)
	if key == "" {
		key = store.DefaultKey
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return storeSettings{}, fmt.Errorf("store.key: invalid %q", key)
	}
	deb, err := config.ParseDurationOrDefault("store.debounce", cfg.Store.Debounce, store.DefaultDebounce)
	if err != nil {
		return storeSettings{}, err
	}
	wt, err := config.ParseDurationOrDefault("store.write_timeout", cfg.Store.WriteTimeout, store.DefaultWriteTimeout)
	if err != nil {
		return storeSettings{}, err
	}
	return storeSettings{key: key, debounce: deb, writeTimeout: wt}, nil
}

type feedSettings struct {
	cfg     feed.Config
	source  string
	url     string
	timeout time.Duration
}

func mapFeedConfig(cfg *config.Config) (feedSettings, error) {
	fc := cfg.Feed
	minD, err := config.ParseDurationOrDefault("feed.min_delay", fc.MinDelay, feed.DefaultMinDelay)
	if err != nil {
		return feedSettings{}, err
	}
	maxD, err := config.ParseDurationOrDefault("feed.max_delay", fc.MaxDelay, feed.DefaultMaxDelay)
	if err != nil {
		return feedSettings{}, err
	}
	if maxD < minD {
		return feedSettings{}, fmt.Errorf("feed.max_delay (%s) must be >= feed.min_delay (%s)", maxD, minD)
	}
	timeout, err := config.ParseDurationOrDefault("feed.timeout", fc.Timeout, 5*time.Second)
	if err != nil {
		return feedSettings{}, err
	}

	src := strings.ToLower(strings.TrimSpace(fc.Source))
	switch src {
	case "", "local":
		src = "local"
	case "http":
		u, err := url.Parse(strings.TrimSpace(fc.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return feedSettings{}, fmt.Errorf("feed.url: an absolute http(s) url is required when feed.source=http")
		}
	default:
		return feedSettings{}, fmt.Errorf("feed.source: unknown %q (want local or http)", fc.Source)
	}
	return feedSettings{
		cfg:     feed.Config{Enabled: fc.IsEnabled(), MinDelay: minD, MaxDelay: maxD},
		source:  src,
		url:     strings.TrimSpace(fc.URL),
		timeout: timeout,
	}, nil
}

func mapHistoryConfig(cfg *config.Config) (bool, history.Config, error) {
	hc := cfg.History
	loc := time.Local
	if tz := strings.TrimSpace(hc.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return false, history.Config{}, fmt.Errorf("history.timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}
	if hc.RetainDays < 0 {
		return false, history.Config{}, fmt.Errorf("history.retain_days must be >= 0")
	}
	key := strings.TrimSpace(hc.Key)
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return false, history.Config{}, fmt.Errorf("history.key: invalid %q", key)
	}
	storeKey := strings.TrimSpace(cfg.Store.Key)
	if storeKey == "" {
		storeKey = store.DefaultKey
	}
	effective := key
	if effective == "" {
		effective = history.DefaultKey
	}
	if effective == storeKey {
		return false, history.Config{}, fmt.Errorf("history.key must differ from store.key")
	}
	schedule := strings.TrimSpace(hc.Schedule)
	if schedule != "" {
		if err := history.ParseSchedule(schedule); err != nil {
			return false, history.Config{}, fmt.Errorf("history.schedule: %w", err)
		}
	}
	return hc.Enabled, history.Config{
		Key:        key,
		Schedule:   schedule,
		Location:   loc,
		RetainDays: hc.RetainDays,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	var err error
	out := httpapi.Config{
		Enabled:      hc.IsEnabled(),
		Addr:         strings.TrimSpace(hc.Addr),
		MaxBodyBytes: hc.MaxBodyBytes,
		Metrics:      hc.MetricsEnabled(),
		CORSOrigins:  hc.CORSOrigins,
		Pprof: httpapi.PprofConfig{
			Enabled: hc.Pprof.Enabled,
			Prefix:  strings.TrimSpace(hc.Pprof.Prefix),
			Token:   strings.TrimSpace(hc.Pprof.Token),
		},
	}
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 10*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	if hc.MaxBodyBytes < 0 {
		return httpapi.Config{}, fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if out.Pprof.Enabled && out.Pprof.Prefix != "" && !strings.HasPrefix(out.Pprof.Prefix, "/") {
		return httpapi.Config{}, fmt.Errorf("http.pprof.prefix must start with /")
	}
	if p := strings.TrimSuffix(out.Pprof.Prefix, "/"); p == "/api" || strings.HasPrefix(p, "/api/") {
		return httpapi.Config{}, fmt.Errorf("http.pprof.prefix must not shadow /api")
	}
	return out, nil
}

func mapDashboardConfig(cfg *config.Config) (httpapi.DashboardConfig, error) {
	dc := cfg.Dashboard
	if dc.PageSize < 0 || dc.DropdownLimit < 0 || dc.BadgeMax < 0 {
		return httpapi.DashboardConfig{}, fmt.Errorf("dashboard: page_size, dropdown_limit and badge_max must be >= 0")
	}
	if dc.PageSize > 100 {
		return httpapi.DashboardConfig{}, fmt.Errorf("dashboard.page_size must be <= 100")
	}
	return httpapi.DashboardConfig{PageSize: dc.PageSize, DropdownLimit: dc.DropdownLimit, BadgeMax: dc.BadgeMax}, nil
}

// validateConfig rejects a config before it is committed or applied.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := logx.ParseFormat(cfg.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStoreConfig(cfg); err != nil {
		return err
	}
	if _, err := mapFeedConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapHistoryConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	_, err := mapDashboardConfig(cfg)
	return err
}
