package config

// Config is the root of the YAML/JSON configuration file.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Store     StoreConfig     `json:"store"`
	Feed      FeedConfig      `json:"feed"`
	History   HistoryConfig   `json:"history"`
	HTTP      HTTPConfig      `json:"http"`
	Dashboard DashboardConfig `json:"dashboard"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // console (default) | json
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the blob backend. Changes require a restart.
//
// Example:
//
//	storage: { driver: sqlite, path: ./data/notifboard.db, busy_timeout: 5s }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`

	// postgres
	DSN string `json:"dsn,omitempty"` // may carry credentials (do not log)

	// redis
	Addr      string `json:"addr,omitempty"`
	Password  string `json:"password,omitempty"` // do not log
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`

	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	DialTimeout string `json:"dial_timeout,omitempty"`
}

type StoreConfig struct {
	Key          string `json:"key,omitempty"`           // default: notifications
	Debounce     string `json:"debounce,omitempty"`      // default: 500ms
	WriteTimeout string `json:"write_timeout,omitempty"` // default: 5s
}

// FeedConfig controls the periodic random notification generator.
//
// Defaults: min_delay 10s, max_delay 30s, source local, timeout 5s.
// Enabled is a pointer so an omitted section still runs the feed.
type FeedConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	MinDelay string `json:"min_delay,omitempty"`
	MaxDelay string `json:"max_delay,omitempty"`
	Source   string `json:"source,omitempty"` // local | http
	URL      string `json:"url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

func (f FeedConfig) IsEnabled() bool { return f.Enabled == nil || *f.Enabled }

type HistoryConfig struct {
	Enabled    bool   `json:"enabled"`
	Key        string `json:"key,omitempty"`      // default: daily_counts
	Schedule   string `json:"schedule,omitempty"` // cron spec, default: @every 1m
	Timezone   string `json:"timezone,omitempty"`
	RetainDays int    `json:"retain_days,omitempty"` // default: 7
}

// HTTPConfig controls the API listener.
//
// Security note: pprof on a non-loopback address requires a token.
type HTTPConfig struct {
	Enabled      *bool       `json:"enabled,omitempty"`
	Addr         string      `json:"addr,omitempty"` // default: 127.0.0.1:8080
	ReadTimeout  string      `json:"read_timeout,omitempty"`
	WriteTimeout string      `json:"write_timeout,omitempty"`
	IdleTimeout  string      `json:"idle_timeout,omitempty"`
	MaxBodyBytes int64       `json:"max_body_bytes,omitempty"` // default: 65536
	Metrics      *bool       `json:"metrics,omitempty"`
	CORSOrigins  []string    `json:"cors_origins,omitempty"`
	Pprof        PprofConfig `json:"pprof"`
}

func (h HTTPConfig) IsEnabled() bool      { return h.Enabled == nil || *h.Enabled }
func (h HTTPConfig) MetricsEnabled() bool { return h.Metrics == nil || *h.Metrics }

type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"` // default: /debug/pprof/
	Token   string `json:"token,omitempty"`  // optional bearer token (do not log)
}

type DashboardConfig struct {
	PageSize      int `json:"page_size,omitempty"`
	DropdownLimit int `json:"dropdown_limit,omitempty"`
	BadgeMax      int `json:"badge_max,omitempty"`
}
