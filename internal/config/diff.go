package config

import (
	"slices"
	"strings"

	logx "notifboard/pkg/logx"
)

// SummarizeConfigChange returns the changed section names and safe log
// attrs for them. Secrets (dsn, password, pprof token) are only reported
// as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 24)
	ts := strings.TrimSpace
	set := func(s string) bool { return ts(s) != "" }

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	o, n := oldCfg.Storage, newCfg.Storage
	if ts(o.Driver) != ts(n.Driver) || ts(o.Path) != ts(n.Path) || ts(o.Addr) != ts(n.Addr) ||
		o.DB != n.DB || o.KeyPrefix != n.KeyPrefix || ts(o.BusyTimeout) != ts(n.BusyTimeout) ||
		ts(o.DialTimeout) != ts(n.DialTimeout) || o.DSN != n.DSN || o.Password != n.Password {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", ts(n.Driver)),
			logx.Bool("storage.dsn_set", set(n.DSN)),
			logx.Bool("storage.password_set", set(n.Password)),
		)
	}

	if oldCfg.Store != newCfg.Store {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.key", ts(newCfg.Store.Key)),
			logx.String("store.debounce", ts(newCfg.Store.Debounce)),
		)
	}

	of, nf := oldCfg.Feed, newCfg.Feed
	if of.IsEnabled() != nf.IsEnabled() || ts(of.MinDelay) != ts(nf.MinDelay) || ts(of.MaxDelay) != ts(nf.MaxDelay) ||
		ts(of.Source) != ts(nf.Source) || ts(of.URL) != ts(nf.URL) || ts(of.Timeout) != ts(nf.Timeout) {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.Bool("feed.enabled", nf.IsEnabled()),
			logx.String("feed.source", ts(nf.Source)),
			logx.String("feed.min_delay", ts(nf.MinDelay)),
			logx.String("feed.max_delay", ts(nf.MaxDelay)),
		)
	}

	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.Bool("history.enabled", newCfg.History.Enabled),
			logx.String("history.schedule", ts(newCfg.History.Schedule)),
			logx.Int("history.retain_days", newCfg.History.RetainDays),
		)
	}

	oh, nh := oldCfg.HTTP, newCfg.HTTP
	if oh.IsEnabled() != nh.IsEnabled() || ts(oh.Addr) != ts(nh.Addr) || ts(oh.ReadTimeout) != ts(nh.ReadTimeout) ||
		ts(oh.WriteTimeout) != ts(nh.WriteTimeout) || ts(oh.IdleTimeout) != ts(nh.IdleTimeout) ||
		oh.MaxBodyBytes != nh.MaxBodyBytes || oh.MetricsEnabled() != nh.MetricsEnabled() ||
		oh.Pprof.Enabled != nh.Pprof.Enabled || ts(oh.Pprof.Prefix) != ts(nh.Pprof.Prefix) ||
		oh.Pprof.Token != nh.Pprof.Token || !slices.Equal(oh.CORSOrigins, nh.CORSOrigins) {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nh.IsEnabled()),
			logx.String("http.addr", ts(nh.Addr)),
			logx.Bool("http.metrics", nh.MetricsEnabled()),
			logx.Int("http.cors_origins", len(nh.CORSOrigins)),
			logx.Bool("http.pprof_enabled", nh.Pprof.Enabled),
			logx.Bool("http.pprof_token_set", set(nh.Pprof.Token)),
		)
	}

	if oldCfg.Dashboard != newCfg.Dashboard {
		changed = append(changed, "dashboard")
		attrs = append(attrs,
			logx.Int("dashboard.page_size", newCfg.Dashboard.PageSize),
			logx.Int("dashboard.dropdown_limit", newCfg.Dashboard.DropdownLimit),
			logx.Int("dashboard.badge_max", newCfg.Dashboard.BadgeMax),
		)
	}

	return changed, attrs
}

// Contains reports whether section is in a SummarizeConfigChange result.
func Contains(sections []string, section string) bool {
	for _, s := range sections {
		if s == section {
			return true
		}
	}
	return false
}
