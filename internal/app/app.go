// Package app wires configuration, storage, the notification store, the
// periodic feed, daily history and the HTTP API into one process.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notifboard/internal/config"
	"notifboard/internal/eventbus"
	"notifboard/internal/feed"
	"notifboard/internal/history"
	"notifboard/internal/httpapi"
	"notifboard/internal/metrics"
	"notifboard/internal/mock"
	"notifboard/internal/runtime/supervisor"
	"notifboard/internal/storage"
	"notifboard/internal/store"
	logx "notifboard/pkg/logx"
	"notifboard/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	met  *metrics.Metrics
	sd   *systemd.Notifier

	blobs   storage.Store
	store   *store.Store
	gen     *mock.Generator
	feed    *feed.Service
	history *history.Recorder
	http    *httpapi.Service

	feedSettings   feedSettings
	historyEnabled bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logs, root := logx.New(mapLogging(cfg))
	a := &App{
		cfgm: cfgm,
		log:  root.With(logx.String("comp", "app")),
		logs: logs,
		bus:  eventbus.New(),
		met:  metrics.New(),
		sd:   systemd.New(root.With(logx.String("comp", "systemd"))),
		gen:  mock.NewGenerator(),
	}

	sc, _ := mapStorageConfig(cfg)
	if a.blobs, err = storage.Open(sc, root); err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.log.Info("storage opened", logx.String("driver", sc.Driver))

	ss, _ := mapStoreConfig(cfg)
	a.store = store.New(a.blobs,
		store.WithKey(ss.key),
		store.WithLogger(root),
		store.WithBus(a.bus),
		store.WithMetrics(a.met),
		store.WithDebounce(ss.debounce),
		store.WithWriteTimeout(ss.writeTimeout),
	)

	a.feedSettings, _ = mapFeedConfig(cfg)
	a.feed = feed.New(a.feedSettings.cfg, a.sourceFor(a.feedSettings), a.store,
		feed.WithLogger(root.With(logx.String("comp", "feed"))),
		feed.WithMetrics(a.met),
	)

	var hc history.Config
	a.historyEnabled, hc, _ = mapHistoryConfig(cfg)
	a.history = history.New(hc, a.blobs, history.WithLogger(root.With(logx.String("comp", "history"))))

	hcfg, _ := mapHTTPConfig(cfg)
	dash, _ := mapDashboardConfig(cfg)
	a.http = httpapi.New(hcfg, dash, httpapi.Deps{
		Store:     a.store,
		Generator: a.gen,
		History:   a.history,
		Metrics:   a.met,
		Health:    a.Health,
		Now:       func() time.Time { return time.Now().In(a.history.Location()) },
	}, root.With(logx.String("comp", "http")))

	return a, nil
}

func (a *App) sourceFor(fs feedSettings) feed.Source {
	if fs.source == "http" {
		return feed.NewHTTPSource(fs.url, fs.timeout)
	}
	return feed.NewLocalSource(a.gen)
}

// Store exposes the notification store.
func (a *App) Store() *store.Store { return a.store }

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error { return a.sup.Err() }

// Health aggregates the supervisors for /healthz.
func (a *App) Health() httpapi.Health {
	detail := map[string]supervisor.Snapshot{}
	h := httpapi.Health{Status: "ok", Detail: detail}
	if a.sup != nil {
		detail["app"] = a.sup.Snapshot()
		if err := a.sup.Err(); err != nil {
			h.Error = err.Error()
		}
	}
	if sup := a.feed.Supervisor(); sup != nil {
		detail["feed"] = sup.Snapshot()
	}
	if sup := a.http.Supervisor(); sup != nil {
		detail["http"] = sup.Snapshot()
	}
	return h
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateConfig(cfg) })

	a.store.Initialize(run)

	if a.historyEnabled {
		if err := a.startHistory(run); err != nil {
			return err
		}
	}
	a.feed.Start(run)
	a.http.Start(run)

	a.sup.Go0("eventbus.log", func(c context.Context) {
		events, unsub := a.bus.Subscribe(128)
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts; only the newest config matters.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", a.sd.Watchdog)

	a.sd.Ready()
	a.sd.Status("serving")
	a.log.Info("app started")
	return nil
}

func (a *App) startHistory(ctx context.Context) error {
	if err := a.history.Load(ctx); err != nil {
		a.log.Warn("history load failed; starting empty", logx.Err(err))
	}
	return a.history.Start(ctx, a.bus)
}

// applyConfig pushes a validated config into the running components.
func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	if config.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogging(next))

	if ss, err := mapStoreConfig(next); err != nil {
		a.log.Warn("invalid store config; keeping previous", logx.Err(err))
	} else {
		a.store.SetDebounce(ss.debounce)
		if prev != nil && (strings.TrimSpace(prev.Store.Key) != strings.TrimSpace(next.Store.Key) ||
			strings.TrimSpace(prev.Store.WriteTimeout) != strings.TrimSpace(next.Store.WriteTimeout)) {
			a.log.Warn("store.key or store.write_timeout changed; restart required for changes to take effect")
		}
	}

	if fs, err := mapFeedConfig(next); err != nil {
		a.log.Warn("invalid feed config; keeping previous", logx.Err(err))
	} else {
		var src feed.Source
		if fs.source != a.feedSettings.source || fs.url != a.feedSettings.url || fs.timeout != a.feedSettings.timeout {
			src = a.sourceFor(fs)
		}
		a.feed.Apply(fs.cfg, src)
		switch {
		case fs.cfg.Enabled && !a.feed.Running():
			a.log.Info("feed enabled via config")
			a.feed.Start(c)
		case !fs.cfg.Enabled && a.feed.Running():
			a.log.Info("feed disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.feed.Stop(stopCtx)
			cancel()
		}
		a.feedSettings = fs
	}

	if enabled, hc, err := mapHistoryConfig(next); err != nil {
		a.log.Warn("invalid history config; keeping previous", logx.Err(err))
	} else {
		stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
		switch {
		case enabled && !a.historyEnabled:
			if err := a.history.Reschedule(stopCtx, a.bus, hc); err == nil {
				err = a.startHistory(c)
			}
			if err != nil {
				a.log.Warn("history start failed", logx.Err(err))
			}
		case !enabled && a.historyEnabled:
			a.history.Stop(stopCtx)
		case enabled:
			if err := a.history.Reschedule(c, a.bus, hc); err != nil {
				a.log.Warn("history reschedule failed", logx.Err(err))
			}
		}
		cancel()
		a.historyEnabled = enabled
	}

	if hcfg, err := mapHTTPConfig(next); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(c, hcfg)
	}
	if dash, err := mapDashboardConfig(next); err == nil {
		a.http.SetDashboard(dash)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	// step bounds one shutdown phase so a stuck component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("feed", time.Second, func(c context.Context) error { a.feed.Stop(c); return nil })
	step("history", 2*time.Second, func(c context.Context) error { a.history.Stop(c); return nil })
	step("store", 5*time.Second, func(context.Context) error { a.store.Close(); return nil })
	step("storage", time.Second, func(context.Context) error { return a.blobs.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.logs.Close()
}
