// Package httpapi serves the mock generation endpoint, the dashboard API
// and the operational endpoints (/healthz, /metrics, pprof).
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"notifboard/internal/metrics"
	"notifboard/internal/mock"
	"notifboard/internal/runtime/supervisor"
	"notifboard/internal/view"
	logx "notifboard/pkg/logx"
)

const (
	DefaultAddr         = "127.0.0.1:8080"
	DefaultMaxBodyBytes = 64 << 10
)

type PprofConfig struct {
	Enabled bool
	Prefix  string
	Token   string
}

type Config struct {
	Enabled      bool
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
	Metrics      bool
	CORSOrigins  []string
	Pprof        PprofConfig
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return c
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.ReadTimeout != b.ReadTimeout || a.WriteTimeout != b.WriteTimeout || a.IdleTimeout != b.IdleTimeout ||
		a.MaxBodyBytes != b.MaxBodyBytes || a.Metrics != b.Metrics ||
		!slices.Equal(a.CORSOrigins, b.CORSOrigins) || a.Pprof != b.Pprof
}

// Deps are the collaborators handlers read from. Store and Generator are
// required.
type Deps struct {
	Store     Store
	Generator *mock.Generator
	History   view.History
	// Location is the zone analytics days and relative times are computed in.
	Location *time.Location
	Metrics  *metrics.Metrics
	Health   func() Health
	Now      func() time.Time
}

type Service struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	log  logx.Logger
	dash atomic.Pointer[DashboardConfig]

	ln       net.Listener
	srv      *http.Server
	sup      *supervisor.Supervisor
	stopDone chan struct{}
}

func New(cfg Config, dash DashboardConfig, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Service{cfg: cfg.withDefaults(), deps: deps, log: log}
	s.SetDashboard(dash)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// SetDashboard swaps presentation limits without a listener restart.
func (s *Service) SetDashboard(cfg DashboardConfig) {
	cfg = cfg.withDefaults()
	s.dash.Store(&cfg)
}

// Addr is the bound listener address, empty while not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) Supervisor() *supervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Handler builds the full router for the current config.
func (s *Service) Handler() http.Handler {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	return s.routes(cfg)
}

func (s *Service) routes(cfg Config) http.Handler {
	r := mux.NewRouter()
	r.Use(requestID, observe(s.log, s.deps.Metrics), recoverer(s.log), limitBody(cfg.MaxBodyBytes))

	mh := &mockHandler{gen: s.deps.Generator}
	r.HandleFunc("/api/notifications", mh.generate).Methods(http.MethodPost)
	r.HandleFunc("/api/notifications", mh.ping).Methods(http.MethodGet)

	dh := &dashboardHandler{
		store:   s.deps.Store,
		gen:     s.deps.Generator,
		history: s.deps.History,
		now:     s.deps.Now,
		loc:     s.deps.Location,
		cfg:     &s.dash,
	}
	api := r.PathPrefix("/api/dashboard").Subrouter()
	api.HandleFunc("/notifications", dh.list).Methods(http.MethodGet)
	api.HandleFunc("/notifications", dh.add).Methods(http.MethodPost)
	api.HandleFunc("/notifications", dh.removeAll).Methods(http.MethodDelete)
	api.HandleFunc("/notifications/generate", dh.generate).Methods(http.MethodPost)
	api.HandleFunc("/notifications/read-all", dh.readAll).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/read", dh.markRead).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}/unread", dh.markUnread).Methods(http.MethodPost)
	api.HandleFunc("/notifications/{id}", dh.remove).Methods(http.MethodDelete)
	api.HandleFunc("/dropdown", dh.dropdown).Methods(http.MethodGet)
	api.HandleFunc("/badge", dh.badge).Methods(http.MethodGet)
	api.HandleFunc("/analytics", dh.analytics).Methods(http.MethodGet)

	r.HandleFunc("/healthz", healthHandler(s.deps.Health)).Methods(http.MethodGet)
	if cfg.Metrics && s.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if cfg.Pprof.Enabled {
		if cfg.Pprof.Token == "" && !isLoopbackAddr(cfg.Addr) {
			s.log.Error("pprof not mounted: non-loopback addr requires a token", logx.String("addr", cfg.Addr))
		} else {
			mountPprof(r, cfg.Pprof.Prefix, cfg.Pprof.Token)
		}
	}

	if len(cfg.CORSOrigins) == 0 {
		return r
	}
	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(r)
}

// Reconfigure applies cfg, starting, stopping or restarting the listener as
// needed. Safe during hot reload.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
	case !running:
		s.Start(ctx)
	case needsRestart(prev, cfg):
		s.log.Info("http config changed; restarting listener")
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start serves under a restart loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return
			}
		}
		if s.sup != nil || !s.cfg.Enabled {
			s.mu.Unlock()
			return
		}
		sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
		s.sup = sup
		s.mu.Unlock()

		sup.GoRestart("http.serve", s.serveOnce, supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
		return
	}
}

// Stop shuts the server down gracefully within ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.ln, s.srv, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
		s.log.Info("http stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		s.log.Error("http listen failed", logx.String("addr", cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:           s.routes(cfg),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http started", logx.String("addr", ln.Addr().String()), logx.Bool("metrics", cfg.Metrics), logx.Bool("pprof", cfg.Pprof.Enabled))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.ln, s.srv = nil, nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
