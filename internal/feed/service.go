package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notifboard/internal/metrics"
	"notifboard/internal/notification"
	"notifboard/internal/runtime/supervisor"
	logx "notifboard/pkg/logx"
)

const (
	DefaultMinDelay = 10 * time.Second
	DefaultMaxDelay = 30 * time.Second
)

type Config struct {
	Enabled  bool
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinDelay <= 0 {
		c.MinDelay = DefaultMinDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}

// Sink receives generated notifications. *store.Store satisfies it.
type Sink interface {
	Add(n notification.Notification) notification.Notification
}

type Service struct {
	mu   sync.Mutex
	cfg  Config
	src  Source
	sink Sink

	log    logx.Logger
	errLog logx.Logger
	met    *metrics.Metrics

	rngMu sync.Mutex
	rng   *rand.Rand

	sup  *supervisor.Supervisor
	kick chan struct{}
}

type Option func(*Service)

func WithLogger(log logx.Logger) Option { return func(s *Service) { s.log = log } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.met = m } }

// WithRand seeds the delay picker.
func WithRand(seed int64) Option {
	return func(s *Service) { s.rng = rand.New(rand.NewSource(seed)) }
}

func New(cfg Config, src Source, sink Sink, opts ...Option) *Service {
	s := &Service{
		cfg:  cfg.withDefaults(),
		src:  src,
		sink: sink,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		kick: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	// A dead remote source would otherwise log on every firing.
	s.errLog = s.log.Limited(rate.NewLimiter(rate.Every(time.Minute), 3))
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup != nil
}

// Supervisor exposes the loop supervisor while running.
func (s *Service) Supervisor() *supervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Apply swaps delay bounds and, when src is non-nil, the source. A running
// loop re-arms its pending timer with the new bounds. Enabling or disabling
// is left to the caller (Start/Stop).
func (s *Service) Apply(cfg Config, src Source) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	if src != nil {
		s.src = src
	}
	s.mu.Unlock()
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start launches the loop. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	sup := supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup = sup
	sup.GoRestart("feed.loop", s.loop, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	s.log.Info("feed started", logx.Duration("min_delay", s.cfg.MinDelay), logx.Duration("max_delay", s.cfg.MaxDelay), logx.String("source", s.src.Name()))
}

// Stop cancels the pending timer and waits for an in-flight firing.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		s.log.Warn("feed stop incomplete", logx.Err(err))
		return
	}
	s.log.Info("feed stopped")
}

// NextDelay picks a uniformly random delay in [MinDelay, MaxDelay].
func (s *Service) NextDelay() time.Duration {
	s.mu.Lock()
	lo, hi := s.cfg.MinDelay, s.cfg.MaxDelay
	s.mu.Unlock()
	if hi <= lo {
		return lo
	}
	s.rngMu.Lock()
	d := lo + time.Duration(s.rng.Int63n(int64(hi-lo)+1))
	s.rngMu.Unlock()
	return d
}

func (s *Service) loop(ctx context.Context) error {
	for {
		timer := time.NewTimer(s.NextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.kick:
			timer.Stop()
			continue
		case <-timer.C:
		}
		_, _ = s.Fire(ctx)
	}
}

// Fire generates one notification and adds it to the sink.
func (s *Service) Fire(ctx context.Context) (notification.Notification, error) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	n, err := src.Generate(ctx)
	s.met.Generated(src.Name(), err)
	if err != nil {
		if ctx.Err() == nil {
			s.errLog.Warn("feed generate failed", logx.String("source", src.Name()), logx.Err(err))
		}
		return notification.Notification{}, err
	}
	// The loop may have been canceled while a remote call was in flight.
	if ctx.Err() != nil {
		return notification.Notification{}, ctx.Err()
	}
	stored := s.sink.Add(n)
	s.log.Debug("feed added notification", logx.String("id", stored.ID))
	return stored, nil
}
