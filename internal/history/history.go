// Package history records how many notifications arrived per local calendar
// day so the analytics chart can show real counts for past days.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notifboard/internal/eventbus"
	"notifboard/internal/runtime/supervisor"
	"notifboard/internal/storage"
	logx "notifboard/pkg/logx"
)

const (
	DefaultKey        = "daily_counts"
	DefaultSchedule   = "@every 1m"
	DefaultRetainDays = 7

	dateLayout = "2006-01-02"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a cron spec (seconds optional, descriptors allowed).
func ParseSchedule(spec string) error {
	_, err := parser.Parse(strings.TrimSpace(spec))
	return err
}

type Config struct {
	Key        string
	Schedule   string
	Location   *time.Location
	RetainDays int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Key) == "" {
		c.Key = DefaultKey
	}
	if strings.TrimSpace(c.Schedule) == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.RetainDays <= 0 {
		c.RetainDays = DefaultRetainDays
	}
	return c
}

// Recorder counts notification.added events per day. It implements
// view.History.
type Recorder struct {
	blobs storage.Store
	log   logx.Logger
	now   func() time.Time

	mu     sync.Mutex
	cfg    Config
	counts map[string]int
	dirty  bool

	runMu sync.Mutex
	cron  *cron.Cron
	sup   *supervisor.Supervisor
}

type Option func(*Recorder)

func WithLogger(log logx.Logger) Option { return func(r *Recorder) { r.log = log } }

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func New(cfg Config, blobs storage.Store, opts ...Option) *Recorder {
	r := &Recorder{
		blobs:  blobs,
		now:    time.Now,
		cfg:    cfg.withDefaults(),
		counts: map[string]int{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	return r
}

func (r *Recorder) Location() *time.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Location
}

// Load overlays persisted counters onto memory, replacing days present in
// the blob. A missing blob is not an error.
func (r *Recorder) Load(ctx context.Context) error {
	r.mu.Lock()
	key := r.cfg.Key
	r.mu.Unlock()

	b, err := r.blobs.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("history: load: %w", err)
	}
	var stored map[string]int
	if err := json.Unmarshal(b, &stored); err != nil {
		return fmt.Errorf("history: decode: %w", err)
	}

	r.mu.Lock()
	for day, n := range stored {
		if _, err := time.Parse(dateLayout, day); err != nil || n < 0 {
			continue
		}
		r.counts[day] = n
	}
	r.mu.Unlock()
	return nil
}

// Record adds one arrival on the local day of at.
func (r *Recorder) Record(at time.Time) {
	r.mu.Lock()
	r.counts[at.In(r.cfg.Location).Format(dateLayout)]++
	r.dirty = true
	r.mu.Unlock()
}

// Count implements view.History.
func (r *Recorder) Count(dayStart time.Time) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.counts[dayStart.In(r.cfg.Location).Format(dateLayout)]
	return n, ok
}

// Prune drops days older than RetainDays before today.
func (r *Recorder) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	y, m, d := r.now().In(r.cfg.Location).Date()
	cutoff := time.Date(y, m, d-r.cfg.RetainDays, 0, 0, 0, 0, r.cfg.Location).Format(dateLayout)
	removed := 0
	for day := range r.counts {
		// The layout sorts lexically.
		if day < cutoff {
			delete(r.counts, day)
			removed++
		}
	}
	if removed > 0 {
		r.dirty = true
	}
	return removed
}

// Flush persists the counters when they changed since the last flush.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return nil
	}
	b, err := json.Marshal(r.counts)
	key := r.cfg.Key
	r.dirty = false
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := r.blobs.Put(ctx, key, b); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return fmt.Errorf("history: flush: %w", err)
	}
	return nil
}

func (r *Recorder) tick(ctx context.Context) {
	if n := r.Prune(); n > 0 {
		r.log.Debug("history pruned", logx.Int("days", n))
	}
	fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Flush(fctx); err != nil {
		r.log.Warn("history flush failed", logx.Err(err))
	}
}

// Start subscribes to bus and runs the flush schedule until Stop.
func (r *Recorder) Start(ctx context.Context, bus eventbus.Bus) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cron != nil {
		return nil
	}

	r.mu.Lock()
	cfg := r.cfg
	r.mu.Unlock()

	sup := supervisor.New(ctx, supervisor.WithLogger(r.log))
	c := cron.New(cron.WithParser(parser), cron.WithLocation(cfg.Location))
	if _, err := c.AddFunc(cfg.Schedule, func() { r.tick(sup.Context()) }); err != nil {
		sup.Cancel()
		return fmt.Errorf("history.schedule: %w", err)
	}

	events, unsub := bus.Subscribe(256)
	sup.Go0("history.record", func(ctx context.Context) {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Type != eventbus.NotificationAdded {
					continue
				}
				at := e.Time
				if ch, ok := e.Data.(eventbus.Change); ok && !ch.At.IsZero() {
					at = ch.At
				}
				r.Record(at)
			}
		}
	})
	c.Start()
	r.cron, r.sup = c, sup
	r.log.Info("history started", logx.String("schedule", cfg.Schedule), logx.String("tz", cfg.Location.String()))
	return nil
}

// Stop halts the schedule and the recorder, then flushes once more.
func (r *Recorder) Stop(ctx context.Context) {
	r.runMu.Lock()
	c, sup := r.cron, r.sup
	r.cron, r.sup = nil, nil
	r.runMu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if err := sup.Stop(ctx); err != nil {
		r.log.Warn("history stop incomplete", logx.Err(err))
	}
	r.Prune()
	if err := r.Flush(ctx); err != nil {
		r.log.Warn("history final flush failed", logx.Err(err))
	}
}

// Reschedule applies a new config. A running recorder is restarted so the
// schedule and location take effect.
func (r *Recorder) Reschedule(ctx context.Context, bus eventbus.Bus, cfg Config) error {
	cfg = cfg.withDefaults()
	if err := ParseSchedule(cfg.Schedule); err != nil {
		return fmt.Errorf("history.schedule: %w", err)
	}
	r.runMu.Lock()
	running := r.cron != nil
	r.runMu.Unlock()
	if running {
		r.Stop(ctx)
	}
	r.mu.Lock()
	keyChanged := r.cfg.Key != cfg.Key
	r.cfg = cfg
	if keyChanged {
		r.dirty = true
	}
	r.mu.Unlock()
	if running {
		return r.Start(ctx, bus)
	}
	return nil
}
