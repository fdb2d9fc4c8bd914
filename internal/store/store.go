// Package store owns the canonical notification collection: the seed-once
// lifecycle, mutations and debounced persistence.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"notifboard/internal/debounce"
	"notifboard/internal/eventbus"
	"notifboard/internal/metrics"
	"notifboard/internal/mock"
	"notifboard/internal/notification"
	"notifboard/internal/storage"
	logx "notifboard/pkg/logx"

	"golang.org/x/time/rate"
)

// ErrNotInitialized is the panic value when a Store is used before
// Initialize. It signals a wiring bug, not a data condition.
var ErrNotInitialized = errors.New("store: used before Initialize")

const (
	DefaultKey          = "notifications"
	DefaultDebounce     = 500 * time.Millisecond
	DefaultWriteTimeout = 5 * time.Second
)

type Store struct {
	blobs        storage.Store
	key          string
	now          func() time.Time
	seed         func(time.Time) []notification.Notification
	log          logx.Logger
	warn         logx.Logger
	bus          eventbus.Bus
	met          *metrics.Metrics
	debounce     time.Duration
	writeTimeout time.Duration

	initOnce sync.Once
	writer   *debounce.Debouncer[[]notification.Notification]

	mu          sync.RWMutex
	initialized bool
	items       []notification.Notification
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSeed replaces the first-run batch generator.
func WithSeed(fn func(time.Time) []notification.Notification) Option {
	return func(s *Store) {
		if fn != nil {
			s.seed = fn
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(s *Store) { s.log = log } }

func WithBus(bus eventbus.Bus) Option {
	return func(s *Store) {
		if bus != nil {
			s.bus = bus
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option { return func(s *Store) { s.met = m } }

func WithDebounce(d time.Duration) Option { return func(s *Store) { s.debounce = d } }

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func New(blobs storage.Store, opts ...Option) *Store {
	s := &Store{
		blobs:        blobs,
		key:          DefaultKey,
		now:          time.Now,
		seed:         mock.Seed,
		bus:          eventbus.Nop{},
		debounce:     DefaultDebounce,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "store"), logx.String("key", s.key))
	s.warn = s.log.Limited(rate.NewLimiter(rate.Every(10*time.Second), 3))
	s.writer = debounce.New(s.debounce, s.writeSnapshot)
	return s
}

// Initialize loads the persisted collection, seeding it on first run.
// Only the first call does anything.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		items, seeded := s.load(ctx)
		if seeded {
			items = s.seed(s.now())
			// First-run data is written through, not debounced.
			wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
			_ = s.put(wctx, items)
			cancel()
		}

		s.mu.Lock()
		s.items = items
		s.initialized = true
		total, unread := len(items), notification.UnreadCount(items)
		s.mu.Unlock()

		s.met.SetCollection(total, unread)
		s.bus.Publish(eventbus.Event{Type: eventbus.StoreInitialized, Data: eventbus.Change{Total: total, Unread: unread}})
		s.log.Info("store initialized", logx.Int("count", total), logx.Int("unread", unread), logx.Bool("seeded", seeded))
	})
}

// load returns the persisted collection, or seeded=true when there is none
// usable.
func (s *Store) load(ctx context.Context) (items []notification.Notification, seeded bool) {
	b, err := s.blobs.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Info("no persisted notifications; seeding")
		return nil, true
	case err != nil:
		s.log.Warn("persisted notifications unreadable; seeding", logx.Err(err))
		return nil, true
	}
	if err := validatePayload(b); err != nil {
		s.log.Warn("persisted notifications corrupt; seeding", logx.Err(err))
		return nil, true
	}
	if err := json.Unmarshal(b, &items); err != nil {
		s.log.Warn("persisted notifications corrupt; seeding", logx.Err(err))
		return nil, true
	}
	if items == nil {
		items = []notification.Notification{}
	}
	return items, false
}

// Initialized reports whether Initialize has completed. Unlike every other
// accessor it is safe to call at any time.
func (s *Store) Initialized() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Store) mustBeInitialized() {
	if !s.initialized {
		panic(ErrNotInitialized)
	}
}

// Notifications returns a copy of the collection in stored order
// (most recently added first).
func (s *Store) Notifications() []notification.Notification {
	if s == nil {
		panic(ErrNotInitialized)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeInitialized()
	return notification.Clone(s.items)
}

// Get returns the first record with id.
func (s *Store) Get(id string) (notification.Notification, bool) {
	if s == nil {
		panic(ErrNotInitialized)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeInitialized()
	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i], true
	}
	return notification.Notification{}, false
}

// UnreadCount is computed from the collection on every call.
func (s *Store) UnreadCount() int {
	if s == nil {
		panic(ErrNotInitialized)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeInitialized()
	return notification.UnreadCount(s.items)
}

func (s *Store) Len() int {
	if s == nil {
		panic(ErrNotInitialized)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeInitialized()
	return len(s.items)
}

func indexOf(items []notification.Notification, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) checkInitialized() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mustBeInitialized()
}

// Add prepends n. Ids are not checked for uniqueness. A zero timestamp is
// stamped with the store clock. The stored record is returned.
//
// A record that could not be loaded back (empty id or message, timestamp
// outside the wire range) is logged and dropped, and the collection is left
// untouched.
func (s *Store) Add(n notification.Notification) notification.Notification {
	if s == nil {
		panic(ErrNotInitialized)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.now()
	}
	n = n.Normalize()
	if err := n.Validate(); err != nil {
		s.checkInitialized()
		s.warn.Warn("rejected invalid notification", logx.Err(err))
		return n
	}
	s.mutate("add", eventbus.NotificationAdded, n.ID, n.Timestamp, func(items []notification.Notification) ([]notification.Notification, bool) {
		next := make([]notification.Notification, 0, len(items)+1)
		next = append(next, n)
		return append(next, items...), true
	})
	return n
}

// MarkAsRead flags every record carrying id as read. Unknown ids are a no-op.
func (s *Store) MarkAsRead(id string) { s.setRead(id, true) }

func (s *Store) MarkAsUnread(id string) { s.setRead(id, false) }

func (s *Store) setRead(id string, read bool) {
	op, ev := "mark_read", eventbus.NotificationRead
	if !read {
		op, ev = "mark_unread", eventbus.NotificationUnread
	}
	s.mutate(op, ev, id, time.Time{}, func(items []notification.Notification) ([]notification.Notification, bool) {
		var next []notification.Notification
		for i := range items {
			if items[i].ID != id || items[i].Read == read {
				continue
			}
			if next == nil {
				next = notification.Clone(items)
			}
			next[i].Read = read
		}
		return next, next != nil
	})
}

func (s *Store) MarkAllAsRead() {
	s.mutate("mark_all_read", eventbus.NotificationReadAll, "", time.Time{}, func(items []notification.Notification) ([]notification.Notification, bool) {
		if notification.UnreadCount(items) == 0 {
			return items, false
		}
		next := notification.Clone(items)
		for i := range next {
			next[i].Read = true
		}
		return next, true
	})
}

// Delete removes every record carrying id.
func (s *Store) Delete(id string) {
	s.mutate("delete", eventbus.NotificationDeleted, id, time.Time{}, func(items []notification.Notification) ([]notification.Notification, bool) {
		next := make([]notification.Notification, 0, len(items))
		for _, it := range items {
			if it.ID != id {
				next = append(next, it)
			}
		}
		return next, len(next) != len(items)
	})
}

// DeleteAll empties the collection. The empty collection is persisted, so
// the store stays empty across restarts instead of reseeding.
func (s *Store) DeleteAll() {
	s.mutate("delete_all", eventbus.NotificationCleared, "", time.Time{}, func([]notification.Notification) ([]notification.Notification, bool) {
		return []notification.Notification{}, true
	})
}

// mutate applies fn under the write lock. Metrics and events follow once the
// lock is released, and only when fn reports a change.
func (s *Store) mutate(op, event, id string, at time.Time, fn func([]notification.Notification) ([]notification.Notification, bool)) {
	if s == nil {
		panic(ErrNotInitialized)
	}
	snap, changed := func() ([]notification.Notification, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.mustBeInitialized()
		next, changed := fn(s.items)
		if !changed {
			return nil, false
		}
		s.items = next
		snap := notification.Clone(next)
		// Scheduled under the lock so snapshots reach the writer in
		// mutation order.
		s.writer.Schedule(snap)
		return snap, true
	}()
	if !changed {
		return
	}

	total, unread := len(snap), notification.UnreadCount(snap)
	s.met.Mutation(op)
	s.met.SetCollection(total, unread)
	s.bus.Publish(eventbus.Event{Type: event, Data: eventbus.Change{ID: id, Total: total, Unread: unread, At: at}})
}

// SetDebounce changes the write delay for later mutations.
func (s *Store) SetDebounce(d time.Duration) { s.writer.SetDelay(d) }

// Flush writes any pending snapshot now and reports whether there was one.
func (s *Store) Flush() bool { return s.writer.Flush() }

// Close flushes the pending snapshot and stops scheduling writes. The blob
// store is owned by the caller and stays open.
func (s *Store) Close() {
	s.writer.Stop()
}

func (s *Store) writeSnapshot(items []notification.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	_ = s.put(ctx, items)
}

func (s *Store) put(ctx context.Context, items []notification.Notification) error {
	if items == nil {
		items = []notification.Notification{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		s.warn.Error("encode notifications failed", logx.Err(err))
		return err
	}
	start := time.Now()
	err = s.blobs.Put(ctx, s.key, b)
	s.met.PersistWrite(err, time.Since(start))
	if err != nil {
		s.warn.Warn("persist notifications failed", logx.Err(err), logx.Int("count", len(items)))
		s.bus.Publish(eventbus.Event{Type: eventbus.StorePersistFailed, Data: err.Error()})
		return err
	}
	s.log.Debug("notifications persisted", logx.Int("count", len(items)), logx.Int("bytes", len(b)))
	s.bus.Publish(eventbus.Event{Type: eventbus.StorePersisted, Data: len(items)})
	return nil
}
