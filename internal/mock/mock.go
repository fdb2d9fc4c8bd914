// Package mock produces the first-run seed batch and random on-demand
// notifications.
package mock

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"notifboard/internal/notification"
)

const (
	SeedSize    = 10
	SeedSpacing = 20 * time.Minute
)

// Seed returns the first-run batch: SeedSize records spaced SeedSpacing apart
// going back from now, alternating unread/read starting with unread.
func Seed(now time.Time) []notification.Notification {
	ms := now.UnixMilli()
	out := make([]notification.Notification, 0, SeedSize)
	for i := 1; i <= SeedSize; i++ {
		out = append(out, notification.Notification{
			ID:        fmt.Sprintf("mock-%d-%d", ms, i),
			Message:   fmt.Sprintf("Sample notification %d", i),
			Timestamp: now.Add(-time.Duration(i) * SeedSpacing).UTC().Truncate(time.Millisecond),
			Read:      i%2 == 0,
		})
	}
	return out
}

// Generator mints unread notifications with a catalog message picked
// uniformly at random. Safe for concurrent use.
type Generator struct {
	now     func() time.Time
	counter atomic.Uint64

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Generator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRand seeds the message picker, for reproducible output.
func WithRand(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Next returns a fresh notification with id notif-<unix ms>-<counter>.
// The counter starts at 1 and never repeats within a Generator.
func (g *Generator) Next() notification.Notification {
	now := g.now()
	g.mu.Lock()
	msg := Messages[g.rng.Intn(len(Messages))]
	g.mu.Unlock()
	return notification.Notification{
		ID:        g.NewID(now),
		Message:   msg,
		Timestamp: now.UTC().Truncate(time.Millisecond),
		Read:      false,
	}
}

// NewID mints an id in the generator format without building a notification.
func (g *Generator) NewID(now time.Time) string {
	return fmt.Sprintf("notif-%d-%d", now.UnixMilli(), g.counter.Add(1))
}

// Now exposes the generator clock.
func (g *Generator) Now() time.Time { return g.now() }
