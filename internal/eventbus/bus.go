// Package eventbus fans store changes out to in-process observers.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the notification store.
const (
	NotificationAdded   = "notification.added"
	NotificationRead    = "notification.read"
	NotificationUnread  = "notification.unread"
	NotificationReadAll = "notification.read_all"
	NotificationDeleted = "notification.deleted"
	NotificationCleared = "notification.cleared"

	StoreInitialized   = "store.initialized"
	StorePersisted     = "store.persisted"
	StorePersistFailed = "store.persist_failed"
)

// Event is a small in-memory signal.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; a slow subscriber drops events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Change is the Data of notification.* events: the affected id (empty for
// bulk operations) and the collection totals right after the change.
type Change struct {
	ID     string
	Total  int
	Unread int
	// At is the notification timestamp for notification.added.
	At time.Time
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so unsubscribe (write lock) cannot
	// close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
