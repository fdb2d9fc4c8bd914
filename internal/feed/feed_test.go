package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifboard/internal/metrics"
	"notifboard/internal/mock"
	"notifboard/internal/notification"
)

type memSink struct {
	mu    sync.Mutex
	items []notification.Notification
}

func (m *memSink) Add(n notification.Notification) notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]notification.Notification{n}, m.items...)
	return n
}

func (m *memSink) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func TestNextDelayWithinBounds(t *testing.T) {
	t.Parallel()
	s := New(Config{}, NewLocalSource(nil), &memSink{}, WithRand(7))
	for range 200 {
		d := s.NextDelay()
		require.GreaterOrEqual(t, d, DefaultMinDelay)
		require.LessOrEqual(t, d, DefaultMaxDelay)
	}

	s.Apply(Config{MinDelay: 3 * time.Second, MaxDelay: time.Second}, nil)
	assert.Equal(t, 3*time.Second, s.NextDelay())
}

func TestFireAddsUnreadNotification(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sink := &memSink{}
	met := metrics.New()
	s := New(Config{Enabled: true}, NewLocalSource(mock.NewGenerator(mock.WithClock(func() time.Time { return now }))), sink, WithMetrics(met))

	n, err := s.Fire(context.Background())
	require.NoError(t, err)
	assert.False(t, n.Read)
	assert.Equal(t, now, n.Timestamp)
	assert.Contains(t, mock.Messages[:], n.Message)
	assert.Equal(t, 1, sink.Len())
}

func TestLoopFiresUntilStopped(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	s := New(Config{Enabled: true, MinDelay: time.Millisecond, MaxDelay: 3 * time.Millisecond}, NewLocalSource(nil), sink)

	s.Start(context.Background())
	require.True(t, s.Running())
	require.Eventually(t, func() bool { return sink.Len() >= 3 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.False(t, s.Running())

	after := sink.Len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, sink.Len(), "no additions after stop")
}

func TestStartDisabledIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, NewLocalSource(nil), &memSink{})
	s.Start(context.Background())
	assert.False(t, s.Running())
	s.Stop(context.Background())
}

func TestApplyRearmsPendingTimer(t *testing.T) {
	t.Parallel()
	sink := &memSink{}
	s := New(Config{Enabled: true, MinDelay: time.Hour, MaxDelay: time.Hour}, NewLocalSource(nil), sink)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.Apply(Config{Enabled: true, MinDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)
	require.Eventually(t, func() bool { return sink.Len() > 0 }, 2*time.Second, time.Millisecond)
}

func TestHTTPSource(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action != "generate" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"success":false,"error":"Invalid action"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"notification":{"id":"notif-1-1","message":"hi","timestamp":"2025-01-02T03:04:05.123Z","read":false}}`))
	}))
	defer ts.Close()

	n, err := NewHTTPSource(ts.URL, time.Second).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notif-1-1", n.ID)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 123e6, time.UTC), n.Timestamp)
}

func TestHTTPSourceFailures(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"Internal server error"}`))
	}))
	defer ts.Close()

	_, err := NewHTTPSource(ts.URL, time.Second).Generate(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorContains(t, err, "Internal server error")

	_, err = NewHTTPSource("http://127.0.0.1:1", 100*time.Millisecond).Generate(context.Background())
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}
