package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifboard/internal/eventbus"
	"notifboard/internal/storage"
	"notifboard/internal/view"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestRecordAndCount(t *testing.T) {
	t.Parallel()
	r := New(Config{Location: time.UTC}, storage.NewMemory())
	r.Record(time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC))
	r.Record(time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC))
	r.Record(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC))

	n, ok := r.Count(day(2025, 3, 4))
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = r.Count(day(2025, 3, 3))
	assert.False(t, ok)
}

func TestRecordUsesConfiguredLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*3600)
	r := New(Config{Location: loc}, storage.NewMemory())
	// 20:00 UTC on the 4th is already the 5th at UTC+7.
	r.Record(time.Date(2025, 3, 4, 20, 0, 0, 0, time.UTC))

	n, ok := r.Count(time.Date(2025, 3, 5, 0, 0, 0, 0, loc))
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestFlushAndLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	blobs := storage.NewMemory()

	r := New(Config{Location: time.UTC}, blobs)
	r.Record(day(2025, 3, 4))
	require.NoError(t, r.Flush(ctx))

	raw, err := blobs.Get(ctx, DefaultKey)
	require.NoError(t, err)
	var stored map[string]int
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, map[string]int{"2025-03-04": 1}, stored)

	again := New(Config{Location: time.UTC}, blobs)
	require.NoError(t, again.Load(ctx))
	n, ok := again.Count(day(2025, 3, 4))
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestLoadMissingIsEmpty(t *testing.T) {
	t.Parallel()
	r := New(Config{}, storage.NewMemory())
	require.NoError(t, r.Load(context.Background()))
}

func TestLoadCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	blobs := storage.NewMemory()
	require.NoError(t, blobs.Put(ctx, DefaultKey, []byte("{nope")))
	require.Error(t, New(Config{}, blobs).Load(ctx))
}

func TestPrune(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := New(Config{Location: time.UTC, RetainDays: 3}, storage.NewMemory(), WithClock(func() time.Time { return now }))
	r.Record(day(2025, 3, 6))
	r.Record(day(2025, 3, 7))
	r.Record(day(2025, 3, 10))

	assert.Equal(t, 1, r.Prune())
	_, ok := r.Count(day(2025, 3, 6))
	assert.False(t, ok)
	_, ok = r.Count(day(2025, 3, 7))
	assert.True(t, ok)
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ParseSchedule("@every 30s"))
	assert.NoError(t, ParseSchedule("*/10 * * * * *"))
	assert.NoError(t, ParseSchedule("0 0 * * *"))
	assert.Error(t, ParseSchedule("whenever"))
}

func TestStartRecordsBusEventsAndStopFlushes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	blobs := storage.NewMemory()
	bus := eventbus.New()
	r := New(Config{Location: time.UTC, Schedule: "@every 1h"}, blobs)
	require.NoError(t, r.Start(ctx, bus))

	at := time.Now().UTC()
	bus.Publish(eventbus.Event{Type: eventbus.NotificationRead, Data: eventbus.Change{ID: "x"}})
	bus.Publish(eventbus.Event{Type: eventbus.NotificationAdded, Data: eventbus.Change{ID: "x", At: at}})

	require.Eventually(t, func() bool {
		n, _ := r.Count(view.StartOfDay(at))
		return n == 1
	}, time.Second, time.Millisecond)

	r.Stop(ctx)
	_, err := blobs.Get(ctx, DefaultKey)
	require.NoError(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	r := New(Config{Schedule: "bogus"}, storage.NewMemory())
	require.Error(t, r.Start(context.Background(), eventbus.New()))
}

func TestSatisfiesViewHistory(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r := New(Config{Location: time.UTC}, storage.NewMemory())
	r.Record(day(2025, 3, 9))

	var h view.History = r
	days := view.DailyCounts(nil, now, h)
	require.Len(t, days, view.Days)
	assert.Equal(t, 1, days[5].Count)
	assert.True(t, days[5].Real)
	assert.Equal(t, view.MockDailySeries[4], days[4].Count)
	assert.False(t, days[4].Real)
}
