package dictionary_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medscan/internal/dictionary"
)

type fakeSource struct {
	mu      sync.Mutex
	fetches int32
	entries map[string]string
	err     error
	delay   time.Duration
}

func (f *fakeSource) FetchMap(_ context.Context) (map[string]string, error) {
	atomic.AddInt32(&f.fetches, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeSource) fetchCount() int {
	return int(atomic.LoadInt32(&f.fetches))
}

type fakeSnapshots struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{values: make(map[string]string)}
}

func (f *fakeSnapshots) GetString(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", false, f.getErr
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeSnapshots) SetString(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

// writeSnapshot stores a serialized snapshot aged relative to now.
func writeSnapshot(t *testing.T, snapshots *fakeSnapshots, now time.Time, age time.Duration, data map[string]string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"timestamp": now.Add(-age).UnixMilli(),
		"data":      data,
	})
	require.NoError(t, err)
	require.NoError(t, snapshots.SetString(context.Background(), dictionary.SnapshotKey, string(raw)))
}

func TestCache_Get(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("fetches on first use and serves from memory afterwards", func(t *testing.T) {
		source := &fakeSource{entries: map[string]string{"tylenol": "acetaminophen"}}
		cache := dictionary.New(source, newFakeSnapshots(), dictionary.WithClock(clock))

		first := cache.Get(ctx, true)
		second := cache.Get(ctx, true)

		assert.Equal(t, map[string]string{"tylenol": "acetaminophen"}, first)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, source.fetchCount())
	})

	t.Run("refetches once the freshness window passes", func(t *testing.T) {
		current := now
		source := &fakeSource{entries: map[string]string{"tylenol": "acetaminophen"}}
		cache := dictionary.New(source, newFakeSnapshots(),
			dictionary.WithClock(func() time.Time { return current }))

		cache.Get(ctx, true)
		current = current.Add(13 * time.Hour)
		cache.Get(ctx, true)

		assert.Equal(t, 2, source.fetchCount())
	})

	t.Run("concurrent misses coalesce onto one fetch", func(t *testing.T) {
		source := &fakeSource{
			entries: map[string]string{"tylenol": "acetaminophen"},
			delay:   20 * time.Millisecond,
		}
		cache := dictionary.New(source, newFakeSnapshots(), dictionary.WithClock(clock))

		const callers = 8
		results := make([]map[string]string, callers)
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func(i int) {
				defer wg.Done()
				results[i] = cache.Get(ctx, true)
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, source.fetchCount())
		for _, result := range results {
			assert.Equal(t, map[string]string{"tylenol": "acetaminophen"}, result)
		}
	})

	t.Run("persists a snapshot after a successful fetch", func(t *testing.T) {
		snapshots := newFakeSnapshots()
		source := &fakeSource{entries: map[string]string{"tylenol": "acetaminophen"}}
		cache := dictionary.New(source, snapshots, dictionary.WithClock(clock))

		cache.Get(ctx, true)

		raw, ok, err := snapshots.GetString(ctx, dictionary.SnapshotKey)
		require.NoError(t, err)
		require.True(t, ok)

		var stored struct {
			Timestamp int64             `json:"timestamp"`
			Data      map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(raw), &stored))
		assert.Equal(t, now.UnixMilli(), stored.Timestamp)
		assert.Equal(t, map[string]string{"tylenol": "acetaminophen"}, stored.Data)
	})

	t.Run("offline serves a retained snapshot", func(t *testing.T) {
		snapshots := newFakeSnapshots()
		writeSnapshot(t, snapshots, now, 10*24*time.Hour, map[string]string{"advil": "ibuprofen"})
		cache := dictionary.New(&fakeSource{}, snapshots, dictionary.WithClock(clock))

		entries := cache.Get(ctx, false)
		assert.Equal(t, map[string]string{"advil": "ibuprofen"}, entries)
	})

	t.Run("offline with an expired snapshot serves an empty map", func(t *testing.T) {
		snapshots := newFakeSnapshots()
		writeSnapshot(t, snapshots, now, 31*24*time.Hour, map[string]string{"advil": "ibuprofen"})
		source := &fakeSource{}
		cache := dictionary.New(source, snapshots, dictionary.WithClock(clock))

		entries := cache.Get(ctx, false)
		assert.Empty(t, entries)
		assert.Equal(t, 0, source.fetchCount())
	})

	t.Run("fetch failure falls back to stale memory", func(t *testing.T) {
		current := now
		source := &fakeSource{entries: map[string]string{"tylenol": "acetaminophen"}}
		cache := dictionary.New(source, newFakeSnapshots(),
			dictionary.WithClock(func() time.Time { return current }))

		cache.Get(ctx, true)

		source.mu.Lock()
		source.err = errors.New("connection refused")
		source.mu.Unlock()
		current = current.Add(13 * time.Hour)

		entries := cache.Get(ctx, true)
		assert.Equal(t, map[string]string{"tylenol": "acetaminophen"}, entries)
	})

	t.Run("fetch failure with no retained data serves an empty map", func(t *testing.T) {
		source := &fakeSource{err: errors.New("connection refused")}
		cache := dictionary.New(source, newFakeSnapshots(), dictionary.WithClock(clock))

		entries := cache.Get(ctx, true)
		assert.Empty(t, entries)
	})

	t.Run("corrupt snapshot is ignored", func(t *testing.T) {
		snapshots := newFakeSnapshots()
		require.NoError(t, snapshots.SetString(ctx, dictionary.SnapshotKey, "{not json"))
		cache := dictionary.New(&fakeSource{}, snapshots, dictionary.WithClock(clock))

		assert.Empty(t, cache.Get(ctx, false))
	})

	t.Run("custom windows are honored", func(t *testing.T) {
		snapshots := newFakeSnapshots()
		writeSnapshot(t, snapshots, now, 2*time.Hour, map[string]string{"advil": "ibuprofen"})
		cache := dictionary.New(&fakeSource{}, snapshots,
			dictionary.WithClock(clock),
			dictionary.WithWindows(time.Minute, time.Hour))

		assert.Empty(t, cache.Get(ctx, false))
	})
}

func TestCache_Refresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("forces a fetch even when fresh", func(t *testing.T) {
		source := &fakeSource{entries: map[string]string{"tylenol": "acetaminophen"}}
		cache := dictionary.New(source, newFakeSnapshots(), dictionary.WithClock(clock))

		cache.Get(ctx, true)
		entries, err := cache.Refresh(ctx)

		require.NoError(t, err)
		assert.Equal(t, map[string]string{"tylenol": "acetaminophen"}, entries)
		assert.Equal(t, 2, source.fetchCount())
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		source := &fakeSource{err: errors.New("connection refused")}
		cache := dictionary.New(source, newFakeSnapshots(), dictionary.WithClock(clock))

		_, err := cache.Refresh(ctx)
		assert.Error(t, err)
	})
}
