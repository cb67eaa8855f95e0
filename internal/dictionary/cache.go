// Package dictionary caches the brand→generic medication map fetched from
// the remote store, with a short in-memory freshness window and a long-lived
// persisted snapshot for offline use.
package dictionary

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"medscan/internal/logger"
)

// SnapshotKey is the fixed key the serialized snapshot is stored under.
const SnapshotKey = "medication_dictionary"

// Default freshness and retention windows.
const (
	DefaultFreshFor  = 12 * time.Hour
	DefaultRetainFor = 30 * 24 * time.Hour
)

// RemoteSource fetches the full brand→generic map from the remote store.
type RemoteSource interface {
	FetchMap(ctx context.Context) (map[string]string, error)
}

// SnapshotStore persists the serialized snapshot between runs. GetString
// reports ok=false when the key has never been written.
type SnapshotStore interface {
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	SetString(ctx context.Context, key, value string) error
}

// snapshot is the persisted wire form: epoch-millis timestamp plus the map.
type snapshot struct {
	Timestamp int64             `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

// Cache is the process-wide dictionary cache. It is an explicit injectable
// object: construct it once at startup and hand it to pipeline callers.
// Concurrent fetches are coalesced so at most one remote fetch is in flight.
type Cache struct {
	source    RemoteSource
	snapshots SnapshotStore
	freshFor  time.Duration
	retainFor time.Duration
	now       func() time.Time
	log       zerolog.Logger

	group singleflight.Group

	mu        sync.RWMutex
	entries   map[string]string // replaced wholesale, never mutated in place
	fetchedAt time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithWindows overrides the freshness and retention windows.
func WithWindows(freshFor, retainFor time.Duration) Option {
	return func(c *Cache) {
		c.freshFor = freshFor
		c.retainFor = retainFor
	}
}

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an empty cache; the map is populated on first successful fetch.
func New(source RemoteSource, snapshots SnapshotStore, opts ...Option) *Cache {
	c := &Cache{
		source:    source,
		snapshots: snapshots,
		freshFor:  DefaultFreshFor,
		retainFor: DefaultRetainFor,
		now:       time.Now,
		log:       logger.WithComponent("dictionary-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the brand→generic map. A fresh in-memory copy is served
// directly. A stale or empty cache triggers a remote fetch when connected;
// concurrent callers coalesce onto one fetch and all receive the same map.
// When the fetch fails or the caller is offline, the most recent data still
// within the retention window is served; with nothing retained the map is
// empty and the pipeline proceeds (dictionary matching simply finds nothing).
// The returned map is shared and must not be mutated.
func (c *Cache) Get(ctx context.Context, connected bool) map[string]string {
	c.mu.RLock()
	entries, fetchedAt := c.entries, c.fetchedAt
	c.mu.RUnlock()

	if entries != nil && c.now().Sub(fetchedAt) <= c.freshFor {
		return entries
	}

	if !connected {
		return c.fallback(ctx, entries)
	}

	fetched, err, _ := c.group.Do(SnapshotKey, func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("Dictionary fetch failed, serving retained data")
		return c.fallback(ctx, entries)
	}
	return fetched.(map[string]string)
}

// Refresh forces a remote fetch, replaces the cached map and persists the
// snapshot. Used by explicit sync operations.
func (c *Cache) Refresh(ctx context.Context) (map[string]string, error) {
	fetched, err, _ := c.group.Do(SnapshotKey, func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return fetched.(map[string]string), nil
}

func (c *Cache) refresh(ctx context.Context) (map[string]string, error) {
	entries, err := c.source.FetchMap(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = map[string]string{}
	}

	now := c.now()
	c.mu.Lock()
	c.entries = entries
	c.fetchedAt = now
	c.mu.Unlock()

	c.persist(ctx, entries, now)

	c.log.Info().
		Int("entries", len(entries)).
		Msg("Dictionary refreshed from remote store")

	return entries, nil
}

func (c *Cache) persist(ctx context.Context, entries map[string]string, fetchedAt time.Time) {
	if c.snapshots == nil {
		return
	}
	data, err := json.Marshal(snapshot{
		Timestamp: fetchedAt.UnixMilli(),
		Data:      entries,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to serialize dictionary snapshot")
		return
	}
	if err := c.snapshots.SetString(ctx, SnapshotKey, string(data)); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist dictionary snapshot")
	}
}

// fallback serves stale in-memory data if present, then the persisted
// snapshot if it is younger than the retention window, then an empty map.
func (c *Cache) fallback(ctx context.Context, stale map[string]string) map[string]string {
	if stale != nil {
		return stale
	}

	if c.snapshots != nil {
		raw, ok, err := c.snapshots.GetString(ctx, SnapshotKey)
		if err != nil {
			c.log.Warn().Err(err).Msg("Failed to read dictionary snapshot")
		} else if ok {
			var snap snapshot
			if err := json.Unmarshal([]byte(raw), &snap); err != nil {
				c.log.Warn().Err(err).Msg("Corrupt dictionary snapshot ignored")
			} else {
				age := c.now().Sub(time.UnixMilli(snap.Timestamp))
				if age <= c.retainFor {
					c.mu.Lock()
					if c.entries == nil {
						c.entries = snap.Data
						// fetchedAt stays at the snapshot time so the next
						// connected call still attempts a refresh.
						c.fetchedAt = time.UnixMilli(snap.Timestamp)
					}
					c.mu.Unlock()
					return snap.Data
				}
				c.log.Info().
					Dur("age", age).
					Msg("Persisted dictionary snapshot expired")
			}
		}
	}

	return map[string]string{}
}
