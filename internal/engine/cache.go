package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fetcher performs the actual video search. Implementations return a
// *FetchError on failure. An empty slice is a valid answer.
type Fetcher interface {
	Fetch(ctx context.Context, query string, maxResults int) ([]Video, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, query string, maxResults int) ([]Video, error)

func (f FetcherFunc) Fetch(ctx context.Context, query string, maxResults int) ([]Video, error) {
	return f(ctx, query, maxResults)
}

// LookupCache is a persisted map from CacheKey to the last fetched results.
// Fresh entries are served without calling the fetcher; when a refresh
// fails, an existing entry is served even if it is stale.
//
// A mutex guards the in-memory map; flushes of the store are serialized
// separately so reads never wait on store I/O. Concurrent misses on the
// same key share a single fetch.
type LookupCache struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]CacheEntry
	// saveMu orders flushes so a newer snapshot never lands before an older one.
	saveMu sync.Mutex

	flights       singleflight.Group
	flightTimeout time.Duration

	hits        atomic.Int64
	misses      atomic.Int64
	fetches     atomic.Int64
	staleServed atomic.Int64
	fetchErrors atomic.Int64
	saveErrors  atomic.Int64
}

// CacheOption configures a LookupCache.
type CacheOption func(*LookupCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *LookupCache) { c.now = now }
}

// WithFlightTimeout bounds a shared fetch. The fetch does not follow any
// single caller's cancellation, so this is its only deadline.
func WithFlightTimeout(d time.Duration) CacheOption {
	return func(c *LookupCache) {
		if d > 0 {
			c.flightTimeout = d
		}
	}
}

// NewLookupCache loads the store once. A store that is missing or cannot be
// decoded yields an empty cache; the failure is logged, never returned.
// A nil store keeps entries in memory only.
func NewLookupCache(ctx context.Context, store Store, opts ...CacheOption) *LookupCache {
	if store == nil {
		store = nopStore{}
	}
	c := &LookupCache{store: store, now: time.Now, flightTimeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(c)
	}

	entries, err := store.Load(ctx)
	if err != nil {
		slog.Warn("cache: store unreadable, starting empty",
			slog.String("store", store.Name()), slog.Any("error", err))
		entries = map[string]CacheEntry{}
	}
	c.entries = entries

	slog.Info("cache: initialized", slog.String("store", store.Name()), slog.Int("entries", len(entries)))
	return c
}

// CacheKey derives the lookup key from its three components.
// Components are lowercased and joined with "-"; nothing else is normalised.
func CacheKey(location, subLocation, topic string) string {
	return strings.ToLower(location) + "-" + strings.ToLower(subLocation) + "-" + strings.ToLower(topic)
}

// SearchQuery builds the fetcher query from the non-empty components.
func SearchQuery(parts ...string) string {
	var fields []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return strings.Join(fields, " ")
}

// Lookup returns results for (location, subLocation, topic).
//
// A cached entry no older than maxAge is returned without fetching. Otherwise the
// fetcher is called and at most maxResults results are kept (maxResults <= 0
// keeps all). A successful fetch, empty or not, replaces the entry and is
// flushed to the store; a flush failure is reported in Outcome.Warning.
// If the fetch fails, any existing entry is returned with StatusStale.
// With no entry to fall back to, the error wraps ErrLookupFailed.
// Every caller gets at most its own maxResults results.
//
// The fetch is shared by all callers waiting on the key and is bounded by
// the flight timeout, not by any caller's ctx. ctx bounds only how long
// this caller waits.
func (c *LookupCache) Lookup(ctx context.Context, f Fetcher, location, subLocation, topic string, maxResults int, maxAge time.Duration) (Outcome, error) {
	key := CacheKey(location, subLocation, topic)

	if out, ok := c.fresh(key, maxAge); ok {
		slog.Debug("cache: hit", slog.String("key", key))
		c.hits.Add(1)
		return limitResults(out, maxResults), nil
	}
	c.misses.Add(1)

	query := SearchQuery(location, subLocation, topic)
	ch := c.flights.DoChan(key, func() (any, error) {
		// A flight that just finished may have refreshed the entry.
		if out, ok := c.fresh(key, maxAge); ok {
			return out, nil
		}
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()
		return c.refresh(flightCtx, f, key, query, maxResults)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		// The flight keeps running for the other callers and still fills the cache.
		return Outcome{Key: key}, fmt.Errorf("%w: %w", ErrLookupFailed, ctx.Err())
	}
	if res.Shared {
		slog.Debug("cache: coalesced with in-flight fetch", slog.String("key", key))
	}
	if res.Err != nil {
		return Outcome{Key: key}, res.Err
	}
	out := res.Val.(Outcome)
	out.Results = slices.Clone(out.Results)
	return limitResults(out, maxResults), nil
}

// limitResults caps out.Results at maxResults; maxResults <= 0 keeps all.
func limitResults(out Outcome, maxResults int) Outcome {
	if maxResults > 0 && len(out.Results) > maxResults {
		out.Results = out.Results[:maxResults]
	}
	return out
}

// fresh returns the entry for key when it is no older than maxAge.
func (c *LookupCache) fresh(key string, maxAge time.Duration) (Outcome, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return Outcome{}, false
	}
	age := unixSeconds(c.now()) - entry.FetchedAt
	if age > maxAge.Seconds() {
		return Outcome{}, false
	}
	return Outcome{
		Key:       key,
		Status:    StatusHit,
		Results:   slices.Clone(entry.Results),
		FetchedAt: entry.FetchedTime(),
	}, true
}

func (c *LookupCache) refresh(ctx context.Context, f Fetcher, key, query string, maxResults int) (Outcome, error) {
	c.fetches.Add(1)
	start := c.now()
	videos, err := f.Fetch(ctx, query, maxResults)
	if err != nil {
		c.fetchErrors.Add(1)
		fetchErr := NewFetchError("fetcher", query, err)

		c.mu.Lock()
		entry, ok := c.entries[key]
		c.mu.Unlock()
		if !ok {
			slog.Warn("cache: fetch failed, nothing cached", slog.String("key", key), slog.Any("error", fetchErr))
			return Outcome{}, fmt.Errorf("%w: %w", ErrLookupFailed, fetchErr)
		}

		c.staleServed.Add(1)
		slog.Warn("cache: fetch failed, serving stale entry",
			slog.String("key", key),
			slog.Time("fetched_at", entry.FetchedTime()),
			slog.Any("error", fetchErr))
		return Outcome{
			Key:       key,
			Status:    StatusStale,
			Results:   slices.Clone(entry.Results),
			FetchedAt: entry.FetchedTime(),
			Warning:   fetchErr,
		}, nil
	}

	if maxResults > 0 && len(videos) > maxResults {
		videos = videos[:maxResults]
	}
	if videos == nil {
		videos = []Video{}
	}
	now := c.now()
	entry := CacheEntry{Results: slices.Clone(videos), FetchedAt: unixSeconds(now)}

	saveErr := c.put(ctx, key, entry)
	if saveErr != nil {
		c.saveErrors.Add(1)
		slog.Warn("cache: store save failed, keeping entry in memory",
			slog.String("store", c.store.Name()), slog.Any("error", saveErr))
	}

	slog.Debug("cache: refreshed",
		slog.String("key", key),
		slog.Int("results", len(videos)),
		slog.Duration("elapsed", now.Sub(start)))
	return Outcome{
		Key:       key,
		Status:    StatusFetched,
		Results:   videos,
		FetchedAt: entry.FetchedTime(),
		Warning:   saveErr,
	}, nil
}

// put stores entry and flushes a snapshot of the whole map. Flushes are
// serialized by saveMu; c.mu is held only while the map is updated and copied.
func (c *LookupCache) put(ctx context.Context, key string, entry CacheEntry) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	c.entries[key] = entry
	snapshot := maps.Clone(c.entries)
	c.mu.Unlock()

	return c.store.Save(ctx, snapshot)
}

// Entry returns a copy of the entry stored under key.
func (c *LookupCache) Entry(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if ok {
		entry.Results = slices.Clone(entry.Results)
	}
	return entry, ok
}

// Len returns the number of entries held in memory.
func (c *LookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CacheStats is a snapshot of the cache counters.
type CacheStats struct {
	Store       string `json:"store"`
	Entries     int    `json:"entries"`
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Fetches     int64  `json:"fetches"`
	StaleServed int64  `json:"stale_served"`
	FetchErrors int64  `json:"fetch_errors"`
	SaveErrors  int64  `json:"save_errors"`
}

// Stats returns current cache counters.
func (c *LookupCache) Stats() CacheStats {
	return CacheStats{
		Store:       c.store.Name(),
		Entries:     c.Len(),
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Fetches:     c.fetches.Load(),
		StaleServed: c.staleServed.Load(),
		FetchErrors: c.fetchErrors.Load(),
		SaveErrors:  c.saveErrors.Load(),
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}

// nopStore keeps nothing; used when no store is configured.
type nopStore struct{}

func (nopStore) Name() string { return "memory" }

func (nopStore) Load(context.Context) (map[string]CacheEntry, error) {
	return map[string]CacheEntry{}, nil
}

func (nopStore) Save(context.Context, map[string]CacheEntry) error { return nil }
