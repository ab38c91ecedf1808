package engine

import (
	"context"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher counts calls and returns canned results.
type fakeFetcher struct {
	calls   atomic.Int64
	videos  []Video
	err     error
	delay   time.Duration
	queries []string
	mu      sync.Mutex
}

func (f *fakeFetcher) Fetch(_ context.Context, query string, _ int) ([]Video, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	mu      sync.Mutex
	data    map[string]CacheEntry
	saves   int
	loadErr error
	saveErr error
}

func (s *memStore) Name() string { return "mem" }

func (s *memStore) Load(context.Context) (map[string]CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return maps.Clone(s.data), nil
}

func (s *memStore) Save(_ context.Context, entries map[string]CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data = maps.Clone(entries)
	return nil
}

var testNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return testNow }

func parisVideos() []Video {
	return []Video{
		{Title: "Paris in 4K", URL: "https://www.youtube.com/watch?v=aaaaaaaaaaa", Channel: "Wanderer", Thumbnail: "https://i.ytimg.com/vi/aaaaaaaaaaa/mqdefault.jpg"},
		{Title: "Louvre walk", URL: "https://www.youtube.com/watch?v=bbbbbbbbbbb", Channel: "Museum Fan", Thumbnail: "https://i.ytimg.com/vi/bbbbbbbbbbb/mqdefault.jpg"},
	}
}

func TestCacheKey(t *testing.T) {
	t.Run("lowercases and joins", func(t *testing.T) {
		assert.Equal(t, "france-paris-tourism", CacheKey("France", "Paris", "tourism"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, CacheKey("France", "Paris", "tourism"), CacheKey("FRANCE", "paris", "TOURISM"))
	})

	t.Run("empty sub-location", func(t *testing.T) {
		assert.Equal(t, "japan--food", CacheKey("Japan", "", "Food"))
	})

	t.Run("different inputs differ", func(t *testing.T) {
		assert.NotEqual(t, CacheKey("France", "Paris", "food"), CacheKey("France", "Lyon", "food"))
	})
}

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"all parts", []string{"France", "Paris", "tourism"}, "France Paris tourism"},
		{"skips empty", []string{"Japan", "", "street food"}, "Japan street food"},
		{"trims", []string{" Peru ", "Cusco", " hiking"}, "Peru Cusco hiking"},
		{"nothing", []string{"", " "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SearchQuery(tt.parts...))
		})
	}
}

func TestLookupIdempotent(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos()}
	c := NewLookupCache(ctx, &memStore{}, WithClock(fixedClock))

	first, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, first.Status)

	second, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, second.Status)
	assert.Equal(t, first.Results, second.Results)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Equal(t, []string{"France Paris tourism"}, f.queries)
}

func TestLookupTTLBoundary(t *testing.T) {
	ctx := context.Background()
	maxAge := 24 * time.Hour
	key := CacheKey("France", "Paris", "tourism")
	now := unixSeconds(testNow)

	tests := []struct {
		name      string
		fetchedAt float64
		wantCalls int64
		want      Status
	}{
		{"one second past max age", now - maxAge.Seconds() - 1, 1, StatusFetched},
		{"exactly max age", now - maxAge.Seconds(), 0, StatusHit},
		{"one second inside max age", now - maxAge.Seconds() + 1, 0, StatusHit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{data: map[string]CacheEntry{
				key: {Results: parisVideos()[:1], FetchedAt: tt.fetchedAt},
			}}
			f := &fakeFetcher{videos: parisVideos()}
			c := NewLookupCache(ctx, store, WithClock(fixedClock))

			out, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, maxAge)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
			assert.Equal(t, tt.wantCalls, f.calls.Load())
		})
	}
}

func TestLookupCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos()}
	c := NewLookupCache(ctx, &memStore{}, WithClock(fixedClock))

	_, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
	require.NoError(t, err)
	out, err := c.Lookup(ctx, f, "FRANCE", "paris", "TOURISM", 10, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, StatusHit, out.Status)
	assert.Equal(t, "france-paris-tourism", out.Key)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestLookupStaleOnFailure(t *testing.T) {
	ctx := context.Background()
	key := CacheKey("Italy", "Rome", "food")
	stale := []Video{{Title: "Old carbonara", URL: "https://www.youtube.com/watch?v=ccccccccccc"}}
	store := &memStore{data: map[string]CacheEntry{
		key: {Results: stale, FetchedAt: unixSeconds(testNow) - 7*24*3600},
	}}
	f := &fakeFetcher{err: errors.New("browser crashed")}
	c := NewLookupCache(ctx, store, WithClock(fixedClock))

	out, err := c.Lookup(ctx, f, "Italy", "Rome", "food", 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, out.Status)
	assert.Equal(t, stale, out.Results)

	var fe *FetchError
	require.ErrorAs(t, out.Warning, &fe)
	assert.Equal(t, "Italy Rome food", fe.Query)
	assert.Equal(t, 0, store.saves, "stale fallback must not rewrite the store")
	assert.EqualValues(t, 1, c.Stats().StaleServed)
}

func TestLookupFailsWithoutEntry(t *testing.T) {
	ctx := context.Background()
	cause := &FetchError{Source: "api", Query: "Chile  hiking", Err: errors.New("quota exceeded")}
	f := &fakeFetcher{err: cause}
	c := NewLookupCache(ctx, &memStore{}, WithClock(fixedClock))

	out, err := c.Lookup(ctx, f, "Chile", "", "hiking", 10, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookupFailed)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "api", fe.Source)
	assert.Empty(t, out.Results)
	assert.Equal(t, 0, c.Len())
}

func TestLookupCachesEmptyResults(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: nil}
	store := &memStore{}
	c := NewLookupCache(ctx, store, WithClock(fixedClock))

	first, err := c.Lookup(ctx, f, "Antarctica", "", "nightlife", 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, first.Status)
	assert.NotNil(t, first.Results)
	assert.Empty(t, first.Results)

	second, err := c.Lookup(ctx, f, "Antarctica", "", "nightlife", 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, second.Status)
	assert.Empty(t, second.Results)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.Equal(t, 1, store.saves)
}

func TestLookupTruncatesToMaxResults(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos()}
	c := NewLookupCache(ctx, &memStore{}, WithClock(fixedClock))

	out, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 1, time.Hour)
	require.NoError(t, err)
	assert.Len(t, out.Results, 1)

	entry, ok := c.Entry(out.Key)
	require.True(t, ok)
	assert.Len(t, entry.Results, 1)
}

func TestLookupSaveFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	saveErr := &StoreSaveError{Store: "mem", Err: errors.New("disk full")}
	f := &fakeFetcher{videos: parisVideos()}
	c := NewLookupCache(ctx, &memStore{saveErr: saveErr}, WithClock(fixedClock))

	out, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusFetched, out.Status)

	var se *StoreSaveError
	require.ErrorAs(t, out.Warning, &se)

	again, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, again.Status)
	assert.EqualValues(t, 1, f.calls.Load())
	assert.EqualValues(t, 1, c.Stats().SaveErrors)
}

func TestLookupConcurrentSameKeyFetchesOnce(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos(), delay: 50 * time.Millisecond}
	store := &memStore{}
	c := NewLookupCache(ctx, store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
			assert.NoError(t, err)
			assert.Len(t, out.Results, 2)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.calls.Load())
	assert.Equal(t, 1, store.saves)
}

func TestLookupConcurrentDifferentKeys(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos(), delay: 10 * time.Millisecond}
	store := &memStore{}
	c := NewLookupCache(ctx, store)

	cities := []string{"Paris", "Lyon", "Nice", "Lille", "Nantes"}
	var wg sync.WaitGroup
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			_, err := c.Lookup(ctx, f, "France", city, "food", 10, time.Hour)
			assert.NoError(t, err)
		}(city)
	}
	wg.Wait()

	assert.EqualValues(t, len(cities), f.calls.Load())
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, len(cities), "no flush may drop another key's entry")
}

func TestLookupUnreadableStoreStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := &memStore{loadErr: &StoreLoadError{Store: "mem", Err: errors.New("bad bytes")}}
	c := NewLookupCache(ctx, store)
	assert.Equal(t, 0, c.Len())
}

func TestLookupNilStore(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos()}
	c := NewLookupCache(ctx, nil)

	_, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Stats().Store)
	assert.Equal(t, 1, c.Len())
}

func TestLookupFilePersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache", "youtube_search_cache.json")

	c := NewLookupCache(ctx, NewFileStore(path), WithClock(fixedClock))
	f := &fakeFetcher{videos: parisVideos()}
	_, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
	require.NoError(t, err)
	_, err = c.Lookup(ctx, f, "Japan", "Kyoto", "temples", 10, time.Hour)
	require.NoError(t, err)

	reloaded := NewLookupCache(ctx, NewFileStore(path), WithClock(fixedClock))
	require.Equal(t, 2, reloaded.Len())
	for _, key := range []string{"france-paris-tourism", "japan-kyoto-temples"} {
		want, _ := c.Entry(key)
		got, ok := reloaded.Entry(key)
		require.True(t, ok, key)
		assert.Equal(t, want, got)
	}

	// The reloaded cache serves the persisted entry without fetching.
	out, err := reloaded.Lookup(ctx, f, "france", "paris", "tourism", 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, out.Status)
	assert.EqualValues(t, 2, f.calls.Load())
}

func TestLookupCorruptFileRecovers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "youtube_search_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"france-paris-tourism": [not json`), 0600))

	c := NewLookupCache(ctx, NewFileStore(path), WithClock(fixedClock))
	assert.Equal(t, 0, c.Len())

	f := &fakeFetcher{videos: parisVideos()}
	_, err := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
	require.NoError(t, err)

	loaded, err := NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, loaded, "france-paris-tourism")
}

func TestCacheStats(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: parisVideos()}
	c := NewLookupCache(ctx, &memStore{}, WithClock(fixedClock))

	c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour) //nolint:errcheck
	c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour) //nolint:errcheck

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.EqualValues(t, 1, stats.Fetches)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, "mem", stats.Store)
}

func manyVideos(n int) []Video {
	out := make([]Video, n)
	for i := range out {
		out[i] = Video{Title: "clip", URL: YouTubeVideoURL("aaaaaaaaaaa")}
	}
	return out
}

func TestLookupCoalescedCallersGetOwnLimit(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{videos: manyVideos(20), delay: 100 * time.Millisecond}
	c := NewLookupCache(ctx, &memStore{})

	var wg sync.WaitGroup
	var large, small Outcome
	var errLarge, errSmall error
	wg.Add(2)
	go func() {
		defer wg.Done()
		large, errLarge = c.Lookup(ctx, f, "Japan", "Tokyo", "food", 20, time.Hour)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		small, errSmall = c.Lookup(ctx, f, "Japan", "Tokyo", "food", 3, time.Hour)
	}()
	wg.Wait()

	require.NoError(t, errLarge)
	require.NoError(t, errSmall)
	assert.Len(t, large.Results, 20)
	assert.Len(t, small.Results, 3)
	assert.EqualValues(t, 1, f.calls.Load())

	hit, err := c.Lookup(ctx, f, "Japan", "Tokyo", "food", 5, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, StatusHit, hit.Status)
	assert.Len(t, hit.Results, 5)
}

// gatedFetcher blocks until release is closed or its ctx ends.
type gatedFetcher struct {
	calls   atomic.Int64
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedFetcher) Fetch(ctx context.Context, _ string, _ int) ([]Video, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return parisVideos(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestLookupCanceledCallerDoesNotFailOthers(t *testing.T) {
	f := newGatedFetcher()
	c := NewLookupCache(context.Background(), &memStore{})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Lookup(ctxA, f, "France", "Paris", "tourism", 10, time.Hour)
		errA <- err
	}()
	<-f.started

	type result struct {
		out Outcome
		err error
	}
	resB := make(chan result, 1)
	go func() {
		out, err := c.Lookup(context.Background(), f, "France", "Paris", "tourism", 10, time.Hour)
		resB <- result{out, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrLookupFailed)

	close(f.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Len(t, b.out.Results, 2)
	assert.EqualValues(t, 1, f.calls.Load())

	entry, ok := c.Entry(CacheKey("France", "Paris", "tourism"))
	require.True(t, ok, "the shared fetch still fills the cache")
	assert.Len(t, entry.Results, 2)
}

func TestLookupFlightTimeout(t *testing.T) {
	f := newGatedFetcher()
	c := NewLookupCache(context.Background(), &memStore{}, WithFlightTimeout(20*time.Millisecond))

	_, err := c.Lookup(context.Background(), f, "France", "Paris", "tourism", 10, time.Hour)
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// slowStore blocks every Save until release is closed.
type slowStore struct {
	memStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) Save(ctx context.Context, entries map[string]CacheEntry) error {
	s.entered <- struct{}{}
	<-s.release
	return s.memStore.Save(ctx, entries)
}

func TestLookupReadsDoNotWaitOnFlush(t *testing.T) {
	ctx := context.Background()
	store := &slowStore{
		memStore: memStore{data: map[string]CacheEntry{
			CacheKey("France", "Paris", "tourism"): {Results: parisVideos(), FetchedAt: unixSeconds(testNow)},
		}},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewLookupCache(ctx, store, WithClock(fixedClock))
	f := &fakeFetcher{videos: parisVideos()}

	missDone := make(chan error, 1)
	go func() {
		_, err := c.Lookup(ctx, f, "Italy", "Rome", "food", 10, time.Hour)
		missDone <- err
	}()
	<-store.entered

	hitDone := make(chan Outcome, 1)
	go func() {
		out, _ := c.Lookup(ctx, f, "France", "Paris", "tourism", 10, time.Hour)
		hitDone <- out
	}()
	select {
	case out := <-hitDone:
		assert.Equal(t, StatusHit, out.Status)
	case <-time.After(time.Second):
		t.Fatal("cache hit blocked behind a store flush")
	}

	close(store.release)
	require.NoError(t, <-missDone)
	assert.Equal(t, 2, c.Len())
}
