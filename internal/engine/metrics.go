package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	SearchRequests         atomic.Int64
	SearchErrors           atomic.Int64
	YouTubeAPIRequests     atomic.Int64
	YouTubePageRequests    atomic.Int64
	YouTubeBrowserRequests atomic.Int64
	FetchErrors            atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
// c may be nil when no cache is running.
func GetMetrics(c *LookupCache) map[string]int64 {
	m := map[string]int64{
		"search_requests":          metrics.SearchRequests.Load(),
		"search_errors":            metrics.SearchErrors.Load(),
		"youtube_api_requests":     metrics.YouTubeAPIRequests.Load(),
		"youtube_page_requests":    metrics.YouTubePageRequests.Load(),
		"youtube_browser_requests": metrics.YouTubeBrowserRequests.Load(),
		"fetch_errors":             metrics.FetchErrors.Load(),
	}
	if c != nil {
		s := c.Stats()
		m["cache_entries"] = int64(s.Entries)
		m["cache_hits"] = s.Hits
		m["cache_misses"] = s.Misses
		m["cache_fetches"] = s.Fetches
		m["cache_stale_served"] = s.StaleServed
		m["cache_save_errors"] = s.SaveErrors
	}
	return m
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics(c *LookupCache) string {
	m := GetMetrics(c)
	var sb strings.Builder
	keys := []string{
		"search_requests", "search_errors",
		"youtube_api_requests", "youtube_page_requests", "youtube_browser_requests",
		"fetch_errors",
		"cache_entries", "cache_hits", "cache_misses", "cache_fetches",
		"cache_stale_served", "cache_save_errors",
	}
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "%s %d\n", k, v)
	}
	return sb.String()
}

// Incrementors for the search surfaces.
func IncrSearchRequests() { metrics.SearchRequests.Add(1) }
func IncrSearchErrors()   { metrics.SearchErrors.Add(1) }

// Incrementors for sources/ sub-package.
func IncrYouTubeAPI()     { metrics.YouTubeAPIRequests.Add(1) }
func IncrYouTubePage()    { metrics.YouTubePageRequests.Add(1) }
func IncrYouTubeBrowser() { metrics.YouTubeBrowserRequests.Add(1) }
func IncrFetchErrors()    { metrics.FetchErrors.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
