package travelserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_travel/internal/engine"
	"github.com/anatolykoptev/go_travel/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterTools registers the travel tools on the given MCP server:
// travel_video_search, travel_cache_stats.
func RegisterTools(server *mcp.Server, s *toolutil.Searcher) {
	registerVideoSearch(server, s)
	registerCacheStats(server, s.Cache)
}

func registerVideoSearch(server *mcp.Server, s *toolutil.Searcher) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "travel_video_search",
		Description: "Search YouTube for travel videos about a country and optional city. Results are cached per country, city, language and category; when YouTube is unavailable a previously cached result is returned with a warning. Returns title, URL, channel and thumbnail for each video.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input engine.TravelSearchInput) (*mcp.CallToolResult, engine.TravelSearchOutput, error) {
		return videoSearch(ctx, s, input)
	})
}

func videoSearch(ctx context.Context, s *toolutil.Searcher, input engine.TravelSearchInput) (*mcp.CallToolResult, engine.TravelSearchOutput, error) {
	out, err := s.Search(ctx, input)
	switch {
	case errors.Is(err, toolutil.ErrCountryRequired):
		return nil, engine.TravelSearchOutput{}, err
	case errors.Is(err, engine.ErrLookupFailed):
		slog.Warn("travel_video_search failed", slog.String("query", out.Query), slog.Any("error", err))
		return nil, engine.TravelSearchOutput{}, fmt.Errorf("no videos available for %q: %w", out.Query, err)
	case err != nil:
		return nil, engine.TravelSearchOutput{}, err
	}
	if out.Warning != "" {
		slog.Info("travel_video_search degraded", slog.String("key", out.Key), slog.String("status", string(out.Status)), slog.String("warning", out.Warning))
	}
	return nil, out, nil
}

// CacheStatsInput takes no arguments.
type CacheStatsInput struct{}

func registerCacheStats(server *mcp.Server, cache *engine.LookupCache) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "travel_cache_stats",
		Description: "Report lookup cache counters: persistence backend, entry count, hits, misses, fetches, stale results served and store save failures.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, _ CacheStatsInput) (*mcp.CallToolResult, engine.CacheStats, error) {
		return nil, cache.Stats(), nil
	})
}
