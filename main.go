// go_travel: travel video search MCP server.
//
// Exposes two MCP tools: travel_video_search, travel_cache_stats.
// Optionally serves the same search as JSON over HTTP (POST /search) when HTTP_ADDR is set.
// Lookups go through a persistent cache (JSON file, SQLite or Redis) in front of YouTube.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_travel/internal/engine"
	"github.com/anatolykoptev/go_travel/internal/engine/sources"
	"github.com/anatolykoptev/go_travel/internal/toolutil"
	"github.com/anatolykoptev/go_travel/internal/travelserver"
	"github.com/anatolykoptev/go_travel/internal/webapi"
	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version  = "dev"
	mcpPort  = env.Str("MCP_PORT", "8893")
	httpAddr = env.Str("HTTP_ADDR", "")
)

func main() {
	ctx := context.Background()
	cfg := loadConfig()

	store, closeStore, err := engine.OpenStore(ctx, cfg)
	if err != nil {
		slog.Warn("configured cache store unavailable, persisting to JSON file instead",
			slog.String("configured", configuredStore(cfg)),
			slog.String("fallback", cfg.CacheFile),
			slog.Any("error", err))
		store, closeStore = engine.NewFileStore(cfg.CacheFile), func() {}
	}
	defer closeStore()
	cache := engine.NewLookupCache(ctx, store, engine.WithFlightTimeout(cfg.FetchTimeout))

	fetcher, closeFetcher, err := sources.NewFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("fetcher init failed", slog.Any("error", err))
		return
	}
	defer closeFetcher()

	searcher := &toolutil.Searcher{Cache: cache, Fetcher: fetcher, Config: cfg}

	slog.Info("starting go_travel",
		slog.String("port", mcpPort),
		slog.String("fetcher", cfg.Fetcher),
		slog.String("store", store.Name()),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_travel",
		Version: version,
	}, nil)

	travelserver.RegisterTools(server, searcher)
	slog.Info("tools registered", slog.Int("count", 2))

	var web *http.Server
	if httpAddr != "" {
		web = startWebAPI(httpAddr, searcher)
	}

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_travel",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: cfg.FetchTimeout + 30*time.Second,
		Metrics:      func() string { return engine.FormatMetrics(cache) },
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}

	if web != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := web.Shutdown(shutdownCtx); err != nil {
			slog.Warn("web api shutdown", slog.Any("error", err))
		}
	}
}

func loadConfig() engine.Config {
	return engine.Config{
		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		Fetcher:               env.Str("FETCHER", sources.ModeAuto),
		FetchTimeout:          env.Duration("FETCH_TIMEOUT", engine.DefaultFetchTimeout),
		FetchRate:             env.Float("FETCH_RATE", 0),
		MaxResults:            env.Int("MAX_RESULTS", engine.DefaultMaxResults),
		CacheMaxAge:           env.Duration("CACHE_MAX_AGE", engine.DefaultCacheMaxAge),
		CacheFile:             env.Str("CACHE_FILE", engine.DefaultCacheFile),
		CacheSQLitePath:       env.Str("CACHE_SQLITE_PATH", ""),
		RedisURL:              env.Str("REDIS_URL", ""),
		RedisKey:              env.Str("REDIS_KEY", engine.DefaultRedisKey),
		BrowserScrolls:        env.Int("BROWSER_SCROLLS", 3),
		BrowserScrollPause:    env.Duration("BROWSER_SCROLL_PAUSE", time.Second),
		BrowserLoadWait:       env.Duration("BROWSER_LOAD_WAIT", 3*time.Second),
		BrowserHeadless:       env.Str("BROWSER_HEADLESS", "true") != "false",
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}.WithDefaults()
}

// configuredStore names the backend OpenStore was asked for.
func configuredStore(cfg engine.Config) string {
	switch {
	case cfg.RedisURL != "":
		return "redis"
	case cfg.CacheSQLitePath != "":
		return "sqlite"
	}
	return "file"
}

func startWebAPI(addr string, s *toolutil.Searcher) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           webapi.NewRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("web api listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web api failed", slog.Any("error", err))
		}
	}()
	return srv
}
