package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string
	Fetcher               string // api, page, browser or auto
	FetchTimeout          time.Duration
	FetchRate             float64 // fetches per second, 0 = unlimited
	MaxResults            int
	CacheMaxAge           time.Duration
	CacheFile             string
	CacheSQLitePath       string // takes precedence over CacheFile
	RedisURL              string // takes precedence over both file stores
	RedisKey              string
	BrowserScrolls        int
	BrowserScrollPause    time.Duration
	BrowserLoadWait       time.Duration
	BrowserHeadless       bool
	HTTPClient            *http.Client
}

// Defaults applied when a Config field is left zero.
const (
	DefaultMaxResults   = 10
	MaxResultsLimit     = 25
	DefaultCacheMaxAge  = 24 * time.Hour
	DefaultCacheFile    = "youtube_search_cache.json"
	DefaultRedisKey     = "go_travel:lookup"
	DefaultLanguage     = "English"
	DefaultCategory     = "travel vlog"
	DefaultFetchTimeout = 60 * time.Second
)

// WithDefaults returns a copy of c with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Fetcher == "" {
		c.Fetcher = "auto"
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.MaxResults > MaxResultsLimit {
		c.MaxResults = MaxResultsLimit
	}
	if c.CacheMaxAge <= 0 {
		c.CacheMaxAge = DefaultCacheMaxAge
	}
	if c.CacheFile == "" {
		c.CacheFile = DefaultCacheFile
	}
	if c.RedisKey == "" {
		c.RedisKey = DefaultRedisKey
	}
	if c.BrowserScrolls <= 0 {
		c.BrowserScrolls = 3
	}
	if c.BrowserScrollPause <= 0 {
		c.BrowserScrollPause = time.Second
	}
	if c.BrowserLoadWait <= 0 {
		c.BrowserLoadWait = 3 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}
