package sources

// YouTube fetchers are split across files by backend:
//   youtube_api.go     official Data API v3 client, primary + fallback key
//   youtube_search.go  results page scrape, ytInitialData walk
//   youtube_browser.go headless Chrome scrape of the rendered results page
//   chain.go           ordered fallback across fetchers
//   ratelimit.go       request pacing in front of any fetcher
//   factory.go         builds the configured fetcher from engine.Config

import (
	"regexp"

	"github.com/anatolykoptev/go_travel/internal/engine"
)

var videoIDRE = regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// extractVideoID pulls the 11-char video ID from any YouTube URL format.
func extractVideoID(rawURL string) string {
	m := videoIDRE.FindStringSubmatch(rawURL)
	if len(m) >= 2 {
		return m[1]
	}
	return ""
}

// languageSetter is implemented by fetchers that can bias results toward a language.
type languageSetter interface {
	WithLanguage(language string) engine.Fetcher
}

// WithLanguage returns f biased toward language when f supports it,
// otherwise f unchanged. The receiver is never modified.
func WithLanguage(f engine.Fetcher, language string) engine.Fetcher {
	if language == "" {
		return f
	}
	if ls, ok := f.(languageSetter); ok {
		return ls.WithLanguage(language)
	}
	return f
}

// clampLimit keeps maxResults inside what one results page can yield.
func clampLimit(maxResults, upper int) int {
	if maxResults <= 0 {
		return engine.DefaultMaxResults
	}
	if maxResults > upper {
		return upper
	}
	return maxResults
}
