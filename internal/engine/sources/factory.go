package sources

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go_travel/internal/engine"
)

// Fetcher modes accepted in Config.Fetcher.
const (
	ModeAuto    = "auto"
	ModeAPI     = "api"
	ModePage    = "page"
	ModeBrowser = "browser"
)

// NewFromConfig builds the fetcher selected by cfg.Fetcher, wrapped in the
// configured rate limit. The returned func releases browser resources.
//
// auto: Data API with page fallback when a key is set, otherwise page then browser.
func NewFromConfig(ctx context.Context, cfg engine.Config) (engine.Fetcher, func(), error) {
	cfg = cfg.WithDefaults()
	keys := []string{cfg.YouTubeAPIKey, cfg.YouTubeAPIKeyFallback}

	var (
		f       engine.Fetcher
		browser *YouTubeBrowser
	)
	newBrowser := func() *YouTubeBrowser {
		browser = NewYouTubeBrowser(BrowserOptions{
			Headless:    cfg.BrowserHeadless,
			LoadWait:    cfg.BrowserLoadWait,
			Scrolls:     cfg.BrowserScrolls,
			ScrollPause: cfg.BrowserScrollPause,
		})
		return browser
	}

	switch cfg.Fetcher {
	case ModeAPI:
		api, err := NewYouTubeAPI(ctx, keys)
		if err != nil {
			return nil, nil, err
		}
		f = api
	case ModePage:
		f = NewYouTubePage(cfg.HTTPClient)
	case ModeBrowser:
		f = newBrowser()
	case ModeAuto:
		if cfg.YouTubeAPIKey != "" || cfg.YouTubeAPIKeyFallback != "" {
			api, err := NewYouTubeAPI(ctx, keys)
			if err != nil {
				return nil, nil, err
			}
			f = NewChain(
				Named{Name: ModeAPI, Fetcher: api},
				Named{Name: ModePage, Fetcher: NewYouTubePage(cfg.HTTPClient)},
			)
		} else {
			f = NewChain(
				Named{Name: ModePage, Fetcher: NewYouTubePage(cfg.HTTPClient)},
				Named{Name: ModeBrowser, Fetcher: newBrowser()},
			)
		}
	default:
		return nil, nil, fmt.Errorf("unknown fetcher %q (want auto, api, page or browser)", cfg.Fetcher)
	}

	cleanup := func() {
		if browser != nil {
			browser.Close()
		}
	}
	return NewRateLimited(f, cfg.FetchRate), cleanup, nil
}
