package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/anatolykoptev/go_travel/internal/engine"
	"github.com/chromedp/chromedp"
)

const (
	ytOrigin            = "https://www.youtube.com"
	ytBrowserMaxResults = 50
	ytResultSelector    = "ytd-video-renderer"
	scrollScript        = `window.scrollTo(0, document.documentElement.scrollHeight); document.documentElement.scrollHeight`
)

// BrowserOptions controls how the headless browser walks the results page.
type BrowserOptions struct {
	Headless    bool
	LoadWait    time.Duration // pause after navigation for dynamic content
	Scrolls     int           // times to scroll to the bottom to load more results
	ScrollPause time.Duration
	WaitTimeout time.Duration // max wait for the first result element
	UserAgent   string
}

// DefaultBrowserOptions mirrors a 1080p desktop Chrome session.
var DefaultBrowserOptions = BrowserOptions{
	Headless:    true,
	LoadWait:    3 * time.Second,
	Scrolls:     3,
	ScrollPause: time.Second,
	WaitTimeout: 10 * time.Second,
	UserAgent:   engine.UserAgentChrome,
}

// browserSession owns one Chrome process shared by all tabs.
type browserSession struct {
	allocOpts []chromedp.ExecAllocatorOption

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

// YouTubeBrowser drives headless Chrome against the YouTube results page and
// reads the rendered result elements. Each Fetch opens a new tab in a shared
// browser, started lazily and restarted if it dies.
type YouTubeBrowser struct {
	opts     BrowserOptions
	session  *browserSession
	baseURL  string
	language string
}

// NewYouTubeBrowser prepares a browser fetcher. Chrome is not started until the first Fetch.
func NewYouTubeBrowser(opts BrowserOptions) *YouTubeBrowser {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultBrowserOptions.UserAgent
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultBrowserOptions.WaitTimeout
	}
	return &YouTubeBrowser{
		opts:    opts,
		session: &browserSession{allocOpts: allocatorOptions(opts)},
		baseURL: ytResultsURL,
	}
}

func allocatorOptions(opts BrowserOptions) []chromedp.ExecAllocatorOption {
	return append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(opts.UserAgent),
	)
}

// WithLanguage returns a copy that requests the page in language.
// The copy shares the running browser.
func (b *YouTubeBrowser) WithLanguage(language string) engine.Fetcher {
	cp := *b
	cp.language = language
	return &cp
}

// Close shuts the browser down. Later fetches start a new one.
func (b *YouTubeBrowser) Close() {
	s := b.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.browserCtx = nil
	}
}

func (b *YouTubeBrowser) Fetch(ctx context.Context, query string, maxResults int) ([]engine.Video, error) {
	engine.IncrYouTubeBrowser()
	videos, err := b.fetch(ctx, query, clampLimit(maxResults, ytBrowserMaxResults))
	if err != nil {
		engine.IncrFetchErrors()
		return nil, engine.NewFetchError("browser", query, err)
	}
	return videos, nil
}

func (b *YouTubeBrowser) fetch(ctx context.Context, query string, limit int) ([]engine.Video, error) {
	browserCtx, err := b.session.browser()
	if err != nil {
		return nil, err
	}
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	if err := chromedp.Run(tabCtx, b.actions(b.searchURL(query), &html)...); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browse results page: %w", err)
	}

	videos, err := parseRenderedResults(html, limit)
	if err != nil {
		return nil, err
	}
	slog.Debug("youtube browser results", slog.Int("count", len(videos)), slog.String("query", query))
	return videos, nil
}

func (b *YouTubeBrowser) searchURL(query string) string {
	u := b.baseURL + "?search_query=" + url.QueryEscape(query)
	if b.language != "" {
		u += "&hl=" + engine.RelevanceLanguage(b.language)
	}
	return u
}

// actions loads the page, scrolls to trigger lazy loading, waits for the
// first result and captures the rendered document.
func (b *YouTubeBrowser) actions(target string, html *string) []chromedp.Action {
	var height int64
	actions := []chromedp.Action{
		chromedp.Navigate(target),
		chromedp.Sleep(b.opts.LoadWait),
	}
	for i := 0; i < b.opts.Scrolls; i++ {
		actions = append(actions,
			chromedp.Evaluate(scrollScript, &height),
			chromedp.Sleep(b.opts.ScrollPause),
		)
	}
	waitTimeout := b.opts.WaitTimeout
	actions = append(actions,
		chromedp.ActionFunc(func(ctx context.Context) error {
			waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
			defer cancel()
			if err := chromedp.WaitReady(ytResultSelector, chromedp.ByQuery).Do(waitCtx); err != nil {
				return fmt.Errorf("wait for %s: %w", ytResultSelector, err)
			}
			return nil
		}),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
	return actions
}

// browser returns the shared browser context, starting Chrome if needed.
func (s *browserSession) browser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return s.browserCtx, nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), s.allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		s.browserCtx, s.cancel = nil, nil
		return nil, fmt.Errorf("start browser: %w", err)
	}
	s.browserCtx = browserCtx
	s.cancel = func() {
		cancelBrowser()
		cancelAlloc()
	}
	slog.Info("youtube browser started")
	return browserCtx, nil
}

// parseRenderedResults extracts videos from the rendered results page.
// Elements without a link are skipped.
func parseRenderedResults(html string, limit int) ([]engine.Video, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("goquery parse: %w", err)
	}

	videos := []engine.Video{}
	doc.Find(ytResultSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find("#video-title").First()
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return true
		}
		videoURL := absoluteYouTubeURL(href)

		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		channel := strings.TrimSpace(s.Find("#channel-info a, ytd-channel-name a").First().Text())
		thumb := s.Find("#thumbnail img").First().AttrOr("src", "")

		videos = append(videos, engine.Video{
			Title:     title,
			URL:       videoURL,
			Channel:   channel,
			Thumbnail: thumb,
			VideoID:   extractVideoID(videoURL),
		})
		return len(videos) < limit
	})
	return videos, nil
}

func absoluteYouTubeURL(href string) string {
	if strings.HasPrefix(href, "/") {
		return ytOrigin + href
	}
	return href
}
