package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/anatolykoptev/go_travel/internal/engine"
)

// YouTube results page scrape: one GET, then walk the embedded ytInitialData.

const (
	ytResultsURL        = "https://www.youtube.com/results"
	ytInitialDataMarker = "var ytInitialData = "
	ytSearchFilter      = "EgIQAQ%3D%3D" // videos-only filter param
	ytPageMaxResults    = 20
)

// --- ytInitialData scraping types ---

type ytRuns struct {
	Runs []struct {
		Text string `json:"text"`
	} `json:"runs"`
	SimpleText string `json:"simpleText"`
}

func (r ytRuns) String() string {
	if r.SimpleText != "" {
		return r.SimpleText
	}
	var sb strings.Builder
	for _, run := range r.Runs {
		sb.WriteString(run.Text)
	}
	return sb.String()
}

type ytVideoRenderer struct {
	VideoID   string `json:"videoId"`
	Title     ytRuns `json:"title"`
	OwnerText ytRuns `json:"ownerText"`
	Thumbnail struct {
		Thumbnails []struct {
			URL string `json:"url"`
		} `json:"thumbnails"`
	} `json:"thumbnail"`
	PublishedTimeText  ytRuns  `json:"publishedTimeText"`
	DescriptionSnippet *ytRuns `json:"descriptionSnippet"`
}

// YouTubePage scrapes the public search results page without a browser.
type YouTubePage struct {
	client   *http.Client
	baseURL  string
	language string
}

// NewYouTubePage returns a page scraper using client (http.DefaultClient when nil).
func NewYouTubePage(client *http.Client) *YouTubePage {
	if client == nil {
		client = http.DefaultClient
	}
	return &YouTubePage{client: client, baseURL: ytResultsURL}
}

// WithLanguage returns a copy that asks for results in language.
func (p *YouTubePage) WithLanguage(language string) engine.Fetcher {
	cp := *p
	cp.language = language
	return &cp
}

func (p *YouTubePage) Fetch(ctx context.Context, query string, maxResults int) ([]engine.Video, error) {
	engine.IncrYouTubePage()
	videos, err := p.fetch(ctx, query, clampLimit(maxResults, ytPageMaxResults))
	if err != nil {
		engine.IncrFetchErrors()
		return nil, engine.NewFetchError("page", query, err)
	}
	return videos, nil
}

func (p *YouTubePage) fetch(ctx context.Context, query string, limit int) ([]engine.Video, error) {
	hl := engine.RelevanceLanguage(p.language)
	searchURL := p.baseURL + "?search_query=" + url.QueryEscape(query) + "&sp=" + ytSearchFilter + "&hl=" + hl

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.RandomUserAgent())
		req.Header.Set("Accept-Language", hl+";q=0.9,en;q=0.8")
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		return p.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("youtube search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube search page: HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read youtube search response: %w", err)
	}
	return parseInitialDataPage(body, limit)
}

// parseInitialDataPage locates ytInitialData in a results page and extracts videos.
func parseInitialDataPage(body []byte, limit int) ([]engine.Video, error) {
	idx := bytes.Index(body, []byte(ytInitialDataMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialData not found in YouTube search response")
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialData JSON")
	}
	return extractVideosFromInitialData(jsonData, limit), nil
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

// extractVideosFromInitialData recursively walks ytInitialData JSON for videoRenderer entries.
func extractVideosFromInitialData(data []byte, limit int) []engine.Video {
	results := []engine.Video{}
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(results) >= limit {
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			if raw, ok := obj["videoRenderer"]; ok {
				var vr ytVideoRenderer
				if err := json.Unmarshal(raw, &vr); err == nil && vr.VideoID != "" {
					results = append(results, videoFromRenderer(vr))
					return
				}
			}
			// Sorted keys keep the walk deterministic; arrays keep page order.
			for _, k := range slices.Sorted(maps.Keys(obj)) {
				if len(results) >= limit {
					return
				}
				walk(obj[k])
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				if len(results) >= limit {
					return
				}
				walk(item)
			}
		}
	}
	walk(data)
	return results
}

func videoFromRenderer(vr ytVideoRenderer) engine.Video {
	v := engine.Video{
		Title:       vr.Title.String(),
		URL:         engine.YouTubeVideoURL(vr.VideoID),
		Channel:     vr.OwnerText.String(),
		VideoID:     vr.VideoID,
		PublishedAt: vr.PublishedTimeText.String(),
	}
	if thumbs := vr.Thumbnail.Thumbnails; len(thumbs) > 0 {
		v.Thumbnail = thumbs[len(thumbs)-1].URL
	}
	if vr.DescriptionSnippet != nil {
		v.Description = engine.TruncateRunes(vr.DescriptionSnippet.String(), 100, "...")
	}
	return v
}
