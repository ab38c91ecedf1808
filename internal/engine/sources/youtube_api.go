package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_travel/internal/engine"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const ytAPIMaxResults = 50

// YouTubeAPI searches through the YouTube Data API v3.
// Keys are tried in order; a quota error on the first moves on to the next.
type YouTubeAPI struct {
	services []*youtube.Service
	language string
}

// NewYouTubeAPI builds one Data API client per non-empty key.
// extra options are appended to every client (e.g. option.WithEndpoint in tests).
func NewYouTubeAPI(ctx context.Context, keys []string, extra ...option.ClientOption) (*YouTubeAPI, error) {
	y := &YouTubeAPI{}
	for _, key := range keys {
		if key == "" {
			continue
		}
		opts := append([]option.ClientOption{option.WithAPIKey(key)}, extra...)
		svc, err := youtube.NewService(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("youtube data API client: %w", err)
		}
		y.services = append(y.services, svc)
	}
	if len(y.services) == 0 {
		return nil, errors.New("youtube data API: no API key configured")
	}
	return y, nil
}

// WithLanguage returns a copy that sets relevanceLanguage from language.
func (y *YouTubeAPI) WithLanguage(language string) engine.Fetcher {
	cp := *y
	cp.language = language
	return &cp
}

func (y *YouTubeAPI) Fetch(ctx context.Context, query string, maxResults int) ([]engine.Video, error) {
	engine.IncrYouTubeAPI()
	limit := clampLimit(maxResults, ytAPIMaxResults)

	var lastErr error
	for i, svc := range y.services {
		videos, err := y.search(ctx, svc, query, limit)
		if err == nil {
			return videos, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Debug("youtube data API key failed, trying fallback", slog.Int("key", i), slog.Any("err", err))
	}
	engine.IncrFetchErrors()
	return nil, engine.NewFetchError("api", query, lastErr)
}

func (y *YouTubeAPI) search(ctx context.Context, svc *youtube.Service, query string, limit int) ([]engine.Video, error) {
	resp, err := svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(int64(limit)).
		RelevanceLanguage(engine.RelevanceLanguage(y.language)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("youtube data API: %w", err)
	}
	return videosFromSearchResponse(resp), nil
}

// videosFromSearchResponse maps Data API items, skipping anything that is
// not a video or lacks a snippet.
func videosFromSearchResponse(resp *youtube.SearchListResponse) []engine.Video {
	videos := make([]engine.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		sn := item.Snippet
		videos = append(videos, engine.Video{
			Title:       sn.Title,
			URL:         engine.YouTubeVideoURL(item.Id.VideoId),
			Channel:     sn.ChannelTitle,
			Thumbnail:   pickThumbnail(sn.Thumbnails),
			VideoID:     item.Id.VideoId,
			PublishedAt: sn.PublishedAt,
			Description: engine.TruncateRunes(strings.TrimSpace(sn.Description), 100, "..."),
		})
	}
	return videos
}

// pickThumbnail prefers the medium rendition, as the search page does.
func pickThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Medium, t.High, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
