package engine

import "time"

// --- Search input/output types ---

// TravelSearchInput is the input for the travel_video_search tool and the /search route.
type TravelSearchInput struct {
	Country    string `json:"country" jsonschema:"Country to search travel videos for (e.g. France)"`
	City       string `json:"city,omitempty" jsonschema:"City or region inside the country (e.g. Paris)"`
	Language   string `json:"language,omitempty" jsonschema:"Video language (default: English)"`
	Category   string `json:"category,omitempty" jsonschema:"Video category (default: travel vlog)"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Max videos to return (default 10, max 25)"`
}

// TravelSearchOutput is the structured result of a travel video search.
type TravelSearchOutput struct {
	Query        string  `json:"query"`
	Key          string  `json:"key"`
	Status       Status  `json:"status"`
	FetchedAt    string  `json:"fetched_at,omitempty"`
	TotalResults int     `json:"total_results"`
	Videos       []Video `json:"videos"`
	Warning      string  `json:"warning,omitempty"`
}

// Video is a single search result. The cache stores it verbatim.
type Video struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Channel     string `json:"channel"`
	Thumbnail   string `json:"thumbnail"`
	VideoID     string `json:"videoId,omitempty"`
	PublishedAt string `json:"publishedAt,omitempty"`
	Description string `json:"description,omitempty"`
}

// CacheEntry is one persisted lookup result.
type CacheEntry struct {
	Results []Video `json:"results"`
	// FetchedAt is seconds since the Unix epoch.
	FetchedAt float64 `json:"fetchedAt"`
}

// FetchedTime converts FetchedAt to a time.Time.
func (e CacheEntry) FetchedTime() time.Time {
	sec := int64(e.FetchedAt)
	nsec := int64((e.FetchedAt - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// Status tells where the results of a lookup came from.
type Status string

const (
	StatusHit     Status = "hit"
	StatusFetched Status = "fetched"
	StatusStale   Status = "stale"
)

// Outcome is the result of LookupCache.Lookup.
type Outcome struct {
	Key       string
	Status    Status
	Results   []Video
	FetchedAt time.Time
	// Warning is a non-fatal problem: the fetch error behind a stale
	// fallback, or a *StoreSaveError after a successful fetch.
	Warning error
}

// YouTubeVideoURL builds the canonical watch URL for a video id.
func YouTubeVideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
