// Package toolutil holds the search flow shared by the MCP tools and the HTTP API.
package toolutil

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anatolykoptev/go_travel/internal/engine"
	"github.com/anatolykoptev/go_travel/internal/engine/sources"
)

// ErrCountryRequired is returned when a search has no country.
var ErrCountryRequired = errors.New("country is required")

const slowSearchThreshold = 10 * time.Second

// NormalizeInput trims the fields and fills defaults. MaxResults falls back
// to defaultMax and is capped at engine.MaxResultsLimit.
func NormalizeInput(in engine.TravelSearchInput, defaultMax int) engine.TravelSearchInput {
	in.Country = strings.TrimSpace(in.Country)
	in.City = strings.TrimSpace(in.City)
	in.Language = strings.TrimSpace(in.Language)
	in.Category = strings.TrimSpace(in.Category)
	if in.Language == "" {
		in.Language = engine.DefaultLanguage
	}
	if in.Category == "" {
		in.Category = engine.DefaultCategory
	}
	if defaultMax <= 0 {
		defaultMax = engine.DefaultMaxResults
	}
	if in.MaxResults <= 0 {
		in.MaxResults = defaultMax
	}
	in.MaxResults = min(in.MaxResults, engine.MaxResultsLimit)
	return in
}

// Topic is the cache topic for a language and category: "English travel vlog".
func Topic(language, category string) string {
	return engine.SearchQuery(language, category)
}

// Searcher runs travel searches through the lookup cache.
type Searcher struct {
	Cache   *engine.LookupCache
	Fetcher engine.Fetcher
	Config  engine.Config
}

// Search normalizes in, resolves it through the cache and shapes the result.
// On failure the returned output still carries Query and Key.
func (s *Searcher) Search(ctx context.Context, in engine.TravelSearchInput) (engine.TravelSearchOutput, error) {
	cfg := s.Config.WithDefaults()
	in = NormalizeInput(in, cfg.MaxResults)
	if in.Country == "" {
		return engine.TravelSearchOutput{}, ErrCountryRequired
	}
	engine.IncrSearchRequests()

	topic := Topic(in.Language, in.Category)
	out := engine.TravelSearchOutput{
		Query:  engine.SearchQuery(in.Country, in.City, topic),
		Key:    engine.CacheKey(in.Country, in.City, topic),
		Videos: []engine.Video{},
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
	defer cancel()
	f := sources.WithLanguage(s.Fetcher, in.Language)

	var res engine.Outcome
	err := engine.TrackOperation(fetchCtx, "travel_search", slowSearchThreshold, func(ctx context.Context) error {
		var err error
		res, err = s.Cache.Lookup(ctx, f, in.Country, in.City, topic, in.MaxResults, cfg.CacheMaxAge)
		return err
	})
	if err != nil {
		engine.IncrSearchErrors()
		return out, err
	}

	videos := res.Results
	if len(videos) > in.MaxResults {
		videos = videos[:in.MaxResults]
	}
	out.Status = res.Status
	out.FetchedAt = res.FetchedAt.UTC().Format(time.RFC3339)
	out.Videos = videos
	out.TotalResults = len(videos)
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
	}
	return out, nil
}
