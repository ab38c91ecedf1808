package sources

import (
	"context"

	"github.com/anatolykoptev/go_travel/internal/engine"
	"golang.org/x/time/rate"
)

// RateLimited paces calls to the wrapped fetcher. Copies made by
// WithLanguage share the limiter.
type RateLimited struct {
	next    engine.Fetcher
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond fetches with a burst of one.
// perSecond <= 0 returns next unwrapped.
func NewRateLimited(next engine.Fetcher, perSecond float64) engine.Fetcher {
	if perSecond <= 0 {
		return next
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (r *RateLimited) WithLanguage(language string) engine.Fetcher {
	return &RateLimited{next: WithLanguage(r.next, language), limiter: r.limiter}
}

func (r *RateLimited) Fetch(ctx context.Context, query string, maxResults int) ([]engine.Video, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, engine.NewFetchError("ratelimit", query, err)
	}
	return r.next.Fetch(ctx, query, maxResults)
}
