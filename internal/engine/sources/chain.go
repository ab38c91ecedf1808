package sources

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go_travel/internal/engine"
)

// Named pairs a fetcher with the label used in logs.
type Named struct {
	Name    string
	Fetcher engine.Fetcher
}

// Chain tries each fetcher in order and returns the first success.
// An empty result counts as success. When all fail, the *engine.FetchError
// has Source "chain" and wraps every member's error.
type Chain struct {
	fetchers []Named
}

// NewChain builds a chain; nil fetchers are skipped.
func NewChain(fetchers ...Named) *Chain {
	c := &Chain{}
	for _, f := range fetchers {
		if f.Fetcher != nil {
			c.fetchers = append(c.fetchers, f)
		}
	}
	return c
}

// Names lists the chained fetchers in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.fetchers))
	for i, f := range c.fetchers {
		names[i] = f.Name
	}
	return names
}

// WithLanguage returns a chain whose members are all biased toward language.
func (c *Chain) WithLanguage(language string) engine.Fetcher {
	cp := &Chain{fetchers: make([]Named, len(c.fetchers))}
	for i, f := range c.fetchers {
		cp.fetchers[i] = Named{Name: f.Name, Fetcher: WithLanguage(f.Fetcher, language)}
	}
	return cp
}

func (c *Chain) Fetch(ctx context.Context, query string, maxResults int) ([]engine.Video, error) {
	if len(c.fetchers) == 0 {
		return nil, errors.New("no fetcher configured")
	}
	var errs []error
	for _, f := range c.fetchers {
		videos, err := f.Fetcher.Fetch(ctx, query, maxResults)
		if err == nil {
			return videos, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		slog.Warn("fetcher failed, trying next",
			slog.String("fetcher", f.Name),
			slog.String("query", query),
			slog.Any("error", err))
	}
	return nil, &engine.FetchError{Source: "chain", Query: query, Err: errors.Join(errs...)}
}
