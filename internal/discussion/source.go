package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/severe-weather-dashboard/internal/fetcher"
	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

type Getter interface {
	Get(ctx context.Context, url, accept string) (*fetcher.Response, error)
}

type SourceConfig struct {
	FeedURL       string
	IndexURL      string
	SPCBaseURL    string
	FallbackLimit int
}

type Source struct {
	getter Getter
	cfg    SourceConfig
}

func NewSource(getter Getter, cfg SourceConfig) *Source {
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = 10
	}
	return &Source{getter: getter, cfg: cfg}
}

// Fetch reads the RSS feed and falls back to scraping the index and detail
// pages when the feed fails or has no usable entries.
func (s *Source) Fetch(ctx context.Context) ([]models.DiscussionRecord, error) {
	records, primaryErr := s.fetchFeed(ctx)
	if primaryErr == nil && len(records) > 0 {
		return records, nil
	}
	if primaryErr != nil {
		slog.Warn("discussion feed failed, using index fallback", "url", s.cfg.FeedURL, "error", primaryErr)
	} else {
		slog.Debug("discussion feed empty, using index fallback", "url", s.cfg.FeedURL)
	}

	fallback, err := s.fetchIndex(ctx)
	if err != nil {
		// An empty feed is only trusted when the fallback had time to run.
		if primaryErr == nil && ctx.Err() == nil {
			slog.Warn("discussion index fallback failed", "url", s.cfg.IndexURL, "error", err)
			return []models.DiscussionRecord{}, nil
		}
		return nil, errors.Join(primaryErr, err)
	}
	return fallback, nil
}

func (s *Source) fetchFeed(ctx context.Context) ([]models.DiscussionRecord, error) {
	resp, err := s.getter.Get(ctx, s.cfg.FeedURL, fetcher.AcceptXML)
	if err != nil {
		return nil, err
	}
	records, err := ParseFeed(resp.Body, s.cfg.SPCBaseURL)
	if err != nil {
		return nil, fetcher.Malformed(s.cfg.FeedURL, err)
	}
	return records, nil
}

func (s *Source) fetchIndex(ctx context.Context) ([]models.DiscussionRecord, error) {
	resp, err := s.getter.Get(ctx, s.cfg.IndexURL, fetcher.AcceptHTML)
	if err != nil {
		return nil, err
	}

	numbers := ParseIndex(resp.Body)
	if len(numbers) > s.cfg.FallbackLimit {
		numbers = numbers[:s.cfg.FallbackLimit]
	}

	results := make([]*models.DiscussionRecord, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, n := range numbers {
		g.Go(func() error {
			r, err := s.fetchDetail(gctx, n)
			if err != nil {
				slog.Warn("dropping discussion", "number", n, "error", err)
				return nil
			}
			results[i] = &r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fetcher.Timeout(s.cfg.IndexURL, err)
	}

	records := make([]models.DiscussionRecord, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	if len(numbers) > 0 && len(records) == 0 {
		return nil, fmt.Errorf("none of %d discussion pages could be read", len(numbers))
	}

	Sort(records)
	return records, nil
}

func (s *Source) fetchDetail(ctx context.Context, number string) (models.DiscussionRecord, error) {
	url := Link(s.cfg.SPCBaseURL, number)
	resp, err := s.getter.Get(ctx, url, fetcher.AcceptHTML)
	if err != nil {
		return models.DiscussionRecord{}, err
	}
	r, err := ParseDetail(resp.Body, number, s.cfg.SPCBaseURL)
	if err != nil {
		return models.DiscussionRecord{}, fetcher.Malformed(url, err)
	}
	return r, nil
}
