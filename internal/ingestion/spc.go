package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/severe-weather-dashboard/internal/fetcher"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
)

type outlookResult struct {
	images map[outlook.Selection]OutlookImage
	failed int
}

// fetchOutlooks downloads every distinct outlook image. Each image stands
// alone: a failure leaves that selection out of the result.
func (m *Manager) fetchOutlooks(ctx context.Context) outlookResult {
	selections := outlook.Selections()
	res := outlookResult{images: make(map[outlook.Selection]OutlookImage, len(selections))}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sel := range selections {
		g.Go(func() error {
			img, err := m.fetchOutlook(gctx, sel)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.failed++
				slog.Warn("outlook image failed", "day", sel.Day, "product", sel.Product, "error", err)
				return nil
			}
			res.images[sel] = img
			return nil
		})
	}
	_ = g.Wait()

	return res
}

func (m *Manager) fetchOutlook(ctx context.Context, sel outlook.Selection) (OutlookImage, error) {
	url := m.selector.Resolve(sel.Day, sel.Product)
	now := m.clock.Now()

	resp, err := m.getter.Get(ctx, outlook.WithCacheBuster(url, now), fetcher.AcceptImage)
	if err != nil {
		return OutlookImage{}, err
	}
	if !strings.HasPrefix(resp.ContentType, "image/") {
		return OutlookImage{}, fetcher.Malformed(url, fmt.Errorf("content type %q is not an image", resp.ContentType))
	}

	return OutlookImage{
		Selection:   sel,
		URL:         url,
		ContentType: resp.ContentType,
		Body:        resp.Body,
		FetchedAt:   now,
	}, nil
}

// changedOutlooks lists selections whose image bytes differ from prev, in
// selection order.
func changedOutlooks(prev, next map[outlook.Selection]OutlookImage) []outlook.Selection {
	var changed []outlook.Selection
	for _, sel := range outlook.Selections() {
		img, ok := next[sel]
		if !ok {
			continue
		}
		if old, had := prev[sel]; !had || !bytes.Equal(old.Body, img.Body) {
			changed = append(changed, sel)
		}
	}
	return changed
}
