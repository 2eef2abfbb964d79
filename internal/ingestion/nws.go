package ingestion

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mr1hm/severe-weather-dashboard/internal/fetcher"
	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

// nwsPage keeps features raw so one bad feature does not sink the page.
type nwsPage struct {
	Features   []json.RawMessage `json:"features"`
	Pagination *struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

// fetchAlerts reads the active alerts collection, following pagination up
// to the configured page cap. Any failed page fails the whole poll so a
// truncated set never replaces a complete one.
func (m *Manager) fetchAlerts(ctx context.Context) ([]models.RawAlert, int, error) {
	var (
		alerts    []models.RawAlert
		malformed int
		visited   = make(map[string]bool)
	)

	url := m.cfg.Alerts.URL
	for page := 0; page < m.cfg.Alerts.MaxPages && url != "" && !visited[url]; page++ {
		visited[url] = true
		if err := ctx.Err(); err != nil {
			return nil, 0, fetcher.Timeout(url, err)
		}

		resp, err := m.getter.Get(ctx, url, fetcher.AcceptGeoJSON)
		if err != nil {
			return nil, 0, err
		}

		var data nwsPage
		if err := json.Unmarshal(resp.Body, &data); err != nil {
			return nil, 0, fetcher.Malformed(url, err)
		}

		for _, raw := range data.Features {
			var a models.RawAlert
			if err := json.Unmarshal(raw, &a); err != nil {
				malformed++
				slog.Debug("dropping malformed alert feature", "url", url, "error", err)
				continue
			}
			alerts = append(alerts, a)
		}

		url = ""
		if data.Pagination != nil && len(data.Features) > 0 {
			url = data.Pagination.Next
		}
	}

	return alerts, malformed, nil
}
