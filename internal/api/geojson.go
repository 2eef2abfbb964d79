package api

import (
	"encoding/json"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/overlay"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}
type Feature struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// toGeoJSON converts the drawable alerts, least severe first, so clients that
// paint in order leave the most severe polygon on top.
func toGeoJSON(alerts []models.ClassifiedAlert) FeatureCollection {
	features := make([]Feature, 0, len(alerts))

	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		if !a.HasGeometry() {
			continue
		}
		f := Feature{
			ID:       a.ID,
			Type:     "Feature",
			Geometry: a.Geometry,
			Properties: map[string]any{
				"id":            a.ID,
				"event":         a.Event,
				"event_kind":    a.Kind,
				"code":          a.Code,
				"title":         a.Title(),
				"damage_threat": a.Tag,
				"priority":      a.Priority,
				"headline":      a.Headline,
				"area_desc":     a.AreaDesc,
				"expires":       a.Expires,
				"style":         overlay.StyleFor(a),
			},
		}
		features = append(features, f)
	}

	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}
