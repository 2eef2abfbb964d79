// Package overlay decides how alert polygons are drawn and which polygons
// change between two alert sets.
package overlay

import (
	"bytes"
	"encoding/json"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

type Style struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillOpacity float64 `json:"fill_opacity"`
	DashArray   string  `json:"dash_array,omitempty"`
}

var familyColor = map[models.Family]string{
	models.FamilyTornado:      "#FF0000",
	models.FamilyThunderstorm: "#FFFF00",
	models.FamilyFlashFlood:   "#00FF00",
}

const defaultColor = "#FF00FF"

// StyleFor returns the polygon style for an alert. Watches share their
// family color but are drawn fainter and dashed.
func StyleFor(a models.ClassifiedAlert) Style {
	color, ok := familyColor[a.Family]
	if !ok {
		color = defaultColor
	}

	if a.Category == models.CategoryWatch {
		return Style{Color: color, Weight: 1, Opacity: 0.5, FillOpacity: 0.1, DashArray: "5, 5"}
	}

	s := Style{Color: color, Weight: 2, Opacity: 0.8, FillOpacity: 0.2}
	if a.Tier == models.TierHigh {
		s.Weight = 4
		s.FillOpacity = 0.35
	}
	return s
}

type Polygon struct {
	AlertID  string          `json:"alert_id"`
	Geometry json.RawMessage `json:"geometry"`
	Style    Style           `json:"style"`
}

func (p Polygon) equal(o Polygon) bool {
	return p.Style == o.Style && bytes.Equal(p.Geometry, o.Geometry)
}

// Set is the drawn polygon state, keyed by alert id.
type Set map[string]Polygon

type Diff struct {
	Add    []Polygon `json:"add"`
	Remove []string  `json:"remove"`
}

func (d Diff) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Compute returns the changes needed to go from prev to the polygons of
// alerts, along with the new set. A changed shape or style is a remove
// followed by an add. Adds follow alert order; removal order is unspecified.
func Compute(prev Set, alerts []models.ClassifiedAlert) (Diff, Set) {
	next := make(Set, len(alerts))
	var diff Diff

	for _, a := range alerts {
		if !a.HasGeometry() {
			continue
		}
		p := Polygon{AlertID: a.ID, Geometry: a.Geometry, Style: StyleFor(a)}
		next[a.ID] = p

		old, existed := prev[a.ID]
		switch {
		case !existed:
			diff.Add = append(diff.Add, p)
		case !old.equal(p):
			diff.Remove = append(diff.Remove, a.ID)
			diff.Add = append(diff.Add, p)
		}
	}

	for id := range prev {
		if _, ok := next[id]; !ok {
			diff.Remove = append(diff.Remove, id)
		}
	}

	return diff, next
}
