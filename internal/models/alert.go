package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type Category string

const (
	CategoryWarning  Category = "warning"
	CategoryWatch    Category = "watch"
	CategoryAdvisory Category = "advisory"
	CategoryOther    Category = "other"
)

// CategoryOf derives the category from free-text event names such as
// "Severe Thunderstorm Warning".
func CategoryOf(event string) Category {
	e := strings.ToLower(event)
	switch {
	case strings.Contains(e, "warning"):
		return CategoryWarning
	case strings.Contains(e, "watch"):
		return CategoryWatch
	case strings.Contains(e, "advisory"):
		return CategoryAdvisory
	default:
		return CategoryOther
	}
}

func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(s)); c {
	case CategoryWarning, CategoryWatch, CategoryAdvisory, CategoryOther:
		return c, true
	}
	return "", false
}

// EventKind is the lowercase event phrase, e.g. "tornado warning".
type EventKind string

const (
	KindTornadoWarning      EventKind = "tornado warning"
	KindThunderstormWarning EventKind = "severe thunderstorm warning"
	KindFlashFloodWarning   EventKind = "flash flood warning"
	KindTornadoWatch        EventKind = "tornado watch"
	KindThunderstormWatch   EventKind = "severe thunderstorm watch"
	KindFlashFloodWatch     EventKind = "flash flood watch"
)

// EventKinds are the monitored kinds in default rank order.
var EventKinds = []EventKind{
	KindTornadoWarning,
	KindThunderstormWarning,
	KindFlashFloodWarning,
	KindTornadoWatch,
	KindThunderstormWatch,
	KindFlashFloodWatch,
}

// Label returns the kind in title case for display.
func (k EventKind) Label() string {
	words := strings.Fields(string(k))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

type Family string

const (
	FamilyTornado      Family = "tornado"
	FamilyThunderstorm Family = "thunderstorm"
	FamilyFlashFlood   Family = "flash flood"
)

// Tier is the weight class of a damage-threat tag.
type Tier string

const (
	TierNone Tier = ""
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// Counter codes shown in the dashboard header, in display order.
var CounterCodes = []string{"TOR", "SVR", "FFW", "TOR WTCH", "SVR WTCH", "FFW WTCH"}

// RawAlert is one GeoJSON feature from the NWS active alerts feed.
type RawAlert struct {
	ID         string          `json:"id"`
	Properties *RawProperties  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type RawProperties struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	Instruction string    `json:"instruction"`
	Severity    string    `json:"severity"`
	Urgency     string    `json:"urgency"`
	AreaDesc    string    `json:"areaDesc"`
	Effective   time.Time `json:"effective"`
	Expires     time.Time `json:"expires"`
}

// AlertID prefers properties.id and falls back to the feature id.
func (r RawAlert) AlertID() string {
	if r.Properties != nil && r.Properties.ID != "" {
		return r.Properties.ID
	}
	return r.ID
}

type ClassifiedAlert struct {
	ID          string          `json:"id"`
	Event       string          `json:"event"`
	Category    Category        `json:"category"`
	Kind        EventKind       `json:"event_kind"`
	Code        string          `json:"code"`
	Family      Family          `json:"family"`
	Tag         string          `json:"damage_threat,omitempty"`
	Tier        Tier            `json:"tier,omitempty"`
	Rank        int             `json:"rank"`
	Priority    float64         `json:"priority"`
	Headline    string          `json:"headline"`
	Description string          `json:"description,omitempty"`
	Instruction string          `json:"instruction,omitempty"`
	Severity    string          `json:"severity"`
	Urgency     string          `json:"urgency"`
	AreaDesc    string          `json:"area_desc"`
	Effective   time.Time       `json:"effective"`
	Expires     time.Time       `json:"expires"`
	Geometry    json.RawMessage `json:"geometry,omitempty"`
}

// HasGeometry reports whether the alert carries a drawable shape.
func (a ClassifiedAlert) HasGeometry() bool {
	g := bytes.TrimSpace(a.Geometry)
	return len(g) > 0 && !bytes.Equal(g, []byte("null"))
}

// Title is the kind label with the damage-threat tag appended when present.
func (a ClassifiedAlert) Title() string {
	if a.Tag == "" {
		return a.Kind.Label()
	}
	return a.Kind.Label() + " - " + a.Tag
}
