package ingestion

import (
	"fmt"
	"time"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
	"github.com/mr1hm/severe-weather-dashboard/internal/observability"
	"github.com/mr1hm/severe-weather-dashboard/internal/outlook"
	"github.com/mr1hm/severe-weather-dashboard/internal/reconciler"
)

// OutlookImage is the last successfully fetched image for one selection.
type OutlookImage struct {
	Selection   outlook.Selection `json:"selection"`
	URL         string            `json:"url"`
	ContentType string            `json:"content_type"`
	Body        []byte            `json:"-"`
	FetchedAt   time.Time         `json:"fetched_at"`
}

// LoopStatus is the per-loop bookkeeping shown next to each panel.
type LoopStatus struct {
	Attempted bool      `json:"attempted"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Snapshot is the whole dashboard state. A published snapshot is never
// modified; each loop builds a new one and swaps it in.
type Snapshot struct {
	Alerts   []models.ClassifiedAlert
	Counters reconciler.Counters
	Restored bool

	Discussions []models.DiscussionRecord
	Outlooks    map[outlook.Selection]OutlookImage

	AlertsStatus      LoopStatus
	OutlookStatus     LoopStatus
	DiscussionsStatus LoopStatus
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Alerts:      []models.ClassifiedAlert{},
		Counters:    reconciler.Count(nil),
		Discussions: []models.DiscussionRecord{},
		Outlooks:    map[outlook.Selection]OutlookImage{},
	}
}

// Ready reports whether every loop has completed at least one attempt.
func (s *Snapshot) Ready() bool {
	return s.AlertsStatus.Attempted && s.OutlookStatus.Attempted && s.DiscussionsStatus.Attempted
}

// Status returns the bookkeeping of the named loop.
func (s *Snapshot) Status(loop string) (LoopStatus, bool) {
	switch loop {
	case observability.LoopAlerts:
		return s.AlertsStatus, true
	case observability.LoopOutlook:
		return s.OutlookStatus, true
	case observability.LoopDiscussions:
		return s.DiscussionsStatus, true
	}
	return LoopStatus{}, false
}

// Outlook returns the cached image for the normalized selection.
func (s *Snapshot) Outlook(sel outlook.Selection) (OutlookImage, bool) {
	img, ok := s.Outlooks[outlook.Normalize(sel.Day, sel.Product)]
	return img, ok
}

func errorMessage(resource string) string {
	return fmt.Sprintf("Error loading %s. Will retry.", resource)
}
