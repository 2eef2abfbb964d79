// Package notify delivers dashboard render events and new-alert
// notifications to browsers and downstream consumers.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/mr1hm/severe-weather-dashboard/internal/models"
)

// SoundFor picks the audio hint for an alert.
func SoundFor(a models.ClassifiedAlert) models.Sound {
	switch {
	case a.Tier == models.TierHigh && a.Category == models.CategoryWarning:
		return models.SoundEmergency
	case a.Kind == models.KindTornadoWarning:
		return models.SoundTornado
	case a.Category == models.CategoryWatch:
		return models.SoundWatch
	default:
		return models.SoundWarning
	}
}

func NewNotification(a models.ClassifiedAlert, now time.Time) models.Notification {
	message := a.Headline
	if message == "" {
		message = a.Event
	}
	return models.Notification{
		ID:        uuid.NewString(),
		AlertID:   a.ID,
		Kind:      a.Kind,
		Category:  a.Category,
		Title:     a.Title(),
		Message:   message,
		Sound:     SoundFor(a),
		AreaDesc:  a.AreaDesc,
		Priority:  a.Priority,
		CreatedAt: now.UTC(),
	}
}
