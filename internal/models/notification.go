package models

import "time"

// Sound is the audio hint the dashboard plays for a notification.
type Sound string

const (
	SoundEmergency Sound = "emergency"
	SoundTornado   Sound = "tornado"
	SoundWarning   Sound = "warning"
	SoundWatch     Sound = "watch"
)

type Notification struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	Kind      EventKind `json:"event_kind"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Sound     Sound     `json:"sound"`
	AreaDesc  string    `json:"area_desc"`
	Priority  float64   `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}
