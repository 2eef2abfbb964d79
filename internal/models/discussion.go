package models

import "time"

// DiscussionRecord is one SPC mesoscale discussion. Number is zero padded
// to four digits.
type DiscussionRecord struct {
	Number   string    `json:"number"`
	Title    string    `json:"title"`
	Link     string    `json:"link"`
	IssuedAt time.Time `json:"issued_at"`
	BodyText string    `json:"body_text,omitempty"`
}
