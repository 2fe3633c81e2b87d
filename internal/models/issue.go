package models

import "time"

// Issue statuses form a linear progression; "sent" is terminal for the
// send pipeline.
const (
	IssueStatusDraft     = "draft"
	IssueStatusPublished = "published"
	IssueStatusScheduled = "scheduled"
	IssueStatusSent      = "sent"
)

// Issue represents one newsletter issue
type Issue struct {
	ID            string     `json:"id"`
	PublicationID string     `json:"publication_id"`
	Slug          string     `json:"slug"`
	Subject       string     `json:"subject"`
	Preheader     string     `json:"preheader,omitempty"`
	Status        string     `json:"status"`
	FooterID      string     `json:"footer_id,omitempty"` // overrides the publication default
	SendCount     int        `json:"send_count"`
	OpenCount     int        `json:"open_count"`
	ClickCount    int        `json:"click_count"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
