package models

import "time"

// SendJob statuses: pending -> processing -> completed|failed.
// A failed job is terminal; a fresh send requires a new job.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// SendMessage statuses track the observed per-recipient outcome, not a
// strict progression: "sent" is set at dispatch time and may later be
// overwritten by webhook-driven delivered/bounced/complained.
const (
	MessageStatusSent       = "sent"
	MessageStatusDelivered  = "delivered"
	MessageStatusFailed     = "failed"
	MessageStatusBounced    = "bounced"
	MessageStatusComplained = "complained"
)

// SendJob is one campaign-send execution against a snapshot of a
// publication's active subscribers for one issue.
type SendJob struct {
	ID              string     `json:"id"`
	PublicationID   string     `json:"publication_id"`
	IssueID         string     `json:"issue_id"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"total_recipients"`
	SentCount       int        `json:"sent_count"`
	FailedCount     int        `json:"failed_count"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// SendMessage is the per-recipient record of one attempted email within
// a send job. ProviderMessageID is empty when the provider call itself
// failed before returning an id.
type SendMessage struct {
	ID                string     `json:"id"`
	SendJobID         string     `json:"send_job_id"`
	SubscriberID      string     `json:"subscriber_id"`
	IssueID           string     `json:"issue_id"`
	ProviderMessageID string     `json:"provider_message_id,omitempty"`
	Status            string     `json:"status"`
	ErrorMessage      string     `json:"error_message,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	OpenedAt          *time.Time `json:"opened_at,omitempty"`
	ClickedAt         *time.Time `json:"clicked_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ShortLink is a cached original URL to short URL mapping
type ShortLink struct {
	OriginalURL string    `json:"original_url"`
	ShortURL    string    `json:"short_url"`
	ShortCode   string    `json:"short_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
