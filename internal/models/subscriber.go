package models

import (
	"strings"
	"time"
)

// Subscriber statuses. Only active subscribers receive campaign sends.
const (
	SubscriberStatusPending      = "pending"
	SubscriberStatusActive       = "active"
	SubscriberStatusUnsubscribed = "unsubscribed"
	SubscriberStatusBounced      = "bounced"
	SubscriberStatusComplained   = "complained"
)

// Subscriber represents one email subscriber of a publication
type Subscriber struct {
	ID                string     `json:"id"`
	PublicationID     string     `json:"publication_id"`
	Email             string     `json:"email"`
	Status            string     `json:"status"`
	ConfirmationToken string     `json:"-"`
	UnsubscribeToken  string     `json:"-"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	UnsubscribedAt    *time.Time `json:"unsubscribed_at,omitempty"`
	BouncedAt         *time.Time `json:"bounced_at,omitempty"`
	ComplainedAt      *time.Time `json:"complained_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NormalizeEmail lowercases and trims an email address. Subscriber emails
// are stored normalized and unique per publication.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
