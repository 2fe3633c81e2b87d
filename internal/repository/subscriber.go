package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/letterflow/letterflow/internal/models"
)

type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

const subscriberColumns = `id, publication_id, email, status, confirmation_token, unsubscribe_token,
	confirmed_at, unsubscribed_at, bounced_at, complained_at, created_at, updated_at`

// Create creates a pending subscriber with fresh tokens. The email is
// normalized before insert.
func (r *SubscriberRepository) Create(s *models.Subscriber) error {
	s.ID = uuid.New().String()
	s.Email = models.NormalizeEmail(s.Email)
	s.Status = models.SubscriberStatusPending
	s.ConfirmationToken = uuid.New().String()
	s.UnsubscribeToken = uuid.New().String()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO subscribers (id, publication_id, email, status, confirmation_token, unsubscribe_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PublicationID, s.Email, s.Status, s.ConfirmationToken, s.UnsubscribeToken, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

// GetByID returns a subscriber by ID
func (r *SubscriberRepository) GetByID(id string) (*models.Subscriber, error) {
	return r.get("id = ?", id)
}

// GetByEmail returns a subscriber by normalized email within a publication
func (r *SubscriberRepository) GetByEmail(publicationID, email string) (*models.Subscriber, error) {
	row := r.db.QueryRow(`SELECT `+subscriberColumns+` FROM subscribers WHERE publication_id = ? AND email = ?`,
		publicationID, models.NormalizeEmail(email))
	return scanSubscriber(row)
}

// GetByConfirmationToken returns a subscriber by confirmation token
func (r *SubscriberRepository) GetByConfirmationToken(token string) (*models.Subscriber, error) {
	return r.get("confirmation_token = ?", token)
}

// GetByUnsubscribeToken returns a subscriber by unsubscribe token
func (r *SubscriberRepository) GetByUnsubscribeToken(token string) (*models.Subscriber, error) {
	return r.get("unsubscribe_token = ?", token)
}

func (r *SubscriberRepository) get(where string, arg any) (*models.Subscriber, error) {
	row := r.db.QueryRow(`SELECT `+subscriberColumns+` FROM subscribers WHERE `+where, arg)
	return scanSubscriber(row)
}

func scanSubscriber(row *sql.Row) (*models.Subscriber, error) {
	s := &models.Subscriber{}
	var confirmedAt, unsubscribedAt, bouncedAt, complainedAt sql.NullTime

	err := row.Scan(&s.ID, &s.PublicationID, &s.Email, &s.Status, &s.ConfirmationToken, &s.UnsubscribeToken,
		&confirmedAt, &unsubscribedAt, &bouncedAt, &complainedAt, &s.CreatedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if confirmedAt.Valid {
		s.ConfirmedAt = &confirmedAt.Time
	}
	if unsubscribedAt.Valid {
		s.UnsubscribedAt = &unsubscribedAt.Time
	}
	if bouncedAt.Valid {
		s.BouncedAt = &bouncedAt.Time
	}
	if complainedAt.Valid {
		s.ComplainedAt = &complainedAt.Time
	}
	return s, nil
}

// ListActive returns all active subscribers of a publication. Bounced,
// complained and unsubscribed subscribers are excluded.
func (r *SubscriberRepository) ListActive(publicationID string) ([]models.Subscriber, error) {
	rows, err := r.db.Query(`
		SELECT `+subscriberColumns+` FROM subscribers
		WHERE publication_id = ? AND status = ? ORDER BY created_at ASC`,
		publicationID, models.SubscriberStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscriber{}
	for rows.Next() {
		var s models.Subscriber
		var confirmedAt, unsubscribedAt, bouncedAt, complainedAt sql.NullTime
		err := rows.Scan(&s.ID, &s.PublicationID, &s.Email, &s.Status, &s.ConfirmationToken, &s.UnsubscribeToken,
			&confirmedAt, &unsubscribedAt, &bouncedAt, &complainedAt, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		if confirmedAt.Valid {
			s.ConfirmedAt = &confirmedAt.Time
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// Confirm transitions a pending subscriber to active
func (r *SubscriberRepository) Confirm(id string) error {
	return r.transition(id, models.SubscriberStatusActive, "confirmed_at")
}

// Unsubscribe transitions a subscriber to unsubscribed
func (r *SubscriberRepository) Unsubscribe(id string) error {
	return r.transition(id, models.SubscriberStatusUnsubscribed, "unsubscribed_at")
}

// MarkBounced transitions a subscriber to bounced. Bounced subscribers
// are excluded from all future active-subscriber queries.
func (r *SubscriberRepository) MarkBounced(id string) error {
	return r.transition(id, models.SubscriberStatusBounced, "bounced_at")
}

// MarkComplained transitions a subscriber to complained
func (r *SubscriberRepository) MarkComplained(id string) error {
	return r.transition(id, models.SubscriberStatusComplained, "complained_at")
}

func (r *SubscriberRepository) transition(id, status, stampColumn string) error {
	now := time.Now()
	_, err := r.db.Exec(
		`UPDATE subscribers SET status = ?, `+stampColumn+` = ?, updated_at = ? WHERE id = ?`,
		status, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark subscriber %s: %w", status, err)
	}
	return nil
}

// Reactivate moves an unsubscribed subscriber back to pending with
// rotated tokens, and returns the updated row.
func (r *SubscriberRepository) Reactivate(id string) (*models.Subscriber, error) {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE subscribers
		SET status = ?, confirmation_token = ?, unsubscribe_token = ?, unsubscribed_at = NULL, updated_at = ?
		WHERE id = ?`,
		models.SubscriberStatusPending, uuid.New().String(), uuid.New().String(), now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reactivate subscriber: %w", err)
	}
	return r.GetByID(id)
}
