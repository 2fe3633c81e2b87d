package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/letterflow/letterflow/internal/models"
)

type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

// Create creates a new issue in draft status
func (r *IssueRepository) Create(issue *models.Issue) error {
	issue.ID = uuid.New().String()
	if issue.Status == "" {
		issue.Status = models.IssueStatusDraft
	}
	issue.CreatedAt = time.Now()
	issue.UpdatedAt = issue.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO issues (id, publication_id, slug, subject, preheader, status, footer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.PublicationID, issue.Slug, issue.Subject, issue.Preheader, issue.Status, nullString(issue.FooterID), issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

// GetByID returns an issue by ID
func (r *IssueRepository) GetByID(id string) (*models.Issue, error) {
	issue := &models.Issue{}
	var preheader, footerID sql.NullString
	var publishedAt, sentAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, publication_id, slug, subject, preheader, status, footer_id,
			send_count, open_count, click_count, published_at, sent_at, created_at, updated_at
		FROM issues WHERE id = ?`, id,
	).Scan(&issue.ID, &issue.PublicationID, &issue.Slug, &issue.Subject, &preheader, &issue.Status, &footerID,
		&issue.SendCount, &issue.OpenCount, &issue.ClickCount, &publishedAt, &sentAt, &issue.CreatedAt, &issue.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	issue.Preheader = preheader.String
	issue.FooterID = footerID.String
	if publishedAt.Valid {
		issue.PublishedAt = &publishedAt.Time
	}
	if sentAt.Valid {
		issue.SentAt = &sentAt.Time
	}
	return issue, nil
}

// MarkPublished transitions an issue to published and stamps published_at
// once.
func (r *IssueRepository) MarkPublished(id string) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE issues SET status = ?, published_at = COALESCE(published_at, ?), updated_at = ?
		WHERE id = ?`,
		models.IssueStatusPublished, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark issue published: %w", err)
	}
	return nil
}

// MarkSent transitions an issue to sent, stamps sent_at once and records
// the campaign send count.
func (r *IssueRepository) MarkSent(id string, sendCount int) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE issues SET status = ?, sent_at = COALESCE(sent_at, ?), send_count = ?, updated_at = ?
		WHERE id = ?`,
		models.IssueStatusSent, now, sendCount, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark issue sent: %w", err)
	}
	return nil
}

// IncrementOpenCount bumps the issue-level open counter by one
func (r *IssueRepository) IncrementOpenCount(id string) error {
	_, err := r.db.Exec(`UPDATE issues SET open_count = open_count + 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment open count: %w", err)
	}
	return nil
}

// IncrementClickCount bumps the issue-level click counter by one
func (r *IssueRepository) IncrementClickCount(id string) error {
	_, err := r.db.Exec(`UPDATE issues SET click_count = click_count + 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}
	return nil
}
