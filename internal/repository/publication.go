package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/letterflow/letterflow/internal/models"
)

type PublicationRepository struct {
	db *sql.DB
}

func NewPublicationRepository(db *sql.DB) *PublicationRepository {
	return &PublicationRepository{db: db}
}

// Create creates a new publication
func (r *PublicationRepository) Create(p *models.Publication) error {
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	brand, err := json.Marshal(p.Brand)
	if err != nil {
		return fmt.Errorf("failed to marshal brand: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO publications (id, slug, name, from_name, from_email, reply_to, public, brand, default_footer_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Name, p.FromName, p.FromEmail, p.ReplyTo, p.Public, string(brand), nullString(p.DefaultFooterID), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create publication: %w", err)
	}
	return nil
}

// GetByID returns a publication by ID. Soft-deleted publications are not
// returned.
func (r *PublicationRepository) GetByID(id string) (*models.Publication, error) {
	return r.get("id = ?", id)
}

// GetBySlug returns a publication by slug
func (r *PublicationRepository) GetBySlug(slug string) (*models.Publication, error) {
	return r.get("slug = ?", slug)
}

func (r *PublicationRepository) get(where string, arg any) (*models.Publication, error) {
	p := &models.Publication{}
	var replyTo, brand, footerID sql.NullString
	var deletedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, slug, name, from_name, from_email, reply_to, public, brand, default_footer_id, deleted_at, created_at, updated_at
		FROM publications WHERE `+where+` AND deleted_at IS NULL`, arg,
	).Scan(&p.ID, &p.Slug, &p.Name, &p.FromName, &p.FromEmail, &replyTo, &p.Public, &brand, &footerID, &deletedAt, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.ReplyTo = replyTo.String
	p.DefaultFooterID = footerID.String
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	if brand.Valid && brand.String != "" {
		if err := json.Unmarshal([]byte(brand.String), &p.Brand); err != nil {
			return nil, fmt.Errorf("failed to unmarshal brand: %w", err)
		}
	}
	return p, nil
}

// SoftDelete tombstones a publication. Rows are never hard-deleted.
func (r *PublicationRepository) SoftDelete(id string) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE publications SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete publication: %w", err)
	}
	return nil
}

type FooterRepository struct {
	db *sql.DB
}

func NewFooterRepository(db *sql.DB) *FooterRepository {
	return &FooterRepository{db: db}
}

// Create creates a footer
func (r *FooterRepository) Create(f *models.Footer) error {
	f.ID = uuid.New().String()
	f.CreatedAt = time.Now()

	content, err := json.Marshal(f.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal footer content: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO footers (id, content, created_at) VALUES (?, ?, ?)`,
		f.ID, string(content), f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create footer: %w", err)
	}
	return nil
}

// GetByID returns a footer by ID
func (r *FooterRepository) GetByID(id string) (*models.Footer, error) {
	f := &models.Footer{}
	var content string

	err := r.db.QueryRow(`SELECT id, content, created_at FROM footers WHERE id = ?`, id).
		Scan(&f.ID, &content, &f.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(content), &f.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal footer content: %w", err)
	}
	return f, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
