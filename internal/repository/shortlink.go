package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/letterflow/letterflow/internal/models"
)

// ShortLinkRepository is the persistent cache for the URL shortener.
// Reads are consulted before the external API; inserts are best-effort.
type ShortLinkRepository struct {
	db *sql.DB
}

func NewShortLinkRepository(db *sql.DB) *ShortLinkRepository {
	return &ShortLinkRepository{db: db}
}

// Get returns the cached mapping for an original URL, or nil on a miss
func (r *ShortLinkRepository) Get(originalURL string) (*models.ShortLink, error) {
	link := &models.ShortLink{}
	var code sql.NullString

	err := r.db.QueryRow(`
		SELECT original_url, short_url, short_code, created_at
		FROM short_links WHERE original_url = ?`, originalURL,
	).Scan(&link.OriginalURL, &link.ShortURL, &code, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	link.ShortCode = code.String
	return link, nil
}

// Put stores a mapping. Concurrent writers may race on the same URL; the
// first insert wins and later ones are ignored.
func (r *ShortLinkRepository) Put(link *models.ShortLink) error {
	link.CreatedAt = time.Now()
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO short_links (original_url, short_url, short_code, created_at)
		VALUES (?, ?, ?, ?)`,
		link.OriginalURL, link.ShortURL, link.ShortCode, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to cache short link: %w", err)
	}
	return nil
}
