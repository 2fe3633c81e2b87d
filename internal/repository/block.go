package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/letterflow/letterflow/internal/models"
)

type BlockRepository struct {
	db *sql.DB
}

func NewBlockRepository(db *sql.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// Create creates a content block
func (r *BlockRepository) Create(b *models.Block) error {
	b.ID = uuid.New().String()
	b.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO blocks (id, issue_id, type, sort_order, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, b.IssueID, b.Type, b.SortOrder, string(b.Data), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}
	return nil
}

// ListByIssue returns an issue's blocks ordered by sort_order ascending
func (r *BlockRepository) ListByIssue(issueID string) ([]models.Block, error) {
	rows, err := r.db.Query(`
		SELECT id, issue_id, type, sort_order, data, created_at
		FROM blocks WHERE issue_id = ? ORDER BY sort_order ASC`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := []models.Block{}
	for rows.Next() {
		var b models.Block
		var data sql.NullString
		if err := rows.Scan(&b.ID, &b.IssueID, &b.Type, &b.SortOrder, &data, &b.CreatedAt); err != nil {
			return nil, err
		}
		if data.Valid {
			b.Data = []byte(data.String)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// Reorder rewrites the full sort sequence for an issue. Block IDs are
// assigned dense zero-based sort orders in the given order.
func (r *BlockRepository) Reorder(issueID string, blockIDs []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reorder: %w", err)
	}
	defer tx.Rollback()

	for i, id := range blockIDs {
		if _, err := tx.Exec(`UPDATE blocks SET sort_order = ? WHERE id = ? AND issue_id = ?`, i, id, issueID); err != nil {
			return fmt.Errorf("failed to reorder block %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Delete removes a block
func (r *BlockRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}
