package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RateLimitWindow is one fixed-window counter row
type RateLimitWindow struct {
	ID          string
	Identifier  string
	Endpoint    string
	Count       int
	WindowStart time.Time
}

type RateLimitRepository struct {
	db *sql.DB
}

func NewRateLimitRepository(db *sql.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// GetWindow returns the most recent counter row for (identifier, endpoint)
// whose window started at or after the cutoff, or nil if none exists.
func (r *RateLimitRepository) GetWindow(identifier, endpoint string, cutoff time.Time) (*RateLimitWindow, error) {
	w := &RateLimitWindow{}
	err := r.db.QueryRow(`
		SELECT id, identifier, endpoint, count, window_start
		FROM rate_limits
		WHERE identifier = ? AND endpoint = ? AND window_start >= ?
		ORDER BY window_start DESC LIMIT 1`,
		identifier, endpoint, cutoff,
	).Scan(&w.ID, &w.Identifier, &w.Endpoint, &w.Count, &w.WindowStart)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// CreateWindow starts a new window with count=1
func (r *RateLimitRepository) CreateWindow(identifier, endpoint string) error {
	_, err := r.db.Exec(`
		INSERT INTO rate_limits (id, identifier, endpoint, count, window_start, created_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		uuid.New().String(), identifier, endpoint, time.Now(), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limit window: %w", err)
	}
	return nil
}

// Increment bumps a window's counter
func (r *RateLimitRepository) Increment(id string) error {
	_, err := r.db.Exec(`UPDATE rate_limits SET count = count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return nil
}

// DeleteExpired removes windows that started before the cutoff. Run
// periodically via the cleanup command.
func (r *RateLimitRepository) DeleteExpired(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM rate_limits WHERE window_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate limits: %w", err)
	}
	return res.RowsAffected()
}
