package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/letterflow/letterflow/internal/models"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob creates a pending send job with the recipient snapshot count
func (r *JobRepository) CreateJob(job *models.SendJob) error {
	job.ID = uuid.New().String()
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO send_jobs (id, publication_id, issue_id, status, total_recipients, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.PublicationID, job.IssueID, job.Status, job.TotalRecipients, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create send job: %w", err)
	}
	return nil
}

// GetJob returns a send job by ID
func (r *JobRepository) GetJob(id string) (*models.SendJob, error) {
	job := &models.SendJob{}
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, publication_id, issue_id, status, total_recipients, sent_count, failed_count,
			error_message, started_at, completed_at, created_at, updated_at
		FROM send_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.PublicationID, &job.IssueID, &job.Status, &job.TotalRecipients,
		&job.SentCount, &job.FailedCount, &errMsg, &startedAt, &completedAt, &job.CreatedAt, &job.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job.ErrorMessage = errMsg.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// MarkProcessing transitions a job to processing and stamps started_at
func (r *JobRepository) MarkProcessing(id string) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE send_jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
		models.JobStatusProcessing, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}
	return nil
}

// UpdateProgress persists running sent/failed counts after a batch settles
func (r *JobRepository) UpdateProgress(id string, sentCount, failedCount int) error {
	_, err := r.db.Exec(`
		UPDATE send_jobs SET sent_count = ?, failed_count = ?, updated_at = ? WHERE id = ?`,
		sentCount, failedCount, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a job with its final counts
func (r *JobRepository) MarkCompleted(id string, sentCount, failedCount int) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE send_jobs SET status = ?, sent_count = ?, failed_count = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		models.JobStatusCompleted, sentCount, failedCount, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// MarkFailed records a structural failure. Failed jobs are terminal.
func (r *JobRepository) MarkFailed(id, errorMessage string) error {
	now := time.Now()
	_, err := r.db.Exec(`
		UPDATE send_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		models.JobStatusFailed, errorMessage, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// CreateMessage persists a per-recipient send record
func (r *JobRepository) CreateMessage(m *models.SendMessage) error {
	m.ID = uuid.New().String()
	m.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO send_messages (id, send_job_id, subscriber_id, issue_id, provider_message_id, status, error_message, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SendJobID, m.SubscriberID, m.IssueID, nullString(m.ProviderMessageID), m.Status, nullString(m.ErrorMessage), m.SentAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create send message: %w", err)
	}
	return nil
}

const messageColumns = `id, send_job_id, subscriber_id, issue_id, provider_message_id, status,
	error_message, sent_at, delivered_at, opened_at, clicked_at, created_at`

// GetMessageByProviderID returns a message by the provider's message id,
// or nil when this system has no record of it (e.g. test sends).
func (r *JobRepository) GetMessageByProviderID(providerMessageID string) (*models.SendMessage, error) {
	row := r.db.QueryRow(`SELECT `+messageColumns+` FROM send_messages WHERE provider_message_id = ?`, providerMessageID)
	return scanMessage(row)
}

// GetMessage returns a message by ID
func (r *JobRepository) GetMessage(id string) (*models.SendMessage, error) {
	row := r.db.QueryRow(`SELECT `+messageColumns+` FROM send_messages WHERE id = ?`, id)
	return scanMessage(row)
}

func scanMessage(row *sql.Row) (*models.SendMessage, error) {
	m := &models.SendMessage{}
	var providerID, errMsg sql.NullString
	var sentAt, deliveredAt, openedAt, clickedAt sql.NullTime

	err := row.Scan(&m.ID, &m.SendJobID, &m.SubscriberID, &m.IssueID, &providerID, &m.Status,
		&errMsg, &sentAt, &deliveredAt, &openedAt, &clickedAt, &m.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.ProviderMessageID = providerID.String
	m.ErrorMessage = errMsg.String
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	if deliveredAt.Valid {
		m.DeliveredAt = &deliveredAt.Time
	}
	if openedAt.Valid {
		m.OpenedAt = &openedAt.Time
	}
	if clickedAt.Valid {
		m.ClickedAt = &clickedAt.Time
	}
	return m, nil
}

// ListMessages returns all messages of a job
func (r *JobRepository) ListMessages(jobID string) ([]models.SendMessage, error) {
	rows, err := r.db.Query(`SELECT `+messageColumns+` FROM send_messages WHERE send_job_id = ? ORDER BY created_at ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.SendMessage{}
	for rows.Next() {
		var m models.SendMessage
		var providerID, errMsg sql.NullString
		var sentAt, deliveredAt, openedAt, clickedAt sql.NullTime
		err := rows.Scan(&m.ID, &m.SendJobID, &m.SubscriberID, &m.IssueID, &providerID, &m.Status,
			&errMsg, &sentAt, &deliveredAt, &openedAt, &clickedAt, &m.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.ProviderMessageID = providerID.String
		m.ErrorMessage = errMsg.String
		if sentAt.Valid {
			m.SentAt = &sentAt.Time
		}
		if deliveredAt.Valid {
			m.DeliveredAt = &deliveredAt.Time
		}
		if openedAt.Valid {
			m.OpenedAt = &openedAt.Time
		}
		if clickedAt.Valid {
			m.ClickedAt = &clickedAt.Time
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpdateMessageStatus overwrites a message's observed status, optionally
// with error detail.
func (r *JobRepository) UpdateMessageStatus(id, status, errorMessage string) error {
	_, err := r.db.Exec(`UPDATE send_messages SET status = ?, error_message = ? WHERE id = ?`,
		status, nullString(errorMessage), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}
	return nil
}

// MarkMessageSent sets status=sent and stamps sent_at if not already set
func (r *JobRepository) MarkMessageSent(id string) error {
	_, err := r.db.Exec(`
		UPDATE send_messages SET status = ?, sent_at = COALESCE(sent_at, ?) WHERE id = ?`,
		models.MessageStatusSent, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	return nil
}

// MarkMessageDelivered sets status=delivered and stamps delivered_at
func (r *JobRepository) MarkMessageDelivered(id string) error {
	_, err := r.db.Exec(`
		UPDATE send_messages SET status = ?, delivered_at = ? WHERE id = ?`,
		models.MessageStatusDelivered, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark message delivered: %w", err)
	}
	return nil
}

// SetOpened stamps opened_at if not already set. Returns true only for
// the first occurrence, so duplicate webhook deliveries count once.
func (r *JobRepository) SetOpened(id string) (bool, error) {
	res, err := r.db.Exec(`UPDATE send_messages SET opened_at = ? WHERE id = ? AND opened_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set opened_at: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetClicked stamps clicked_at if not already set. Returns true only for
// the first occurrence.
func (r *JobRepository) SetClicked(id string) (bool, error) {
	res, err := r.db.Exec(`UPDATE send_messages SET clicked_at = ? WHERE id = ? AND clicked_at IS NULL`,
		time.Now(), id)
	if err != nil {
		return false, fmt.Errorf("failed to set clicked_at: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
