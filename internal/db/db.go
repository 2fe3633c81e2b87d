package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

func New(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Migrate() error {
	return Migrate(db.DB)
}

// Migrate applies all schema migrations to the given database.
func Migrate(db *sql.DB) error {
	for _, m := range Migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Migrations holds the full schema, applied in order.
var Migrations = []string{
	migrationPublications,
	migrationFooters,
	migrationIssues,
	migrationBlocks,
	migrationSubscribers,
	migrationSendJobs,
	migrationSendMessages,
	migrationShortLinks,
	migrationRateLimits,
}

const migrationPublications = `
CREATE TABLE IF NOT EXISTS publications (
    id TEXT PRIMARY KEY,
    slug TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    from_name TEXT NOT NULL,
    from_email TEXT NOT NULL,
    reply_to TEXT,
    public INTEGER DEFAULT 0,
    brand JSON,
    default_footer_id TEXT,
    deleted_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationFooters = `
CREATE TABLE IF NOT EXISTS footers (
    id TEXT PRIMARY KEY,
    content JSON NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationIssues = `
CREATE TABLE IF NOT EXISTS issues (
    id TEXT PRIMARY KEY,
    publication_id TEXT NOT NULL REFERENCES publications(id) ON DELETE CASCADE,
    slug TEXT NOT NULL,
    subject TEXT NOT NULL,
    preheader TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    footer_id TEXT,
    send_count INTEGER DEFAULT 0,
    open_count INTEGER DEFAULT 0,
    click_count INTEGER DEFAULT 0,
    published_at TIMESTAMP,
    sent_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(publication_id, slug)
);
CREATE INDEX IF NOT EXISTS idx_issues_publication_id ON issues(publication_id);
`

const migrationBlocks = `
CREATE TABLE IF NOT EXISTS blocks (
    id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
    type TEXT NOT NULL,
    sort_order INTEGER NOT NULL,
    data JSON,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_blocks_issue_id ON blocks(issue_id, sort_order);
`

const migrationSubscribers = `
CREATE TABLE IF NOT EXISTS subscribers (
    id TEXT PRIMARY KEY,
    publication_id TEXT NOT NULL REFERENCES publications(id) ON DELETE CASCADE,
    email TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    confirmation_token TEXT NOT NULL,
    unsubscribe_token TEXT NOT NULL,
    confirmed_at TIMESTAMP,
    unsubscribed_at TIMESTAMP,
    bounced_at TIMESTAMP,
    complained_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(publication_id, email)
);
CREATE INDEX IF NOT EXISTS idx_subscribers_status ON subscribers(publication_id, status);
CREATE INDEX IF NOT EXISTS idx_subscribers_confirmation ON subscribers(confirmation_token);
CREATE INDEX IF NOT EXISTS idx_subscribers_unsubscribe ON subscribers(unsubscribe_token);
`

const migrationSendJobs = `
CREATE TABLE IF NOT EXISTS send_jobs (
    id TEXT PRIMARY KEY,
    publication_id TEXT NOT NULL REFERENCES publications(id) ON DELETE CASCADE,
    issue_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    total_recipients INTEGER NOT NULL,
    sent_count INTEGER DEFAULT 0,
    failed_count INTEGER DEFAULT 0,
    error_message TEXT,
    started_at TIMESTAMP,
    completed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_send_jobs_issue_id ON send_jobs(issue_id);
`

const migrationSendMessages = `
CREATE TABLE IF NOT EXISTS send_messages (
    id TEXT PRIMARY KEY,
    send_job_id TEXT NOT NULL REFERENCES send_jobs(id) ON DELETE CASCADE,
    subscriber_id TEXT NOT NULL REFERENCES subscribers(id) ON DELETE CASCADE,
    issue_id TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
    provider_message_id TEXT,
    status TEXT NOT NULL,
    error_message TEXT,
    sent_at TIMESTAMP,
    delivered_at TIMESTAMP,
    opened_at TIMESTAMP,
    clicked_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(send_job_id, subscriber_id)
);
CREATE INDEX IF NOT EXISTS idx_send_messages_provider_id ON send_messages(provider_message_id);
CREATE INDEX IF NOT EXISTS idx_send_messages_job_id ON send_messages(send_job_id);
`

const migrationShortLinks = `
CREATE TABLE IF NOT EXISTS short_links (
    original_url TEXT PRIMARY KEY,
    short_url TEXT NOT NULL,
    short_code TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const migrationRateLimits = `
CREATE TABLE IF NOT EXISTS rate_limits (
    id TEXT PRIMARY KEY,
    identifier TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    window_start TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_rate_limits_window ON rate_limits(identifier, endpoint, window_start);
`
