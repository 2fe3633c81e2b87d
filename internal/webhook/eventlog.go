package webhook

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const eventsBucket = "webhook_events"

// EventLog is an append-only audit log of raw webhook payloads, kept in
// a bbolt file beside the main database. The reconciler updates derived
// state; the log preserves what the provider actually sent so delivery
// incidents can be investigated after the fact.
type EventLog struct {
	db *bbolt.DB
}

// OpenEventLog opens (or creates) the event log file
func OpenEventLog(path string) (*EventLog, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(eventsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events bucket: %w", err)
	}

	return &EventLog{db: db}, nil
}

// Append stores one raw event payload keyed by receive time and a
// sequence number.
func (l *EventLog) Append(eventType string, body []byte) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(eventsBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s/%012d/%s", time.Now().UTC().Format(time.RFC3339), seq, eventType)
		return b.Put([]byte(key), body)
	})
}

// Count returns the number of stored events
func (l *EventLog) Count() (int, error) {
	var n int
	err := l.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(eventsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (l *EventLog) Close() error {
	return l.db.Close()
}
