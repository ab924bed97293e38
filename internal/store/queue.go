package store

import (
	"fmt"
	"time"
)

// MetadataQueueEntry marks a file the organizer could not place
// (missing artist or title, unresolvable genre or missing year). The
// reporting layer consumes it.
type MetadataQueueEntry struct {
	ID        int64
	FileID    int64
	Reason    string
	CreatedAt time.Time
}

// EnqueueNeedsReview adds a file to the needs-review queue
func (s *Store) EnqueueNeedsReview(fileID int64, reason string) error {
	_, err := s.exec(`
		INSERT INTO metadata_queue (file_id, reason) VALUES (?, ?)
		ON CONFLICT(file_id) DO UPDATE SET reason = excluded.reason
	`, fileID, reason)
	if err != nil {
		return fmt.Errorf("failed to enqueue needs-review: %w", err)
	}
	return nil
}

// GetNeedsReview retrieves the needs-review queue in id order
func (s *Store) GetNeedsReview() ([]*MetadataQueueEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, file_id, reason, created_at FROM metadata_queue ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata queue: %w", classify(err))
	}
	defer rows.Close()

	var entries []*MetadataQueueEntry
	for rows.Next() {
		e := &MetadataQueueEntry{}
		if err := rows.Scan(&e.ID, &e.FileID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetSystemConfig records one effective configuration value
func (s *Store) SetSystemConfig(key, value string) error {
	_, err := s.exec(`
		INSERT INTO system_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set system config: %w", err)
	}
	return nil
}
