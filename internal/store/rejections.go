package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Rejection categories; the first three are the required minimum in
// the default config
const (
	RejectDuplicate       = "duplicate"
	RejectLowQuality      = "low_quality"
	RejectCorrupted       = "corrupted"
	RejectUnsupported     = "unsupported"
	RejectInvalidMetadata = "invalid_metadata"
	RejectError           = "error"
)

// RejectionEntry is one row in the append-only rejection audit trail
type RejectionEntry struct {
	ID           int64
	FileID       int64
	Category     string
	ChosenFileID int64 // 0 when no sibling was chosen
	GroupID      int64 // 0 when not group-related
	RejectedPath string
	ReasonText   string
	RejectedAt   time.Time
}

// InsertRejection appends a rejection entry
func (s *Store) InsertRejection(r *RejectionEntry) error {
	result, err := s.exec(`
		INSERT INTO rejections (file_id, category, chosen_file_id, group_id, rejected_path, reason_text)
		VALUES (?, ?, NULLIF(?, 0), NULLIF(?, 0), ?, ?)
	`, r.FileID, r.Category, r.ChosenFileID, r.GroupID, r.RejectedPath, r.ReasonText)
	if err != nil {
		return fmt.Errorf("failed to insert rejection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rejection ID: %w", err)
	}
	r.ID = id
	return nil
}

// GetRejection retrieves a rejection entry by id
func (s *Store) GetRejection(id int64) (*RejectionEntry, error) {
	r := &RejectionEntry{}
	err := s.db.QueryRow(`
		SELECT id, file_id, category, COALESCE(chosen_file_id, 0), COALESCE(group_id, 0),
		       rejected_path, COALESCE(reason_text, ''), rejected_at
		FROM rejections WHERE id = ?
	`, id).Scan(&r.ID, &r.FileID, &r.Category, &r.ChosenFileID, &r.GroupID,
		&r.RejectedPath, &r.ReasonText, &r.RejectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rejection: %w", classify(err))
	}
	return r, nil
}

// GetAllRejections retrieves all rejection entries in id order
func (s *Store) GetAllRejections() ([]*RejectionEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, file_id, category, COALESCE(chosen_file_id, 0), COALESCE(group_id, 0),
		       rejected_path, COALESCE(reason_text, ''), rejected_at
		FROM rejections ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rejections: %w", classify(err))
	}
	defer rows.Close()

	var entries []*RejectionEntry
	for rows.Next() {
		r := &RejectionEntry{}
		if err := rows.Scan(&r.ID, &r.FileID, &r.Category, &r.ChosenFileID, &r.GroupID,
			&r.RejectedPath, &r.ReasonText, &r.RejectedAt); err != nil {
			return nil, err
		}
		entries = append(entries, r)
	}
	return entries, rows.Err()
}

// DeleteRejection removes an entry after a successful restore
func (s *Store) DeleteRejection(id int64) error {
	_, err := s.exec("DELETE FROM rejections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete rejection: %w", err)
	}
	return nil
}

// CountRejectionsByCategory returns rejection counts per category
func (s *Store) CountRejectionsByCategory() (map[string]int, error) {
	rows, err := s.db.Query("SELECT category, COUNT(*) FROM rejections GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to count rejections: %w", classify(err))
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}
