package store

import (
	"database/sql"
	"fmt"
)

// OrganizationTarget records the planned destination for a primary file
type OrganizationTarget struct {
	ID          int64
	FileID      int64
	Genre       string
	Decade      string
	FinalPath   string
	PatternUsed string
}

// UpsertOrganizationTarget inserts or replaces a file's planned destination
func (s *Store) UpsertOrganizationTarget(t *OrganizationTarget) error {
	_, err := s.exec(`
		INSERT INTO organization_targets (file_id, genre, decade, final_path, pattern_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			genre = excluded.genre,
			decade = excluded.decade,
			final_path = excluded.final_path,
			pattern_used = excluded.pattern_used
	`, t.FileID, t.Genre, t.Decade, t.FinalPath, t.PatternUsed)
	if err != nil {
		return fmt.Errorf("failed to upsert organization target: %w", err)
	}
	return nil
}

// GetOrganizationTarget retrieves a file's planned destination
func (s *Store) GetOrganizationTarget(fileID int64) (*OrganizationTarget, error) {
	t := &OrganizationTarget{}
	err := s.db.QueryRow(`
		SELECT id, file_id, COALESCE(genre, ''), COALESCE(decade, ''),
		       final_path, COALESCE(pattern_used, '')
		FROM organization_targets WHERE file_id = ?
	`, fileID).Scan(&t.ID, &t.FileID, &t.Genre, &t.Decade, &t.FinalPath, &t.PatternUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization target: %w", classify(err))
	}
	return t, nil
}

// TargetPathExists reports whether some file already has this planned
// destination (used by the conflict policy)
func (s *Store) TargetPathExists(finalPath string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM organization_targets WHERE final_path = ?", finalPath).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check target path: %w", classify(err))
	}
	return count > 0, nil
}
