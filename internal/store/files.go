package store

import (
	"database/sql"
	"fmt"
	"time"
)

// File statuses as they move through the pipeline
const (
	StatusDiscovered  = "discovered"
	StatusAnalyzed    = "analyzed"
	StatusHealthy     = "healthy"
	StatusQuarantined = "quarantined"
	StatusOrganized   = "organized"
	StatusRejected    = "rejected"
	StatusFailed      = "failed"
)

// File represents a discovered audio file
type File struct {
	ID            int64
	Path          string
	ContentHash   string
	SizeBytes     int64
	ModifiedTime  int64
	FingerprintID int64 // 0 when unset
	MetadataID    int64 // 0 when unset
	QualityScore  float64
	Status        string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const fileColumns = `
	id, path, COALESCE(content_hash, ''), COALESCE(size_bytes, 0),
	COALESCE(modified_time, 0), COALESCE(fingerprint_id, 0),
	COALESCE(metadata_id, 0), COALESCE(quality_score, 0),
	status, COALESCE(error, ''), created_at, updated_at`

func scanFile(row interface{ Scan(...interface{}) error }) (*File, error) {
	f := &File{}
	err := row.Scan(
		&f.ID, &f.Path, &f.ContentHash, &f.SizeBytes,
		&f.ModifiedTime, &f.FingerprintID, &f.MetadataID, &f.QualityScore,
		&f.Status, &f.Error, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// UpsertFile inserts a file record or refreshes size/mtime of an existing
// one. Duplicate paths are never duplicated rows.
func (s *Store) UpsertFile(f *File) error {
	result, err := s.exec(`
		INSERT INTO files (path, size_bytes, modified_time, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size_bytes = excluded.size_bytes,
			modified_time = excluded.modified_time
		`, f.Path, f.SizeBytes, f.ModifiedTime, f.Status)

	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}

	if f.ID == 0 {
		id, err := result.LastInsertId()
		if err == nil && id != 0 {
			f.ID = id
		}
		// On conflict update LastInsertId may be stale; fetch by path
		err = s.db.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&f.ID)
		if err != nil {
			return fmt.Errorf("failed to get file ID: %w", err)
		}
	}

	return nil
}

// InsertFileBatch inserts many files in a single database transaction
func (s *Store) InsertFileBatch(files []*File) error {
	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO files (path, size_bytes, modified_time, status)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(path) DO NOTHING
		`)
		if err != nil {
			return classify(err)
		}
		defer stmt.Close()

		for _, f := range files {
			if _, err := stmt.Exec(f.Path, f.SizeBytes, f.ModifiedTime, f.Status); err != nil {
				return classify(err)
			}
		}
		return nil
	})
}

// GetFileByPath retrieves a file by its absolute path
func (s *Store) GetFileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow(
		"SELECT"+fileColumns+" FROM files WHERE path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", classify(err))
	}
	return f, nil
}

// GetFileByID retrieves a file by its ID
func (s *Store) GetFileByID(id int64) (*File, error) {
	f, err := scanFile(s.db.QueryRow(
		"SELECT"+fileColumns+" FROM files WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", classify(err))
	}
	return f, nil
}

// GetFilesByStatus retrieves files with a given status in id order
func (s *Store) GetFilesByStatus(status string) ([]*File, error) {
	return s.queryFiles(
		"SELECT"+fileColumns+" FROM files WHERE status = ? ORDER BY id", status)
}

// GetFilesByStatusBatch retrieves a bounded page of files with the given
// status whose id is greater than afterID. The pipeline pages through
// phases with this so memory stays O(batch), not O(library).
func (s *Store) GetFilesByStatusBatch(status string, afterID int64, limit int) ([]*File, error) {
	return s.queryFiles(
		"SELECT"+fileColumns+" FROM files WHERE status = ? AND id > ? ORDER BY id LIMIT ?",
		status, afterID, limit)
}

func (s *Store) queryFiles(query string, args ...interface{}) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", classify(err))
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

// UpdateFileStatus updates the status of a file
func (s *Store) UpdateFileStatus(fileID int64, status string, errorMsg string) error {
	_, err := s.exec(`
		UPDATE files SET status = ?, error = ? WHERE id = ?
	`, status, errorMsg, fileID)

	if err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}

	return nil
}

// UpdateFileAnalysis records the analyzer outputs on the file row and
// advances it to status analyzed
func (s *Store) UpdateFileAnalysis(fileID int64, contentHash string, fingerprintID, metadataID int64, qualityScore float64) error {
	_, err := s.exec(`
		UPDATE files SET
			content_hash = ?,
			fingerprint_id = NULLIF(?, 0),
			metadata_id = NULLIF(?, 0),
			quality_score = ?,
			status = ?
		WHERE id = ?
	`, contentHash, fingerprintID, metadataID, qualityScore, StatusAnalyzed, fileID)

	if err != nil {
		return fmt.Errorf("failed to update file analysis: %w", err)
	}

	return nil
}

// UpdateFilePath updates a file's absolute path after an organize commit;
// the path of an organized row reflects its destination.
func (s *Store) UpdateFilePath(fileID int64, newPath string) error {
	_, err := s.exec("UPDATE files SET path = ? WHERE id = ?", newPath, fileID)
	if err != nil {
		return fmt.Errorf("failed to update file path: %w", err)
	}
	return nil
}

// CountFilesByStatus returns the number of files with a given status
func (s *Store) CountFilesByStatus(status string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM files WHERE status = ?", status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", classify(err))
	}
	return count, nil
}

// GetAllFilePathsMap returns all known paths for fast duplicate-skip
// during discovery resume
func (s *Store) GetAllFilePathsMap() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT path FROM files")
	if err != nil {
		return nil, fmt.Errorf("failed to query file paths: %w", classify(err))
	}
	defer rows.Close()

	paths := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = true
	}
	return paths, rows.Err()
}

// StatusCounts returns a snapshot of file counts per status
func (s *Store) StatusCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM files GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", classify(err))
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
