package store

import (
	"database/sql"
	"fmt"
)

// Metadata sources in fallback order
const (
	MetaSourceTag      = "tag"
	MetaSourceService  = "service"
	MetaSourceFilename = "filename-parse"
)

// Metadata represents tag-derived track metadata, deduplicated by content
type Metadata struct {
	ID          int64
	Artist      string
	Title       string
	Album       string
	Year        int
	Genre       string
	TrackNumber int
	DiscNumber  int
	Source      string
}

// UpsertMetadata inserts a metadata row, reusing an existing row with
// identical content.
func (s *Store) UpsertMetadata(m *Metadata) (int64, error) {
	// Content dedup: many files in a library share the exact same tags
	var id int64
	err := s.db.QueryRow(`
		SELECT id FROM metadata
		WHERE artist = ? AND title = ? AND album = ? AND year = ?
		  AND genre = ? AND track_number = ? AND disc_number = ? AND source = ?
	`, m.Artist, m.Title, m.Album, m.Year, m.Genre, m.TrackNumber, m.DiscNumber, m.Source).Scan(&id)

	if err == nil {
		m.ID = id
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up metadata: %w", classify(err))
	}

	result, err := s.exec(`
		INSERT INTO metadata (artist, title, album, year, genre, track_number, disc_number, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Artist, m.Title, m.Album, m.Year, m.Genre, m.TrackNumber, m.DiscNumber, m.Source)
	if err != nil {
		return 0, fmt.Errorf("failed to insert metadata: %w", err)
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get metadata ID: %w", err)
	}
	m.ID = id
	return id, nil
}

// GetMetadataByID retrieves a metadata row
func (s *Store) GetMetadataByID(id int64) (*Metadata, error) {
	m := &Metadata{}
	err := s.db.QueryRow(`
		SELECT id, COALESCE(artist, ''), COALESCE(title, ''), COALESCE(album, ''),
		       COALESCE(year, 0), COALESCE(genre, ''), COALESCE(track_number, 0),
		       COALESCE(disc_number, 0), COALESCE(source, '')
		FROM metadata WHERE id = ?
	`, id).Scan(
		&m.ID, &m.Artist, &m.Title, &m.Album,
		&m.Year, &m.Genre, &m.TrackNumber, &m.DiscNumber, &m.Source,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", classify(err))
	}
	return m, nil
}
