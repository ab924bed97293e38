package store

import (
	"database/sql"
	"fmt"
)

// Fingerprint holds the fingerprinter output for one audio content.
// Rows are content-addressed by the fingerprint string and shared
// across files with identical audio.
type Fingerprint struct {
	ID           int64
	Fingerprint  string
	DurationSec  float64
	SampleRateHz int
	BitDepth     int
	Channels     int
	Codec        string
	BitrateKbps  int
}

// UpsertFingerprint inserts a fingerprint row or returns the id of the
// existing row with the same fingerprint string.
func (s *Store) UpsertFingerprint(fp *Fingerprint) (int64, error) {
	_, err := s.exec(`
		INSERT INTO fingerprints (fingerprint, duration_sec, sample_rate_hz, bit_depth, channels, codec, bitrate_kbps)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fp.Fingerprint, fp.DurationSec, fp.SampleRateHz, fp.BitDepth, fp.Channels, fp.Codec, fp.BitrateKbps)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert fingerprint: %w", err)
	}

	var id int64
	err = s.db.QueryRow("SELECT id FROM fingerprints WHERE fingerprint = ?", fp.Fingerprint).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get fingerprint ID: %w", classify(err))
	}
	fp.ID = id
	return id, nil
}

// GetFingerprintByID retrieves a fingerprint row
func (s *Store) GetFingerprintByID(id int64) (*Fingerprint, error) {
	fp := &Fingerprint{}
	err := s.db.QueryRow(`
		SELECT id, fingerprint, COALESCE(duration_sec, 0), COALESCE(sample_rate_hz, 0),
		       COALESCE(bit_depth, 0), COALESCE(channels, 0), COALESCE(codec, ''),
		       COALESCE(bitrate_kbps, 0)
		FROM fingerprints WHERE id = ?
	`, id).Scan(
		&fp.ID, &fp.Fingerprint, &fp.DurationSec, &fp.SampleRateHz,
		&fp.BitDepth, &fp.Channels, &fp.Codec, &fp.BitrateKbps,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", classify(err))
	}
	return fp, nil
}
