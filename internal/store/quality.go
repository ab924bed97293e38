package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Recommended actions emitted by the scorer
const (
	ActionKeep            = "keep"
	ActionReplace         = "replace"
	ActionQuarantine      = "quarantine"
	ActionDeleteDuplicate = "delete_duplicate"
)

// QualityAnalysis holds the scored quality breakdown for one file
type QualityAnalysis struct {
	ID                 int64
	FileID             int64
	TechnicalScore     float64
	AudioFidelityScore float64
	IntegrityScore     float64
	ReferenceScore     float64
	FinalScore         float64
	Grade              string
	RecommendedAction  string
	Defects            []string
	HealthScore        int
	ClippingRatio      float64
	SilenceRatio       float64
}

// UpsertQualityAnalysis inserts or replaces the quality analysis for a file
func (s *Store) UpsertQualityAnalysis(qa *QualityAnalysis) error {
	defectsJSON, err := json.Marshal(qa.Defects)
	if err != nil {
		return fmt.Errorf("failed to marshal defects: %w", err)
	}

	_, err = s.exec(`
		INSERT INTO quality_analysis
			(file_id, technical_score, audio_fidelity_score, integrity_score,
			 reference_score, final_score, grade, recommended_action, defects,
			 health_score, clipping_ratio, silence_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			technical_score = excluded.technical_score,
			audio_fidelity_score = excluded.audio_fidelity_score,
			integrity_score = excluded.integrity_score,
			reference_score = excluded.reference_score,
			final_score = excluded.final_score,
			grade = excluded.grade,
			recommended_action = excluded.recommended_action,
			defects = excluded.defects,
			health_score = excluded.health_score,
			clipping_ratio = excluded.clipping_ratio,
			silence_ratio = excluded.silence_ratio
	`, qa.FileID, qa.TechnicalScore, qa.AudioFidelityScore, qa.IntegrityScore,
		qa.ReferenceScore, qa.FinalScore, qa.Grade, qa.RecommendedAction, string(defectsJSON),
		qa.HealthScore, qa.ClippingRatio, qa.SilenceRatio)

	if err != nil {
		return fmt.Errorf("failed to upsert quality analysis: %w", err)
	}
	return nil
}

// GetQualityAnalysis retrieves the quality analysis for a file
func (s *Store) GetQualityAnalysis(fileID int64) (*QualityAnalysis, error) {
	qa := &QualityAnalysis{}
	var defectsJSON string
	err := s.db.QueryRow(`
		SELECT id, file_id, technical_score, audio_fidelity_score, integrity_score,
		       COALESCE(reference_score, 0), final_score, grade,
		       COALESCE(recommended_action, ''), COALESCE(defects, '[]'),
		       health_score, clipping_ratio, silence_ratio
		FROM quality_analysis WHERE file_id = ?
	`, fileID).Scan(
		&qa.ID, &qa.FileID, &qa.TechnicalScore, &qa.AudioFidelityScore, &qa.IntegrityScore,
		&qa.ReferenceScore, &qa.FinalScore, &qa.Grade, &qa.RecommendedAction, &defectsJSON,
		&qa.HealthScore, &qa.ClippingRatio, &qa.SilenceRatio,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quality analysis: %w", classify(err))
	}

	if err := json.Unmarshal([]byte(defectsJSON), &qa.Defects); err != nil {
		return nil, fmt.Errorf("failed to unmarshal defects: %w", err)
	}
	return qa, nil
}
