package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Checkpoint is a recovery snapshot of pipeline progress. Ids are
// strictly monotonic; recovery always reads the maximum id.
type Checkpoint struct {
	ID                 int64
	Phase              string
	LastBatchID        int64
	Counters           map[string]int
	OpenTransactionIDs []string
	CreatedAt          time.Time
}

// InsertCheckpoint appends a checkpoint row
func (s *Store) InsertCheckpoint(cp *Checkpoint) error {
	countersJSON, err := json.Marshal(cp.Counters)
	if err != nil {
		return fmt.Errorf("failed to marshal counters: %w", err)
	}
	txnsJSON, err := json.Marshal(cp.OpenTransactionIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal open transactions: %w", err)
	}

	result, err := s.exec(`
		INSERT INTO checkpoints (phase, last_batch_id, counters, open_transaction_ids)
		VALUES (?, ?, ?, ?)
	`, cp.Phase, cp.LastBatchID, string(countersJSON), string(txnsJSON))
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get checkpoint ID: %w", err)
	}
	cp.ID = id
	return nil
}

// LatestCheckpoint returns the checkpoint with the maximum id, or nil
func (s *Store) LatestCheckpoint() (*Checkpoint, error) {
	cp := &Checkpoint{}
	var countersJSON, txnsJSON string
	err := s.db.QueryRow(`
		SELECT id, phase, last_batch_id, COALESCE(counters, '{}'),
		       COALESCE(open_transaction_ids, '[]'), created_at
		FROM checkpoints ORDER BY id DESC LIMIT 1
	`).Scan(&cp.ID, &cp.Phase, &cp.LastBatchID, &countersJSON, &txnsJSON, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", classify(err))
	}

	if err := json.Unmarshal([]byte(countersJSON), &cp.Counters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
	}
	if err := json.Unmarshal([]byte(txnsJSON), &cp.OpenTransactionIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal open transactions: %w", err)
	}
	return cp, nil
}
