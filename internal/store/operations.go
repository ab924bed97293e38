package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Transaction statuses
const (
	TxnOpen        = "open"
	TxnCommitting  = "committing"
	TxnCommitted   = "committed"
	TxnRollingBack = "rolling-back"
	TxnRolledBack  = "rolled-back"
)

// FileOperation statuses
const (
	OpPending    = "pending"
	OpPerformed  = "performed"
	OpCommitted  = "committed"
	OpRolledBack = "rolled-back"
	OpFailed     = "failed"
)

// FileOperation kinds
const (
	OpCopy         = "copy"
	OpMove         = "move"
	OpLink         = "link"
	OpWriteTag     = "write-tag"
	OpCreateDir    = "create-dir"
	OpRename       = "rename"
	OpRemoveSource = "remove-source"
)

// Txn is a group of file operations that commit or roll back as one
type Txn struct {
	ID          string
	Status      string
	Reason      string
	CreatedAt   time.Time
	CommittedAt time.Time
}

// FileOperation is one intended filesystem mutation, logged before it
// is performed
type FileOperation struct {
	ID              int64
	FileID          int64 // 0 when the op has no file row (e.g. create-dir)
	TransactionID   string
	Kind            string
	SourcePath      string
	DestinationPath string
	ContentHash     string
	Status          string
	StartedAt       time.Time
	FinishedAt      time.Time
	Error           string
}

// InsertTxn creates a transaction row in status open
func (s *Store) InsertTxn(id, reason string) error {
	_, err := s.exec(`
		INSERT INTO transactions (id, status, reason) VALUES (?, ?, ?)
	`, id, TxnOpen, reason)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// UpdateTxnStatus advances a transaction through its lifecycle
func (s *Store) UpdateTxnStatus(id, status string) error {
	var err error
	if status == TxnCommitted {
		_, err = s.exec(
			"UPDATE transactions SET status = ?, committed_at = CURRENT_TIMESTAMP WHERE id = ?",
			status, id)
	} else {
		_, err = s.exec("UPDATE transactions SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	return nil
}

// GetTxn retrieves a transaction by id
func (s *Store) GetTxn(id string) (*Txn, error) {
	t := &Txn{}
	var committedAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT id, status, COALESCE(reason, ''), created_at, committed_at
		FROM transactions WHERE id = ?
	`, id).Scan(&t.ID, &t.Status, &t.Reason, &t.CreatedAt, &committedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", classify(err))
	}
	if committedAt.Valid {
		t.CommittedAt = committedAt.Time
	}
	return t, nil
}

// GetTxnsByStatus retrieves transactions in the given statuses
func (s *Store) GetTxnsByStatus(statuses ...string) ([]*Txn, error) {
	query := "SELECT id, status, COALESCE(reason, ''), created_at, committed_at FROM transactions WHERE status IN ("
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args[i] = st
	}
	query += ") ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", classify(err))
	}
	defer rows.Close()

	var txns []*Txn
	for rows.Next() {
		t := &Txn{}
		var committedAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Status, &t.Reason, &t.CreatedAt, &committedAt); err != nil {
			return nil, err
		}
		if committedAt.Valid {
			t.CommittedAt = committedAt.Time
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// InsertFileOperation appends an intended operation to the log
func (s *Store) InsertFileOperation(op *FileOperation) error {
	result, err := s.exec(`
		INSERT INTO file_operations
			(file_id, transaction_id, kind, source_path, destination_path, content_hash, status)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?)
	`, op.FileID, op.TransactionID, op.Kind, op.SourcePath, op.DestinationPath,
		op.ContentHash, OpPending)
	if err != nil {
		return fmt.Errorf("failed to insert file operation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get operation ID: %w", err)
	}
	op.ID = id
	op.Status = OpPending
	return nil
}

// UpdateOperationStatus records a status transition on an operation.
// Started/finished stamps are written for performed and terminal states.
func (s *Store) UpdateOperationStatus(opID int64, status, errMsg string) error {
	var err error
	switch status {
	case OpPerformed:
		_, err = s.exec(`
			UPDATE file_operations
			SET status = ?, error = ?, started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
			    finished_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, errMsg, opID)
	case OpCommitted, OpRolledBack, OpFailed:
		_, err = s.exec(`
			UPDATE file_operations
			SET status = ?, error = ?, finished_at = CURRENT_TIMESTAMP
			WHERE id = ?`, status, errMsg, opID)
	default:
		_, err = s.exec(
			"UPDATE file_operations SET status = ?, error = ? WHERE id = ?",
			status, errMsg, opID)
	}
	if err != nil {
		return fmt.Errorf("failed to update operation status: %w", err)
	}
	return nil
}

// GetTxnOperations retrieves a transaction's operations in insertion order
func (s *Store) GetTxnOperations(txnID string) ([]*FileOperation, error) {
	return s.queryOperations(`
		SELECT id, COALESCE(file_id, 0), transaction_id, kind, source_path,
		       COALESCE(destination_path, ''), COALESCE(content_hash, ''), status,
		       COALESCE(error, '')
		FROM file_operations WHERE transaction_id = ? ORDER BY id
	`, txnID)
}

// GetTxnOperationsByStatus retrieves a transaction's operations filtered
// by status, in insertion order
func (s *Store) GetTxnOperationsByStatus(txnID, status string) ([]*FileOperation, error) {
	return s.queryOperations(`
		SELECT id, COALESCE(file_id, 0), transaction_id, kind, source_path,
		       COALESCE(destination_path, ''), COALESCE(content_hash, ''), status,
		       COALESCE(error, '')
		FROM file_operations WHERE transaction_id = ? AND status = ? ORDER BY id
	`, txnID, status)
}

func (s *Store) queryOperations(query string, args ...interface{}) ([]*FileOperation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", classify(err))
	}
	defer rows.Close()

	var ops []*FileOperation
	for rows.Next() {
		op := &FileOperation{}
		if err := rows.Scan(
			&op.ID, &op.FileID, &op.TransactionID, &op.Kind, &op.SourcePath,
			&op.DestinationPath, &op.ContentHash, &op.Status, &op.Error,
		); err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// TerminalOperationForFile reports whether the file has a committed or
// rolled-back operation, used by invariant checks
func (s *Store) TerminalOperationForFile(fileID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM file_operations
		WHERE file_id = ? AND status IN (?, ?)
	`, fileID, OpCommitted, OpRolledBack).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query terminal operations: %w", classify(err))
	}
	return count > 0, nil
}
