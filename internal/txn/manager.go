package txn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/util"
	"github.com/google/uuid"
)

// Conflict policies applied when a destination already exists
const (
	ConflictSkipIfSameHash = "skip_if_same_hash"
	ConflictRename         = "rename"
	ConflictFail           = "fail"
)

// Manager guarantees that a set of filesystem operations either all
// appear in their target state or none do. Every intended mutation is
// logged to the store before it happens; a crash mid-transaction leaves
// enough information to roll back.
type Manager struct {
	store          *store.Store
	protectedRoots []string
	conflictPolicy string
	hashAlgorithm  string
	dryRun         bool
	retryCfg       *util.RetryConfig
}

// Config holds transaction manager configuration
type Config struct {
	Store          *store.Store
	ProtectedRoots []string
	ConflictPolicy string // skip_if_same_hash, rename, fail
	HashAlgorithm  string
	DryRun         bool
	RetryConfig    *util.RetryConfig
}

// New creates a transaction manager
func New(cfg *Config) *Manager {
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = ConflictSkipIfSameHash
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = util.DefaultRetryConfig()
	}

	return &Manager{
		store:          cfg.Store,
		protectedRoots: cfg.ProtectedRoots,
		conflictPolicy: cfg.ConflictPolicy,
		hashAlgorithm:  cfg.HashAlgorithm,
		dryRun:         cfg.DryRun,
		retryCfg:       cfg.RetryConfig,
	}
}

// Begin creates a new open transaction and returns its id
func (m *Manager) Begin(reason string) (string, error) {
	id := uuid.NewString()
	if err := m.store.InsertTxn(id, reason); err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	util.DebugLog("Transaction %s begun (%s)", id[:8], reason)
	return id, nil
}

// sourceMutatingKinds modify their source path; staging one with a
// protected source is always refused
var sourceMutatingKinds = map[string]bool{
	store.OpMove:         true,
	store.OpRename:       true,
	store.OpRemoveSource: true,
	store.OpWriteTag:     true,
}

// Stage appends an intended operation to the transaction log. Nothing
// touches the filesystem yet.
func (m *Manager) Stage(txnID string, op *store.FileOperation) error {
	t, err := m.store.GetTxn(txnID)
	if err != nil {
		return err
	}
	if t == nil || t.Status != store.TxnOpen {
		return fmt.Errorf("transaction %s is not open", txnID)
	}

	if op.DestinationPath != "" && util.UnderAnyRoot(op.DestinationPath, m.protectedRoots) {
		return fmt.Errorf("%w: destination %s", util.ErrProtectedPath, op.DestinationPath)
	}
	if sourceMutatingKinds[op.Kind] && util.UnderAnyRoot(op.SourcePath, m.protectedRoots) {
		return fmt.Errorf("%w: source %s", util.ErrProtectedPath, op.SourcePath)
	}

	op.TransactionID = txnID
	return m.store.InsertFileOperation(op)
}

// Prepare verifies every pending operation can succeed: sources exist
// and still match their recorded hash, destinations are writable, and
// existing destinations are resolvable under the conflict policy.
// Operations whose destination already holds identical content are
// marked performed without doing anything, which is what makes a
// second run over an unchanged tree a no-op.
func (m *Manager) Prepare(txnID string) error {
	ops, err := m.store.GetTxnOperationsByStatus(txnID, store.OpPending)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if err := m.prepareOp(op); err != nil {
			return fmt.Errorf("prepare failed for op %d (%s %s): %w",
				op.ID, op.Kind, op.SourcePath, err)
		}
	}
	return nil
}

func (m *Manager) prepareOp(op *store.FileOperation) error {
	switch op.Kind {
	case store.OpCreateDir:
		return nil
	case store.OpWriteTag:
		_, err := os.Stat(op.SourcePath)
		return err
	}

	info, err := os.Stat(op.SourcePath)
	if err != nil {
		return fmt.Errorf("source missing: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("source is a directory: %s", op.SourcePath)
	}

	// The file must not have changed since it was staged
	if op.ContentHash != "" {
		hash, err := util.HashFileContent(op.SourcePath, m.hashAlgorithm)
		if err != nil {
			return fmt.Errorf("failed to verify source hash: %w", err)
		}
		if hash != op.ContentHash {
			return fmt.Errorf("%w: source changed since staging: %s",
				util.ErrHashMismatch, op.SourcePath)
		}
	}

	if op.DestinationPath == "" {
		return nil
	}

	if !util.DirWritable(filepath.Dir(op.DestinationPath)) {
		return fmt.Errorf("%w: destination dir not writable: %s",
			util.ErrPermission, filepath.Dir(op.DestinationPath))
	}

	if _, err := os.Stat(op.DestinationPath); err == nil {
		return m.resolveConflict(op)
	}
	return nil
}

// resolveConflict applies the configured policy to an existing destination
func (m *Manager) resolveConflict(op *store.FileOperation) error {
	switch m.conflictPolicy {
	case ConflictSkipIfSameHash:
		if op.ContentHash != "" {
			destHash, err := util.HashFileContent(op.DestinationPath, m.hashAlgorithm)
			if err == nil && destHash == op.ContentHash {
				// Destination already holds this content; nothing to do
				util.DebugLog("Skipping op %d: destination identical (%s)", op.ID, op.DestinationPath)
				return m.store.UpdateOperationStatus(op.ID, store.OpPerformed, "")
			}
		}
		return fmt.Errorf("%w: %s exists with different content",
			util.ErrConflict, op.DestinationPath)
	case ConflictRename:
		// The organizer resolves rename conflicts at planning time; a
		// collision surviving to prepare means the plan is stale
		return fmt.Errorf("%w: %s exists (stale plan)", util.ErrConflict, op.DestinationPath)
	default:
		return fmt.Errorf("%w: %s exists", util.ErrConflict, op.DestinationPath)
	}
}

// Commit drives the transaction to its terminal state: prepare, perform
// all operations in insertion order, then mark everything committed.
// Any failure rolls the transaction back. In dry-run mode nothing is
// performed and the staged rows stay pending for inspection.
func (m *Manager) Commit(txnID string) error {
	if m.dryRun {
		util.InfoLog("DRY-RUN: transaction %s left pending", txnID[:8])
		return nil
	}

	if err := m.Prepare(txnID); err != nil {
		// Nothing was performed; the transaction is safe to roll back
		if rbErr := m.Rollback(txnID); rbErr != nil {
			util.ErrorLog("Rollback after prepare failure also failed: %v", rbErr)
		}
		return err
	}

	if err := m.performAll(txnID); err != nil {
		if rbErr := m.Rollback(txnID); rbErr != nil {
			util.ErrorLog("Rollback after perform failure also failed: %v", rbErr)
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := m.store.UpdateTxnStatus(txnID, store.TxnCommitting); err != nil {
		if rbErr := m.Rollback(txnID); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	ops, err := m.store.GetTxnOperationsByStatus(txnID, store.OpPerformed)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := m.store.UpdateOperationStatus(op.ID, store.OpCommitted, ""); err != nil {
			return err
		}
	}

	if err := m.store.UpdateTxnStatus(txnID, store.TxnCommitted); err != nil {
		return err
	}

	util.DebugLog("Transaction %s committed (%d ops)", txnID[:8], len(ops))
	return nil
}

// Rollback reverses performed operations in inverse order and marks the
// transaction rolled back. Pending operations are simply discarded.
func (m *Manager) Rollback(txnID string) error {
	if err := m.store.UpdateTxnStatus(txnID, store.TxnRollingBack); err != nil {
		return err
	}

	ops, err := m.store.GetTxnOperations(txnID)
	if err != nil {
		return err
	}

	// Inverse order: undo the most recent mutation first
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Status {
		case store.OpPerformed:
			if err := m.reverseOp(op); err != nil {
				if markErr := m.store.UpdateOperationStatus(op.ID, store.OpFailed, err.Error()); markErr != nil {
					util.ErrorLog("Failed to mark op %d failed: %v", op.ID, markErr)
				}
				return fmt.Errorf("rollback failed for op %d: %w", op.ID, err)
			}
			if err := m.store.UpdateOperationStatus(op.ID, store.OpRolledBack, ""); err != nil {
				return err
			}
		case store.OpPending:
			if err := m.store.UpdateOperationStatus(op.ID, store.OpRolledBack, "never performed"); err != nil {
				return err
			}
		}
	}

	if err := m.store.UpdateTxnStatus(txnID, store.TxnRolledBack); err != nil {
		return err
	}

	util.InfoLog("Transaction %s rolled back", txnID[:8])
	return nil
}

// RecoverOpen rolls back every transaction found open or committing,
// called once at startup. A committing transaction has performed all
// its operations but the commit marker never landed, so its effects
// are reversed like any other incomplete transaction.
func (m *Manager) RecoverOpen() (int, error) {
	txns, err := m.store.GetTxnsByStatus(store.TxnOpen, store.TxnCommitting, store.TxnRollingBack)
	if err != nil {
		return 0, err
	}

	for _, t := range txns {
		util.WarnLog("Recovering incomplete transaction %s (status %s)", t.ID[:8], t.Status)
		if err := m.Rollback(t.ID); err != nil {
			return 0, fmt.Errorf("recovery rollback of %s failed: %w", t.ID, err)
		}
	}

	return len(txns), nil
}
