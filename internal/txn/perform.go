package txn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/util"
)

const copyBufferSize = 128 * 1024

// performAll executes the transaction's pending operations in insertion
// order, marking each performed as it lands.
func (m *Manager) performAll(txnID string) error {
	ops, err := m.store.GetTxnOperationsByStatus(txnID, store.OpPending)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if err := m.performOp(op); err != nil {
			if markErr := m.store.UpdateOperationStatus(op.ID, store.OpFailed, err.Error()); markErr != nil {
				util.ErrorLog("Failed to mark op %d failed: %v", op.ID, markErr)
			}
			return fmt.Errorf("perform failed for op %d (%s %s): %w",
				op.ID, op.Kind, op.SourcePath, err)
		}
		if err := m.store.UpdateOperationStatus(op.ID, store.OpPerformed, ""); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) performOp(op *store.FileOperation) error {
	switch op.Kind {
	case store.OpCreateDir:
		return util.RetryableMkdirAll(op.DestinationPath, 0755, m.retryCfg)
	case store.OpCopy:
		return m.copyFile(op.SourcePath, op.DestinationPath, op.ContentHash)
	case store.OpMove:
		return m.moveFile(op.SourcePath, op.DestinationPath, op.ContentHash)
	case store.OpRename:
		return m.renameFile(op.SourcePath, op.DestinationPath)
	case store.OpLink:
		if err := util.RetryableMkdirAll(filepath.Dir(op.DestinationPath), 0755, m.retryCfg); err != nil {
			return err
		}
		return os.Link(op.SourcePath, op.DestinationPath)
	case store.OpRemoveSource:
		// Only ever staged after a verified copy of the same content
		return util.RetryableRemove(op.SourcePath, m.retryCfg)
	case store.OpWriteTag:
		// Tag writing is delegated to the metadata writer by the caller
		// after commit; the op records intent for the audit trail
		return nil
	default:
		return fmt.Errorf("unknown operation kind: %s", op.Kind)
	}
}

// copyFile copies atomically: write a sibling .part file on the
// destination filesystem, fsync it, verify the content hash, then
// rename into place.
func (m *Manager) copyFile(srcPath, destPath, wantHash string) error {
	destDir := filepath.Dir(destPath)
	if err := util.RetryableMkdirAll(destDir, 0755, m.retryCfg); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	src, err := util.RetryableOpen(srcPath, m.retryCfg)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	tempPath := destPath + ".part"
	dest, err := util.RetryableCreate(tempPath, m.retryCfg)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	_, copyErr := io.CopyBuffer(dest, src, buf)
	if copyErr == nil {
		copyErr = dest.Sync()
	}
	closeErr := dest.Close()

	if copyErr != nil {
		util.RetryableRemove(tempPath, m.retryCfg)
		return fmt.Errorf("failed to copy: %w", copyErr)
	}
	if closeErr != nil {
		util.RetryableRemove(tempPath, m.retryCfg)
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	// Verify before the rename makes it visible
	if wantHash != "" {
		gotHash, err := util.HashFileContent(tempPath, m.hashAlgorithm)
		if err != nil {
			util.RetryableRemove(tempPath, m.retryCfg)
			return fmt.Errorf("failed to verify copy: %w", err)
		}
		if gotHash != wantHash {
			util.RetryableRemove(tempPath, m.retryCfg)
			return fmt.Errorf("%w: %s", util.ErrHashMismatch, destPath)
		}
	}

	if err := util.RetryableRename(tempPath, destPath, m.retryCfg); err != nil {
		util.RetryableRemove(tempPath, m.retryCfg)
		return fmt.Errorf("failed to rename: %w", err)
	}

	util.DebugLog("Copied: %s -> %s", srcPath, destPath)
	return nil
}

// moveFile renames when source and destination share a filesystem,
// otherwise falls back to a verified copy plus source removal
func (m *Manager) moveFile(srcPath, destPath, wantHash string) error {
	destDir := filepath.Dir(destPath)
	if err := util.RetryableMkdirAll(destDir, 0755, m.retryCfg); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if same, err := util.IsSameFilesystem(filepath.Dir(srcPath), destDir); err == nil && same {
		return util.RetryableRename(srcPath, destPath, m.retryCfg)
	}

	if err := m.copyFile(srcPath, destPath, wantHash); err != nil {
		return err
	}
	return util.RetryableRemove(srcPath, m.retryCfg)
}

func (m *Manager) renameFile(srcPath, destPath string) error {
	destDir := filepath.Dir(destPath)
	if err := util.RetryableMkdirAll(destDir, 0755, m.retryCfg); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return util.RetryableRename(srcPath, destPath, m.retryCfg)
}

// reverseOp undoes one performed operation using its recorded
// source/destination paths.
func (m *Manager) reverseOp(op *store.FileOperation) error {
	switch op.Kind {
	case store.OpCopy, store.OpLink:
		// The source was never touched; removing the destination restores
		// the prior state
		if op.DestinationPath == "" {
			return nil
		}
		if err := os.Remove(op.DestinationPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	case store.OpMove, store.OpRename:
		if _, err := os.Stat(op.DestinationPath); err != nil {
			return nil // Never landed
		}
		if err := util.RetryableRename(op.DestinationPath, op.SourcePath, m.retryCfg); err == nil {
			return nil
		}
		// Cross-device: copy back, then drop the destination
		if err := m.copyFile(op.DestinationPath, op.SourcePath, op.ContentHash); err != nil {
			return err
		}
		return util.RetryableRemove(op.DestinationPath, m.retryCfg)
	case store.OpRemoveSource:
		// The removed source is recoverable from the verified copy made
		// earlier in the same transaction
		if op.DestinationPath == "" {
			return fmt.Errorf("cannot restore removed source %s: no copy recorded", op.SourcePath)
		}
		return m.copyFile(op.DestinationPath, op.SourcePath, op.ContentHash)
	case store.OpCreateDir:
		// Only remove if we left it empty
		if err := os.Remove(op.DestinationPath); err != nil && !os.IsNotExist(err) {
			util.DebugLog("Leaving non-empty directory in place: %s", op.DestinationPath)
		}
		return nil
	case store.OpWriteTag:
		return nil
	default:
		return fmt.Errorf("unknown operation kind: %s", op.Kind)
	}
}
