// Package reject maintains the rejection audit trail: every file that
// was analyzed but not placed into the organized tree is recorded with
// its reason, chosen sibling and restore path, and the manifest is
// re-exportable to JSON and CSV sidecars inside the rejected root.
package reject

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/franz/music-cleanup/internal/util"
)

const (
	manifestName = "rejected_manifest.json"
	analysisName = "rejection_analysis.csv"
)

// Manifest exposes the rejection audit trail
type Manifest struct {
	store        *store.Store
	txns         *txn.Manager
	rejectedRoot string
}

// New creates a rejection manifest over the store
func New(s *store.Store, t *txn.Manager, rejectedRoot string) *Manifest {
	return &Manifest{store: s, txns: t, rejectedRoot: rejectedRoot}
}

// manifestEntry is the exported JSON shape of one rejection
type manifestEntry struct {
	ID           int64   `json:"id"`
	OriginalPath string  `json:"original_path"`
	RejectedPath string  `json:"rejected_path"`
	Category     string  `json:"category"`
	ChosenPath   string  `json:"chosen_path,omitempty"`
	GroupID      int64   `json:"group_id,omitempty"`
	QualityScore float64 `json:"quality_score"`
	Reason       string  `json:"reason"`
	RejectedAt   string  `json:"rejected_at"`
}

// Export writes the JSON manifest and CSV analysis sidecars into the
// rejected root. Exports are idempotent: re-running produces the same
// files from the same store state.
func (m *Manifest) Export() error {
	entries, err := m.store.GetAllRejections()
	if err != nil {
		return err
	}

	exported := make([]manifestEntry, 0, len(entries))
	for _, r := range entries {
		e := manifestEntry{
			ID:           r.ID,
			RejectedPath: r.RejectedPath,
			Category:     r.Category,
			GroupID:      r.GroupID,
			Reason:       r.ReasonText,
			RejectedAt:   r.RejectedAt.UTC().Format(time.RFC3339),
		}

		if file, err := m.store.GetFileByID(r.FileID); err == nil && file != nil {
			e.OriginalPath = file.Path
			e.QualityScore = file.QualityScore
		}
		if r.ChosenFileID != 0 {
			if chosen, err := m.store.GetFileByID(r.ChosenFileID); err == nil && chosen != nil {
				e.ChosenPath = chosen.Path
			}
		}

		exported = append(exported, e)
	}

	if err := os.MkdirAll(m.rejectedRoot, 0755); err != nil {
		return fmt.Errorf("failed to create rejected root: %w", err)
	}

	if err := m.writeJSON(exported); err != nil {
		return err
	}
	if err := m.writeCSV(exported); err != nil {
		return err
	}

	util.InfoLog("Exported rejection manifest: %d entries", len(exported))
	return nil
}

// writeJSON writes the manifest atomically via temp-plus-rename
func (m *Manifest) writeJSON(entries []manifestEntry) error {
	path := filepath.Join(m.rejectedRoot, manifestName)
	tempPath := path + ".part"

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create manifest: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	encErr := enc.Encode(entries)
	closeErr := f.Close()

	if encErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write manifest: %w", encErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close manifest: %w", closeErr)
	}

	return os.Rename(tempPath, path)
}

func (m *Manifest) writeCSV(entries []manifestEntry) error {
	path := filepath.Join(m.rejectedRoot, analysisName)
	tempPath := path + ".part"

	f, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create analysis csv: %w", err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write([]string{
		"id", "original_path", "rejected_path", "category",
		"chosen_path", "quality_score", "reason", "rejected_at",
	})
	for _, e := range entries {
		if writeErr != nil {
			break
		}
		writeErr = w.Write([]string{
			strconv.FormatInt(e.ID, 10),
			e.OriginalPath,
			e.RejectedPath,
			e.Category,
			e.ChosenPath,
			strconv.FormatFloat(e.QualityScore, 'f', 1, 64),
			e.Reason,
			e.RejectedAt,
		})
	}
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	closeErr := f.Close()

	if writeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write analysis csv: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close analysis csv: %w", closeErr)
	}

	return os.Rename(tempPath, path)
}

// Restore copies a rejected file back to its original path through the
// transaction manager and, on success, deletes the rejection entry. The
// copy under the rejected root is left in place.
func (m *Manifest) Restore(ctx context.Context, rejectionID int64) error {
	entry, err := m.store.GetRejection(rejectionID)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: rejection %d", util.ErrNotFound, rejectionID)
	}

	file, err := m.store.GetFileByID(entry.FileID)
	if err != nil {
		return err
	}
	if file == nil {
		return fmt.Errorf("%w: file %d for rejection %d", util.ErrNotFound, entry.FileID, rejectionID)
	}

	if _, err := os.Stat(entry.RejectedPath); err != nil {
		return fmt.Errorf("rejected file missing at %s: %w", entry.RejectedPath, err)
	}

	txnID, err := m.txns.Begin(fmt.Sprintf("restore rejection %d", rejectionID))
	if err != nil {
		return err
	}

	op := &store.FileOperation{
		FileID:          file.ID,
		Kind:            store.OpCopy,
		SourcePath:      entry.RejectedPath,
		DestinationPath: file.Path,
		ContentHash:     file.ContentHash,
	}
	if err := m.txns.Stage(txnID, op); err != nil {
		m.txns.Rollback(txnID)
		return err
	}

	if err := m.txns.Commit(txnID); err != nil {
		return fmt.Errorf("restore transaction failed: %w", err)
	}

	if err := m.store.UpdateFileStatus(file.ID, store.StatusAnalyzed, ""); err != nil {
		return err
	}
	if err := m.store.DeleteRejection(rejectionID); err != nil {
		return err
	}

	util.SuccessLog("Restored %s -> %s", entry.RejectedPath, file.Path)
	return nil
}
