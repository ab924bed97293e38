// Package filter separates analyzed files into healthy and quarantine
// streams before duplicate grouping, so a corrupted file can never be
// selected as the best version of a recording.
package filter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/franz/music-cleanup/internal/util"
)

// DefaultCriticalDefects is the defect-code set that quarantines a
// file regardless of its health score
var DefaultCriticalDefects = []string{
	"truncated_file",
	"corrupted_header",
	"complete_silence",
	"decode_failure",
	"metadata_corruption",
}

// Filter applies the corruption rules to analyzed files
type Filter struct {
	store           *store.Store
	txns            *txn.Manager
	rejectedRoot    string
	minHealthScore  int
	criticalDefects map[string]bool
	minDurationSec  float64
	maxDurationSec  float64
	maxClipRatio    float64
	maxSilenceRatio float64
	quarantineCopy  bool // copy instead of move into quarantine
	logger          *report.EventLogger
}

// Config holds corruption filter configuration
type Config struct {
	Store           *store.Store
	Txns            *txn.Manager
	RejectedRoot    string
	MinHealthScore  int      // default 50
	CriticalDefects []string // default DefaultCriticalDefects
	MinDurationSec  float64  // default 10
	MaxDurationSec  float64  // default 3600
	MaxClipRatio    float64  // default 0.05
	MaxSilenceRatio float64  // default 0.80
	QuarantineCopy  bool
	Logger          *report.EventLogger
}

// New creates a corruption filter
func New(cfg *Config) *Filter {
	if cfg.MinHealthScore <= 0 {
		cfg.MinHealthScore = 50
	}
	if len(cfg.CriticalDefects) == 0 {
		cfg.CriticalDefects = DefaultCriticalDefects
	}
	if cfg.MinDurationSec <= 0 {
		cfg.MinDurationSec = 10
	}
	if cfg.MaxDurationSec <= 0 {
		cfg.MaxDurationSec = 3600
	}
	if cfg.MaxClipRatio <= 0 {
		cfg.MaxClipRatio = 0.05
	}
	if cfg.MaxSilenceRatio <= 0 {
		cfg.MaxSilenceRatio = 0.80
	}

	critical := make(map[string]bool)
	for _, code := range cfg.CriticalDefects {
		critical[code] = true
	}

	return &Filter{
		store:           cfg.Store,
		txns:            cfg.Txns,
		rejectedRoot:    cfg.RejectedRoot,
		minHealthScore:  cfg.MinHealthScore,
		criticalDefects: critical,
		minDurationSec:  cfg.MinDurationSec,
		maxDurationSec:  cfg.MaxDurationSec,
		maxClipRatio:    cfg.MaxClipRatio,
		maxSilenceRatio: cfg.MaxSilenceRatio,
		quarantineCopy:  cfg.QuarantineCopy,
		logger:          cfg.Logger,
	}
}

// Result represents filtering results
type Result struct {
	Healthy     int
	Quarantined int
}

// FilterBatch evaluates a batch of analyzed files. Healthy files
// advance to the grouping phase; critically corrupted files are
// quarantined into the rejected tree through one transaction for the
// whole batch.
func (f *Filter) FilterBatch(ctx context.Context, files []*store.File) (*Result, error) {
	result := &Result{}

	var quarantine []*store.File
	var reasons []string

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		corrupt, reason, err := f.evaluate(file)
		if err != nil {
			return result, err
		}

		if corrupt {
			quarantine = append(quarantine, file)
			reasons = append(reasons, reason)
			continue
		}

		if err := f.store.UpdateFileStatus(file.ID, store.StatusHealthy, ""); err != nil {
			return result, err
		}
		file.Status = store.StatusHealthy
		result.Healthy++
	}

	if len(quarantine) == 0 {
		return result, nil
	}

	if err := f.quarantineFiles(quarantine, reasons); err != nil {
		return result, err
	}
	result.Quarantined = len(quarantine)

	return result, nil
}

// evaluate applies the corruption rules to one file
func (f *Filter) evaluate(file *store.File) (corrupt bool, reason string, err error) {
	qa, err := f.store.GetQualityAnalysis(file.ID)
	if err != nil {
		return false, "", err
	}
	if qa == nil {
		// Analysis never landed; treat as defective rather than trust it
		return true, "no quality analysis recorded", nil
	}

	if qa.HealthScore < f.minHealthScore {
		return true, fmt.Sprintf("health score %d below minimum %d", qa.HealthScore, f.minHealthScore), nil
	}

	for _, code := range qa.Defects {
		if f.criticalDefects[code] {
			return true, fmt.Sprintf("critical defect: %s", code), nil
		}
	}

	if file.FingerprintID != 0 {
		fp, err := f.store.GetFingerprintByID(file.FingerprintID)
		if err != nil {
			return false, "", err
		}
		if fp != nil && fp.DurationSec > 0 {
			if fp.DurationSec < f.minDurationSec {
				return true, fmt.Sprintf("duration %.1fs below minimum %.0fs", fp.DurationSec, f.minDurationSec), nil
			}
			if fp.DurationSec > f.maxDurationSec {
				return true, fmt.Sprintf("duration %.1fs above maximum %.0fs", fp.DurationSec, f.maxDurationSec), nil
			}
		}
	}

	if qa.ClippingRatio >= 0 && qa.ClippingRatio > f.maxClipRatio {
		return true, fmt.Sprintf("clipping ratio %.1f%% above %.0f%%", qa.ClippingRatio*100, f.maxClipRatio*100), nil
	}
	if qa.SilenceRatio >= 0 && qa.SilenceRatio > f.maxSilenceRatio {
		return true, fmt.Sprintf("silence ratio %.1f%% above %.0f%%", qa.SilenceRatio*100, f.maxSilenceRatio*100), nil
	}

	return false, "", nil
}

// quarantineFiles plans the quarantine moves as a single transaction
// and records the rejection audit entries
func (f *Filter) quarantineFiles(files []*store.File, reasons []string) error {
	txnID, err := f.txns.Begin("quarantine corrupted files")
	if err != nil {
		return err
	}

	kind := store.OpMove
	if f.quarantineCopy {
		kind = store.OpCopy
	}

	destPaths := make([]string, len(files))
	for i, file := range files {
		destPaths[i] = filepath.Join(f.rejectedRoot, "corrupted", filepath.Base(file.Path))

		op := &store.FileOperation{
			FileID:          file.ID,
			Kind:            store.OpCopy,
			SourcePath:      file.Path,
			DestinationPath: destPaths[i],
			ContentHash:     file.ContentHash,
		}
		if err := f.txns.Stage(txnID, op); err != nil {
			f.txns.Rollback(txnID)
			return err
		}
		if kind == store.OpMove {
			// Source removal is its own staged op so rollback can
			// restore it from the verified copy
			removeOp := &store.FileOperation{
				FileID:          file.ID,
				Kind:            store.OpRemoveSource,
				SourcePath:      file.Path,
				DestinationPath: destPaths[i],
				ContentHash:     file.ContentHash,
			}
			if err := f.txns.Stage(txnID, removeOp); err != nil {
				f.txns.Rollback(txnID)
				return err
			}
		}
	}

	if err := f.txns.Commit(txnID); err != nil {
		return fmt.Errorf("quarantine transaction failed: %w", err)
	}

	for i, file := range files {
		if err := f.store.UpdateFileStatus(file.ID, store.StatusQuarantined, reasons[i]); err != nil {
			return err
		}
		file.Status = store.StatusQuarantined

		if err := f.store.InsertRejection(&store.RejectionEntry{
			FileID:       file.ID,
			Category:     store.RejectCorrupted,
			RejectedPath: destPaths[i],
			ReasonText:   reasons[i],
		}); err != nil {
			return err
		}

		util.WarnLog("Quarantined: %s (%s)", file.Path, reasons[i])
		if f.logger != nil {
			f.logger.LogQuarantine(file.Path, destPaths[i], reasons[i])
		}
	}

	return nil
}
