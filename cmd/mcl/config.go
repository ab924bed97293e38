package main

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/franz/music-cleanup/internal/analyze"
	"github.com/franz/music-cleanup/internal/audio"
	"github.com/franz/music-cleanup/internal/checkpoint"
	"github.com/franz/music-cleanup/internal/discover"
	"github.com/franz/music-cleanup/internal/filter"
	"github.com/franz/music-cleanup/internal/group"
	"github.com/franz/music-cleanup/internal/organize"
	"github.com/franz/music-cleanup/internal/pipeline"
	"github.com/franz/music-cleanup/internal/reject"
	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/score"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/spf13/viper"
)

// openStore opens the unified database inside the workspace directory
func openStore() (*store.Store, string, error) {
	workspace := viper.GetString("workspace")
	dbPath := filepath.Join(workspace, viper.GetString("db"))

	s, err := store.Open(dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open store at %s: %w", dbPath, err)
	}
	return s, dbPath, nil
}

// defaultWorkers caps the per-stage pool at min(CPU count, 8)
func defaultWorkers() int {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return workers
}

func configuredWorkers() int {
	if w := viper.GetInt("max_workers"); w > 0 {
		return w
	}
	return defaultWorkers()
}

func configuredWeights() score.Weights {
	w := score.DefaultWeights()
	if m := viper.GetStringMapString("quality_weights"); len(m) > 0 {
		set := func(key string, dst *float64) {
			var v float64
			if _, err := fmt.Sscanf(m[key], "%f", &v); err == nil && v > 0 {
				*dst = v
			}
		}
		set("technical", &w.Technical)
		set("audio_fidelity", &w.AudioFidelity)
		set("integrity", &w.Integrity)
		set("reference", &w.Reference)
	}
	return w
}

// configuredHashAlgorithm maps the integrity level onto a hash choice:
// basic trades collision resistance for speed, everything above uses
// SHA-256
func configuredHashAlgorithm() string {
	if algo := viper.GetString("hash_algorithm"); algo != "" {
		return algo
	}
	switch viper.GetString("integrity_level") {
	case "basic":
		return "md5"
	default:
		return "sha256"
	}
}

// configuredBatchSize applies the soft memory cap: the batch is sized
// so prefetched work stays under memory_limit_bytes
func configuredBatchSize() int {
	batchSize := viper.GetInt("batch_size")
	if batchSize <= 0 {
		batchSize = 1000
	}

	if limit := viper.GetInt64("memory_limit_bytes"); limit > 0 {
		// Rough per-file bookkeeping footprint while in flight
		const perFileBytes = 64 * 1024
		if maxBatch := int(limit / perFileBytes); maxBatch > 0 && maxBatch < batchSize {
			batchSize = maxBatch
		}
	}
	return batchSize
}

// newEventLogger opens the JSONL event log in the workspace reports dir
func newEventLogger() *report.EventLogger {
	reportsDir := filepath.Join(viper.GetString("workspace"), "reports")
	level := report.LevelInfo
	if viper.GetBool("verbose") {
		level = report.LevelDebug
	}
	logger, err := report.NewEventLogger(reportsDir, level)
	if err != nil {
		return nil // event logging is best-effort
	}
	return logger
}

// newTagWriter selects the tag writer; disabled unless write_tags is
// set and ffmpeg is available
func newTagWriter() audio.MetadataWriter {
	if !viper.GetBool("write_tags") {
		return nil
	}
	w := audio.NewFFmpegTagWriter(viper.GetString("ffmpeg_binary"))
	if !w.Available() {
		return nil
	}
	return w
}

// newFingerprinter selects the fingerprinter implementation by config
func newFingerprinter() audio.Fingerprinter {
	if !viper.GetBool("enable_fingerprinting") {
		return audio.NoopFingerprinter{}
	}
	timeout := time.Duration(viper.GetInt("fingerprint_timeout_sec")) * time.Second
	fp := audio.NewChromaprintFingerprinter(viper.GetString("fpcalc_binary"), timeout)
	if !fp.Enabled() {
		return audio.NoopFingerprinter{}
	}
	return fp
}

// buildOrchestrator wires the full pipeline from the effective config
func buildOrchestrator(s *store.Store, dbPath string, logger *report.EventLogger) (*pipeline.Orchestrator, *checkpoint.Checkpointer) {
	protectedRoots := viper.GetStringSlice("protected_roots")
	rejectedRoot := viper.GetString("rejected_root")
	dryRun := viper.GetBool("dry_run")
	hashAlgorithm := configuredHashAlgorithm()
	batchSize := configuredBatchSize()
	workers := configuredWorkers()

	txns := txn.New(&txn.Config{
		Store:          s,
		ProtectedRoots: protectedRoots,
		ConflictPolicy: viper.GetString("handle_conflicts"),
		HashAlgorithm:  hashAlgorithm,
		DryRun:         dryRun,
	})

	checkpointer := checkpoint.New(&checkpoint.Config{
		Store:       s,
		IntervalSec: viper.GetInt("checkpoint_interval_sec"),
		Logger:      logger,
	})

	producer := discover.New(&discover.Config{
		Store:          s,
		Extensions:     viper.GetStringSlice("supported_extensions"),
		ProtectedRoots: protectedRoots,
		MinSizeBytes:   viper.GetInt64("min_size_bytes"),
		MaxSizeBytes:   viper.GetInt64("max_size_bytes"),
		BatchSize:      batchSize,
		Logger:         logger,
	})

	fingerprinter := newFingerprinter()

	analyzer := analyze.New(&analyze.Config{
		Store:         s,
		Reader:        audio.NewTagReader(audio.CompileFilenamePatterns(viper.GetStringSlice("filename_patterns"))),
		Fingerprinter: fingerprinter,
		Detector:      audio.NewHeuristicDetector(),
		Weights:       configuredWeights(),
		HashAlgorithm: hashAlgorithm,
		Concurrency:   workers,
		Logger:        logger,
	})

	corruptionFilter := filter.New(&filter.Config{
		Store:           s,
		Txns:            txns,
		RejectedRoot:    rejectedRoot,
		MinHealthScore:  viper.GetInt("min_health_score"),
		CriticalDefects: viper.GetStringSlice("critical_defects"),
		MinDurationSec:  viper.GetFloat64("min_duration_sec"),
		MaxDurationSec:  viper.GetFloat64("max_duration_sec"),
		QuarantineCopy:  viper.GetString("duplicate_action") != organize.ActionMove,
		Logger:          logger,
	})

	grouper := group.New(&group.Config{
		Store:               s,
		SimilarityThreshold: viper.GetFloat64("duplicate_similarity_threshold"),
		FormatPriority:      viper.GetStringSlice("format_priority"),
		FingerprintEnabled:  fingerprinter.Enabled(),
		Logger:              logger,
	})

	organizer := organize.New(&organize.Config{
		Store:          s,
		Txns:           txns,
		TargetRoot:     viper.GetString("target_root"),
		RejectedRoot:   rejectedRoot,
		Taxonomy:       organize.TaxonomyFromMap(viper.GetStringMapStringSlice("genre_categories")),
		Pattern:        viper.GetString("organize_pattern"),
		MaxFilenameLen: viper.GetInt("max_filename_len"),
		Action:         viper.GetString("duplicate_action"),
		ConflictPolicy: viper.GetString("handle_conflicts"),
		HashAlgorithm:  hashAlgorithm,
		TagWriter:      newTagWriter(),
		Logger:         logger,
	})

	manifest := reject.New(s, txns, rejectedRoot)

	orchestrator := pipeline.New(&pipeline.Config{
		Store:        s,
		Txns:         txns,
		Checkpointer: checkpointer,
		Producer:     producer,
		Analyzer:     analyzer,
		Filter:       corruptionFilter,
		Grouper:      grouper,
		Organizer:    organizer,
		Manifest:     manifest,
		Logger:       logger,
		SourceRoots:  viper.GetStringSlice("source_roots"),
		BatchSize:    batchSize,
		DryRun:       dryRun,
	})

	return orchestrator, checkpointer
}
