// Package analyze attaches to each discovered file the facts needed to
// score and group it: content hash, tag metadata, acoustic fingerprint,
// defect report and quality score.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/franz/music-cleanup/internal/audio"
	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/score"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/util"
	"github.com/sourcegraph/conc/pool"
)

// Analyzer runs per-file analysis with a bounded worker pool
type Analyzer struct {
	store         *store.Store
	reader        audio.MetadataReader
	fingerprinter audio.Fingerprinter
	detector      audio.DefectDetector
	reference     audio.ReferenceLookup
	weights       score.Weights
	hashAlgorithm string
	concurrency   int
	logger        *report.EventLogger
}

// Config holds analyzer configuration
type Config struct {
	Store         *store.Store
	Reader        audio.MetadataReader
	Fingerprinter audio.Fingerprinter
	Detector      audio.DefectDetector
	Reference     audio.ReferenceLookup // optional
	Weights       score.Weights
	HashAlgorithm string
	Concurrency   int
	Logger        *report.EventLogger
}

// New creates an analyzer
func New(cfg *Config) *Analyzer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Weights == (score.Weights{}) {
		cfg.Weights = score.DefaultWeights()
	}

	return &Analyzer{
		store:         cfg.Store,
		reader:        cfg.Reader,
		fingerprinter: cfg.Fingerprinter,
		detector:      cfg.Detector,
		reference:     cfg.Reference,
		weights:       cfg.Weights,
		hashAlgorithm: cfg.HashAlgorithm,
		concurrency:   cfg.Concurrency,
		logger:        cfg.Logger,
	}
}

// Result represents batch analysis results
type Result struct {
	Processed int
	Succeeded int
	Failed    int
}

// AnalyzeBatch analyzes a batch of files concurrently. A per-file
// failure marks that file failed and never blocks the rest of the
// batch.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, files []*store.File) (*Result, error) {
	var succeeded, failed atomic.Int64

	p := pool.New().WithMaxGoroutines(a.concurrency)
	for _, file := range files {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				return
			}

			if err := a.analyzeFile(ctx, file); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				util.WarnLog("Analysis failed for %s: %v", file.Path, err)
				if a.logger != nil {
					a.logger.LogError(file.Path, err)
				}
				if updateErr := a.store.UpdateFileStatus(file.ID, store.StatusFailed, err.Error()); updateErr != nil {
					util.ErrorLog("Failed to mark file %d failed: %v", file.ID, updateErr)
				}
				failed.Add(1)
				return
			}
			succeeded.Add(1)
		})
	}
	p.Wait()

	result := &Result{
		Processed: len(files),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	return result, ctx.Err()
}

// analyzeFile runs the full per-file analysis chain and persists the
// results linked to the file row.
func (a *Analyzer) analyzeFile(ctx context.Context, file *store.File) error {
	// Hash failure is fatal for the file: without a content hash it
	// cannot be grouped or verified
	contentHash, err := util.HashFileContent(file.Path, a.hashAlgorithm)
	if err != nil {
		return fmt.Errorf("hash failed: %w", err)
	}

	// Metadata failure is not fatal; the file may still be quarantined
	// or rejected for unknown metadata later
	meta, metaErr := a.reader.ReadMetadata(ctx, file.Path)
	if metaErr != nil {
		util.DebugLog("Metadata read failed for %s: %v", file.Path, metaErr)
	}

	// Fingerprint failure only disables acoustic grouping for this file
	var fpResult *audio.FingerprintResult
	if a.fingerprinter.Enabled() {
		fpResult, err = a.fingerprinter.Fingerprint(ctx, file.Path)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			util.DebugLog("Fingerprint failed for %s: %v", file.Path, err)
			fpResult = nil
		}
	}

	// A failing defect detector is treated as maximally defective so
	// the corruption filter quarantines rather than trusts the file
	defects, err := a.detector.Detect(ctx, file.Path, 30)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		util.DebugLog("Defect detection failed for %s: %v", file.Path, err)
		defects = &audio.DefectReport{
			HealthScore:   0,
			Defects:       []string{audio.DefectDecodeFailure},
			ClippingRatio: -1,
			SilenceRatio:  -1,
		}
	}

	inputs := &score.Inputs{
		Path:           file.Path,
		HealthScore:    defects.HealthScore,
		Defects:        defects.Defects,
		ClippingRatio:  defects.ClippingRatio,
		SilenceRatio:   defects.SilenceRatio,
		ReferenceScore: -1,
	}
	if fpResult != nil {
		inputs.Codec = fpResult.Codec
		inputs.BitrateKbps = fpResult.BitrateKbps
		inputs.SampleRateHz = fpResult.SampleRateHz
		inputs.BitDepth = fpResult.BitDepth
	} else {
		inputs.Codec = audio.CodecFromExtension(file.Path)
	}

	if a.reference != nil && fpResult != nil {
		inputs.ReferenceScore = a.referenceScore(ctx, fpResult, inputs)
	}

	scored := score.Calculate(inputs, a.weights)

	// Persist everything linked to the file row
	var fingerprintID int64
	if fpResult != nil {
		fingerprintID, err = a.store.UpsertFingerprint(&store.Fingerprint{
			Fingerprint:  fpResult.Fingerprint,
			DurationSec:  fpResult.DurationSec,
			SampleRateHz: fpResult.SampleRateHz,
			BitDepth:     fpResult.BitDepth,
			Channels:     fpResult.Channels,
			Codec:        fpResult.Codec,
			BitrateKbps:  fpResult.BitrateKbps,
		})
		if err != nil {
			return err
		}
	}

	var metadataID int64
	if meta != nil && metaErr == nil {
		metadataID, err = a.store.UpsertMetadata(&store.Metadata{
			Artist:      meta.Artist,
			Title:       meta.Title,
			Album:       meta.Album,
			Year:        meta.Year,
			Genre:       meta.Genre,
			TrackNumber: meta.TrackNumber,
			DiscNumber:  meta.DiscNumber,
			Source:      meta.Source,
		})
		if err != nil {
			return err
		}
	}

	if err := a.store.UpsertQualityAnalysis(&store.QualityAnalysis{
		FileID:             file.ID,
		TechnicalScore:     scored.TechnicalScore,
		AudioFidelityScore: scored.AudioFidelityScore,
		IntegrityScore:     scored.IntegrityScore,
		ReferenceScore:     scored.ReferenceScore,
		FinalScore:         scored.FinalScore,
		Grade:              scored.Grade,
		RecommendedAction:  scored.RecommendedAction,
		Defects:            defects.Defects,
		HealthScore:        defects.HealthScore,
		ClippingRatio:      defects.ClippingRatio,
		SilenceRatio:       defects.SilenceRatio,
	}); err != nil {
		return err
	}

	if err := a.store.UpdateFileAnalysis(file.ID, contentHash, fingerprintID, metadataID, scored.FinalScore); err != nil {
		return err
	}

	file.ContentHash = contentHash
	file.QualityScore = scored.FinalScore
	file.Status = store.StatusAnalyzed

	if a.logger != nil {
		a.logger.LogAnalyze(file.Path, scored.FinalScore, scored.Grade)
	}

	return nil
}

// referenceScore compares this file's technical class against the best
// known version of the same recording. 100 means this file matches or
// beats the best known version; lower means an upgrade exists.
func (a *Analyzer) referenceScore(ctx context.Context, fp *audio.FingerprintResult, in *score.Inputs) float64 {
	versions, err := a.reference.Lookup(ctx, fp.Fingerprint)
	if err != nil || len(versions) == 0 {
		return -1 // neutral default applies
	}

	ours := score.FormatScore(in.Path, in.Codec, in.BitrateKbps)
	best := ours
	for _, v := range versions {
		if s := score.FormatScore("", v.Format, v.BitrateKbps); s > best {
			best = s
		}
	}

	if best <= ours {
		return 100
	}
	// Penalize by the distance to the best known version
	return 100 - (best - ours)
}
