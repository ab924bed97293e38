// Package pipeline drives the phase sequence discovery → analysis →
// corruption-filter → grouping → organization. Each phase consumes the
// previous phase's ready set from the store in bounded batches, so
// memory stays proportional to the batch size, not the library size.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/music-cleanup/internal/analyze"
	"github.com/franz/music-cleanup/internal/checkpoint"
	"github.com/franz/music-cleanup/internal/discover"
	"github.com/franz/music-cleanup/internal/filter"
	"github.com/franz/music-cleanup/internal/group"
	"github.com/franz/music-cleanup/internal/organize"
	"github.com/franz/music-cleanup/internal/reject"
	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/franz/music-cleanup/internal/util"
)

// Pipeline phases in execution order
const (
	PhaseDiscovery    = "discovery"
	PhaseAnalysis     = "analysis"
	PhaseFilter       = "corruption-filter"
	PhaseGrouping     = "grouping"
	PhaseOrganization = "organization"
)

// Exit codes; the CLI maps them straight onto process exit
const (
	ExitOK           = 0
	ExitFatalStore   = 1
	ExitWithFailures = 2
	ExitRollback     = 3
	ExitNoWork       = 4
)

// Orchestrator owns the phase sequence and the collaborators' lifecycle
type Orchestrator struct {
	store        *store.Store
	txns         *txn.Manager
	checkpointer *checkpoint.Checkpointer
	producer     *discover.Producer
	analyzer     *analyze.Analyzer
	filter       *filter.Filter
	grouper      *group.Grouper
	organizer    *organize.Organizer
	manifest     *reject.Manifest
	logger       *report.EventLogger

	sourceRoots []string
	batchSize   int
	txnRetries  int
	dryRun      bool
}

// Config holds orchestrator configuration
type Config struct {
	Store        *store.Store
	Txns         *txn.Manager
	Checkpointer *checkpoint.Checkpointer
	Producer     *discover.Producer
	Analyzer     *analyze.Analyzer
	Filter       *filter.Filter
	Grouper      *group.Grouper
	Organizer    *organize.Organizer
	Manifest     *reject.Manifest
	Logger       *report.EventLogger

	SourceRoots []string
	BatchSize   int
	TxnRetries  int // retries per failed batch transaction
	DryRun      bool
}

// New creates an orchestrator
func New(cfg *Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.TxnRetries <= 0 {
		cfg.TxnRetries = 2
	}

	return &Orchestrator{
		store:        cfg.Store,
		txns:         cfg.Txns,
		checkpointer: cfg.Checkpointer,
		producer:     cfg.Producer,
		analyzer:     cfg.Analyzer,
		filter:       cfg.Filter,
		grouper:      cfg.Grouper,
		organizer:    cfg.Organizer,
		manifest:     cfg.Manifest,
		logger:       cfg.Logger,

		sourceRoots: cfg.SourceRoots,
		batchSize:   cfg.BatchSize,
		txnRetries:  cfg.TxnRetries,
		dryRun:      cfg.DryRun,
	}
}

// Run executes the full pipeline and returns the process exit code.
// Recovery happens first: any transaction left open or committing by a
// previous run is rolled back before new work starts.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	started := time.Now()

	recovered, err := o.txns.RecoverOpen()
	if err != nil {
		return o.classifyExit(err), err
	}
	if recovered > 0 {
		util.WarnLog("Recovered %d incomplete transactions from a previous run", recovered)
	}

	o.checkpointer.Start(ctx)
	defer o.checkpointer.Stop()

	totals := make(map[string]int)

	// Phase 1: discovery
	o.phaseBoundary(PhaseDiscovery, 0, totals)
	discovery, err := o.producer.Discover(ctx, o.sourceRoots)
	if err != nil && !errors.Is(err, context.Canceled) {
		return o.classifyExit(err), err
	}
	totals["discovered"] = discovery.FilesDiscovered
	if err := ctx.Err(); err != nil {
		return ExitOK, nil // controlled shutdown, checkpoint already forced
	}

	discoveredCount, err := o.store.CountFilesByStatus(store.StatusDiscovered)
	if err != nil {
		return o.classifyExit(err), err
	}
	if discoveredCount == 0 && discovery.FilesDiscovered == 0 {
		healthyLeft, _ := o.store.CountFilesByStatus(store.StatusHealthy)
		analyzedLeft, _ := o.store.CountFilesByStatus(store.StatusAnalyzed)
		if healthyLeft == 0 && analyzedLeft == 0 {
			util.InfoLog("Nothing to do")
			return ExitNoWork, nil
		}
	}

	// Phase 2: analysis
	if err := o.runBatched(ctx, PhaseAnalysis, store.StatusDiscovered, totals, func(batch []*store.File) error {
		result, err := o.analyzer.AnalyzeBatch(ctx, batch)
		if err != nil {
			return err
		}
		totals["analyzed"] += result.Succeeded
		totals["failed"] += result.Failed
		return nil
	}); err != nil {
		return o.finish(ctx, started, totals, err)
	}

	// Phase 3: corruption filter. The grouping input set is exactly
	// the files this phase marks healthy.
	if err := o.runBatched(ctx, PhaseFilter, store.StatusAnalyzed, totals, func(batch []*store.File) error {
		result, err := o.filter.FilterBatch(ctx, batch)
		if err != nil {
			return err
		}
		totals["healthy"] += result.Healthy
		totals["quarantined"] += result.Quarantined
		return nil
	}); err != nil {
		return o.finish(ctx, started, totals, err)
	}

	// Phase 4: duplicate grouping runs over the whole healthy set at
	// once; union-find needs every bucket complete
	o.phaseBoundary(PhaseGrouping, 0, totals)
	grouping, err := o.grouper.Group(ctx)
	if err != nil {
		return o.finish(ctx, started, totals, err)
	}
	totals["groups"] = grouping.HashGroups + grouping.FingerprintGroups
	o.phaseBoundary(PhaseGrouping, 1, totals)

	// Phase 5: organization
	if err := o.runBatched(ctx, PhaseOrganization, store.StatusHealthy, totals, func(batch []*store.File) error {
		return o.organizeWithRetry(ctx, batch, totals)
	}); err != nil {
		return o.finish(ctx, started, totals, err)
	}

	return o.finish(ctx, started, totals, nil)
}

// runBatched pages through the files in the given status and applies
// fn per batch, checkpointing at every batch boundary.
func (o *Orchestrator) runBatched(ctx context.Context, phase, status string, totals map[string]int, fn func([]*store.File) error) error {
	util.InfoLog("Phase: %s", phase)
	o.phaseBoundary(phase, 0, totals)

	var batchID int64
	var afterID int64

	for {
		if err := ctx.Err(); err != nil {
			return nil // controlled shutdown
		}

		batch, err := o.store.GetFilesByStatusBatch(status, afterID, o.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		batchID++
		if err := fn(batch); err != nil {
			return err
		}

		afterID = batch[len(batch)-1].ID

		o.checkpointer.SetProgress(phase, batchID, totals)
		if err := o.checkpointer.Write(); err != nil {
			util.ErrorLog("Batch checkpoint failed: %v", err)
		}
	}

	o.phaseBoundary(phase, batchID, totals)
	return nil
}

// organizeWithRetry retries a failed batch transaction a bounded
// number of times before giving up
func (o *Orchestrator) organizeWithRetry(ctx context.Context, batch []*store.File, totals map[string]int) error {
	var lastErr error
	for attempt := 0; attempt <= o.txnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil
		}

		result, err := o.organizer.OrganizeBatch(ctx, batch)
		totals["organized"] += result.Organized
		totals["rejected"] += result.Rejected
		totals["needs_review"] += result.NeedsReview
		totals["skipped"] += result.Skipped

		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, util.ErrStoreIO) || errors.Is(err, util.ErrStoreIntegrity) {
			return err // not retryable at this level
		}
		util.WarnLog("Organize batch failed (attempt %d/%d): %v", attempt+1, o.txnRetries+1, err)
	}
	return fmt.Errorf("organize batch failed after %d attempts: %w", o.txnRetries+1, lastErr)
}

// phaseBoundary writes a phase-boundary checkpoint
func (o *Orchestrator) phaseBoundary(phase string, batchID int64, totals map[string]int) {
	o.checkpointer.SetProgress(phase, batchID, totals)
	if err := o.checkpointer.Write(); err != nil {
		util.ErrorLog("Phase checkpoint failed: %v", err)
	}
}

// finish exports the manifest, prints the summary and maps the outcome
// onto an exit code
func (o *Orchestrator) finish(ctx context.Context, started time.Time, totals map[string]int, runErr error) (int, error) {
	if !o.dryRun {
		if err := o.manifest.Export(); err != nil {
			util.ErrorLog("Manifest export failed: %v", err)
		}
	}

	summary, err := report.Build(o.store)
	if err == nil {
		summary.Duration = time.Since(started)
		summary.DryRun = o.dryRun
		if o.logger != nil {
			summary.EventLogPath = o.logger.Path()
		}
		fmt.Print(summary.Render())
	}

	if runErr != nil {
		return o.classifyExit(runErr), runErr
	}
	if totals["failed"] > 0 {
		return ExitWithFailures, nil
	}
	return ExitOK, nil
}

// classifyExit maps an error onto the exit-code taxonomy
func (o *Orchestrator) classifyExit(err error) int {
	switch {
	case errors.Is(err, util.ErrStoreIO) || errors.Is(err, util.ErrStoreIntegrity):
		return ExitFatalStore
	case errors.Is(err, util.ErrHashMismatch) || errors.Is(err, util.ErrConflict):
		return ExitRollback
	default:
		return ExitRollback
	}
}
