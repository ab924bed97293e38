// Package organize computes destination layout for healthy files and
// submits the filesystem plan through the transaction manager: primaries
// into the genre/decade tree, non-primaries into the rejected tree.
package organize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/franz/music-cleanup/internal/audio"
	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/franz/music-cleanup/internal/util"
)

// Duplicate actions
const (
	ActionMove = "move"
	ActionCopy = "copy"
	ActionLink = "link"
)

// Organizer plans and submits the organization of healthy files
type Organizer struct {
	store          *store.Store
	txns           *txn.Manager
	targetRoot     string
	rejectedRoot   string
	taxonomy       GenreTaxonomy
	pattern        string
	maxFilenameLen int
	action         string // move, copy, link
	conflictPolicy string
	hashAlgorithm  string
	tagWriter      audio.MetadataWriter // nil disables score tagging
	logger         *report.EventLogger
}

// Config holds organizer configuration
type Config struct {
	Store          *store.Store
	Txns           *txn.Manager
	TargetRoot     string
	RejectedRoot   string
	Taxonomy       GenreTaxonomy
	Pattern        string
	MaxFilenameLen int
	Action         string // default copy: originals are never deleted
	ConflictPolicy string
	HashAlgorithm  string
	TagWriter      audio.MetadataWriter // optional
	Logger         *report.EventLogger
}

// New creates an organizer
func New(cfg *Config) *Organizer {
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = DefaultTaxonomy()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.MaxFilenameLen <= 0 {
		cfg.MaxFilenameLen = DefaultMaxFilenameLen
	}
	if cfg.Action == "" {
		cfg.Action = ActionCopy
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = txn.ConflictSkipIfSameHash
	}

	return &Organizer{
		store:          cfg.Store,
		txns:           cfg.Txns,
		targetRoot:     cfg.TargetRoot,
		rejectedRoot:   cfg.RejectedRoot,
		taxonomy:       cfg.Taxonomy,
		pattern:        cfg.Pattern,
		maxFilenameLen: cfg.MaxFilenameLen,
		action:         cfg.Action,
		conflictPolicy: cfg.ConflictPolicy,
		hashAlgorithm:  cfg.HashAlgorithm,
		tagWriter:      cfg.TagWriter,
		logger:         cfg.Logger,
	}
}

// Result represents organization results
type Result struct {
	Organized   int
	Rejected    int
	NeedsReview int
	Skipped     int
}

// plan is one file's computed outcome, staged before commit
type plan struct {
	file       *store.File
	destPath   string
	organize   bool // false = rejection into the rejected tree
	category   string
	decade     string
	rejection  *store.RejectionEntry
	skipReason string
}

// OrganizeBatch computes plans for a batch of healthy files and submits
// them as a single transaction. The pipeline guarantees every file here
// passed the corruption filter.
func (o *Organizer) OrganizeBatch(ctx context.Context, files []*store.File) (*Result, error) {
	result := &Result{}

	claimed := make(map[string]bool) // destinations claimed within this batch
	var plans []*plan

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		p, err := o.planFile(file, claimed)
		if err != nil {
			return result, err
		}
		if p == nil {
			result.NeedsReview++
			continue
		}
		if p.skipReason != "" {
			result.Skipped++
			continue
		}
		plans = append(plans, p)
	}

	if len(plans) == 0 {
		return result, nil
	}

	txnID, err := o.txns.Begin("organize batch")
	if err != nil {
		return result, err
	}

	for _, p := range plans {
		op := &store.FileOperation{
			FileID:          p.file.ID,
			Kind:            store.OpCopy,
			SourcePath:      p.file.Path,
			DestinationPath: p.destPath,
			ContentHash:     p.file.ContentHash,
		}
		if o.action == ActionLink {
			op.Kind = store.OpLink
		}
		if err := o.txns.Stage(txnID, op); err != nil {
			o.txns.Rollback(txnID)
			return result, err
		}

		// A move is a verified copy plus a separately staged source
		// removal, so rollback can always restore the source
		if o.action == ActionMove {
			removeOp := &store.FileOperation{
				FileID:          p.file.ID,
				Kind:            store.OpRemoveSource,
				SourcePath:      p.file.Path,
				DestinationPath: p.destPath,
				ContentHash:     p.file.ContentHash,
			}
			if err := o.txns.Stage(txnID, removeOp); err != nil {
				o.txns.Rollback(txnID)
				return result, err
			}
		}
	}

	if err := o.txns.Commit(txnID); err != nil {
		if o.logger != nil {
			o.logger.LogTxnRollback(txnID, err.Error())
		}
		return result, fmt.Errorf("organize transaction failed: %w", err)
	}

	if o.logger != nil {
		o.logger.LogTxnCommit(txnID, len(plans))
	}

	// Close out the file rows now that the transaction is committed
	for _, p := range plans {
		if p.organize {
			if err := o.store.UpsertOrganizationTarget(&store.OrganizationTarget{
				FileID:      p.file.ID,
				Genre:       p.category,
				Decade:      p.decade,
				FinalPath:   p.destPath,
				PatternUsed: o.pattern,
			}); err != nil {
				return result, err
			}
			if err := o.store.UpdateFileStatus(p.file.ID, store.StatusOrganized, ""); err != nil {
				return result, err
			}
			// An organized row's path reflects its destination
			if err := o.store.UpdateFilePath(p.file.ID, p.destPath); err != nil {
				return result, err
			}
			result.Organized++
			if o.logger != nil {
				o.logger.LogOrganize(p.file.Path, p.destPath, txnID)
			}
			o.writeScoreTag(ctx, p)
		} else {
			if err := o.store.InsertRejection(p.rejection); err != nil {
				return result, err
			}
			if err := o.store.UpdateFileStatus(p.file.ID, store.StatusRejected, ""); err != nil {
				return result, err
			}
			result.Rejected++
			if o.logger != nil {
				o.logger.LogReject(p.file.Path, p.destPath, p.rejection.Category, p.rejection.ReasonText)
			}
		}

		if p.rejection != nil && p.organize {
			// Conflict note recorded alongside a successful organize
			if err := o.store.InsertRejection(p.rejection); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}

// writeScoreTag stamps the quality score onto the organized copy.
// Failures only warn; the organize itself already committed.
func (o *Organizer) writeScoreTag(ctx context.Context, p *plan) {
	if o.tagWriter == nil {
		return
	}

	qa, err := o.store.GetQualityAnalysis(p.file.ID)
	if err != nil || qa == nil {
		return
	}

	tags := map[string]string{
		"QUALITY_SCORE": strconv.FormatFloat(qa.FinalScore, 'f', 1, 64),
		"QUALITY_GRADE": qa.Grade,
	}
	if err := o.tagWriter.WriteTags(ctx, p.destPath, tags); err != nil {
		util.WarnLog("Failed to write score tags to %s: %v", p.destPath, err)
	}
}

// planFile decides one file's destination. Returns nil when the file
// was routed to needs-review.
func (o *Organizer) planFile(file *store.File, claimed map[string]bool) (*plan, error) {
	group, err := o.store.GroupForFile(file.ID)
	if err != nil {
		return nil, err
	}

	if group != nil && group.PrimaryFileID != file.ID {
		return o.planRejection(file, group)
	}

	return o.planOrganize(file, claimed)
}

// planOrganize computes the genre/decade destination for a primary or
// singleton file
func (o *Organizer) planOrganize(file *store.File, claimed map[string]bool) (*plan, error) {
	var meta *store.Metadata
	if file.MetadataID != 0 {
		var err error
		meta, err = o.store.GetMetadataByID(file.MetadataID)
		if err != nil {
			return nil, err
		}
	}

	// Placeholder artists or titles never reach the organized tree
	if meta == nil || meta.Artist == "" || meta.Title == "" {
		if err := o.store.EnqueueNeedsReview(file.ID, "missing artist or title"); err != nil {
			return nil, err
		}
		util.DebugLog("Needs review (metadata): %s", file.Path)
		return nil, nil
	}

	category, ok := o.taxonomy.Resolve(meta.Genre)
	if !ok {
		if err := o.store.EnqueueNeedsReview(file.ID, fmt.Sprintf("unresolvable genre %q", meta.Genre)); err != nil {
			return nil, err
		}
		util.DebugLog("Needs review (genre): %s", file.Path)
		return nil, nil
	}

	decade := Decade(meta.Year)
	if decade == "" {
		if err := o.store.EnqueueNeedsReview(file.ID, "missing year"); err != nil {
			return nil, err
		}
		util.DebugLog("Needs review (year): %s", file.Path)
		return nil, nil
	}

	filename := BuildFilename(o.pattern, PatternInputs{
		Year:   meta.Year,
		Artist: meta.Artist,
		Title:  meta.Title,
		Score:  int(file.QualityScore),
		Ext:    filepath.Ext(file.Path),
	}, o.maxFilenameLen)

	destPath := filepath.Join(o.targetRoot, SanitizeComponent(category), decade, filename)

	p := &plan{
		file:     file,
		organize: true,
		category: category,
		decade:   decade,
	}

	resolved, conflict, err := o.resolveDestination(file, destPath, claimed)
	if err != nil {
		return nil, err
	}
	if resolved == "" {
		// Identical content already at the destination
		p.skipReason = "destination identical"
		if err := o.store.UpdateFileStatus(file.ID, store.StatusOrganized, ""); err != nil {
			return nil, err
		}
		if err := o.store.UpdateFilePath(file.ID, destPath); err != nil {
			return nil, err
		}
		return p, nil
	}
	p.destPath = resolved
	claimed[resolved] = true

	if conflict != "" {
		p.rejection = &store.RejectionEntry{
			FileID:       file.ID,
			Category:     store.RejectDuplicate,
			RejectedPath: resolved,
			ReasonText:   conflict,
		}
	}

	return p, nil
}

// resolveDestination applies the conflict policy. Returns the resolved
// path (empty when the op should be skipped as idempotent) and a
// conflict note when a rename was needed.
func (o *Organizer) resolveDestination(file *store.File, destPath string, claimed map[string]bool) (string, string, error) {
	taken := func(path string) (bool, error) {
		if claimed[path] {
			return true, nil
		}
		if _, err := os.Stat(path); err == nil {
			return true, nil
		}
		exists, err := o.store.TargetPathExists(path)
		if err != nil {
			return false, err
		}
		return exists, nil
	}

	occupied, err := taken(destPath)
	if err != nil {
		return "", "", err
	}
	if !occupied {
		return destPath, "", nil
	}

	// Same content already there: idempotent skip
	if _, statErr := os.Stat(destPath); statErr == nil {
		destHash, hashErr := util.HashFileContent(destPath, o.hashAlgorithm)
		if hashErr == nil && destHash == file.ContentHash {
			return "", "", nil
		}
	}

	switch o.conflictPolicy {
	case txn.ConflictFail:
		return "", "", fmt.Errorf("%w: %s exists", util.ErrConflict, destPath)
	default:
		// Smallest N that resolves the conflict
		for n := 2; ; n++ {
			candidate := WithDupSuffix(destPath, n)
			occupied, err := taken(candidate)
			if err != nil {
				return "", "", err
			}
			if !occupied {
				note := fmt.Sprintf("destination conflict with pre-existing %s; renamed with _dup%d", destPath, n)
				return candidate, note, nil
			}
		}
	}
}

// planRejection computes the rejected-tree destination for a
// non-primary group member
func (o *Organizer) planRejection(file *store.File, group *store.DuplicateGroup) (*plan, error) {
	members, err := o.store.GetGroupMembers(group.ID)
	if err != nil {
		return nil, err
	}

	rank, primaryScore, err := o.rankInGroup(file, members)
	if err != nil {
		return nil, err
	}

	destPath := filepath.Join(o.rejectedRoot, "duplicates", DuplicateRejectName(file.Path, rank))

	reason := fmt.Sprintf("duplicate of file %d (quality %.1f vs %.1f, rank %d of %d)",
		group.PrimaryFileID, file.QualityScore, primaryScore, rank, len(members))

	return &plan{
		file:     file,
		destPath: destPath,
		rejection: &store.RejectionEntry{
			FileID:       file.ID,
			Category:     store.RejectDuplicate,
			ChosenFileID: group.PrimaryFileID,
			GroupID:      group.ID,
			RejectedPath: destPath,
			ReasonText:   reason,
		},
	}, nil
}

// rankInGroup returns this file's 1-based rank by descending final
// score (primary is rank 1) and the primary's score
func (o *Organizer) rankInGroup(file *store.File, members []*store.DuplicateMember) (int, float64, error) {
	type ranked struct {
		fileID int64
		score  float64
		path   string
	}

	var all []ranked
	var primaryScore float64
	for _, m := range members {
		f, err := o.store.GetFileByID(m.FileID)
		if err != nil {
			return 0, 0, err
		}
		if f == nil {
			continue
		}
		all = append(all, ranked{fileID: f.ID, score: f.QualityScore, path: f.Path})
		if m.IsPrimary {
			primaryScore = f.QualityScore
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].path < all[j].path
	})

	for i, r := range all {
		if r.fileID == file.ID {
			return i + 1, primaryScore, nil
		}
	}
	return len(all), primaryScore, nil
}
