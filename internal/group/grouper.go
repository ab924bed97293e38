// Package group forms duplicate groups from healthy files: first by
// exact content hash, then by acoustic fingerprint similarity within
// coarse duration buckets.
package group

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/franz/music-cleanup/internal/report"
	"github.com/franz/music-cleanup/internal/score"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/util"
	"github.com/hbollon/go-edlib"
)

// Grouper groups healthy files into duplicate groups
type Grouper struct {
	store               *store.Store
	similarityThreshold float64
	formatPriority      []string
	fingerprintEnabled  bool
	logger              *report.EventLogger
}

// Config holds grouper configuration
type Config struct {
	Store               *store.Store
	SimilarityThreshold float64 // default 0.90
	FormatPriority      []string
	FingerprintEnabled  bool
	Logger              *report.EventLogger
}

// New creates a grouper
func New(cfg *Config) *Grouper {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.90
	}
	if len(cfg.FormatPriority) == 0 {
		cfg.FormatPriority = score.DefaultFormatPriority
	}

	return &Grouper{
		store:               cfg.Store,
		similarityThreshold: cfg.SimilarityThreshold,
		formatPriority:      cfg.FormatPriority,
		fingerprintEnabled:  cfg.FingerprintEnabled,
		logger:              cfg.Logger,
	}
}

// Result represents grouping results
type Result struct {
	HashGroups        int
	FingerprintGroups int
	FilesGrouped      int
	Singletons        int
}

// member carries a healthy file with the facts needed for ranking
type member struct {
	file        *store.File
	fingerprint *store.Fingerprint // nil when fingerprinting failed
	similarity  float64
}

// Group runs both grouping passes over all healthy files. Singletons
// create no group rows; their files simply proceed to organization.
func (g *Grouper) Group(ctx context.Context) (*Result, error) {
	util.InfoLog("Starting duplicate grouping")

	files, err := g.store.GetFilesByStatus(store.StatusHealthy)
	if err != nil {
		return nil, fmt.Errorf("failed to load healthy files: %w", err)
	}

	if len(files) == 0 {
		util.InfoLog("No healthy files to group")
		return &Result{}, nil
	}

	result := &Result{}

	members := make(map[int64]*member, len(files))
	for _, f := range files {
		m := &member{file: f}
		if f.FingerprintID != 0 {
			fp, err := g.store.GetFingerprintByID(f.FingerprintID)
			if err != nil {
				return nil, err
			}
			m.fingerprint = fp
		}
		members[f.ID] = m
	}

	// Pass 1: exact content hash
	grouped := make(map[int64]bool)
	byHash := make(map[string][]*member)
	for _, m := range members {
		if m.file.ContentHash == "" {
			continue
		}
		byHash[m.file.ContentHash] = append(byHash[m.file.ContentHash], m)
	}

	hashKeys := sortedStringKeys(byHash)
	for _, hash := range hashKeys {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		set := byHash[hash]
		if len(set) < 2 {
			continue
		}
		for _, m := range set {
			m.similarity = 1.0
			grouped[m.file.ID] = true
		}
		if err := g.persistGroup(store.GroupKeyHash, hash, set); err != nil {
			return result, err
		}
		result.HashGroups++
		result.FilesGrouped += len(set)
	}

	// Pass 2: fingerprint similarity within coarse duration buckets
	if g.fingerprintEnabled {
		fpGroups, fpFiles, err := g.acousticPass(ctx, members, grouped)
		if err != nil {
			return result, err
		}
		result.FingerprintGroups = fpGroups
		result.FilesGrouped += fpFiles
	}

	result.Singletons = len(files) - result.FilesGrouped

	util.SuccessLog("Grouping complete: %d hash groups, %d fingerprint groups, %d files grouped, %d singletons",
		result.HashGroups, result.FingerprintGroups, result.FilesGrouped, result.Singletons)

	return result, nil
}

// acousticPass unions ungrouped files whose fingerprints are similar
// above the threshold, comparing only within 1-second duration buckets
func (g *Grouper) acousticPass(ctx context.Context, members map[int64]*member, grouped map[int64]bool) (int, int, error) {
	buckets := make(map[int64][]*member)
	for _, m := range members {
		if grouped[m.file.ID] {
			continue
		}
		if m.fingerprint == nil || m.fingerprint.Fingerprint == "" {
			// No fingerprint: cannot participate in acoustic grouping
			continue
		}
		bucket := int64(math.Round(m.fingerprint.DurationSec))
		buckets[bucket] = append(buckets[bucket], m)
	}

	uf := newUnionFind()
	similarities := make(map[int64]float64)

	bucketKeys := make([]int64, 0, len(buckets))
	for k := range buckets {
		bucketKeys = append(bucketKeys, k)
	}
	sort.Slice(bucketKeys, func(i, j int) bool { return bucketKeys[i] < bucketKeys[j] })

	for _, bucket := range bucketKeys {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}

		set := buckets[bucket]
		for i := 0; i < len(set); i++ {
			for j := i + 1; j < len(set); j++ {
				sim := g.similarity(set[i].fingerprint.Fingerprint, set[j].fingerprint.Fingerprint)
				if sim < g.similarityThreshold {
					continue
				}
				uf.add(set[i].file.ID)
				uf.add(set[j].file.ID)
				uf.union(set[i].file.ID, set[j].file.ID)
				if sim > similarities[set[i].file.ID] {
					similarities[set[i].file.ID] = sim
				}
				if sim > similarities[set[j].file.ID] {
					similarities[set[j].file.ID] = sim
				}
			}
		}
	}

	groupCount, fileCount := 0, 0
	classes := uf.classes()

	roots := make([]int64, 0, len(classes))
	for root := range classes {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	for _, root := range roots {
		ids := classes[root]
		set := make([]*member, 0, len(ids))
		for _, id := range ids {
			m := members[id]
			m.similarity = similarities[id]
			set = append(set, m)
		}

		keyValue := members[root].fingerprint.Fingerprint
		if err := g.persistGroup(store.GroupKeyFingerprint, keyValue, set); err != nil {
			return groupCount, fileCount, err
		}
		groupCount++
		fileCount += len(set)
	}

	return groupCount, fileCount, nil
}

// similarity compares two opaque fingerprint strings. Identical strings
// short-circuit to 1; otherwise Jaro-Winkler over the encoded strings
// approximates acoustic closeness.
func (g *Grouper) similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	sim, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(sim)
}

// persistGroup selects the primary under the total tie-break order and
// writes the group with its members
func (g *Grouper) persistGroup(keyKind, keyValue string, set []*member) error {
	candidates := make([]*score.Candidate, len(set))
	for i, m := range set {
		c := &score.Candidate{
			FileID:     m.file.ID,
			Path:       m.file.Path,
			SizeBytes:  m.file.SizeBytes,
			FinalScore: m.file.QualityScore,
		}
		if m.fingerprint != nil {
			c.Codec = m.fingerprint.Codec
			c.BitrateKbps = m.fingerprint.BitrateKbps
		}
		candidates[i] = c
	}

	primary := score.SelectPrimary(candidates, g.formatPriority)

	group := &store.DuplicateGroup{
		KeyKind:       keyKind,
		KeyValue:      keyValue,
		PrimaryFileID: primary.FileID,
	}

	rows := make([]*store.DuplicateMember, len(set))
	for i, m := range set {
		rows[i] = &store.DuplicateMember{
			FileID:     m.file.ID,
			IsPrimary:  m.file.ID == primary.FileID,
			Similarity: m.similarity,
		}
	}

	if err := g.store.InsertDuplicateGroup(group, rows); err != nil {
		return fmt.Errorf("failed to persist group: %w", err)
	}

	if g.logger != nil {
		for _, m := range set {
			g.logger.LogGroup(m.file.Path, group.ID, m.file.QualityScore, m.file.ID == primary.FileID)
		}
	}

	return nil
}

func sortedStringKeys(m map[string][]*member) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
