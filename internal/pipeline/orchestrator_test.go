package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/music-cleanup/internal/analyze"
	"github.com/franz/music-cleanup/internal/audio"
	"github.com/franz/music-cleanup/internal/checkpoint"
	"github.com/franz/music-cleanup/internal/discover"
	"github.com/franz/music-cleanup/internal/filter"
	"github.com/franz/music-cleanup/internal/group"
	"github.com/franz/music-cleanup/internal/organize"
	"github.com/franz/music-cleanup/internal/reject"
	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
)

type env struct {
	store        *store.Store
	orchestrator *Orchestrator
	sourceDir    string
	targetRoot   string
	rejectedRoot string
}

// mp3Bytes builds content that passes the header check: an MPEG frame
// sync followed by varied data
func mp3Bytes(seed byte, size int) []byte {
	buf := make([]byte, size)
	copy(buf, []byte{0xFF, 0xFB, 0x90, 0x00})
	for i := 4; i < size; i++ {
		buf[i] = byte(i)*seed + seed
	}
	return buf
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "music_cleanup.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := &env{
		store:        s,
		sourceDir:    filepath.Join(dir, "in"),
		targetRoot:   filepath.Join(dir, "target"),
		rejectedRoot: filepath.Join(dir, "rejected"),
	}

	manager := txn.New(&txn.Config{Store: s, HashAlgorithm: "sha256"})
	checkpointer := checkpoint.New(&checkpoint.Config{Store: s, IntervalSec: 3600})

	producer := discover.New(&discover.Config{Store: s, MinSizeBytes: 0, BatchSize: 100})

	analyzer := analyze.New(&analyze.Config{
		Store:         s,
		Reader:        audio.NewTagReader(nil),
		Fingerprinter: audio.NoopFingerprinter{},
		Detector:      audio.NewHeuristicDetector(),
		HashAlgorithm: "sha256",
		Concurrency:   2,
	})

	corruptionFilter := filter.New(&filter.Config{
		Store: s, Txns: manager, RejectedRoot: e.rejectedRoot,
	})

	grouper := group.New(&group.Config{Store: s})

	organizer := organize.New(&organize.Config{
		Store: s, Txns: manager,
		TargetRoot: e.targetRoot, RejectedRoot: e.rejectedRoot,
	})

	manifest := reject.New(s, manager, e.rejectedRoot)

	e.orchestrator = New(&Config{
		Store:        s,
		Txns:         manager,
		Checkpointer: checkpointer,
		Producer:     producer,
		Analyzer:     analyzer,
		Filter:       corruptionFilter,
		Grouper:      grouper,
		Organizer:    organizer,
		Manifest:     manifest,
		SourceRoots:  []string{e.sourceDir},
		BatchSize:    100,
	})

	return e
}

func (e *env) writeSource(t *testing.T, name string, content []byte) {
	t.Helper()
	path := filepath.Join(e.sourceDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestEndToEndDuplicatesAndQuarantine(t *testing.T) {
	e := newEnv(t)

	// Two byte-identical files, one distinct file, one corrupted file
	dup := mp3Bytes(7, 32*1024)
	e.writeSource(t, "Artist - Title (2011).mp3", dup)
	e.writeSource(t, "copies/Artist - Title (2011).mp3", dup)
	e.writeSource(t, "Other Artist - Other Song (1999).mp3", mp3Bytes(11, 32*1024))

	corrupt := mp3Bytes(13, 32*1024)
	copy(corrupt, []byte{0x00, 0x00, 0x00, 0x00})
	e.writeSource(t, "broken.mp3", corrupt)

	exitCode, err := e.orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if exitCode != ExitOK {
		t.Fatalf("expected clean exit, got %d", exitCode)
	}

	// The corrupted file is quarantined and never grouped
	if n, _ := e.store.CountFilesByStatus(store.StatusQuarantined); n != 1 {
		t.Errorf("expected 1 quarantined file, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(e.rejectedRoot, "corrupted", "broken.mp3")); err != nil {
		t.Errorf("expected quarantined file in rejected/corrupted: %v", err)
	}

	groups, err := e.store.GetAllDuplicateGroups()
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected exactly 1 duplicate group, got %d", len(groups))
	}
	if groups[0].KeyKind != store.GroupKeyHash {
		t.Errorf("expected hash-keyed group, got %s", groups[0].KeyKind)
	}
	members, err := e.store.GetGroupMembers(groups[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	primaries := 0
	for _, m := range members {
		if m.IsPrimary {
			primaries++
		}
		f, _ := e.store.GetFileByID(m.FileID)
		if f.Status == store.StatusQuarantined {
			t.Error("no quarantined file may appear in a duplicate group")
		}
	}
	if primaries != 1 {
		t.Errorf("exactly one primary per group, got %d", primaries)
	}

	// The non-primary is rejected as a duplicate with rank 2
	rejections, err := e.store.GetAllRejections()
	if err != nil {
		t.Fatal(err)
	}
	dupRejections := 0
	for _, r := range rejections {
		if r.Category == store.RejectDuplicate {
			dupRejections++
			if _, err := os.Stat(r.RejectedPath); err != nil {
				t.Errorf("rejected file missing at %s: %v", r.RejectedPath, err)
			}
			if r.ChosenFileID == 0 {
				t.Error("duplicate rejection must name the chosen sibling")
			}
		}
	}
	if dupRejections != 1 {
		t.Errorf("expected 1 duplicate rejection, got %d", dupRejections)
	}

	// Filename-parsed metadata has no genre: primaries go to the
	// needs-review queue, never into an Unknown output folder
	queue, err := e.store.GetNeedsReview()
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 2 {
		t.Errorf("expected 2 needs-review entries (primary + singleton), got %d", len(queue))
	}
	if entries, err := os.ReadDir(e.targetRoot); err == nil && len(entries) > 0 {
		t.Errorf("nothing may land in the target tree without a resolvable genre: %v", entries)
	}

	// The manifest sidecars exist inside the rejected root
	if _, err := os.Stat(filepath.Join(e.rejectedRoot, "rejected_manifest.json")); err != nil {
		t.Errorf("manifest missing: %v", err)
	}

	// Checkpoints were written
	cp, err := e.store.LatestCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if cp == nil {
		t.Fatal("expected checkpoints from the run")
	}
}

func TestSecondRunDoesNoNewWork(t *testing.T) {
	e := newEnv(t)
	e.writeSource(t, "Solo Artist - Only Track (2005).mp3", mp3Bytes(3, 16*1024))

	if _, err := e.orchestrator.Run(context.Background()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	countsBefore, err := e.store.StatusCounts()
	if err != nil {
		t.Fatal(err)
	}

	// No external changes: the second run discovers nothing new and
	// performs zero net filesystem operations
	exitCode, err := e.orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if exitCode != ExitOK {
		t.Errorf("expected clean exit, got %d", exitCode)
	}

	countsAfter, err := e.store.StatusCounts()
	if err != nil {
		t.Fatal(err)
	}
	for status, n := range countsBefore {
		if countsAfter[status] != n {
			t.Errorf("status %s changed from %d to %d on an unchanged tree",
				status, n, countsAfter[status])
		}
	}
}

func TestEmptySourceIsNoWork(t *testing.T) {
	e := newEnv(t)
	if err := os.MkdirAll(e.sourceDir, 0755); err != nil {
		t.Fatal(err)
	}

	exitCode, err := e.orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if exitCode != ExitNoWork {
		t.Errorf("expected no-work exit, got %d", exitCode)
	}
}

func TestProtectedRootNeverTouched(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "music_cleanup.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	protectedRoot := filepath.Join(dir, "in", "masters")
	protectedFile := filepath.Join(protectedRoot, "keep.mp3")
	if err := os.MkdirAll(protectedRoot, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(protectedFile, mp3Bytes(5, 8*1024), 0644); err != nil {
		t.Fatal(err)
	}

	producer := discover.New(&discover.Config{
		Store:          s,
		ProtectedRoots: []string{protectedRoot},
		BatchSize:      100,
	})

	result, err := producer.Discover(context.Background(), []string{filepath.Join(dir, "in")})
	if err != nil {
		t.Fatal(err)
	}
	if result.FilesDiscovered != 0 {
		t.Errorf("protected files must be skipped entirely, got %d", result.FilesDiscovered)
	}

	if f, _ := s.GetFileByPath(protectedFile); f != nil {
		t.Error("protected file must never be recorded")
	}
}
