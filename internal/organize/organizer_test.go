package organize

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/franz/music-cleanup/internal/util"
)

type fixture struct {
	store        *store.Store
	organizer    *Organizer
	targetRoot   string
	rejectedRoot string
	dir          string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	targetRoot := filepath.Join(dir, "target")
	rejectedRoot := filepath.Join(dir, "rejected")
	manager := txn.New(&txn.Config{Store: s, HashAlgorithm: "sha256"})

	o := New(&Config{
		Store:        s,
		Txns:         manager,
		TargetRoot:   targetRoot,
		RejectedRoot: rejectedRoot,
	})

	return &fixture{store: s, organizer: o, targetRoot: targetRoot, rejectedRoot: rejectedRoot, dir: dir}
}

// addHealthyFile writes a real file and its healthy store rows
func (fx *fixture) addHealthyFile(t *testing.T, name, content string, score float64, meta *store.Metadata) *store.File {
	t.Helper()

	path := filepath.Join(fx.dir, "src", name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	hash, err := util.HashFileContent(path, "sha256")
	if err != nil {
		t.Fatal(err)
	}

	f := &store.File{Path: path, SizeBytes: int64(len(content)), Status: store.StatusDiscovered}
	if err := fx.store.UpsertFile(f); err != nil {
		t.Fatal(err)
	}

	var metaID int64
	if meta != nil {
		metaID, err = fx.store.UpsertMetadata(meta)
		if err != nil {
			t.Fatal(err)
		}
	}

	if err := fx.store.UpdateFileAnalysis(f.ID, hash, 0, metaID, score); err != nil {
		t.Fatal(err)
	}
	if err := fx.store.UpdateFileStatus(f.ID, store.StatusHealthy, ""); err != nil {
		t.Fatal(err)
	}

	got, err := fx.store.GetFileByID(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func houseMeta(year int) *store.Metadata {
	return &store.Metadata{
		Artist: "Artist", Title: "Title", Album: "Album",
		Year: year, Genre: "deep house", Source: store.MetaSourceTag,
	}
}

func TestOrganizePrimaryIntoGenreDecade(t *testing.T) {
	fx := newFixture(t)
	f := fx.addHealthyFile(t, "a.mp3", "audio content", 70.4, houseMeta(2011))

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{f})
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if result.Organized != 1 {
		t.Fatalf("expected 1 organized, got %+v", result)
	}

	wantPath := filepath.Join(fx.targetRoot, "House", "2010s", "2011 - Artist - Title [QS70%].mp3")
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("expected organized file at %s: %v", wantPath, err)
	}

	// Copy mode never removes the source
	if _, err := os.Stat(filepath.Join(fx.dir, "src", "a.mp3")); err != nil {
		t.Error("source must survive a copy organize")
	}

	// The file row now reflects the destination
	got, err := fx.store.GetFileByID(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.StatusOrganized {
		t.Errorf("expected organized status, got %s", got.Status)
	}
	if got.Path != wantPath {
		t.Errorf("organized path must reflect destination, got %s", got.Path)
	}

	target, err := fx.store.GetOrganizationTarget(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if target == nil || target.Genre != "House" || target.Decade != "2010s" {
		t.Errorf("unexpected organization target: %+v", target)
	}
}

func TestNonPrimaryRejectedWithRank(t *testing.T) {
	fx := newFixture(t)

	best := fx.addHealthyFile(t, "best.flac", "lossless audio", 92, houseMeta(2011))
	worse := fx.addHealthyFile(t, "worse.mp3", "lossy audio", 70, houseMeta(2011))

	g := &store.DuplicateGroup{KeyKind: store.GroupKeyFingerprint, KeyValue: "FP", PrimaryFileID: best.ID}
	members := []*store.DuplicateMember{
		{FileID: best.ID, IsPrimary: true, Similarity: 0.97},
		{FileID: worse.ID, IsPrimary: false, Similarity: 0.97},
	}
	if err := fx.store.InsertDuplicateGroup(g, members); err != nil {
		t.Fatal(err)
	}

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{best, worse})
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if result.Organized != 1 || result.Rejected != 1 {
		t.Fatalf("expected 1 organized + 1 rejected, got %+v", result)
	}

	// Non-primary lands in the rejected duplicates tree with its rank
	rejectedPath := filepath.Join(fx.rejectedRoot, "duplicates", "worse_duplicate_2.mp3")
	if _, err := os.Stat(rejectedPath); err != nil {
		t.Errorf("expected rejected duplicate at %s: %v", rejectedPath, err)
	}

	rejections, err := fx.store.GetAllRejections()
	if err != nil {
		t.Fatal(err)
	}
	if len(rejections) != 1 {
		t.Fatalf("expected 1 rejection entry, got %d", len(rejections))
	}
	r := rejections[0]
	if r.Category != store.RejectDuplicate || r.ChosenFileID != best.ID || r.GroupID != g.ID {
		t.Errorf("unexpected rejection entry: %+v", r)
	}
}

func TestUnresolvableGenreGoesToNeedsReview(t *testing.T) {
	fx := newFixture(t)
	meta := &store.Metadata{
		Artist: "Artist", Title: "Title", Year: 2011, Genre: "polka", Source: store.MetaSourceTag,
	}
	f := fx.addHealthyFile(t, "polka.mp3", "oom-pah", 70, meta)

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{f})
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if result.NeedsReview != 1 || result.Organized != 0 {
		t.Fatalf("expected needs-review routing, got %+v", result)
	}

	// No Unknown folder is ever created
	if _, err := os.Stat(fx.targetRoot); !os.IsNotExist(err) {
		entries, _ := os.ReadDir(fx.targetRoot)
		if len(entries) > 0 {
			t.Errorf("no output may be created for unresolvable genres: %v", entries)
		}
	}

	queue, err := fx.store.GetNeedsReview()
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 {
		t.Errorf("expected 1 needs-review entry, got %d", len(queue))
	}
}

func TestMissingMetadataGoesToNeedsReview(t *testing.T) {
	fx := newFixture(t)
	f := fx.addHealthyFile(t, "untagged.mp3", "mystery", 70, nil)

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{f})
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if result.NeedsReview != 1 {
		t.Fatalf("expected needs-review for missing metadata, got %+v", result)
	}
}

func TestMissingYearGoesToNeedsReview(t *testing.T) {
	fx := newFixture(t)
	f := fx.addHealthyFile(t, "noyear.mp3", "timeless", 70, houseMeta(0))

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{f})
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if result.NeedsReview != 1 {
		t.Fatalf("expected needs-review for missing year, got %+v", result)
	}
}

func TestConflictRenamedWithDupSuffix(t *testing.T) {
	fx := newFixture(t)

	// Two distinct recordings with identical metadata and different
	// content: both organize, the second under a _dup2 name
	f1 := fx.addHealthyFile(t, "take1.mp3", "first recording", 70, houseMeta(2011))
	f2 := fx.addHealthyFile(t, "take2.mp3", "second recording", 70, houseMeta(2011))

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{f1, f2})
	if err != nil {
		t.Fatalf("organize failed: %v", err)
	}
	if result.Organized != 2 {
		t.Fatalf("expected both organized, got %+v", result)
	}

	base := filepath.Join(fx.targetRoot, "House", "2010s", "2011 - Artist - Title [QS70%].mp3")
	dup := filepath.Join(fx.targetRoot, "House", "2010s", "2011 - Artist - Title [QS70%] _dup2.mp3")

	if _, err := os.Stat(base); err != nil {
		t.Errorf("expected first file at %s: %v", base, err)
	}
	if _, err := os.Stat(dup); err != nil {
		t.Errorf("expected second file at %s: %v", dup, err)
	}
}

func TestSecondRunIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	f := fx.addHealthyFile(t, "a.mp3", "stable content", 70, houseMeta(2011))

	if _, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{f}); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(fx.targetRoot, "House", "2010s", "2011 - Artist - Title [QS70%].mp3")
	before, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}

	// Re-run over the already-organized row (path now = destination)
	got, err := fx.store.GetFileByID(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Status = store.StatusHealthy
	if err := fx.store.UpdateFileStatus(got.ID, store.StatusHealthy, ""); err != nil {
		t.Fatal(err)
	}

	result, err := fx.organizer.OrganizeBatch(context.Background(), []*store.File{got})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected idempotent skip, got %+v", result)
	}

	after, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if before.ModTime() != after.ModTime() {
		t.Error("second run must not rewrite the destination")
	}
}
