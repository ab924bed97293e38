package store

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/music-cleanup/internal/util"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	s := openTestStore(t)

	version, err := s.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{
		"files", "fingerprints", "metadata", "quality_analysis",
		"duplicate_groups", "duplicate_members", "file_operations",
		"transactions", "checkpoints", "rejections",
		"organization_targets", "metadata_queue", "system_config",
		"schema_version",
	}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}
}

func TestFileUpsertAndRetrieve(t *testing.T) {
	s := openTestStore(t)

	file := &File{
		Path:         "/music/test.mp3",
		SizeBytes:    1024,
		ModifiedTime: 1700000000,
		Status:       StatusDiscovered,
	}
	if err := s.UpsertFile(file); err != nil {
		t.Fatalf("failed to upsert file: %v", err)
	}
	if file.ID == 0 {
		t.Fatal("expected file ID to be set")
	}

	got, err := s.GetFileByPath("/music/test.mp3")
	if err != nil {
		t.Fatalf("failed to get file: %v", err)
	}
	if got == nil {
		t.Fatal("expected file, got nil")
	}
	if got.SizeBytes != 1024 || got.Status != StatusDiscovered {
		t.Errorf("unexpected file: %+v", got)
	}

	// Upsert with the same path must not create a second row
	again := &File{Path: "/music/test.mp3", SizeBytes: 2048, Status: StatusDiscovered}
	if err := s.UpsertFile(again); err != nil {
		t.Fatalf("failed to re-upsert file: %v", err)
	}
	if again.ID != file.ID {
		t.Errorf("expected same ID %d, got %d", file.ID, again.ID)
	}

	count, err := s.CountFilesByStatus(StatusDiscovered)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 discovered file, got %d", count)
	}
}

func TestFileStatusBatchPaging(t *testing.T) {
	s := openTestStore(t)

	var files []*File
	for i := 0; i < 5; i++ {
		files = append(files, &File{
			Path:   filepath.Join("/music", string(rune('a'+i))+".mp3"),
			Status: StatusDiscovered,
		})
	}
	if err := s.InsertFileBatch(files); err != nil {
		t.Fatalf("failed to batch insert: %v", err)
	}

	var afterID int64
	var total int
	for {
		batch, err := s.GetFilesByStatusBatch(StatusDiscovered, afterID, 2)
		if err != nil {
			t.Fatalf("failed to get batch: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		if len(batch) > 2 {
			t.Fatalf("batch larger than limit: %d", len(batch))
		}
		total += len(batch)
		afterID = batch[len(batch)-1].ID
	}
	if total != 5 {
		t.Errorf("expected 5 files across batches, got %d", total)
	}
}

func TestFingerprintDeduplication(t *testing.T) {
	s := openTestStore(t)

	fp := &Fingerprint{
		Fingerprint: "AQADtMmybfGkaN",
		DurationSec: 245.5,
		Codec:       "mp3",
		BitrateKbps: 320,
	}
	id1, err := s.UpsertFingerprint(fp)
	if err != nil {
		t.Fatalf("failed to upsert fingerprint: %v", err)
	}

	id2, err := s.UpsertFingerprint(&Fingerprint{Fingerprint: "AQADtMmybfGkaN"})
	if err != nil {
		t.Fatalf("failed to upsert duplicate fingerprint: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected shared fingerprint row, got %d and %d", id1, id2)
	}

	got, err := s.GetFingerprintByID(id1)
	if err != nil {
		t.Fatalf("failed to get fingerprint: %v", err)
	}
	if got.DurationSec != 245.5 {
		t.Errorf("expected original duration preserved, got %f", got.DurationSec)
	}
}

func TestMetadataDeduplication(t *testing.T) {
	s := openTestStore(t)

	m := &Metadata{Artist: "Artist", Title: "Title", Album: "Album", Year: 2011, Genre: "house", Source: MetaSourceTag}
	id1, err := s.UpsertMetadata(m)
	if err != nil {
		t.Fatalf("failed to upsert metadata: %v", err)
	}

	id2, err := s.UpsertMetadata(&Metadata{Artist: "Artist", Title: "Title", Album: "Album", Year: 2011, Genre: "house", Source: MetaSourceTag})
	if err != nil {
		t.Fatalf("failed to upsert duplicate metadata: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected shared metadata row, got %d and %d", id1, id2)
	}

	id3, err := s.UpsertMetadata(&Metadata{Artist: "Artist", Title: "Other", Year: 2011, Source: MetaSourceTag})
	if err != nil {
		t.Fatalf("failed to upsert distinct metadata: %v", err)
	}
	if id3 == id1 {
		t.Error("expected distinct metadata row for different content")
	}
}

func TestGroupCascadeDelete(t *testing.T) {
	s := openTestStore(t)

	f1 := &File{Path: "/music/a.mp3", Status: StatusHealthy}
	f2 := &File{Path: "/music/b.mp3", Status: StatusHealthy}
	if err := s.UpsertFile(f1); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertFile(f2); err != nil {
		t.Fatal(err)
	}

	g := &DuplicateGroup{KeyKind: GroupKeyHash, KeyValue: "abc123", PrimaryFileID: f1.ID}
	members := []*DuplicateMember{
		{FileID: f1.ID, IsPrimary: true, Similarity: 1.0},
		{FileID: f2.ID, IsPrimary: false, Similarity: 1.0},
	}
	if err := s.InsertDuplicateGroup(g, members); err != nil {
		t.Fatalf("failed to insert group: %v", err)
	}
	if g.Size != 2 {
		t.Errorf("expected group size 2, got %d", g.Size)
	}

	if err := s.DeleteDuplicateGroup(g.ID); err != nil {
		t.Fatalf("failed to delete group: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM duplicate_members").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected members cascade-deleted, %d remain", count)
	}
}

func TestCheckpointLatestWins(t *testing.T) {
	s := openTestStore(t)

	for i, phase := range []string{"discovery", "analysis", "grouping"} {
		cp := &Checkpoint{
			Phase:       phase,
			LastBatchID: int64(i),
			Counters:    map[string]int{"discovered": i * 10},
		}
		if err := s.InsertCheckpoint(cp); err != nil {
			t.Fatalf("failed to insert checkpoint: %v", err)
		}
	}

	latest, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatalf("failed to get latest checkpoint: %v", err)
	}
	if latest == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if latest.Phase != "grouping" || latest.LastBatchID != 2 {
		t.Errorf("expected latest checkpoint (grouping, 2), got (%s, %d)", latest.Phase, latest.LastBatchID)
	}
	if latest.Counters["discovered"] != 20 {
		t.Errorf("expected counters round-tripped, got %v", latest.Counters)
	}
}

func TestUpdatedAtTrigger(t *testing.T) {
	s := openTestStore(t)

	f := &File{Path: "/music/t.mp3", Status: StatusDiscovered}
	if err := s.UpsertFile(f); err != nil {
		t.Fatal(err)
	}

	// Force a distinct updated_at by backdating the row first
	if _, err := s.db.Exec(
		"UPDATE files SET updated_at = '2000-01-01 00:00:00' WHERE id = ?", f.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateFileStatus(f.ID, StatusAnalyzed, ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetFileByID(f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UpdatedAt.Year() == 2000 {
		t.Error("expected trigger to refresh updated_at on status change")
	}
}

func TestRejectionLifecycle(t *testing.T) {
	s := openTestStore(t)

	f := &File{Path: "/music/r.mp3", Status: StatusAnalyzed}
	if err := s.UpsertFile(f); err != nil {
		t.Fatal(err)
	}

	r := &RejectionEntry{
		FileID:       f.ID,
		Category:     RejectCorrupted,
		RejectedPath: "/rejected/corrupted/r.mp3",
		ReasonText:   "critical defect: truncated_file",
	}
	if err := s.InsertRejection(r); err != nil {
		t.Fatalf("failed to insert rejection: %v", err)
	}

	counts, err := s.CountRejectionsByCategory()
	if err != nil {
		t.Fatal(err)
	}
	if counts[RejectCorrupted] != 1 {
		t.Errorf("expected 1 corrupted rejection, got %v", counts)
	}

	if err := s.DeleteRejection(r.ID); err != nil {
		t.Fatalf("failed to delete rejection: %v", err)
	}
	got, err := s.GetRejection(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expected rejection deleted")
	}
}

func TestRejectionCategoryConstraint(t *testing.T) {
	s := openTestStore(t)

	f := &File{Path: "/music/x.mp3", Status: StatusAnalyzed}
	if err := s.UpsertFile(f); err != nil {
		t.Fatal(err)
	}

	err := s.InsertRejection(&RejectionEntry{
		FileID:       f.ID,
		Category:     "not-a-category",
		RejectedPath: "/rejected/x.mp3",
	})
	if err == nil {
		t.Fatal("expected CHECK constraint violation")
	}
	if !errors.Is(err, util.ErrStoreIntegrity) {
		t.Errorf("expected integrity error kind, got %v", err)
	}
}

func TestLegacyFingerprintMerge(t *testing.T) {
	dir := t.TempDir()

	// Build a legacy-shaped fingerprints.db next to the future unified
	// store
	legacyPath := filepath.Join(dir, "fingerprints.db")
	legacy, err := sql.Open("sqlite", "file:"+legacyPath)
	if err != nil {
		t.Fatalf("failed to create legacy db: %v", err)
	}
	if _, err := legacy.Exec(`
		CREATE TABLE fingerprints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint TEXT UNIQUE NOT NULL,
			duration REAL, sample_rate INTEGER, bit_depth INTEGER,
			channels INTEGER, codec TEXT, bitrate INTEGER
		)
	`); err != nil {
		t.Fatal(err)
	}
	if _, err := legacy.Exec(
		"INSERT INTO fingerprints (fingerprint, duration, codec) VALUES ('LEGACYFP', 100, 'mp3')"); err != nil {
		t.Fatal(err)
	}
	legacy.Close()

	s, err := Open(filepath.Join(dir, "music_cleanup.db"))
	if err != nil {
		t.Fatalf("failed to open unified store: %v", err)
	}
	defer s.Close()

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM fingerprints WHERE fingerprint = 'LEGACYFP'").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Error("expected legacy fingerprint merged into unified store")
	}

	if _, err := os.Stat(legacyPath + ".legacy"); err != nil {
		t.Error("expected legacy database archived with .legacy suffix")
	}
	if _, err := os.Stat(legacyPath); err == nil {
		t.Error("expected legacy database renamed away")
	}
}
