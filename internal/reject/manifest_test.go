package reject

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/music-cleanup/internal/store"
	"github.com/franz/music-cleanup/internal/txn"
	"github.com/franz/music-cleanup/internal/util"
)

func newFixture(t *testing.T) (*Manifest, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()

	s, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rejectedRoot := filepath.Join(dir, "rejected")
	manager := txn.New(&txn.Config{Store: s, HashAlgorithm: "sha256"})
	return New(s, manager, rejectedRoot), s, dir
}

func TestExportWritesSidecars(t *testing.T) {
	m, s, dir := newFixture(t)

	f := &store.File{Path: filepath.Join(dir, "src", "dup.mp3"), Status: store.StatusRejected}
	if err := s.UpsertFile(f); err != nil {
		t.Fatal(err)
	}
	rejectedPath := filepath.Join(dir, "rejected", "duplicates", "dup_duplicate_2.mp3")
	if err := s.InsertRejection(&store.RejectionEntry{
		FileID:       f.ID,
		Category:     store.RejectDuplicate,
		RejectedPath: rejectedPath,
		ReasonText:   "duplicate of file 1",
	}); err != nil {
		t.Fatal(err)
	}

	if err := m.Export(); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	// JSON sidecar
	jsonPath := filepath.Join(dir, "rejected", "rejected_manifest.json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 manifest entry, got %d", len(entries))
	}
	if entries[0]["category"] != "duplicate" {
		t.Errorf("unexpected category: %v", entries[0]["category"])
	}

	// CSV sidecar
	csvFile, err := os.Open(filepath.Join(dir, "rejected", "rejection_analysis.csv"))
	if err != nil {
		t.Fatalf("analysis csv missing: %v", err)
	}
	defer csvFile.Close()
	records, err := csv.NewReader(csvFile).ReadAll()
	if err != nil {
		t.Fatalf("analysis csv unreadable: %v", err)
	}
	if len(records) != 2 { // header + one row
		t.Errorf("expected header plus 1 row, got %d records", len(records))
	}

	// Export is idempotent
	if err := m.Export(); err != nil {
		t.Fatalf("re-export failed: %v", err)
	}
	data2, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(data2) {
		t.Error("re-export must produce identical output from the same state")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	m, s, dir := newFixture(t)

	// Original was relocated into the rejected tree
	originalPath := filepath.Join(dir, "src", "song.mp3")
	rejectedPath := filepath.Join(dir, "rejected", "duplicates", "song_duplicate_2.mp3")
	if err := os.MkdirAll(filepath.Dir(rejectedPath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(rejectedPath, []byte("rejected bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	hash, err := util.HashFileContent(rejectedPath, "sha256")
	if err != nil {
		t.Fatal(err)
	}

	f := &store.File{Path: originalPath, Status: store.StatusRejected}
	if err := s.UpsertFile(f); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateFileAnalysis(f.ID, hash, 0, 0, 70); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateFileStatus(f.ID, store.StatusRejected, ""); err != nil {
		t.Fatal(err)
	}

	entry := &store.RejectionEntry{
		FileID:       f.ID,
		Category:     store.RejectDuplicate,
		RejectedPath: rejectedPath,
	}
	if err := s.InsertRejection(entry); err != nil {
		t.Fatal(err)
	}

	if err := m.Restore(context.Background(), entry.ID); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	// Restoration yields the same content at the original path
	restoredHash, err := util.HashFileContent(originalPath, "sha256")
	if err != nil {
		t.Fatalf("restored file missing: %v", err)
	}
	if restoredHash != hash {
		t.Error("restored content must match the rejected content")
	}

	// The entry is consumed by a successful restore
	got, err := s.GetRejection(entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("expected rejection entry deleted after restore")
	}
}

func TestRestoreUnknownID(t *testing.T) {
	m, _, _ := newFixture(t)
	if err := m.Restore(context.Background(), 9999); err == nil {
		t.Error("expected error for unknown rejection id")
	}
}
