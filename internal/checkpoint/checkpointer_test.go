package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/franz/music-cleanup/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteAndRecoverProgress(t *testing.T) {
	s := openTestStore(t)
	c := New(&Config{Store: s, IntervalSec: 3600})

	c.SetProgress("analysis", 3, map[string]int{"analyzed": 250, "failed": 2})
	if err := c.Write(); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cp, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if cp == nil {
		t.Fatal("expected a checkpoint")
	}
	if cp.Phase != "analysis" || cp.LastBatchID != 3 {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}
	if cp.Counters["analyzed"] != 250 {
		t.Errorf("counters must round-trip, got %v", cp.Counters)
	}
}

func TestWriteRecordsOpenTransactions(t *testing.T) {
	s := openTestStore(t)
	c := New(&Config{Store: s, IntervalSec: 3600})

	if err := s.InsertTxn("txn-open", "in flight"); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertTxn("txn-done", "finished"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateTxnStatus("txn-done", store.TxnCommitted); err != nil {
		t.Fatal(err)
	}

	c.SetProgress("organization", 1, nil)
	if err := c.Write(); err != nil {
		t.Fatal(err)
	}

	cp, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if len(cp.OpenTransactionIDs) != 1 || cp.OpenTransactionIDs[0] != "txn-open" {
		t.Errorf("expected only the open transaction recorded, got %v", cp.OpenTransactionIDs)
	}
}

func TestCheckpointIdsIncrease(t *testing.T) {
	s := openTestStore(t)
	c := New(&Config{Store: s, IntervalSec: 3600})

	var lastID int64
	for batch := int64(1); batch <= 5; batch++ {
		c.SetProgress("discovery", batch, nil)
		if err := c.Write(); err != nil {
			t.Fatal(err)
		}
		cp, err := s.LatestCheckpoint()
		if err != nil {
			t.Fatal(err)
		}
		if cp.ID <= lastID {
			t.Fatalf("checkpoint ids must strictly increase: %d after %d", cp.ID, lastID)
		}
		lastID = cp.ID
	}
}

func TestWriteWithoutProgressIsNoop(t *testing.T) {
	s := openTestStore(t)
	c := New(&Config{Store: s, IntervalSec: 3600})

	if err := c.Write(); err != nil {
		t.Fatal(err)
	}
	cp, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatal(err)
	}
	if cp != nil {
		t.Error("no checkpoint may be written before any progress is recorded")
	}
}
