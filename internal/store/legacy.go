package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/music-cleanup/internal/util"
)

// Legacy per-concern database files from before the unified store.
// Each is folded into this store on first open and then archived with
// a .legacy suffix; originals are never deleted.
var legacyStores = []struct {
	filename string
	merge    func(s *Store, legacy *sql.DB) error
}{
	{"fingerprints.db", mergeLegacyFingerprints},
	{"operations.db", mergeLegacyOperations},
	{"progress.db", mergeLegacyProgress},
}

// mergeLegacyStores looks for legacy databases next to the unified store
// and folds their rows in inside a single transaction per file.
func (s *Store) mergeLegacyStores(storePath string) error {
	dir := filepath.Dir(storePath)

	for _, legacy := range legacyStores {
		path := filepath.Join(dir, legacy.filename)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		util.InfoLog("Merging legacy database: %s", path)

		legacyDB, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
		if err != nil {
			return fmt.Errorf("failed to open legacy database %s: %w", path, err)
		}

		mergeErr := legacy.merge(s, legacyDB)
		legacyDB.Close()
		if mergeErr != nil {
			return fmt.Errorf("failed to merge %s: %w", path, mergeErr)
		}

		// Archive, don't delete
		if err := os.Rename(path, path+".legacy"); err != nil {
			return fmt.Errorf("failed to archive legacy database %s: %w", path, err)
		}
		util.SuccessLog("Merged and archived: %s.legacy", path)
	}

	return nil
}

func legacyTableExists(db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func mergeLegacyFingerprints(s *Store, legacy *sql.DB) error {
	ok, err := legacyTableExists(legacy, "fingerprints")
	if err != nil || !ok {
		return err
	}

	rows, err := legacy.Query(`
		SELECT fingerprint, COALESCE(duration, 0), COALESCE(sample_rate, 0),
		       COALESCE(bit_depth, 0), COALESCE(channels, 0), COALESCE(codec, ''),
		       COALESCE(bitrate, 0)
		FROM fingerprints
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	return s.Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO fingerprints (fingerprint, duration_sec, sample_rate_hz, bit_depth, channels, codec, bitrate_kbps)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO NOTHING
		`)
		if err != nil {
			return classify(err)
		}
		defer stmt.Close()

		for rows.Next() {
			fp := &Fingerprint{}
			if err := rows.Scan(&fp.Fingerprint, &fp.DurationSec, &fp.SampleRateHz,
				&fp.BitDepth, &fp.Channels, &fp.Codec, &fp.BitrateKbps); err != nil {
				return err
			}
			if _, err := stmt.Exec(fp.Fingerprint, fp.DurationSec, fp.SampleRateHz,
				fp.BitDepth, fp.Channels, fp.Codec, fp.BitrateKbps); err != nil {
				return classify(err)
			}
		}
		return rows.Err()
	})
}

func mergeLegacyOperations(s *Store, legacy *sql.DB) error {
	ok, err := legacyTableExists(legacy, "file_operations")
	if err != nil || !ok {
		return err
	}

	rows, err := legacy.Query(`
		SELECT COALESCE(transaction_id, ''), COALESCE(operation_type, 'copy'),
		       source_path, COALESCE(destination_path, ''), COALESCE(status, 'pending')
		FROM file_operations
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	return s.Transaction(func(tx *sql.Tx) error {
		txnStmt, err := tx.Prepare(`
			INSERT INTO transactions (id, status, reason) VALUES (?, ?, 'legacy import')
			ON CONFLICT(id) DO NOTHING
		`)
		if err != nil {
			return classify(err)
		}
		defer txnStmt.Close()

		opStmt, err := tx.Prepare(`
			INSERT INTO file_operations (transaction_id, kind, source_path, destination_path, status)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return classify(err)
		}
		defer opStmt.Close()

		for rows.Next() {
			var txnID, kind, src, dst, status string
			if err := rows.Scan(&txnID, &kind, &src, &dst, &status); err != nil {
				return err
			}
			if txnID == "" {
				txnID = "legacy"
			}
			// Legacy terminal statuses map onto the unified vocabulary;
			// anything in flight is treated as rolled back
			txnStatus := TxnCommitted
			switch status {
			case "completed":
				status = OpCommitted
			case "rolled_back", "pending", "in_progress":
				status = OpRolledBack
				txnStatus = TxnRolledBack
			default:
				status = OpFailed
			}
			if _, err := txnStmt.Exec(txnID, txnStatus); err != nil {
				return classify(err)
			}
			if _, err := opStmt.Exec(txnID, kind, src, dst, status); err != nil {
				return classify(err)
			}
		}
		return rows.Err()
	})
}

func mergeLegacyProgress(s *Store, legacy *sql.DB) error {
	ok, err := legacyTableExists(legacy, "progress_tracking")
	if err != nil || !ok {
		return err
	}

	rows, err := legacy.Query(`
		SELECT COALESCE(current_phase, ''), COALESCE(phase_data, '{}')
		FROM progress_tracking ORDER BY id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var phase, data string
		if err := rows.Scan(&phase, &data); err != nil {
			return err
		}
		if phase == "" {
			continue
		}
		if _, err := s.exec(`
			INSERT INTO checkpoints (phase, last_batch_id, counters, open_transaction_ids)
			VALUES (?, 0, ?, '[]')
		`, phase, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
