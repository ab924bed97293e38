package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/franz/music-cleanup/internal/util"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	currentSchemaVersion = 2
)

// Store is the unified persistent state: files, fingerprints, metadata,
// quality analyses, duplicate groups, file operations, transactions,
// checkpoints, rejections and organization targets all live in one
// sqlite database with enforced foreign keys.
type Store struct {
	db       *sql.DB
	retryCfg *util.RetryConfig
}

// Open opens or creates the unified database at the given path,
// applies pending migrations and folds in any legacy per-concern
// databases found next to it.
func Open(path string) (*Store, error) {
	// WAL for single-writer multi-reader access; busy timeout so
	// readers don't fail immediately during commits
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db, retryCfg: util.StoreRetryConfig()}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	if err := store.mergeLegacyStores(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("legacy merge failed: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("%w: integrity check failed: %s", util.ErrStoreIntegrity, result)
	}

	return nil
}

// classify maps a raw sqlite error onto the store error taxonomy so
// callers can decide between retry, abort and bug-report paths with
// errors.Is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "busy") || strings.Contains(msg, "locked"):
		return fmt.Errorf("%w: %v", util.ErrStoreBusy, err)
	case strings.Contains(msg, "constraint") || strings.Contains(msg, "foreign key"):
		return fmt.Errorf("%w: %v", util.ErrStoreIntegrity, err)
	default:
		return fmt.Errorf("%w: %v", util.ErrStoreIO, err)
	}
}

// exec runs a write statement, retrying on SQLITE_BUSY with backoff
func (s *Store) exec(query string, args ...interface{}) (sql.Result, error) {
	return util.RetryWithBackoff(s.retryCfg, func() (sql.Result, error) {
		res, err := s.db.Exec(query, args...)
		if err != nil {
			return nil, classify(err)
		}
		return res, nil
	}, "store.exec")
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	// Schema v2 - performance indexes
	if version < 2 {
		if _, err := tx.Exec(schemaV2); err != nil {
			return fmt.Errorf("failed to apply schema v2: %w", err)
		}
		if err := s.setSchemaVersion(tx, 2); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// Transaction executes a function within a database transaction
func (s *Store) Transaction(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}

	return nil
}
