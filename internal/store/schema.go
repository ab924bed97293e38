package store

// Schema v1 - unified database schema. One database holds every concern;
// cross-entity references are real foreign keys and deletes cascade from
// files and groups to their dependent rows.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Files discovered in the source trees
CREATE TABLE IF NOT EXISTS files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT UNIQUE NOT NULL,
  content_hash TEXT,
  size_bytes INTEGER,
  modified_time INTEGER,
  fingerprint_id INTEGER,
  metadata_id INTEGER,
  quality_score REAL,
  status TEXT NOT NULL DEFAULT 'discovered'
    CHECK(status IN ('discovered', 'analyzed', 'healthy', 'quarantined', 'organized', 'rejected', 'failed')),
  error TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (fingerprint_id) REFERENCES fingerprints(id) ON DELETE SET NULL,
  FOREIGN KEY (metadata_id) REFERENCES metadata(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(content_hash);

-- Keep files.updated_at current on every row update; skipped when the
-- statement itself set updated_at
CREATE TRIGGER IF NOT EXISTS trg_files_updated_at
AFTER UPDATE ON files
FOR EACH ROW
WHEN NEW.updated_at = OLD.updated_at
BEGIN
  UPDATE files SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END;

-- Audio fingerprints, content-addressed by the fingerprint string and
-- shared across files with identical audio
CREATE TABLE IF NOT EXISTS fingerprints (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  fingerprint TEXT UNIQUE NOT NULL,
  duration_sec REAL,
  sample_rate_hz INTEGER,
  bit_depth INTEGER,
  channels INTEGER,
  codec TEXT,
  bitrate_kbps INTEGER,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Tag metadata, deduplicated by content
CREATE TABLE IF NOT EXISTS metadata (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  artist TEXT,
  title TEXT,
  album TEXT,
  year INTEGER,
  genre TEXT,
  track_number INTEGER,
  disc_number INTEGER,
  source TEXT CHECK(source IN ('tag', 'service', 'filename-parse')),
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_metadata_artist ON metadata(artist);
CREATE INDEX IF NOT EXISTS idx_metadata_title ON metadata(title);

-- Quality analysis results, one row per file
CREATE TABLE IF NOT EXISTS quality_analysis (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER NOT NULL UNIQUE,
  technical_score REAL NOT NULL,
  audio_fidelity_score REAL NOT NULL,
  integrity_score REAL NOT NULL,
  reference_score REAL,
  final_score REAL NOT NULL,
  grade TEXT NOT NULL,
  recommended_action TEXT
    CHECK(recommended_action IN ('keep', 'replace', 'quarantine', 'delete_duplicate')),
  defects TEXT, -- JSON array of defect codes
  health_score INTEGER NOT NULL DEFAULT 100,
  clipping_ratio REAL NOT NULL DEFAULT -1,
  silence_ratio REAL NOT NULL DEFAULT -1,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

-- Duplicate groups keyed by content hash or fingerprint equivalence
CREATE TABLE IF NOT EXISTS duplicate_groups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  key_kind TEXT NOT NULL CHECK(key_kind IN ('hash', 'fingerprint')),
  key_value TEXT NOT NULL,
  primary_file_id INTEGER,
  size INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(key_kind, key_value),
  FOREIGN KEY (primary_file_id) REFERENCES files(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS duplicate_members (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  group_id INTEGER NOT NULL,
  file_id INTEGER NOT NULL,
  is_primary INTEGER NOT NULL DEFAULT 0,
  similarity REAL,
  UNIQUE(group_id, file_id),
  FOREIGN KEY (group_id) REFERENCES duplicate_groups(id) ON DELETE CASCADE,
  FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_duplicate_members_file ON duplicate_members(file_id);

-- Filesystem operation transactions
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'open'
    CHECK(status IN ('open', 'committing', 'committed', 'rolling-back', 'rolled-back')),
  reason TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  committed_at DATETIME
);

-- Append-only log of intended filesystem mutations, written before the
-- mutation itself happens
CREATE TABLE IF NOT EXISTS file_operations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER,
  transaction_id TEXT NOT NULL,
  kind TEXT NOT NULL
    CHECK(kind IN ('copy', 'move', 'link', 'write-tag', 'create-dir', 'rename', 'remove-source')),
  source_path TEXT NOT NULL,
  destination_path TEXT,
  content_hash TEXT,
  status TEXT NOT NULL DEFAULT 'pending'
    CHECK(status IN ('pending', 'performed', 'committed', 'rolled-back', 'failed')),
  started_at DATETIME,
  finished_at DATETIME,
  error TEXT,
  FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE SET NULL,
  FOREIGN KEY (transaction_id) REFERENCES transactions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_file_operations_txn ON file_operations(transaction_id, status);

-- Recovery checkpoints; the maximum id always wins on resume
CREATE TABLE IF NOT EXISTS checkpoints (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  phase TEXT NOT NULL,
  last_batch_id INTEGER NOT NULL DEFAULT 0,
  counters TEXT, -- JSON counters snapshot
  open_transaction_ids TEXT, -- JSON array
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Audit trail of every file that was analyzed but not organized
CREATE TABLE IF NOT EXISTS rejections (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER NOT NULL,
  category TEXT NOT NULL
    CHECK(category IN ('duplicate', 'low_quality', 'corrupted', 'unsupported', 'invalid_metadata', 'error')),
  chosen_file_id INTEGER,
  group_id INTEGER,
  rejected_path TEXT NOT NULL,
  reason_text TEXT,
  rejected_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE,
  FOREIGN KEY (chosen_file_id) REFERENCES files(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_rejections_category ON rejections(category);

-- Planned destination for each organized primary
CREATE TABLE IF NOT EXISTS organization_targets (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER NOT NULL UNIQUE,
  genre TEXT,
  decade TEXT,
  final_path TEXT NOT NULL,
  pattern_used TEXT,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

-- Files the organizer could not place (missing artist or title, unknown
-- genre or year); consumed
-- by the reporting layer
CREATE TABLE IF NOT EXISTS metadata_queue (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  file_id INTEGER NOT NULL UNIQUE,
  reason TEXT NOT NULL,
  created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
);

-- Effective configuration of the last run
CREATE TABLE IF NOT EXISTS system_config (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Schema v2 - performance indexes for the hot query paths
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_files_status_id ON files(status, id);
CREATE INDEX IF NOT EXISTS idx_fingerprints_duration ON fingerprints(duration_sec);
CREATE INDEX IF NOT EXISTS idx_checkpoints_id_desc ON checkpoints(id DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
`
