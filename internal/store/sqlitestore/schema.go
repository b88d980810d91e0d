package sqlitestore

// schema creates every table the Store contract needs. DMM is greenfield
// (unlike the teacher's decade-old schema, which accretes numbered
// migrations under storage/sqlite/migrations), so a single idempotent
// CREATE TABLE IF NOT EXISTS block stands in for a migration chain; a
// migrations/ package the same shape as the teacher's can be added the day
// a second schema revision is needed.
const schema = `
CREATE TABLE IF NOT EXISTS memory (
	id                 TEXT PRIMARY KEY,
	path               TEXT NOT NULL UNIQUE,
	title              TEXT NOT NULL,
	body               TEXT NOT NULL,
	token_count        INTEGER NOT NULL,
	tags               TEXT NOT NULL DEFAULT '[]',
	scope              TEXT NOT NULL,
	priority           REAL NOT NULL,
	confidence         TEXT NOT NULL,
	status             TEXT NOT NULL,
	created            TEXT,
	last_used          TEXT,
	expires            TEXT,
	supersedes         TEXT NOT NULL DEFAULT '[]',
	related            TEXT NOT NULL DEFAULT '[]',
	file_hash          TEXT NOT NULL,
	deprecated_at      TEXT,
	deprecation_reason TEXT NOT NULL DEFAULT '',
	promoted_at        TEXT,
	promoted_from      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_memory_scope ON memory(scope);
CREATE INDEX IF NOT EXISTS idx_memory_status ON memory(status);

CREATE TABLE IF NOT EXISTS embedding (
	memory_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	vector    BLOB NOT NULL,
	PRIMARY KEY (memory_id, kind),
	FOREIGN KEY (memory_id) REFERENCES memory(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS system_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS proposal (
	proposal_id        TEXT PRIMARY KEY,
	created_at         TEXT NOT NULL,
	proposed_by        TEXT NOT NULL,
	type               TEXT NOT NULL,
	target_path        TEXT NOT NULL,
	memory_id          TEXT NOT NULL DEFAULT '',
	content            BLOB NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	deprecation_reason TEXT NOT NULL DEFAULT '',
	new_scope          TEXT NOT NULL DEFAULT '',
	source_scope       TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL,
	review_notes       TEXT NOT NULL DEFAULT '',
	commit_error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_proposal_status ON proposal(status);
CREATE INDEX IF NOT EXISTS idx_proposal_target_path ON proposal(target_path);

CREATE TABLE IF NOT EXISTS proposal_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	proposal_id TEXT NOT NULL,
	at          TEXT NOT NULL,
	actor       TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	note        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_proposal_history_proposal_id ON proposal_history(proposal_id);

CREATE TABLE IF NOT EXISTS conflict (
	conflict_id      TEXT PRIMARY KEY,
	detected_at      TEXT NOT NULL,
	scan_id          TEXT NOT NULL DEFAULT '',
	memory_a_id      TEXT NOT NULL,
	memory_b_id      TEXT NOT NULL,
	pair_key         TEXT NOT NULL,
	memories_json    TEXT NOT NULL,
	conflict_type    TEXT NOT NULL,
	detection_method TEXT NOT NULL,
	confidence       REAL NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	evidence_json    TEXT NOT NULL DEFAULT '{}',
	status           TEXT NOT NULL,
	resolved_at      TEXT,
	resolution_action TEXT NOT NULL DEFAULT '',
	resolution_target TEXT NOT NULL DEFAULT '',
	resolution_reason TEXT NOT NULL DEFAULT '',
	resolved_by       TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_conflict_pair_key ON conflict(pair_key);
CREATE INDEX IF NOT EXISTS idx_conflict_status ON conflict(status);

CREATE TABLE IF NOT EXISTS scan_log (
	scan_id          TEXT PRIMARY KEY,
	scan_type        TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	completed_at     TEXT,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	memories_scanned INTEGER NOT NULL DEFAULT 0,
	methods_used     TEXT NOT NULL DEFAULT '[]',
	detected         INTEGER NOT NULL DEFAULT 0,
	new_count        INTEGER NOT NULL DEFAULT 0,
	existing_count   INTEGER NOT NULL DEFAULT 0,
	errors_json      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_scan_log_type ON scan_log(scan_type);
`

// vecSchema creates the sqlite-vec virtual table that PutEmbedding keeps
// in sync when the extension loaded successfully. memory_id and kind are
// declared as auxiliary (+-prefixed) columns per vec0's metadata-column
// convention, so they're stored but not themselves indexed; the vector
// column is what vec0 indexes for KNN search. No query reads this table:
// SearchByEmbedding always runs an in-process linear scan over the plain
// embedding table above.
const vecSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_embedding USING vec0(
	vector FLOAT[%d],
	+memory_id TEXT,
	+kind      TEXT
);
`
