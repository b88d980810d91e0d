//go:build cgo

package doltstore

// schema creates every table doltstore needs, in Dolt's MySQL dialect.
// Column shapes mirror sqlitestore's schema.go one-for-one so the two
// backends stay interchangeable behind store.Store; JSON-shaped list
// columns use Dolt's native JSON type instead of sqlitestore's TEXT-blob
// convention, since Dolt (like MySQL 8) supports it natively.
const schema = `
CREATE TABLE IF NOT EXISTS memory (
	id                 VARCHAR(64) PRIMARY KEY,
	path               VARCHAR(512) NOT NULL,
	title              TEXT NOT NULL,
	body               LONGTEXT NOT NULL,
	token_count        INT NOT NULL,
	tags               JSON NOT NULL,
	scope              VARCHAR(32) NOT NULL,
	priority           DOUBLE NOT NULL,
	confidence         VARCHAR(32) NOT NULL,
	status             VARCHAR(32) NOT NULL,
	created            DATETIME NULL,
	last_used          DATETIME NULL,
	expires            DATETIME NULL,
	supersedes         JSON NOT NULL,
	related            JSON NOT NULL,
	file_hash          VARCHAR(64) NOT NULL,
	deprecated_at      DATETIME NULL,
	deprecation_reason TEXT NOT NULL,
	promoted_at        DATETIME NULL,
	promoted_from      VARCHAR(32) NOT NULL,
	UNIQUE KEY uq_memory_path (path),
	KEY idx_memory_scope (scope),
	KEY idx_memory_status (status)
);

CREATE TABLE IF NOT EXISTS embedding (
	memory_id VARCHAR(64) NOT NULL,
	kind      VARCHAR(16) NOT NULL,
	vector    LONGBLOB NOT NULL,
	PRIMARY KEY (memory_id, kind)
);

CREATE TABLE IF NOT EXISTS system_meta (
	meta_key   VARCHAR(128) PRIMARY KEY,
	meta_value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS proposal (
	proposal_id        VARCHAR(64) PRIMARY KEY,
	created_at         DATETIME NOT NULL,
	proposed_by        VARCHAR(128) NOT NULL,
	type               VARCHAR(16) NOT NULL,
	target_path        VARCHAR(512) NOT NULL,
	memory_id          VARCHAR(64) NOT NULL,
	content             LONGBLOB NOT NULL,
	reason             TEXT NOT NULL,
	deprecation_reason TEXT NOT NULL,
	new_scope          VARCHAR(32) NOT NULL,
	source_scope       VARCHAR(32) NOT NULL,
	status             VARCHAR(16) NOT NULL,
	review_notes       TEXT NOT NULL,
	commit_error       TEXT NOT NULL,
	KEY idx_proposal_status (status),
	KEY idx_proposal_target_path (target_path)
);

CREATE TABLE IF NOT EXISTS proposal_history (
	id          BIGINT AUTO_INCREMENT PRIMARY KEY,
	proposal_id VARCHAR(64) NOT NULL,
	at          DATETIME NOT NULL,
	actor       VARCHAR(128) NOT NULL,
	from_status VARCHAR(16) NOT NULL,
	to_status   VARCHAR(16) NOT NULL,
	note        TEXT NOT NULL,
	KEY idx_proposal_history_proposal_id (proposal_id)
);

CREATE TABLE IF NOT EXISTS conflict_record (
	conflict_id       VARCHAR(64) PRIMARY KEY,
	detected_at       DATETIME NOT NULL,
	scan_id           VARCHAR(64) NOT NULL,
	memory_a_id       VARCHAR(64) NOT NULL,
	memory_b_id       VARCHAR(64) NOT NULL,
	pair_key          VARCHAR(160) NOT NULL,
	memories_json     JSON NOT NULL,
	conflict_type     VARCHAR(32) NOT NULL,
	detection_method  VARCHAR(32) NOT NULL,
	confidence        DOUBLE NOT NULL,
	description       TEXT NOT NULL,
	evidence_json     JSON NOT NULL,
	status            VARCHAR(16) NOT NULL,
	resolved_at       DATETIME NULL,
	resolution_action TEXT NOT NULL,
	resolution_target TEXT NOT NULL,
	resolution_reason TEXT NOT NULL,
	resolved_by       VARCHAR(128) NOT NULL,
	UNIQUE KEY uq_conflict_pair_key (pair_key),
	KEY idx_conflict_status (status)
);

CREATE TABLE IF NOT EXISTS scan_log (
	scan_id          VARCHAR(64) PRIMARY KEY,
	scan_type        VARCHAR(16) NOT NULL,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME NULL,
	duration_ms      BIGINT NOT NULL DEFAULT 0,
	memories_scanned INT NOT NULL DEFAULT 0,
	methods_used     JSON NOT NULL,
	detected         INT NOT NULL DEFAULT 0,
	new_count        INT NOT NULL DEFAULT 0,
	existing_count   INT NOT NULL DEFAULT 0,
	errors_json      JSON NOT NULL,
	KEY idx_scan_log_type (scan_type)
);
`
