package store

// Timestamps are BIGINT unix microseconds on every backend so natural-key
// equality and range deletes behave identically.

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS install_attempts (
	id                   BIGSERIAL PRIMARY KEY,
	component_id         TEXT NOT NULL,
	install_id           TEXT NOT NULL,
	component_type       TEXT,
	outcome              TEXT NOT NULL,
	ts_micros            BIGINT NOT NULL,
	duration_seconds     DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message        TEXT,
	error_category       TEXT,
	client_version       TEXT,
	platform             TEXT,
	runtime_version      TEXT,
	orchestrator_version TEXT,
	UNIQUE (component_id, ts_micros, outcome)
);
CREATE INDEX IF NOT EXISTS idx_install_attempts_component_ts ON install_attempts (component_id, ts_micros);

CREATE TABLE IF NOT EXISTS health_checks (
	id                 BIGSERIAL PRIMARY KEY,
	component_id       TEXT NOT NULL,
	status             TEXT NOT NULL,
	ts_micros          BIGINT NOT NULL,
	response_time_ms   DOUBLE PRECISION,
	error_message      TEXT,
	connection_details TEXT,
	UNIQUE (component_id, ts_micros, status)
);
CREATE INDEX IF NOT EXISTS idx_health_checks_component_ts ON health_checks (component_id, ts_micros);

CREATE TABLE IF NOT EXISTS user_feedback (
	id                      BIGSERIAL PRIMARY KEY,
	component_id            TEXT NOT NULL,
	rating                  INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	ts_micros               BIGINT NOT NULL,
	comment                 TEXT,
	reported_issues         TEXT,
	recommended_alternative TEXT,
	submitter_hash          TEXT NOT NULL DEFAULT '',
	UNIQUE (component_id, submitter_hash, ts_micros)
);
CREATE INDEX IF NOT EXISTS idx_user_feedback_component_ts ON user_feedback (component_id, ts_micros);
`

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS install_attempts (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	component_id         TEXT NOT NULL,
	install_id           TEXT NOT NULL,
	component_type       TEXT,
	outcome              TEXT NOT NULL,
	ts_micros            INTEGER NOT NULL,
	duration_seconds     REAL NOT NULL DEFAULT 0,
	error_message        TEXT,
	error_category       TEXT,
	client_version       TEXT,
	platform             TEXT,
	runtime_version      TEXT,
	orchestrator_version TEXT,
	UNIQUE (component_id, ts_micros, outcome)
);
CREATE INDEX IF NOT EXISTS idx_install_attempts_component_ts ON install_attempts (component_id, ts_micros);

CREATE TABLE IF NOT EXISTS health_checks (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	component_id       TEXT NOT NULL,
	status             TEXT NOT NULL,
	ts_micros          INTEGER NOT NULL,
	response_time_ms   REAL,
	error_message      TEXT,
	connection_details TEXT,
	UNIQUE (component_id, ts_micros, status)
);
CREATE INDEX IF NOT EXISTS idx_health_checks_component_ts ON health_checks (component_id, ts_micros);

CREATE TABLE IF NOT EXISTS user_feedback (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	component_id            TEXT NOT NULL,
	rating                  INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	ts_micros               INTEGER NOT NULL,
	comment                 TEXT,
	reported_issues         TEXT,
	recommended_alternative TEXT,
	submitter_hash          TEXT NOT NULL DEFAULT '',
	UNIQUE (component_id, submitter_hash, ts_micros)
);
CREATE INDEX IF NOT EXISTS idx_user_feedback_component_ts ON user_feedback (component_id, ts_micros);
`
