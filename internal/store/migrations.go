package store

// migration holds one schema step with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema steps, sequential from 1.
// Each step records itself in schema_version.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	sender      TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	received_at DATETIME NOT NULL,
	is_read     INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	label_ids   TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS message_labels (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	label_id   TEXT NOT NULL,
	PRIMARY KEY (message_id, label_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender);
CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at);
CREATE INDEX IF NOT EXISTS idx_messages_is_read ON messages(is_read);
CREATE INDEX IF NOT EXISTS idx_message_labels_label ON message_labels(label_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	started_at        DATETIME NOT NULL,
	finished_at       DATETIME NOT NULL,
	fetched           INTEGER NOT NULL DEFAULT 0,
	saved             INTEGER NOT NULL DEFAULT 0,
	skipped           INTEGER NOT NULL DEFAULT 0,
	matched           INTEGER NOT NULL DEFAULT 0,
	actions_ok        INTEGER NOT NULL DEFAULT 0,
	actions_failed    INTEGER NOT NULL DEFAULT 0,
	actions_not_found INTEGER NOT NULL DEFAULT 0,
	note              TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
