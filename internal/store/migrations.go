package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id        TEXT PRIMARY KEY,
	position  INTEGER NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	message   TEXT NOT NULL DEFAULT '',
	type      TEXT NOT NULL DEFAULT 'info'
		CHECK(type IN ('info', 'success', 'warning', 'error')),
	timestamp DATETIME NOT NULL,
	read      INTEGER NOT NULL DEFAULT 0 CHECK(read IN (0, 1)),
	archived  INTEGER NOT NULL DEFAULT 0 CHECK(archived IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_notifications_position ON notifications(position);
CREATE INDEX IF NOT EXISTS idx_notifications_archived ON notifications(archived);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS sync_state (
	id        INTEGER PRIMARY KEY CHECK(id = 1),
	version   INTEGER NOT NULL,
	synced_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_unread
	ON notifications(read, archived);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
