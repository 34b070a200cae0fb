package storage

type migration struct {
	version int
	sql     string
}

var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS notification_task (
	id           TEXT PRIMARY KEY,
	destination  INTEGER NOT NULL,
	scheduled_at INTEGER NOT NULL,
	text         TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notification_task_scheduled_at ON notification_task (scheduled_at);
`,
	},
}

// Postgres statements run one at a time.
var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS notification_task (
	id           TEXT PRIMARY KEY,
	destination  BIGINT NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	text         TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_task_scheduled_at ON notification_task (scheduled_at)`,
}
