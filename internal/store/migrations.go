package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				session_id     TEXT PRIMARY KEY,
				user_id        TEXT NOT NULL DEFAULT '',
				title          TEXT NOT NULL DEFAULT 'Temporary Chat',
				ai_model       TEXT NOT NULL,
				temperature    REAL NOT NULL DEFAULT 0.7,
				max_tokens     INTEGER NOT NULL DEFAULT 1000,
				system_prompt  TEXT NOT NULL DEFAULT '',
				is_active      INTEGER NOT NULL DEFAULT 1,
				ip_address     TEXT NOT NULL DEFAULT '',
				user_agent     TEXT NOT NULL DEFAULT '',
				total_messages INTEGER NOT NULL DEFAULT 0,
				total_tokens   INTEGER NOT NULL DEFAULT 0,
				created_at     TEXT NOT NULL DEFAULT (datetime('now')),
				last_activity  TEXT NOT NULL DEFAULT (datetime('now')),
				expires_at     TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_user ON sessions (user_id, last_activity);
			CREATE INDEX idx_sessions_expiry ON sessions (expires_at);

			CREATE TABLE messages (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id    TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
				role          TEXT NOT NULL,
				content       TEXT NOT NULL,
				kind          TEXT NOT NULL DEFAULT 'chat',
				model         TEXT NOT NULL DEFAULT '',
				tokens        INTEGER NOT NULL DEFAULT 0,
				processing_ms INTEGER NOT NULL DEFAULT 0,
				timestamp     TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_session ON messages (session_id, id);
			CREATE INDEX idx_messages_role ON messages (role, kind, timestamp);
		`,
	},
	{
		Version: 2,
		Name:    "create users",
		SQL: `
			CREATE TABLE users (
				id                TEXT PRIMARY KEY,
				email             TEXT NOT NULL UNIQUE,
				display_name      TEXT NOT NULL DEFAULT '',
				role              TEXT NOT NULL DEFAULT 'user',
				tier              TEXT NOT NULL DEFAULT 'free',
				api_token         TEXT NOT NULL UNIQUE,
				daily_chat_limit  INTEGER NOT NULL DEFAULT 50,
				daily_image_limit INTEGER NOT NULL DEFAULT 5,
				daily_video_limit INTEGER NOT NULL DEFAULT 2,
				created_at        TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
