package db

func (db *DB) initSchema() error {
	schema := `
	-- Ephemeral cross-reload slot: the current session for this client.
	-- Exactly one row; starting a new session overwrites it.
	CREATE TABLE IF NOT EXISTS live_session (
		slot INTEGER PRIMARY KEY CHECK(slot = 1),
		payload TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Local mirror of archived-session summaries, so listing works when
	-- the backend is unreachable.
	CREATE TABLE IF NOT EXISTS saved_sessions (
		id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		objective TEXT,
		status TEXT NOT NULL,
		insight_count INTEGER DEFAULT 0,
		created_at DATETIME,
		cached_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_saved_sessions_dataset ON saved_sessions(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_saved_sessions_created ON saved_sessions(created_at);
	`

	_, err := db.conn.Exec(schema)
	return err
}
