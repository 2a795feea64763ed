package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Alerts table - one row per dispatch attempt
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			reason TEXT NOT NULL,
			caption TEXT NOT NULL,
			status TEXT NOT NULL CHECK(status IN ('sent', 'failed')),
			error TEXT NOT NULL DEFAULT '',
			track_ids TEXT NOT NULL DEFAULT '[]',
			frame_id INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
