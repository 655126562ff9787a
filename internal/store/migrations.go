package store

import "context"

// runMigrations executes all database migrations. The schema sticks to
// types both backends accept: text IDs and millisecond timestamps.
func (s *Store) runMigrations(ctx context.Context) error {
	migrations := []string{
		// Scans table - one row per distinct decode event
		`CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			device INTEGER NOT NULL DEFAULT 0,
			code_type TEXT NOT NULL,
			content TEXT NOT NULL,
			scanned_at BIGINT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_scans_scanned_at ON scans(scanned_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_session_id ON scans(session_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
