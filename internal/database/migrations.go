package database

import (
	"context"
	"fmt"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add call_logs.created_at",
		sql:   `ALTER TABLE call_logs ADD COLUMN IF NOT EXISTS created_at timestamptz NOT NULL DEFAULT now()`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'call_logs' AND column_name = 'created_at')`,
	},
	{
		name:  "add cel partial call_log_id index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_cel_call_log_id ON cel (call_log_id) WHERE call_log_id IS NOT NULL`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_cel_call_log_id')`,
	},
	{
		name:  "add call_log_participants user index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_call_log_participants_user ON call_log_participants (user_uuid)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_call_log_participants_user')`,
	},
}

// Migrate applies pending migrations in order.
func (db *DB) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		var applied bool
		if err := db.Pool.QueryRow(ctx, m.check).Scan(&applied); err != nil {
			return fmt.Errorf("migration check %q: %w", m.name, err)
		}
		if applied {
			continue
		}

		db.log.Info().Str("migration", m.name).Msg("applying migration")
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
	}
	return nil
}
