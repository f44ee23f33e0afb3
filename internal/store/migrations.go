package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		scenario    TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'RUNNING',
		switches    INTEGER NOT NULL DEFAULT 0,
		ticks       INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS switch_events (
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq       INTEGER NOT NULL,
		from_pid  INTEGER NOT NULL,
		from_name TEXT NOT NULL,
		to_pid    INTEGER NOT NULL,
		to_name   TEXT NOT NULL,
		tick      INTEGER NOT NULL DEFAULT 0,
		at        TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS task_snapshots (
		run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		pid             INTEGER NOT NULL,
		name            TEXT NOT NULL,
		status          TEXT NOT NULL,
		priority        INTEGER NOT NULL,
		ticks_remaining INTEGER NOT NULL,
		elapsed_ticks   INTEGER NOT NULL,
		page_addr       INTEGER NOT NULL,
		stack_pointer   INTEGER NOT NULL,
		PRIMARY KEY (run_id, pid)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "task_snapshots",
		column:   "has_address_space",
		alterSQL: "ALTER TABLE task_snapshots ADD COLUMN has_address_space INTEGER NOT NULL DEFAULT 0",
	},
	{
		table:    "task_snapshots",
		column:   "canary_ok",
		alterSQL: "ALTER TABLE task_snapshots ADD COLUMN canary_ok INTEGER NOT NULL DEFAULT 1",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
