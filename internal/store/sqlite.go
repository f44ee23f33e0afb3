package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/kthread/internal/logging"
	"github.com/me/kthread/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.OrDiscard(logger).With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Run CRUD ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, status, switches, ticks, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, string(run.Status), run.Switches, int64(run.Ticks), run.Error,
		run.StartedAt.Format(time.RFC3339Nano), formatTimePtr(run.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, scenario, status, switches, ticks, error, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := ""
	var args []any
	if opts.Status != "" {
		whereSQL = " WHERE status = ?"
		args = append(args, opts.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT id, scenario, status, switches, ticks, error, started_at, finished_at
		FROM runs` + whereSQL + ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, listQuery, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, switches=?, ticks=?, error=?, finished_at=? WHERE id=?`,
		string(run.Status), run.Switches, int64(run.Ticks), run.Error, formatTimePtr(run.FinishedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)

	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// --- Switch trace ---

// AddSwitchEvents appends events to the trace of runID in one transaction.
func (s *SQLiteStore) AddSwitchEvents(ctx context.Context, runID string, events []model.SwitchEvent) error {
	s.logger.Debug("sql", "op", "insert", "table", "switch_events", "run_id", runID, "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO switch_events (run_id, seq, from_pid, from_name, to_pid, to_name, tick, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, int64(ev.FromPID), ev.FromName,
			int64(ev.ToPID), ev.ToName, int64(ev.Tick), ev.At.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert switch %d: %w", ev.Seq, err)
		}
	}
	return tx.Commit()
}

// ListSwitchEvents returns the trace of runID in switch order.
func (s *SQLiteStore) ListSwitchEvents(ctx context.Context, runID string) ([]model.SwitchEvent, error) {
	s.logger.Debug("sql", "op", "list", "table", "switch_events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, from_pid, from_name, to_pid, to_name, tick, at
		 FROM switch_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.SwitchEvent
	for rows.Next() {
		var ev model.SwitchEvent
		var fromPID, toPID, tick int64
		var at string
		if err := rows.Scan(&ev.Seq, &fromPID, &ev.FromName, &toPID, &ev.ToName, &tick, &at); err != nil {
			return nil, err
		}
		ev.FromPID = model.PID(fromPID)
		ev.ToPID = model.PID(toPID)
		ev.Tick = uint64(tick)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Task snapshots ---

// SaveTaskSnapshot replaces the registry snapshot stored for runID.
func (s *SQLiteStore) SaveTaskSnapshot(ctx context.Context, runID string, tasks []model.TaskInfo) error {
	s.logger.Debug("sql", "op", "insert", "table", "task_snapshots", "run_id", runID, "count", len(tasks))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_snapshots WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for _, ti := range tasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_snapshots (run_id, pid, name, status, priority, ticks_remaining, elapsed_ticks,
			 page_addr, stack_pointer, has_address_space, canary_ok)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, int64(ti.PID), ti.Name, string(ti.Status), ti.Priority, ti.TicksRemaining,
			int64(ti.ElapsedTicks), int64(ti.PageAddr), int64(ti.StackPointer),
			boolToInt(ti.HasAddressSpace), boolToInt(ti.CanaryOK),
		); err != nil {
			return fmt.Errorf("insert task %d: %w", ti.PID, err)
		}
	}
	return tx.Commit()
}

// ListTaskSnapshot returns the stored snapshot of runID ordered by pid.
func (s *SQLiteStore) ListTaskSnapshot(ctx context.Context, runID string) ([]model.TaskInfo, error) {
	s.logger.Debug("sql", "op", "list", "table", "task_snapshots", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT pid, name, status, priority, ticks_remaining, elapsed_ticks, page_addr, stack_pointer,
		 has_address_space, canary_ok
		 FROM task_snapshots WHERE run_id = ? ORDER BY pid`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.TaskInfo
	for rows.Next() {
		var ti model.TaskInfo
		var pid, elapsed, pageAddr, sp int64
		var status string
		var hasAS, canary int
		if err := rows.Scan(&pid, &ti.Name, &status, &ti.Priority, &ti.TicksRemaining, &elapsed,
			&pageAddr, &sp, &hasAS, &canary); err != nil {
			return nil, err
		}
		ti.PID = model.PID(pid)
		ti.Status = model.TaskStatus(status)
		ti.ElapsedTicks = uint64(elapsed)
		ti.PageAddr = uint32(pageAddr)
		ti.StackPointer = uint32(sp)
		ti.HasAddressSpace = hasAS != 0
		ti.CanaryOK = canary != 0
		tasks = append(tasks, ti)
	}
	return tasks, rows.Err()
}

// --- helpers ---

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var status, startedAt string
	var ticks int64
	var finishedAt *string

	if err := row.Scan(&run.ID, &run.Scenario, &status, &run.Switches, &ticks, &run.Error,
		&startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	run.Ticks = uint64(ticks)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
