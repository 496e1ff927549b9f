package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Types
// =============================================================================

// runRow represents a run row in the database.
type runRow struct {
	ID         string  `db:"id"`
	Stack      string  `db:"stack"`
	Operation  string  `db:"operation"`
	Profile    string  `db:"profile"`
	Parameters *string `db:"parameters"`
	Outcome    string  `db:"outcome"`
	StartedAt  string  `db:"started_at"`
	FinishedAt string  `db:"finished_at"`
}

// runServiceRow represents a per-service outcome row.
type runServiceRow struct {
	RunID     string `db:"run_id"`
	Service   string `db:"service"`
	State     string `db:"state"`
	Reason    string `db:"reason"`
	ElapsedMS int64  `db:"elapsed_ms"`
}

func runToRow(run *Run) (*runRow, error) {
	row := &runRow{
		ID:         run.ID,
		Stack:      run.Stack,
		Operation:  string(run.Operation),
		Profile:    run.Profile,
		Outcome:    run.Outcome,
		StartedAt:  run.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: run.FinishedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(run.Parameters) > 0 {
		data, err := json.Marshal(run.Parameters)
		if err != nil {
			return nil, NewStoreError("runToRow", run.ID, "failed to marshal parameters", ErrInvalidData)
		}
		s := string(data)
		row.Parameters = &s
	}
	return row, nil
}

func rowToRun(row *runRow) (*Run, error) {
	run := &Run{
		ID:        row.ID,
		Stack:     row.Stack,
		Operation: Operation(row.Operation),
		Profile:   row.Profile,
		Outcome:   row.Outcome,
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, row.StartedAt)
	run.FinishedAt, _ = time.Parse(time.RFC3339Nano, row.FinishedAt)
	if row.Parameters != nil && *row.Parameters != "" {
		if err := json.Unmarshal([]byte(*row.Parameters), &run.Parameters); err != nil {
			return nil, NewStoreError("rowToRun", row.ID, "failed to unmarshal parameters", ErrInvalidData)
		}
	}
	return run, nil
}

// =============================================================================
// Run Operations
// =============================================================================

func (s *SQLiteStore) RecordRun(ctx context.Context, run *Run) error {
	row, err := runToRow(run)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("RecordRun", run.ID, err.Error(), err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO runs (id, stack, operation, profile, parameters, outcome, started_at, finished_at)
		VALUES (:id, :stack, :operation, :profile, :parameters, :outcome, :started_at, :finished_at)
	`, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return NewStoreError("RecordRun", run.ID, "run already recorded", ErrDuplicateID)
		}
		return NewStoreError("RecordRun", run.ID, err.Error(), err)
	}

	for _, svc := range run.Services {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO run_services (run_id, service, state, reason, elapsed_ms)
			VALUES (:run_id, :service, :state, :reason, :elapsed_ms)
		`, &runServiceRow{
			RunID:     run.ID,
			Service:   svc.Service,
			State:     svc.State,
			Reason:    svc.Reason,
			ElapsedMS: svc.Elapsed.Milliseconds(),
		})
		if err != nil {
			return NewStoreError("RecordRun", run.ID, err.Error(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("RecordRun", run.ID, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", id, err.Error(), err)
	}

	run, err := rowToRun(&row)
	if err != nil {
		return nil, err
	}

	var serviceRows []runServiceRow
	err = s.db.SelectContext(ctx, &serviceRows, `
		SELECT run_id, service, state, reason, elapsed_ms
		FROM run_services WHERE run_id = ? ORDER BY service
	`, id)
	if err != nil {
		return nil, NewStoreError("GetRun", id, err.Error(), err)
	}

	for _, sr := range serviceRows {
		run.Services = append(run.Services, RunService{
			Service: sr.Service,
			State:   sr.State,
			Reason:  sr.Reason,
			Elapsed: time.Duration(sr.ElapsedMS) * time.Millisecond,
		})
	}

	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, stackName string, opts ListOptions) ([]Run, error) {
	opts = opts.Normalize()

	query := `SELECT * FROM runs`
	args := []any{}
	if stackName != "" {
		query += ` WHERE stack = ?`
		args = append(args, stackName)
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListRuns", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(rows))
	for i := range rows {
		run, err := rowToRun(&rows[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, nil
}

func (s *SQLiteStore) PruneRuns(ctx context.Context, stackName string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE stack = ? AND id NOT IN (
			SELECT id FROM runs WHERE stack = ? ORDER BY started_at DESC LIMIT ?
		)
	`, stackName, stackName, keep)
	if err != nil {
		return 0, NewStoreError("PruneRuns", "", err.Error(), err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, NewStoreError("PruneRuns", "", err.Error(), err)
	}
	return deleted, nil
}
