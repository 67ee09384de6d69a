package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/h2a-linkage/internal/table"
)

// Supported drivers
const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

// Run statuses
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// ErrNotFound is returned when a run or table does not exist
var ErrNotFound = errors.New("not found")

// Run is one audited pipeline stage execution
type Run struct {
	ID         string     `json:"id"`
	Stage      string     `json:"stage"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	RowsIn     int        `json:"rows_in"`
	RowsOut    int        `json:"rows_out"`
	Message    string     `json:"message,omitempty"`
}

// Store persists pipeline outputs and run audit rows
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and creates the schema
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case Postgres, SQLite:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	if driver == SQLite {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for health checks
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			rows_in INTEGER NOT NULL DEFAULT 0,
			rows_out INTEGER NOT NULL DEFAULT 0,
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS output_tables (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			columns_json TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			PRIMARY KEY (run_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS output_rows (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			row_json TEXT NOT NULL,
			PRIMARY KEY (run_id, name, row_index)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// StartRun records the start of a stage and returns its run
func (s *Store) StartRun(ctx context.Context, stage string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO pipeline_runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`),
		run.ID, run.Stage, run.Status, formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run finished. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id string, rowsIn, rowsOut int, runErr error) error {
	status, message := StatusSuccess, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE pipeline_runs SET status = ?, finished_at = ?, rows_in = ?, rows_out = ?, message = ? WHERE id = ?`),
		status, formatTime(time.Now()), rowsIn, rowsOut, message, id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Runs lists runs, newest first
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, stage, status, started_at, finished_at, rows_in, rows_out, message
		 FROM pipeline_runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
			message  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Stage, &r.Status, &started, &finished, &r.RowsIn, &r.RowsOut, &message); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: bad start time: %w", r.ID, err)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("run %s: bad finish time: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		r.Message = message.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveTable stores every row of t under (runID, name), replacing an earlier
// table of the same name
func (s *Store) SaveTable(ctx context.Context, runID, name string, t *table.Table) error {
	columns, err := json.Marshal(t.Columns)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM output_rows WHERE run_id = ? AND name = ?`,
		`DELETE FROM output_tables WHERE run_id = ? AND name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(q), runID, name); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO output_tables (run_id, name, columns_json, row_count) VALUES (?, ?, ?, ?)`),
		runID, name, string(columns), t.Len()); err != nil {
		return fmt.Errorf("failed to insert table %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO output_rows (run_id, name, row_index, row_json) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range t.Rows {
		cells := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			cells[c] = encodeCell(r[c])
		}
		data, err := json.Marshal(cells)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, name, i, string(data)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// encodeCell keeps numbers and strings, renders other values as text
func encodeCell(v any) any {
	if table.IsNull(v) {
		return nil
	}
	switch v.(type) {
	case string, float64, int, int64, bool:
		return v
	}
	return table.Format(v)
}

// LoadTable reads a stored table. Numbers come back as float64 and dates
// as their text form.
func (s *Store) LoadTable(ctx context.Context, runID, name string) (*table.Table, error) {
	var columnsJSON string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT columns_json FROM output_tables WHERE run_id = ? AND name = ?`), runID, name).Scan(&columnsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("table %s of run %s: %w", name, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load table %s: %w", name, err)
	}
	var columns []string
	if err := json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return nil, fmt.Errorf("table %s: bad columns: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT row_json FROM output_rows WHERE run_id = ? AND name = ? ORDER BY row_index`), runID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	t := table.New(columns...)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(table.Row, len(columns))
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("bad row: %w", err)
		}
		t.Append(row)
	}
	return t, rows.Err()
}
