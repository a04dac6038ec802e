package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/anvil/internal/model"

	_ "modernc.org/sqlite"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    queue       TEXT NOT NULL,
    topic       TEXT NOT NULL DEFAULT '',
    executor    TEXT NOT NULL,
    command     TEXT NOT NULL,
    timeout_ms  INTEGER NOT NULL DEFAULT 0,
    status      TEXT NOT NULL,
    success     INTEGER,
    exit_code   INTEGER,
    stdout      TEXT NOT NULL DEFAULT '',
    stderr      TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    finished_at DATETIME
)`

const createQueueIndex = `CREATE INDEX IF NOT EXISTS idx_executions_queue ON executions (queue, created_at)`

const executionColumns = `id, queue, topic, executor, command, timeout_ms, status,
	success, exit_code, stdout, stderr, duration_ms, created_at, finished_at`

// ErrNotFound is returned when an execution is not found.
var ErrNotFound = errors.New("execution not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createExecutionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create executions table: %w", err)
	}

	if _, err := db.Exec(createQueueIndex); err != nil {
		db.Close()
		return nil, fmt.Errorf("create queue index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateExecution inserts a new execution record.
func (s *SQLiteStore) CreateExecution(ctx context.Context, e *model.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Queue, e.Topic, e.Executor, e.Command, e.TimeoutMS, e.Status,
		e.Success, e.ExitCode, e.Stdout, e.Stderr, e.DurationMS, e.CreatedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// CompleteExecution stores the result of a queued execution. Completing an
// execution twice returns ErrAlreadyCompleted.
func (s *SQLiteStore) CompleteExecution(ctx context.Context, id string, result model.ExecutionResult, finishedAt time.Time) error {
	var exitCode *int
	if result.ExitCode != model.NoExitCode {
		code := result.ExitCode
		exitCode = &code
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE executions
		SET status = ?, success = ?, exit_code = ?, stdout = ?, stderr = ?,
			duration_ms = ?, finished_at = ?
		WHERE id = ? AND status = ?`,
		result.Status(), result.Success, exitCode, string(result.Stdout), string(result.Stderr),
		result.Duration.Milliseconds(), finishedAt.UTC(),
		id, model.StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("complete execution: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Distinguish a missing row from one that already finished.
	if _, err := s.GetExecution(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyCompleted
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*model.Execution, error) {
	e := &model.Execution{}
	err := row.Scan(
		&e.ID, &e.Queue, &e.Topic, &e.Executor, &e.Command, &e.TimeoutMS, &e.Status,
		&e.Success, &e.ExitCode, &e.Stdout, &e.Stderr, &e.DurationMS, &e.CreatedAt, &e.FinishedAt,
	)
	return e, err
}

// GetExecution retrieves an execution by ID.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	e, err := scanExecution(s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns a paginated list of executions ordered by
// created_at DESC, along with the total count. An empty queue lists all
// queues.
func (s *SQLiteStore) ListExecutions(ctx context.Context, queue string, limit, offset int) ([]*model.Execution, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	where := ""
	var args []any
	if queue != "" {
		where = " WHERE queue = ?"
		args = append(args, queue)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM executions`+where+
			` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return executions, total, nil
}

// GetExecutionStats returns aggregate counts and the average duration of
// finished executions.
func (s *SQLiteStore) GetExecutionStats(ctx context.Context) (*ExecutionStats, error) {
	stats := &ExecutionStats{
		CountByStatus: make(map[string]int),
		CountByQueue:  make(map[string]int),
	}

	if err := s.countBy(ctx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "queue", stats.CountByQueue); err != nil {
		return nil, err
	}
	for _, n := range stats.CountByStatus {
		stats.Total += n
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM executions WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

// countBy fills into with row counts grouped by column. column is never user input.
func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM executions GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}
