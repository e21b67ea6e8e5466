package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"labengine/internal/model"

	_ "modernc.org/sqlite"
)

const createInstancesTable = `
CREATE TABLE IF NOT EXISTS instances (
    id             TEXT PRIMARY KEY,
    user_id        TEXT NOT NULL,
    environment_id TEXT NOT NULL,
    state          TEXT NOT NULL,
    state_details  TEXT NOT NULL DEFAULT '',
    access_url     TEXT NOT NULL DEFAULT '',
    credentials    TEXT,
    attempt        INTEGER NOT NULL DEFAULT 1,
    created_at     DATETIME NOT NULL,
    terminated_at  DATETIME
)`

// Partial unique index enforcing at most one live instance per (user, environment).
// Terminated rows are excluded so history is retained across restarts.
const createActiveInstanceIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_instances_active
ON instances(user_id, environment_id) WHERE state != 'terminated'`

const createProgressTable = `
CREATE TABLE IF NOT EXISTS task_progress (
    instance_id     TEXT NOT NULL,
    task_id         TEXT NOT NULL,
    completed       INTEGER NOT NULL DEFAULT 0,
    attempts        INTEGER NOT NULL DEFAULT 0,
    score           INTEGER NOT NULL DEFAULT 0,
    last_attempt_at DATETIME,
    PRIMARY KEY (instance_id, task_id)
)`

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

	if dbPath == ":memory:" {
		// Each pool connection to :memory: gets its own empty database, so the
		// pool must stay at a single connection.
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

	for _, stmt := range []string{createInstancesTable, createActiveInstanceIndex, createProgressTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateInstance inserts a new instance record.
func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *model.LabInstance) error {
	creds, err := marshalCredentials(inst.Credentials)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO instances (
			id, user_id, environment_id, state, state_details,
			access_url, credentials, attempt, created_at, terminated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.UserID, inst.EnvironmentID, inst.State, inst.StateDetails,
		inst.AccessURL, creds, inst.Attempt, inst.CreatedAt, inst.TerminatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateInstance
		}
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by id.
func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*model.LabInstance, error) {
	return s.queryInstance(ctx, "WHERE id = ?", id)
}

// ActiveInstance returns the non-terminated instance for the pair, if any.
func (s *SQLiteStore) ActiveInstance(ctx context.Context, userID, environmentID string) (*model.LabInstance, error) {
	return s.queryInstance(ctx,
		"WHERE user_id = ? AND environment_id = ? AND state != ?",
		userID, environmentID, model.StateTerminated,
	)
}

func (s *SQLiteStore) queryInstance(ctx context.Context, where string, args ...any) (*model.LabInstance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, environment_id, state, state_details,
			access_url, credentials, attempt, created_at, terminated_at
		FROM instances `+where, args...,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// ListUserInstances returns a paginated list of a user's instances ordered by
// created_at DESC, along with the user's total instance count.
func (s *SQLiteStore) ListUserInstances(ctx context.Context, userID string, limit, offset int) ([]*model.LabInstance, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM instances WHERE user_id = ?", userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count instances: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, environment_id, state, state_details,
			access_url, credentials, attempt, created_at, terminated_at
		FROM instances WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var instances []*model.LabInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate instances: %w", err)
	}

	return instances, total, nil
}

// TransitionInstance applies a compare-and-set state update. Reaching
// terminated also stamps terminated_at, exactly once.
func (s *SQLiteStore) TransitionInstance(ctx context.Context, id, from, to, details string) error {
	var result sql.Result
	var err error

	if to == model.StateTerminated {
		result, err = s.db.ExecContext(ctx,
			`UPDATE instances SET state = ?, state_details = ?,
				terminated_at = COALESCE(terminated_at, ?)
			WHERE id = ? AND state = ?`,
			to, details, time.Now().UTC(), id, from,
		)
	} else {
		result, err = s.db.ExecContext(ctx,
			"UPDATE instances SET state = ?, state_details = ? WHERE id = ? AND state = ?",
			to, details, id, from,
		)
	}
	if err != nil {
		return fmt.Errorf("transition instance: %w", err)
	}
	return s.casOutcome(ctx, result, id)
}

// MarkRunning transitions provisioning→running and records access details.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id, accessURL string, credentials map[string]string) error {
	creds, err := marshalCredentials(credentials)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE instances SET state = ?, state_details = ?, access_url = ?, credentials = ?
		WHERE id = ? AND state = ?`,
		model.StateRunning, "environment ready", accessURL, creds,
		id, model.StateProvisioning,
	)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return s.casOutcome(ctx, result, id)
}

// RetryInstance transitions failed→provisioning and increments the attempt counter.
func (s *SQLiteStore) RetryInstance(ctx context.Context, id, details string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE instances SET state = ?, state_details = ?, attempt = attempt + 1
		WHERE id = ? AND state = ?`,
		model.StateProvisioning, details, id, model.StateFailed,
	)
	if err != nil {
		return fmt.Errorf("retry instance: %w", err)
	}
	return s.casOutcome(ctx, result, id)
}

// casOutcome interprets a zero-rows-affected CAS update: the instance either
// does not exist (ErrNotFound) or is not in the expected state (ErrInvalidTransition).
func (s *SQLiteStore) casOutcome(ctx context.Context, result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check instance exists: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// RecordAttempt upserts the progress row, incrementing attempts and stamping
// last_attempt_at, and returns the updated row.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, instanceID, taskID string, at time.Time) (*model.TaskProgress, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_progress (instance_id, task_id, completed, attempts, score, last_attempt_at)
		VALUES (?, ?, 0, 1, 0, ?)
		ON CONFLICT(instance_id, task_id) DO UPDATE SET
			attempts = attempts + 1,
			last_attempt_at = excluded.last_attempt_at`,
		instanceID, taskID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return s.GetProgress(ctx, instanceID, taskID)
}

// CompleteTask flips the completed ratchet and awards the score. The WHERE
// completed = 0 guard makes exactly one concurrent writer win.
func (s *SQLiteStore) CompleteTask(ctx context.Context, instanceID, taskID string, score int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE task_progress SET completed = 1, score = ?
		WHERE instance_id = ? AND task_id = ? AND completed = 0`,
		score, instanceID, taskID,
	)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM task_progress WHERE instance_id = ? AND task_id = ?",
		instanceID, taskID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check progress exists: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrAlreadyCompleted
}

// GetProgress retrieves the progress row for (instanceID, taskID).
func (s *SQLiteStore) GetProgress(ctx context.Context, instanceID, taskID string) (*model.TaskProgress, error) {
	p := &model.TaskProgress{}
	var completed int
	err := s.db.QueryRowContext(ctx,
		`SELECT instance_id, task_id, completed, attempts, score, last_attempt_at
		FROM task_progress WHERE instance_id = ? AND task_id = ?`,
		instanceID, taskID,
	).Scan(&p.InstanceID, &p.TaskID, &completed, &p.Attempts, &p.Score, &p.LastAttemptAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	p.Completed = completed != 0
	return p, nil
}

// ListProgress returns all progress rows for an instance ordered by task id.
func (s *SQLiteStore) ListProgress(ctx context.Context, instanceID string) ([]model.TaskProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT instance_id, task_id, completed, attempts, score, last_attempt_at
		FROM task_progress WHERE instance_id = ? ORDER BY task_id`,
		instanceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var progress []model.TaskProgress
	for rows.Next() {
		var p model.TaskProgress
		var completed int
		if err := rows.Scan(&p.InstanceID, &p.TaskID, &completed, &p.Attempts, &p.Score, &p.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		p.Completed = completed != 0
		progress = append(progress, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}

	return progress, nil
}

// InstanceStats returns aggregate counts across all instances.
func (s *SQLiteStore) InstanceStats(ctx context.Context) (*InstanceStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &InstanceStats{
		CountByState:       make(map[string]int),
		CountByEnvironment: make(map[string]int),
	}

	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM instances").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT state, COUNT(*) FROM instances GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		stats.CountByState[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state counts: %w", err)
	}

	envRows, err := tx.QueryContext(ctx, "SELECT environment_id, COUNT(*) FROM instances GROUP BY environment_id")
	if err != nil {
		return nil, fmt.Errorf("count by environment: %w", err)
	}
	defer envRows.Close()
	for envRows.Next() {
		var env string
		var count int
		if err := envRows.Scan(&env, &count); err != nil {
			return nil, fmt.Errorf("scan environment count: %w", err)
		}
		stats.CountByEnvironment[env] = count
	}
	if err := envRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate environment counts: %w", err)
	}

	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*model.LabInstance, error) {
	inst := &model.LabInstance{}
	var creds sql.NullString
	err := row.Scan(
		&inst.ID, &inst.UserID, &inst.EnvironmentID, &inst.State, &inst.StateDetails,
		&inst.AccessURL, &creds, &inst.Attempt, &inst.CreatedAt, &inst.TerminatedAt,
	)
	if err != nil {
		return nil, err
	}
	if creds.Valid && creds.String != "" {
		if err := json.Unmarshal([]byte(creds.String), &inst.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	return inst, nil
}

func marshalCredentials(credentials map[string]string) (any, error) {
	if credentials == nil {
		return nil, nil
	}
	data, err := json.Marshal(credentials)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return string(data), nil
}
