package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists step results in SQLite, for single-node
// deployments that want durable idempotency without a database server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the store and its backing table.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS step_results (
		step_id TEXT PRIMARY KEY,
		tenant_id TEXT,
		action TEXT,
		status TEXT,
		result_json TEXT,
		created_at DATETIME
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Get returns the record for stepID or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, stepID string) (*Record, error) {
	query := `
		SELECT step_id, tenant_id, action, status, result_json, created_at
		FROM step_results
		WHERE step_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, stepID)

	var rec Record
	var resultJSON []byte
	var createdAt time.Time
	err := row.Scan(&rec.StepID, &rec.TenantID, &rec.Action, &rec.Status, &resultJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.CreatedAt = createdAt
	rec.Result, err = decodeResult(resultJSON)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put upserts the record.
func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.StepID == "" {
		return errors.New("record requires a step id")
	}
	resultJSON, err := encodeResult(rec)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO step_results (step_id, tenant_id, action, status, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (step_id) DO UPDATE
		SET tenant_id = excluded.tenant_id,
			action = excluded.action,
			status = excluded.status,
			result_json = excluded.result_json,
			created_at = excluded.created_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.StepID, rec.TenantID, rec.Action, rec.Status, resultJSON, rec.CreatedAt,
	)
	return err
}
