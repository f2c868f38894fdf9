package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// PostgresStore persists step results in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens a Postgres-backed store from a connection URL and
// creates the backing table.
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	s := NewPostgresStore(db)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const pgStoreSchema = `
CREATE TABLE IF NOT EXISTS step_results (
	step_id TEXT PRIMARY KEY,
	tenant_id TEXT,
	action TEXT,
	status TEXT,
	result_json JSONB,
	created_at TIMESTAMP
);
`

// Init creates the backing table.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, pgStoreSchema)
	return err
}

// Get returns the record for stepID or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, stepID string) (*Record, error) {
	query := `
		SELECT step_id, tenant_id, action, status, result_json, created_at
		FROM step_results
		WHERE step_id = $1
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
func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.StepID == "" {
		return errors.New("record requires a step id")
	}
	resultJSON, err := encodeResult(rec)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO step_results (step_id, tenant_id, action, status, result_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (step_id) DO UPDATE
		SET tenant_id = $2, action = $3, status = $4, result_json = $5, created_at = $6
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.StepID, rec.TenantID, rec.Action, rec.Status, resultJSON, rec.CreatedAt,
	)
	return err
}
