package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// SQLRegistry persists contracts as JSON documents in a SQL table, for
// deployments that manage contract definitions centrally instead of
// shipping pack files. Reads go through an in-memory snapshot taken by
// LoadAll, keeping the hot path free of database round trips.
type SQLRegistry struct {
	db    *sql.DB
	cache *InMemoryRegistry
}

// NewSQLRegistry creates a registry over the given database handle.
func NewSQLRegistry(db *sql.DB) *SQLRegistry {
	return &SQLRegistry{db: db, cache: NewInMemoryRegistry()}
}

const sqlRegistrySchema = `
CREATE TABLE IF NOT EXISTS execution_contracts (
	action TEXT PRIMARY KEY,
	contract_json JSONB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Init creates the backing table.
func (r *SQLRegistry) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqlRegistrySchema)
	return err
}

// Save upserts one contract document.
func (r *SQLRegistry) Save(ctx context.Context, c *contracts.Contract) error {
	if c == nil {
		return errors.New("nil contract")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal contract %s: %w", c.Action, err)
	}
	query := `
		INSERT INTO execution_contracts (action, contract_json, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (action) DO UPDATE
		SET contract_json = $2, updated_at = $3
	`
	_, err = r.db.ExecContext(ctx, query, c.Action, doc, time.Now().UTC())
	return err
}

// LoadAll reads every stored contract into the in-memory snapshot. Called
// once at startup; subsequent GetContract calls never touch the database.
func (r *SQLRegistry) LoadAll(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT contract_json FROM execution_contracts`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	fresh := NewInMemoryRegistry()
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return err
		}
		var c contracts.Contract
		if err := json.Unmarshal(doc, &c); err != nil {
			return fmt.Errorf("decode stored contract: %w", err)
		}
		if err := fresh.Register(&c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.cache = fresh
	return nil
}

// GetContract serves from the snapshot loaded by LoadAll.
func (r *SQLRegistry) GetContract(action string) *contracts.Contract {
	return r.cache.GetContract(action)
}

// List returns the snapshot's contracts.
func (r *SQLRegistry) List() []*contracts.Contract {
	return r.cache.List()
}
