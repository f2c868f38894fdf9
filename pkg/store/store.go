// Package store persists step results. The engine uses a StepResultStore
// for idempotency (a step ID that already completed is served from the
// store instead of re-running the action) and callers use it as an audit
// trail of verified executions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// ErrNotFound is returned when no result exists for a step ID.
var ErrNotFound = errors.New("step result not found")

// Record is a persisted step outcome.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Record struct {
	StepID    string                `json:"step_id"`
	TenantID  string                `json:"tenant_id"`
	Action    string                `json:"action"`
	Status    contracts.StepStatus  `json:"status"`
	Result    *contracts.StepResult `json:"result"`
	CreatedAt time.Time             `json:"created_at"`
}

// StepResultStore persists and recalls step outcomes by step ID.
type StepResultStore interface {
	Get(ctx context.Context, stepID string) (*Record, error)
	Put(ctx context.Context, rec *Record) error
}

// MemoryStore is a thread-safe in-memory implementation, used in tests
// and in single-process deployments that do not need durable idempotency.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns the record for stepID or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, stepID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[stepID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// Put stores the record, replacing any previous record for the step ID.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.StepID == "" {
		return errors.New("record requires a step id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.StepID] = rec
	return nil
}

// encodeResult marshals the embedded StepResult for SQL and Redis
// backends; decodeResult reverses it.
func encodeResult(rec *Record) ([]byte, error) {
	return json.Marshal(rec.Result)
}

func decodeResult(data []byte) (*contracts.StepResult, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var sr contracts.StepResult
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, err
	}
	return &sr, nil
}
