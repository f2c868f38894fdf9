package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// EntryType categorizes timeline entries.
type EntryType string

const (
	EntryStepCompleted    EntryType = "STEP_COMPLETED"
	EntryStepFailed       EntryType = "STEP_FAILED"
	EntryRollbackProposed EntryType = "ROLLBACK_PROPOSED"
)

// Entry is a single event on the verification timeline.
type Entry struct {
	EntryID     string         `json:"entry_id"`
	Type        EntryType      `json:"type"`
	StepID      string         `json:"step_id"`
	TenantID    string         `json:"tenant_id"`
	Action      string         `json:"action"`
	Timestamp   time.Time      `json:"timestamp"`
	Summary     string         `json:"summary"`
	ContentHash string         `json:"content_hash"`
	Details     map[string]any `json:"details,omitempty"`
}

// TimelineQuery filters timeline entries. Zero-valued fields match
// everything.
type TimelineQuery struct {
	StepID   string     `json:"step_id,omitempty"`
	TenantID string     `json:"tenant_id,omitempty"`
	Action   string     `json:"action,omitempty"`
	Type     *EntryType `json:"type,omitempty"`
	After    *time.Time `json:"after,omitempty"`
	Before   *time.Time `json:"before,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// Timeline collects and queries verification events. Entries are
// append-only and content-hashed at record time.
type Timeline struct {
	mu      sync.RWMutex
	entries []Entry
	byStep  map[string][]int
	seq     int64
	clock   func() time.Time
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		byStep: make(map[string][]int),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *Timeline) WithClock(clock func() time.Time) *Timeline {
	t.clock = clock
	return t
}

// Record appends an entry. EntryID, Timestamp and ContentHash are
// assigned here.
func (t *Timeline) Record(entry Entry) error {
	if entry.Type == "" {
		return fmt.Errorf("timeline entry requires a type")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	entry.EntryID = fmt.Sprintf("te-%d", t.seq)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.clock()
	}
	entry.ContentHash = hashEntry(entry)

	idx := len(t.entries)
	t.entries = append(t.entries, entry)
	if entry.StepID != "" {
		t.byStep[entry.StepID] = append(t.byStep[entry.StepID], idx)
	}
	return nil
}

// Query returns matching entries in timestamp order.
func (t *Timeline) Query(q TimelineQuery) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var candidates []int
	if q.StepID != "" {
		candidates = t.byStep[q.StepID]
	} else {
		candidates = make([]int, len(t.entries))
		for i := range t.entries {
			candidates[i] = i
		}
	}

	var out []Entry
	for _, i := range candidates {
		e := t.entries[i]
		if q.TenantID != "" && e.TenantID != q.TenantID {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.Type != nil && e.Type != *q.Type {
			continue
		}
		if q.After != nil && !e.Timestamp.After(*q.After) {
			continue
		}
		if q.Before != nil && !e.Timestamp.Before(*q.Before) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Count returns the total number of recorded entries.
func (t *Timeline) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func hashEntry(e Entry) string {
	// Hash covers identity and payload, not the hash field itself.
	e.ContentHash = ""
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
