package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthTarget defines the acceptable verification profile for one
// action: how often its contract may fail and how slow the step may be.
type HealthTarget struct {
	Action      string        `json:"action"`
	LatencyP99  time.Duration `json:"latency_p99"`
	PassRate    float64       `json:"pass_rate"` // 0-1
	WindowHours int           `json:"window_hours"`
}

// Observation is a single step outcome.
type Observation struct {
	Action    string        `json:"action"`
	Latency   time.Duration `json:"latency"`
	Passed    bool          `json:"passed"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthStatus reports an action's current standing against its target.
type HealthStatus struct {
	Action          string  `json:"action"`
	CurrentP99      float64 `json:"current_p99_ms"`
	CurrentPassRate float64 `json:"current_pass_rate"`
	Healthy         bool    `json:"healthy"`
	// BurnRate >1 means the action is failing faster than its budget
	// allows.
	BurnRate         float64 `json:"burn_rate"`
	FailBudgetLeft   float64 `json:"fail_budget_left"`
	ObservationCount int     `json:"observation_count"`
}

// HealthTracker monitors contract pass rates per action.
type HealthTracker struct {
	mu           sync.Mutex
	targets      map[string]*HealthTarget
	observations map[string][]Observation
	clock        func() time.Time
}

// NewHealthTracker creates an empty tracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		targets:      make(map[string]*HealthTarget),
		observations: make(map[string][]Observation),
		clock:        time.Now,
	}
}

// WithClock overrides the clock for testing.
func (t *HealthTracker) WithClock(clock func() time.Time) *HealthTracker {
	t.clock = clock
	return t
}

// SetTarget sets the health target for an action.
func (t *HealthTracker) SetTarget(target *HealthTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[target.Action] = target
}

// Record records one step outcome.
func (t *HealthTracker) Record(obs Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.Timestamp.IsZero() {
		obs.Timestamp = t.clock()
	}
	t.observations[obs.Action] = append(t.observations[obs.Action], obs)
}

// Status computes the current health of an action. Actions without a
// target are unknown to the tracker.
func (t *HealthTracker) Status(action string) (*HealthStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.targets[action]
	if !ok {
		return nil, fmt.Errorf("no health target for action %q", action)
	}

	now := t.clock()
	windowStart := now.Add(-time.Duration(target.WindowHours) * time.Hour)

	var windowed []Observation
	for _, obs := range t.observations[action] {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return &HealthStatus{
			Action:         action,
			Healthy:        true,
			FailBudgetLeft: 100.0,
		}, nil
	}

	passCount := 0
	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		if obs.Passed {
			passCount++
		}
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	passRate := float64(passCount) / float64(len(windowed))

	sort.Float64s(latencies)
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	healthy := p99 <= float64(target.LatencyP99.Milliseconds()) &&
		passRate >= target.PassRate

	failBudget := 1.0 - target.PassRate
	failRate := 1.0 - passRate
	var burnRate float64
	budgetLeft := 100.0
	if failBudget > 0 {
		burnRate = failRate / failBudget
		budgetLeft = 100.0 * (1.0 - burnRate)
		if budgetLeft < 0 {
			budgetLeft = 0
		}
	} else if failRate > 0 {
		burnRate = failRate / 0.000001
		budgetLeft = 0
	}

	return &HealthStatus{
		Action:           action,
		CurrentP99:       p99,
		CurrentPassRate:  passRate,
		Healthy:          healthy,
		BurnRate:         burnRate,
		FailBudgetLeft:   budgetLeft,
		ObservationCount: len(windowed),
	}, nil
}
