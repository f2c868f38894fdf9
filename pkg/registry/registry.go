// Package registry provides read-only lookup of execution contracts by
// action name. Contracts are loaded once at process start; after loading,
// lookups are lock-free reads under an RWMutex.
package registry

import (
	"errors"
	"sync"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// ErrContractNotFound is returned by Get for unknown action names.
var ErrContractNotFound = errors.New("contract not found")

// Lookup is the engine-facing read API. A nil return from GetContract
// means the action runs unverified (the deliberate escape hatch for
// actions that do not yet warrant formal contracts).
type Lookup interface {
	GetContract(action string) *contracts.Contract
}

// Registry is the full registry API: load-time registration plus lookup.
type Registry interface {
	Lookup
	Register(c *contracts.Contract) error
	Get(action string) (*contracts.Contract, error)
	List() []*contracts.Contract
}

// InMemoryRegistry is a thread-safe in-memory implementation.
type InMemoryRegistry struct {
	mu        sync.RWMutex
	contracts map[string]*contracts.Contract
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{contracts: make(map[string]*contracts.Contract)}
}

// Register validates and stores a contract. Registering the same action
// twice replaces the earlier contract.
func (r *InMemoryRegistry) Register(c *contracts.Contract) error {
	if c == nil {
		return errors.New("nil contract")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.Action] = c
	return nil
}

// GetContract returns the contract for the action, or nil when none is
// declared.
func (r *InMemoryRegistry) GetContract(action string) *contracts.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contracts[action]
}

// Get returns the contract or ErrContractNotFound.
func (r *InMemoryRegistry) Get(action string) (*contracts.Contract, error) {
	if c := r.GetContract(action); c != nil {
		return c, nil
	}
	return nil, ErrContractNotFound
}

// List returns all registered contracts in unspecified order.
func (r *InMemoryRegistry) List() []*contracts.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*contracts.Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	return out
}
