package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/TenFourTeam/ServiceGrid-sub002/pkg/contracts"
)

// SupportedSchemaConstraint gates the schema_version of contract packs.
// Major version 2 would signal an incompatible pack layout.
const SupportedSchemaConstraint = "^1"

// PackFile is one contract pack on disk: a schema version plus a list of
// contracts. Packs are authored in YAML.
type PackFile struct {
	SchemaVersion string               `yaml:"schema_version" json:"schema_version"`
	Description   string               `yaml:"description,omitempty" json:"description,omitempty"`
	Contracts     []contracts.Contract `yaml:"contracts" json:"contracts"`
}

// FSRegistry loads contract packs from a directory of *.yaml / *.yml
// files into an in-memory registry. Loading happens once at startup.
type FSRegistry struct {
	*InMemoryRegistry
	rootDir string
}

// NewFSRegistry creates a registry rooted at dir. Call Load before use.
func NewFSRegistry(dir string) *FSRegistry {
	return &FSRegistry{
		InMemoryRegistry: NewInMemoryRegistry(),
		rootDir:          dir,
	}
}

// Load parses every pack file under the root directory. Any structural
// error aborts the load; a half-loaded registry is worse than a failed
// start.
func (r *FSRegistry) Load() error {
	entries, err := os.ReadDir(r.rootDir)
	if err != nil {
		return fmt.Errorf("read contract dir: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(r.rootDir, entry.Name())
		pack, err := LoadPackFile(path)
		if err != nil {
			return err
		}
		for i := range pack.Contracts {
			c := pack.Contracts[i]
			if err := r.Register(&c); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			loaded++
		}
	}

	if loaded == 0 {
		return fmt.Errorf("no contracts found under %s", r.rootDir)
	}
	return nil
}

// LoadPackFile parses and validates a single pack file: JSON-schema shape
// check, schema_version gate, then per-contract structural validation.
func LoadPackFile(path string) (*PackFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack %s: %w", path, err)
	}

	// Shape check against the pack schema before decoding into types, so
	// authors get pointer-level diagnostics instead of zero-valued fields.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse pack %s: %w", path, err)
	}
	if err := ValidatePackDocument(doc); err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, err)
	}

	var pack PackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("decode pack %s: %w", path, err)
	}

	ver, err := semver.NewVersion(pack.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("pack %s: invalid schema_version %q: %w", path, pack.SchemaVersion, err)
	}
	constraint, err := semver.NewConstraint(SupportedSchemaConstraint)
	if err != nil {
		return nil, fmt.Errorf("invalid schema constraint: %w", err)
	}
	if !constraint.Check(ver) {
		return nil, fmt.Errorf("pack %s: schema_version %s outside supported range %s", path, pack.SchemaVersion, SupportedSchemaConstraint)
	}

	for i := range pack.Contracts {
		if err := pack.Contracts[i].Validate(); err != nil {
			return nil, fmt.Errorf("pack %s: %w", path, err)
		}
	}
	return &pack, nil
}
