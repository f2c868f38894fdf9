package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// VerificationProfile is a per-environment policy profile: how strictly
// the engine treats uncontracted actions, execution errors and result
// persistence in that environment.
type VerificationProfile struct {
	Name       string           `yaml:"name" json:"name"`
	Code       string           `yaml:"code" json:"code"` // e.g. "dev", "staging", "prod"
	Engine     EnginePolicy     `yaml:"engine" json:"engine"`
	Store      StorePolicy      `yaml:"store" json:"store"`
	Unverified UnverifiedPolicy `yaml:"unverified" json:"unverified"`
}

// EnginePolicy controls engine behavior per environment.
type EnginePolicy struct {
	RollbackOnExecutionError bool `yaml:"rollback_on_execution_error" json:"rollback_on_execution_error"`
	RequirePersistedVerifier bool `yaml:"require_persisted_verifier" json:"require_persisted_verifier"`
}

// StorePolicy selects the step-result backend per environment.
type StorePolicy struct {
	Backend       string `yaml:"backend" json:"backend"` // "memory" | "sqlite" | "postgres" | "redis"
	RedisTTLHours int    `yaml:"redis_ttl_hours,omitempty" json:"redis_ttl_hours,omitempty"`
}

// UnverifiedPolicy controls which actions may run without a contract.
type UnverifiedPolicy struct {
	Mode      string   `yaml:"mode" json:"mode"` // "allow" | "allowlist" | "deny"
	Allowlist []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
}

// LoadProfile loads a profile YAML by environment code. It reads
// profile_<code>.yaml from the profiles directory.
func LoadProfile(profilesDir, code string) (*VerificationProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile VerificationProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "" {
		profile.Code = code
	}

	return &profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles
// directory, keyed by environment code.
func LoadAllProfiles(profilesDir string) (map[string]*VerificationProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*VerificationProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile VerificationProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Code == "" {
			// Extract code from filename: profile_prod.yaml -> prod
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}

		profiles[profile.Code] = &profile
	}

	return profiles, nil
}

// AllowsUnverified reports whether an action without a registered
// contract may run in this environment.
func (p *VerificationProfile) AllowsUnverified(action string) bool {
	switch p.Unverified.Mode {
	case "deny":
		return false
	case "allowlist":
		for _, a := range p.Unverified.Allowlist {
			if a == action {
				return true
			}
		}
		return false
	default:
		return true
	}
}
