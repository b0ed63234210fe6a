package risk

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sunilblinkoninfra-cyber/PhishX/internal/model"
)

// Global verdict thresholds, used when a tenant has no active policy.
const (
	DefaultColdThreshold = 30
	DefaultWarmThreshold = 70
)

// DefaultPolicy returns the global thresholds as a policy value.
func DefaultPolicy() model.TenantPolicy {
	return model.TenantPolicy{
		Cold: DefaultColdThreshold,
		Warm: DefaultWarmThreshold,
	}
}

// PolicyStore holds per-tenant threshold overrides loaded from a YAML file.
// Lookups are hot-path; loads happen at startup and on explicit reload.
type PolicyStore struct {
	mu       sync.RWMutex
	defaults model.TenantPolicy
	policies map[string]model.TenantPolicy
}

type policyFile struct {
	Tenants []model.TenantPolicy `yaml:"tenants"`
}

// NewPolicyStore returns an empty store; every lookup resolves to the
// global defaults until a file is loaded.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		defaults: DefaultPolicy(),
		policies: make(map[string]model.TenantPolicy),
	}
}

// SetDefaults replaces the global thresholds applied to tenants without an
// override.
func (s *PolicyStore) SetDefaults(cold, warm int) error {
	if cold <= 0 || warm <= cold {
		return fmt.Errorf("global thresholds must satisfy 0 < cold < warm, got cold=%d warm=%d", cold, warm)
	}
	s.mu.Lock()
	s.defaults = model.TenantPolicy{Cold: cold, Warm: warm}
	s.mu.Unlock()
	return nil
}

// LoadFile replaces the store contents with the policies in path. Entries
// with missing or inverted thresholds are rejected so a bad file cannot
// silently loosen a tenant's verdicts.
func (s *PolicyStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading tenant policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing tenant policy file %s: %w", path, err)
	}

	policies := make(map[string]model.TenantPolicy, len(file.Tenants))
	for _, p := range file.Tenants {
		if p.TenantID == "" {
			return fmt.Errorf("tenant policy file %s: entry missing tenant_id", path)
		}
		if p.Cold <= 0 || p.Warm <= p.Cold {
			return fmt.Errorf("tenant policy for %s: thresholds must satisfy 0 < cold < warm, got cold=%d warm=%d",
				p.TenantID, p.Cold, p.Warm)
		}
		policies[p.TenantID] = p
	}

	s.mu.Lock()
	s.policies = policies
	s.mu.Unlock()
	return nil
}

// Set installs or replaces one tenant's policy.
func (s *PolicyStore) Set(p model.TenantPolicy) {
	s.mu.Lock()
	s.policies[p.TenantID] = p
	s.mu.Unlock()
}

// Lookup returns the tenant's policy, or the global defaults when the
// tenant has none.
func (s *PolicyStore) Lookup(tenantID string) model.TenantPolicy {
	s.mu.RLock()
	p, ok := s.policies[tenantID]
	if !ok {
		p = s.defaults
		p.TenantID = tenantID
	}
	s.mu.RUnlock()
	return p
}

// Len reports how many tenant overrides are loaded.
func (s *PolicyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}
