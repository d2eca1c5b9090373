package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"complyscan/internal/models"
)

// Registry holds every rule set for one scan. It is constructed once and
// read-only afterwards; there is no process-wide rule cache.
type Registry struct {
	sets map[string]*models.RuleSet // keyed provider/service
}

// NewRegistry builds a registry from already-validated rule sets. Later
// duplicates of a (provider, service) pair are ignored.
func NewRegistry(sets ...*models.RuleSet) *Registry {
	registry := &Registry{sets: make(map[string]*models.RuleSet, len(sets))}
	for _, rs := range sets {
		key := rs.Provider + "/" + rs.Service
		if _, exists := registry.sets[key]; !exists {
			registry.sets[key] = rs
		}
	}
	return registry
}

// LoadDirectory loads every .yaml/.yml rule document in a directory. A
// malformed document disables that document with a warning rather than
// failing the scan; no valid document at all is an error.
func LoadDirectory(dir string) (*Registry, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rules directory %q: %w", dir, err)
	}

	registry := &Registry{sets: make(map[string]*models.RuleSet)}
	var warnings []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		ruleSet, err := LoadRuleSetFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("WARNING: %s is malformed and will be disabled. Reason: %s", entry.Name(), err))
			continue
		}

		key := ruleSet.Provider + "/" + ruleSet.Service
		if _, exists := registry.sets[key]; exists {
			warnings = append(warnings, fmt.Sprintf("WARNING: %s duplicates rule set %s, keeping the first", entry.Name(), key))
			continue
		}
		registry.sets[key] = ruleSet
	}

	if len(registry.sets) == 0 {
		return nil, warnings, fmt.Errorf("no valid rule documents found in %q", dir)
	}
	return registry, warnings, nil
}

// Get returns the rule set for a (provider, service) pair.
func (r *Registry) Get(provider, service string) (*models.RuleSet, bool) {
	rs, ok := r.sets[provider+"/"+service]
	return rs, ok
}

// All returns every loaded rule set in a deterministic order.
func (r *Registry) All() []*models.RuleSet {
	keys := make([]string, 0, len(r.sets))
	for key := range r.sets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sets := make([]*models.RuleSet, 0, len(keys))
	for _, key := range keys {
		sets = append(sets, r.sets[key])
	}
	return sets
}

// Services lists the services covered for one provider, sorted.
func (r *Registry) Services(provider string) []string {
	var services []string
	for _, rs := range r.sets {
		if rs.Provider == provider {
			services = append(services, rs.Service)
		}
	}
	sort.Strings(services)
	return services
}
