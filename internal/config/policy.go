package config

import (
	"fmt"
	"os"

	"github.com/stemsi/exstem-player/internal/integrity"
	"gopkg.in/yaml.v3"
)

// LoadPolicy reads the integrity policy from a YAML file. Keys missing from the
// file keep their default values; an empty path returns the defaults.
func LoadPolicy(path string) (integrity.Policy, error) {
	policy := integrity.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read integrity policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("parse integrity policy: %w", err)
	}
	if policy.HideWarnings < 0 {
		return policy, fmt.Errorf("integrity policy: hide_warnings must not be negative")
	}
	return policy, nil
}
