package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PlatformPolicy controls submission pacing for one ATS platform.
type PlatformPolicy struct {
	BaseDelay time.Duration `yaml:"base_delay"`
	HourlyCap int           `yaml:"hourly_cap"`
}

// DefaultPlatformPolicies returns the built-in pacing table. Base delays sit
// between 2 and 4 minutes and hourly caps between 15 and 30 to stay under
// anti-abuse thresholds observed per platform.
func DefaultPlatformPolicies() map[string]PlatformPolicy {
	return map[string]PlatformPolicy{
		"workday":         {BaseDelay: 3 * time.Minute, HourlyCap: 20},
		"greenhouse":      {BaseDelay: 2 * time.Minute, HourlyCap: 30},
		"lever":           {BaseDelay: 2 * time.Minute, HourlyCap: 30},
		"icims":           {BaseDelay: 4 * time.Minute, HourlyCap: 15},
		"taleo":           {BaseDelay: 4 * time.Minute, HourlyCap: 15},
		"smartrecruiters": {BaseDelay: 3 * time.Minute, HourlyCap: 20},
		"default":         {BaseDelay: 3 * time.Minute, HourlyCap: 20},
	}
}

// UnmarshalYAML decodes base_delay from a duration string like "2m30s".
func (p *PlatformPolicy) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseDelay string `yaml:"base_delay"`
		HourlyCap int    `yaml:"hourly_cap"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	d, err := time.ParseDuration(raw.BaseDelay)
	if err != nil {
		return fmt.Errorf("parse base_delay %q: %w", raw.BaseDelay, err)
	}
	p.BaseDelay = d
	p.HourlyCap = raw.HourlyCap
	return nil
}

type platformPolicyFile struct {
	Platforms map[string]PlatformPolicy `yaml:"platforms"`
}

// LoadPlatformPolicies merges YAML overrides from path on top of the defaults.
// An empty path returns the defaults unchanged.
func LoadPlatformPolicies(path string) (map[string]PlatformPolicy, error) {
	policies := DefaultPlatformPolicies()
	if path == "" {
		return policies, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform policy file: %w", err)
	}
	var f platformPolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse platform policy file: %w", err)
	}
	for name, p := range f.Platforms {
		if p.HourlyCap <= 0 || p.BaseDelay <= 0 {
			return nil, fmt.Errorf("platform %q: base_delay and hourly_cap must be positive", name)
		}
		policies[name] = p
	}
	return policies, nil
}
