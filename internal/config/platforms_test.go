package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPlatformPolicies_Defaults(t *testing.T) {
	policies, err := LoadPlatformPolicies("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	for _, name := range []string{"workday", "greenhouse", "lever", "icims", "taleo", "smartrecruiters", "default"} {
		p, ok := policies[name]
		if !ok {
			t.Fatalf("missing default policy for %s", name)
		}
		if p.BaseDelay < 2*time.Minute || p.BaseDelay > 4*time.Minute {
			t.Fatalf("%s base delay out of range: %s", name, p.BaseDelay)
		}
		if p.HourlyCap < 15 || p.HourlyCap > 30 {
			t.Fatalf("%s hourly cap out of range: %d", name, p.HourlyCap)
		}
	}
}

func TestLoadPlatformPolicies_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	content := "platforms:\n  workday:\n    base_delay: 2m30s\n    hourly_cap: 18\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	policies, err := LoadPlatformPolicies(path)
	if err != nil {
		t.Fatalf("load overrides: %v", err)
	}
	if policies["workday"].BaseDelay != 2*time.Minute+30*time.Second {
		t.Fatalf("override base delay not applied: %s", policies["workday"].BaseDelay)
	}
	if policies["workday"].HourlyCap != 18 {
		t.Fatalf("override hourly cap not applied: %d", policies["workday"].HourlyCap)
	}
	// Untouched platforms keep their defaults.
	if policies["lever"].HourlyCap != 30 {
		t.Fatalf("lever default lost: %d", policies["lever"].HourlyCap)
	}
}

func TestLoadPlatformPolicies_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "platforms.yaml")
	content := "platforms:\n  lever:\n    base_delay: 0s\n    hourly_cap: 10\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := LoadPlatformPolicies(path); err == nil {
		t.Fatal("expected error for non-positive base_delay")
	}
}
