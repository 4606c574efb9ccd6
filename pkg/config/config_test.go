package config

import (
	"os"
	"path/filepath"
	"testing"
)

func f64(v float64) *float64 { return &v }

// TestDefaultConfigValid verifies the defaults pass validation.
func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
	if cfg.Smoothing.Mode != ModeNatural {
		t.Errorf("Expected natural mode default, got %q", cfg.Smoothing.Mode)
	}
	if cfg.Solver.Tolerance != 1e-4 || cfg.Solver.Epsilon != 5e-4 || cfg.Solver.NSamps != 200 {
		t.Errorf("Unexpected solver defaults: %+v", cfg.Solver)
	}
}

// TestValidateRejects covers the fatal configuration combinations.
func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Smoothing.Mode = "median" }},
		{"bad conv mode", func(c *Config) { c.Smoothing.ConvMode = "magic" }},
		{"partial target", func(c *Config) {
			c.Smoothing.Mode = ModeTotal
			c.Smoothing.TargetBMaj = f64(10)
		}},
		{"target in natural mode", func(c *Config) {
			c.Smoothing.TargetBMaj = f64(10)
			c.Smoothing.TargetBMin = f64(8)
			c.Smoothing.TargetBPA = f64(0)
		}},
		{"inverted target axes", func(c *Config) {
			c.Smoothing.Mode = ModeTotal
			c.Smoothing.TargetBMaj = f64(5)
			c.Smoothing.TargetBMin = f64(8)
			c.Smoothing.TargetBPA = f64(0)
		}},
		{"non-positive tolerance", func(c *Config) { c.Solver.Tolerance = 0 }},
		{"too few samples", func(c *Config) { c.Solver.NSamps = 2 }},
		{"no workers", func(c *Config) { c.Runtime.Workers = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

// TestTargetBeamAllOrNone verifies the accessor only yields a complete
// target.
func TestTargetBeamAllOrNone(t *testing.T) {
	cfg := DefaultConfig()
	if _, ok := cfg.TargetBeam(); ok {
		t.Error("Expected no target beam by default")
	}

	cfg.Smoothing.Mode = ModeTotal
	cfg.Smoothing.TargetBMaj = f64(12)
	cfg.Smoothing.TargetBMin = f64(9)
	cfg.Smoothing.TargetBPA = f64(45)

	target, ok := cfg.TargetBeam()
	if !ok {
		t.Fatal("Expected a target beam")
	}
	if target.Major != 12 || target.Minor != 9 || target.PA != 45 {
		t.Errorf("Unexpected target beam: %v", target)
	}
}

// TestLoadConfigRoundTrip saves and reloads a configuration file.
func TestLoadConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beamconv.yaml")

	cfg := DefaultConfig()
	cfg.Smoothing.Mode = ModeTotal
	cfg.Smoothing.Cutoff = f64(14)
	cfg.Runtime.Workers = 2

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Smoothing.Mode != ModeTotal {
		t.Errorf("Expected total mode, got %q", loaded.Smoothing.Mode)
	}
	if loaded.Smoothing.Cutoff == nil || *loaded.Smoothing.Cutoff != 14 {
		t.Errorf("Cutoff did not survive the round trip: %v", loaded.Smoothing.Cutoff)
	}
	if loaded.Runtime.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", loaded.Runtime.Workers)
	}
}

// TestLoadConfigMissingFile falls back to defaults.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Smoothing.Mode != ModeNatural {
		t.Errorf("Expected default config, got mode %q", cfg.Smoothing.Mode)
	}
}

// TestLoadConfigBadYAML surfaces parse errors.
func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("smoothing: ["), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for malformed YAML")
	}
}
