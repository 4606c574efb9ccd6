// Package config provides configuration loading and validation for
// beamconv. It handles loading configuration from YAML files, applies
// default values, and enforces the option combinations the smoothing
// engine accepts.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"beamconv/pkg/beam"
	"beamconv/pkg/convolve"
)

// Smoothing modes.
const (
	ModeNatural = "natural" // common beam solved independently per channel
	ModeTotal   = "total"   // one common beam across all channels and images
)

// Config represents the application configuration loaded from YAML.
// Command-line flags overlay individual fields after loading.
type Config struct {
	// Smoothing parameters
	Smoothing struct {
		// Mode selects per-channel ("natural") or global ("total")
		// common-beam resolution.
		Mode string `yaml:"mode"`

		// ConvMode selects the convolution backend: robust, scipy,
		// astropy or astropy_fft.
		ConvMode string `yaml:"convMode"`

		// Cutoff blanks channels whose major axis exceeds this many
		// arcseconds. Nil means no cutoff.
		Cutoff *float64 `yaml:"cutoff"`

		// TargetBMaj/TargetBMin/TargetBPA specify an explicit target
		// beam (arcsec, arcsec, deg). Only valid together, and only in
		// total mode.
		TargetBMaj *float64 `yaml:"targetBMaj"`
		TargetBMin *float64 `yaml:"targetBMin"`
		TargetBPA  *float64 `yaml:"targetBPA"`
	} `yaml:"smoothing"`

	// Solver parameters for the common-beam search
	Solver struct {
		// Tolerance is the convergence criterion of the enclosing
		// ellipse search.
		Tolerance float64 `yaml:"tolerance"`

		// Epsilon is the fractional inflation applied to the fitted
		// ellipse.
		Epsilon float64 `yaml:"epsilon"`

		// NSamps is the number of boundary samples per beam.
		NSamps int `yaml:"nsamps"`
	} `yaml:"solver"`

	// Output parameters
	Output struct {
		// Prefix and Suffix adjust output file names. An empty suffix
		// defaults to the smoothing mode.
		Prefix string `yaml:"prefix"`
		Suffix string `yaml:"suffix"`

		// OutDir overrides the output directory. Empty means co-locate
		// outputs with their inputs.
		OutDir string `yaml:"outDir"`

		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Runtime parameters
	Runtime struct {
		// Workers is the local fan-out width of the convolution phase.
		Workers int `yaml:"workers"`

		// UseLogs replays beams and factors from a previous run's
		// convolution logs instead of re-solving.
		UseLogs bool `yaml:"useLogs"`

		// DryRun computes the common beams and stops before touching
		// any output file.
		DryRun bool `yaml:"dryRun"`
	} `yaml:"runtime"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Smoothing.Mode = ModeNatural
	cfg.Smoothing.ConvMode = convolve.ModeRobust

	cfg.Solver.Tolerance = 1e-4
	cfg.Solver.Epsilon = 5e-4
	cfg.Solver.NSamps = 200

	cfg.Output.Verbose = true

	cfg.Runtime.Workers = runtime.NumCPU()

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks the option combinations before any computation starts.
func (c *Config) Validate() error {
	if c.Smoothing.Mode != ModeNatural && c.Smoothing.Mode != ModeTotal {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeNatural, ModeTotal, c.Smoothing.Mode)
	}
	if !convolve.IsValidMode(c.Smoothing.ConvMode) {
		return fmt.Errorf("unknown convolution mode %q", c.Smoothing.ConvMode)
	}

	set := 0
	for _, v := range []*float64{c.Smoothing.TargetBMaj, c.Smoothing.TargetBMin, c.Smoothing.TargetBPA} {
		if v != nil {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("target beam must be fully specified: bmaj, bmin and bpa")
	}
	if set == 3 && c.Smoothing.Mode != ModeTotal {
		return fmt.Errorf("a target beam may only be specified in total mode")
	}
	if set == 3 && *c.Smoothing.TargetBMin > *c.Smoothing.TargetBMaj {
		return fmt.Errorf("target beam minor axis %g exceeds major axis %g",
			*c.Smoothing.TargetBMin, *c.Smoothing.TargetBMaj)
	}

	if c.Solver.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Solver.Tolerance)
	}
	if c.Solver.NSamps < 3 {
		return fmt.Errorf("nsamps must be at least 3, got %d", c.Solver.NSamps)
	}
	if c.Runtime.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Runtime.Workers)
	}
	return nil
}

// TargetBeam returns the explicit target beam when one is configured.
func (c *Config) TargetBeam() (beam.Beam, bool) {
	if c.Smoothing.TargetBMaj == nil || c.Smoothing.TargetBMin == nil || c.Smoothing.TargetBPA == nil {
		return beam.Beam{}, false
	}
	return beam.Beam{
		Major: *c.Smoothing.TargetBMaj,
		Minor: *c.Smoothing.TargetBMin,
		PA:    *c.Smoothing.TargetBPA,
	}, true
}

// SolverConfig maps the configuration onto the solver's parameter triple.
func (c *Config) SolverConfig() beam.SolverConfig {
	return beam.SolverConfig{
		Tolerance: c.Solver.Tolerance,
		Epsilon:   c.Solver.Epsilon,
		NSamps:    c.Solver.NSamps,
	}
}
