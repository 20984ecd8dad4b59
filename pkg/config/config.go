// Package config handles workspace configuration for emuflow.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults carried over from the reference emulator setup.
const (
	DefaultPackage  = "com.garena.game.kgvn"
	DefaultActivity = "com.garena.game.kgvn/com.garena.game.kgtw.SGameActivity"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Target
	Serial   string `yaml:"serial"`   // Emulator serial; empty auto-detects
	Package  string `yaml:"package"`  // Target package id
	Activity string `yaml:"activity"` // Launch component for the capture flow

	// Output
	ScreenshotDir string `yaml:"screenshotDir"` // Artifact directory
	LogFile       string `yaml:"logFile"`       // Optional log file path

	// Classification
	TemplateDir string `yaml:"templateDir"` // Anchor template directory

	// Flow overrides; empty uses the builtins.
	InstallFlow string `yaml:"installFlow"`
	CaptureFlow string `yaml:"captureFlow"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Package:       DefaultPackage,
		Activity:      DefaultActivity,
		ScreenshotDir: "screenshots",
	}
}

// Load loads configuration from a file, filling unset fields with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory and
// falls back to defaults when neither exists.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

func (c *Config) applyDefaults() {
	if c.Package == "" {
		c.Package = DefaultPackage
	}
	if c.Activity == "" {
		c.Activity = DefaultActivity
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = "screenshots"
	}
}
