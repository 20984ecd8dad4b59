package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	doc := `
serial: emulator-5554
package: com.example.game
screenshotDir: /var/lib/emuflow/shots
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial != "emulator-5554" {
		t.Errorf("Serial = %q", cfg.Serial)
	}
	if cfg.Package != "com.example.game" {
		t.Errorf("Package = %q", cfg.Package)
	}
	if cfg.ScreenshotDir != "/var/lib/emuflow/shots" {
		t.Errorf("ScreenshotDir = %q", cfg.ScreenshotDir)
	}
	// Unset fields keep defaults.
	if cfg.Activity != DefaultActivity {
		t.Errorf("Activity = %q, want default", cfg.Activity)
	}
}

func TestLoadFromDir_NoConfigUsesDefaults(t *testing.T) {
	cfg, err := LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromDir() error: %v", err)
	}
	if cfg.Package != DefaultPackage {
		t.Errorf("Package = %q, want %q", cfg.Package, DefaultPackage)
	}
	if cfg.ScreenshotDir != "screenshots" {
		t.Errorf("ScreenshotDir = %q, want screenshots", cfg.ScreenshotDir)
	}
}

func TestLoadFromDir_PrefersYaml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("serial: a"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte("serial: b"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Serial != "a" {
		t.Errorf("Serial = %q, want the config.yaml value", cfg.Serial)
	}
}
