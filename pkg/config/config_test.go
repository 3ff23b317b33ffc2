package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Processing.MaxParallel != 2*runtime.NumCPU() {
		t.Errorf("Expected maxParallel %d, got %d", 2*runtime.NumCPU(), cfg.Processing.MaxParallel)
	}
	if cfg.Processing.Border != 2 {
		t.Errorf("Expected border 2, got %d", cfg.Processing.Border)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Quality != DefaultQuality() {
		t.Errorf("Expected default quality, got %+v", cfg.Quality)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelmesh.yaml")
	content := `
processing:
  maxParallel: 3
  background: 7
  downsample:
    xy: 2
    z: 1
quality:
  smooth: false
  cluster: true
  fineness: 0.5
  reduce: true
  targetReduction: 0.6
  minPoints: 40
cache:
  dir: /tmp/meshes
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Processing.MaxParallel != 3 || cfg.Processing.Background != 7 {
		t.Errorf("Processing section not applied: %+v", cfg.Processing)
	}
	if cfg.Processing.Downsample.XY != 2 {
		t.Errorf("Expected xy downsample 2, got %d", cfg.Processing.Downsample.XY)
	}
	if cfg.Quality.Smooth || cfg.Quality.MinPoints != 40 || cfg.Quality.TargetReduction != 0.6 {
		t.Errorf("Quality section not applied: %+v", cfg.Quality)
	}
	// untouched keys keep their defaults
	if cfg.Processing.Border != 2 {
		t.Errorf("Expected default border, got %d", cfg.Processing.Border)
	}
	if cfg.Cache.Dir != "/tmp/meshes" {
		t.Errorf("Expected cache dir override, got %q", cfg.Cache.Dir)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("processing:\n  maxParallel: 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected an error for maxParallel 0")
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labelmesh.toml")
	cfg := DefaultConfig()
	cfg.Processing.MaxParallel = 5
	cfg.Quality.PassBand = 0.05
	cfg.Output.STLFile = "out.stl"
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Processing.MaxParallel != 5 || loaded.Quality.PassBand != 0.05 || loaded.Output.STLFile != "out.stl" {
		t.Errorf("TOML round trip lost values: %+v", loaded)
	}
}

func TestQualityValidate(t *testing.T) {
	q := DefaultQuality()
	q.TargetReduction = 1.0
	if err := q.Validate(); err == nil {
		t.Error("Expected an error for targetReduction 1.0")
	}
	q = DefaultQuality()
	q.PassBand = 0
	if err := q.Validate(); err == nil {
		t.Error("Expected an error for passBand 0")
	}
	q.Smooth = false
	if err := q.Validate(); err != nil {
		t.Errorf("Pass band is ignored when smoothing is off: %v", err)
	}
}
