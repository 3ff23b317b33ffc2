// Package config provides configuration loading and management for labelmesh.
// It handles loading configuration from YAML (or TOML) files and provides
// default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"labelmesh/internal/models"
	"labelmesh/pkg/logging"
)

// Quality enumerates every mesh post-processing option.
type Quality struct {
	// Smooth enables windowed-sinc smoothing
	Smooth bool `yaml:"smooth" toml:"smooth"`

	// PassBand is the smoothing pass-band, in (0, 2)
	PassBand float64 `yaml:"passBand" toml:"pass_band"`

	// SmoothIterations is the degree of the smoothing polynomial
	SmoothIterations int `yaml:"smoothIterations" toml:"smooth_iterations"`

	// Cluster enables quadric-clustering decimation
	Cluster bool `yaml:"cluster" toml:"cluster"`

	// Fineness scales the clustering grid: divisions = Fineness * shape / 2
	Fineness float64 `yaml:"fineness" toml:"fineness"`

	// Reduce enables target-reduction decimation
	Reduce bool `yaml:"reduce" toml:"reduce"`

	// TargetReduction is the fraction of triangles to remove, in [0, 1)
	TargetReduction float64 `yaml:"targetReduction" toml:"target_reduction"`

	// MinPoints, when positive, backs the reduction off until the mesh keeps
	// at least this many vertices
	MinPoints int `yaml:"minPoints" toml:"min_points"`
}

// Config represents the application configuration loaded from YAML or TOML
type Config struct {
	Processing struct {
		// MaxParallel bounds the number of objects meshed at once
		MaxParallel int `yaml:"maxParallel" toml:"max_parallel"`

		// Background is the label that is never meshed
		Background uint64 `yaml:"background" toml:"background"`

		// Border is how many voxels an object box is grown by
		Border int `yaml:"border" toml:"border"`

		// Downsample strides for x/y and z
		Downsample models.Downsample `yaml:"downsample" toml:"downsample"`

		// Center is subtracted from merged vertices, in full-resolution voxels
		Center [3]float64 `yaml:"center" toml:"center"`
	} `yaml:"processing" toml:"processing"`

	Quality Quality `yaml:"quality" toml:"quality"`

	Cache struct {
		// Dir is the root of the per-object and merged mesh files
		Dir string `yaml:"dir" toml:"dir"`

		// MemoryMB sizes the in-memory cache in front of the files, 0 disables it
		MemoryMB int `yaml:"memoryMB" toml:"memory_mb"`

		// WriteObjects persists every recomputed object mesh
		WriteObjects bool `yaml:"writeObjects" toml:"write_objects"`

		// WriteMerged persists the merged buffer per (time, channel)
		WriteMerged bool `yaml:"writeMerged" toml:"write_merged"`
	} `yaml:"cache" toml:"cache"`

	Output struct {
		// STLFile, when set, receives an STL export of the merged meshes
		STLFile string `yaml:"stlFile" toml:"stl_file"`

		// PreviewDir, when set, receives label slice previews
		PreviewDir string `yaml:"previewDir" toml:"preview_dir"`

		// Verbose enables debug logging
		Verbose bool `yaml:"verbose" toml:"verbose"`
	} `yaml:"output" toml:"output"`

	Log logging.Config `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.MaxParallel = 2 * runtime.NumCPU()
	cfg.Processing.Background = 0
	cfg.Processing.Border = 2
	cfg.Processing.Downsample = models.Downsample{XY: 1, Z: 1}

	cfg.Quality = DefaultQuality()

	cfg.Cache.Dir = "meshcache"
	cfg.Cache.MemoryMB = 64
	cfg.Cache.WriteObjects = true
	cfg.Cache.WriteMerged = false

	cfg.Output.Verbose = false

	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30

	return cfg
}

// DefaultQuality returns the default post-processing options.
func DefaultQuality() Quality {
	return Quality{
		Smooth:           true,
		PassBand:         0.1,
		SmoothIterations: 20,
		Cluster:          true,
		Fineness:         1.0,
		Reduce:           true,
		TargetReduction:  0.2,
		MinPoints:        0,
	}
}

// Validate checks the quality options.
func (q Quality) Validate() error {
	if q.Smooth {
		if q.PassBand <= 0 || q.PassBand >= 2 {
			return fmt.Errorf("passBand must be in (0, 2), got %g", q.PassBand)
		}
		if q.SmoothIterations < 1 {
			return fmt.Errorf("smoothIterations must be at least 1, got %d", q.SmoothIterations)
		}
	}
	if q.Cluster && q.Fineness <= 0 {
		return fmt.Errorf("fineness must be positive, got %g", q.Fineness)
	}
	if q.Reduce && (q.TargetReduction < 0 || q.TargetReduction >= 1) {
		return fmt.Errorf("targetReduction must be in [0, 1), got %g", q.TargetReduction)
	}
	if q.MinPoints < 0 {
		return fmt.Errorf("minPoints must not be negative, got %d", q.MinPoints)
	}
	return nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if c.Processing.MaxParallel <= 0 {
		return fmt.Errorf("maxParallel must be positive, got %d", c.Processing.MaxParallel)
	}
	if c.Processing.Border < 0 {
		return fmt.Errorf("border must not be negative, got %d", c.Processing.Border)
	}
	if c.Cache.MemoryMB < 0 {
		return fmt.Errorf("cache memoryMB must not be negative, got %d", c.Cache.MemoryMB)
	}
	return c.Quality.Validate()
}

// LoadConfig loads configuration from a YAML or TOML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	if isTOML(configPath) {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file, chosen by extension
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	if isTOML(configPath) {
		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error writing config file: %w", err)
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		return nil
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

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
