package vfx

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	// DefaultFrameCacheEntries is the default bound on cached decoded frames.
	DefaultFrameCacheEntries = 30

	// DefaultMemoryBudgetMB is the default GPU texture pool budget.
	DefaultMemoryBudgetMB = 512
)

// Config holds engine-wide settings that operators tune per deployment.
// All fields have working defaults; a zero Config is usable after
// ApplyDefaults.
//
// Config is plain data. It is consumed once at engine construction and
// never read again, so it carries no synchronization.
type Config struct {
	// Mode selects kernel recovery behavior: "development" recompiles
	// missing bundled kernels from source, "production" fails hard.
	Mode string `yaml:"mode"`

	// MemoryBudgetMB bounds the texture pool, in megabytes.
	MemoryBudgetMB int `yaml:"memory_budget_mb"`

	// FrameCacheEntries bounds the decoded-frame cache (FIFO eviction).
	FrameCacheEntries int `yaml:"frame_cache_entries"`

	// Backend optionally pins a device backend by name ("wgpu",
	// "software"). Empty selects the best available.
	Backend string `yaml:"backend"`
}

// ApplyDefaults fills zero-valued fields with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Mode == "" {
		c.Mode = "development"
	}
	if c.MemoryBudgetMB <= 0 {
		c.MemoryBudgetMB = DefaultMemoryBudgetMB
	}
	if c.FrameCacheEntries <= 0 {
		c.FrameCacheEntries = DefaultFrameCacheEntries
	}
}

// Validate reports configuration values that cannot be honored.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", "development", "production":
	default:
		return fmt.Errorf("vfx: unknown mode %q", c.Mode)
	}
	return nil
}

// LoadConfig reads a YAML config file, applies defaults, and validates.
//
// Example file:
//
//	mode: production
//	memory_budget_mb: 1024
//	frame_cache_entries: 60
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vfx: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("vfx: parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
