// Package config holds the per-concern configuration for taskforge. Each
// concern lives in its own file with a Default* constructor; Load reads the
// workspace config file and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Decompose DecomposeConfig `yaml:"decompose"`
	Curator   CuratorConfig   `yaml:"curator"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Decompose: DefaultDecomposeConfig(),
		Curator:   DefaultCuratorConfig(),
		Output:    DefaultOutputConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Load reads <workspace>/.taskforge/config.yaml if present, applies
// environment overrides, validates, and returns the result. A missing config
// file is not an error; defaults apply.
func Load(workspace string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, ".taskforge", "config.yaml")
	if override := os.Getenv("LLM_CONFIG_PATH"); override != "" {
		path = override
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.clamp()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies the documented environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("ALLOWED_PROJECT_ROOT"); v != "" {
		c.Output.AllowedProjectRoot = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// clamp forces numeric knobs into their documented ranges rather than
// rejecting the config outright.
func (c *Config) clamp() {
	c.Curator.MaxFiles = clampInt(c.Curator.MaxFiles, 1, 1000)
	c.Curator.MaxTokenBudget = clampInt(c.Curator.MaxTokenBudget, 1000, 500000)
	c.Curator.CacheMaxAgeMinutes = clampInt(c.Curator.CacheMaxAgeMinutes, 1, 1440)
	c.Decompose.MaxDepth = clampInt(c.Decompose.MaxDepth, 1, 5)
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Decompose.MinHours <= 0 {
		return fmt.Errorf("decompose.min_hours must be positive, got %g", c.Decompose.MinHours)
	}
	if c.Decompose.MaxHours < c.Decompose.MinHours {
		return fmt.Errorf("decompose.max_hours %g below min_hours %g",
			c.Decompose.MaxHours, c.Decompose.MinHours)
	}
	if c.LLM.MaxConcurrent <= 0 {
		return fmt.Errorf("llm.max_concurrent must be positive, got %d", c.LLM.MaxConcurrent)
	}
	if c.Curator.MinRelevanceThreshold < 0 || c.Curator.MinRelevanceThreshold > 1 {
		return fmt.Errorf("curator.min_relevance_threshold %g outside [0,1]",
			c.Curator.MinRelevanceThreshold)
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
