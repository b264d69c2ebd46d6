package config

import "time"

// DecomposeConfig configures the decomposition engine.
type DecomposeConfig struct {
	// MaxDepth bounds the recursion depth, 1-5.
	MaxDepth int `yaml:"max_depth"`

	// MinHours/MaxHours bound what counts as an atomic task.
	MinHours float64 `yaml:"min_hours"`
	MaxHours float64 `yaml:"max_hours"`

	// SessionTimeout bounds a whole decomposition session.
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// DefaultDecomposeConfig returns the engine defaults.
func DefaultDecomposeConfig() DecomposeConfig {
	return DecomposeConfig{
		MaxDepth:       3,
		MinHours:       1,
		MaxHours:       4,
		SessionTimeout: 300 * time.Second,
	}
}

// CuratorConfig configures the context curation pipeline.
type CuratorConfig struct {
	MaxFiles           int      `yaml:"max_files"`
	MaxTokenBudget     int      `yaml:"max_token_budget"`
	IncludePatterns    []string `yaml:"include_patterns"`
	ExcludePatterns    []string `yaml:"exclude_patterns"`
	UseCodeMapCache    bool     `yaml:"use_codemap_cache"`
	CacheMaxAgeMinutes int      `yaml:"cache_max_age_minutes"`

	// MinRelevanceThreshold drops files scoring below it.
	MinRelevanceThreshold float64 `yaml:"min_relevance_threshold"`

	// ScoringChunkSize splits candidate lists for scoring; ScoringWorkers
	// bounds the fan-out.
	ScoringChunkSize int `yaml:"scoring_chunk_size"`
	ScoringWorkers   int `yaml:"scoring_workers"`

	// MaxContentLength caps file content read into the package;
	// OptimizationThreshold triggers section optimization below that cap.
	MaxContentLength      int `yaml:"max_content_length"`
	OptimizationThreshold int `yaml:"optimization_threshold"`

	// PhaseTimeout bounds each pipeline phase.
	PhaseTimeout time.Duration `yaml:"phase_timeout"`

	// CompressionThresholdBytes gzips packages larger than this.
	CompressionThresholdBytes int `yaml:"compression_threshold_bytes"`
}

// DefaultCuratorConfig returns the pipeline defaults.
func DefaultCuratorConfig() CuratorConfig {
	return CuratorConfig{
		MaxFiles:        100,
		MaxTokenBudget:  250000,
		IncludePatterns: []string{"**/*"},
		ExcludePatterns: []string{
			"node_modules/**", ".git/**", "dist/**", "build/**",
		},
		UseCodeMapCache:           true,
		CacheMaxAgeMinutes:        60,
		MinRelevanceThreshold:     0.1,
		ScoringChunkSize:          50,
		ScoringWorkers:            4,
		MaxContentLength:          200000,
		OptimizationThreshold:     50000,
		PhaseTimeout:              60 * time.Second,
		CompressionThresholdBytes: 1 << 20,
	}
}

// OutputConfig configures where artifacts are written and which project paths
// are reachable.
type OutputConfig struct {
	// Dir is the output root; the layout beneath it is fixed
	// (context-curator/, code-map-generator/, ...).
	Dir string `yaml:"dir"`

	// AllowedProjectRoot is the containment root for every project path.
	AllowedProjectRoot string `yaml:"allowed_project_root"`
}

// DefaultOutputConfig returns the output defaults.
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Dir:                "TaskforgeOutput",
		AllowedProjectRoot: "",
	}
}

// LoggingConfig mirrors the logging package's expectations.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultLoggingConfig returns production defaults (logging off).
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		DebugMode: false,
		Level:     "info",
	}
}
