package config

import "time"

// LLMConfig configures the LLM gateway.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai-compatible endpoint
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`

	// DefaultModel is used when a task has no mapping.
	DefaultModel string `yaml:"default_model"`

	// TaskModels maps gateway task names (intent_analysis, relevance_scoring,
	// task_decomposition, ...) to model names.
	TaskModels map[string]string `yaml:"task_models"`

	// CallTimeout bounds a single model call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// MaxRetries, BackoffBase, BackoffCap control transport retry.
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap"`

	// MaxConcurrent caps in-flight calls across all tasks.
	MaxConcurrent int `yaml:"max_concurrent"`

	// TaskConcurrency caps in-flight calls per task name so bulk scoring
	// cannot starve critical tasks.
	TaskConcurrency map[string]int `yaml:"task_concurrency"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:     "openai",
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		TaskModels: map[string]string{
			"intent_analysis":        "gpt-4o-mini",
			"intent_fallback":        "gpt-4o-mini",
			"prompt_refinement":      "gpt-4o-mini",
			"relevance_scoring":      "gpt-4o-mini",
			"meta_prompt_generation": "gpt-4o",
			"task_decomposition":     "gpt-4o",
		},
		CallTimeout:   30 * time.Second,
		MaxRetries:    3,
		BackoffBase:   time.Second,
		BackoffCap:    4 * time.Second,
		MaxConcurrent: 8,
		TaskConcurrency: map[string]int{
			"relevance_scoring": 4,
		},
	}
}
