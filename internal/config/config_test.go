package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, 8, cfg.LLM.MaxConcurrent)
	assert.Equal(t, 250000, cfg.Curator.MaxTokenBudget)
	assert.Equal(t, 100, cfg.Curator.MaxFiles)
	assert.Equal(t, 60, cfg.Curator.CacheMaxAgeMinutes)
	assert.Equal(t, 3, cfg.Decompose.MaxDepth)
	assert.Equal(t, 4.0, cfg.Decompose.MaxHours)
	assert.False(t, cfg.Logging.DebugMode)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Curator.MaxTokenBudget, cfg.Curator.MaxTokenBudget)
}

func TestLoadParsesAndClamps(t *testing.T) {
	ws := t.TempDir()
	dir := filepath.Join(ws, ".taskforge")
	require.NoError(t, os.MkdirAll(dir, 0755))
	yaml := `
curator:
  max_files: 5000
  max_token_budget: 100
  cache_max_age_minutes: 0
decompose:
  max_depth: 9
llm:
  default_model: test-model
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load(ws)
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Curator.MaxFiles)
	assert.Equal(t, 1000, cfg.Curator.MaxTokenBudget)
	assert.Equal(t, 1, cfg.Curator.CacheMaxAgeMinutes)
	assert.Equal(t, 5, cfg.Decompose.MaxDepth)
	assert.Equal(t, "test-model", cfg.LLM.DefaultModel)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("ALLOWED_PROJECT_ROOT", "/srv/projects")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
	assert.Equal(t, "/srv/projects", cfg.Output.AllowedProjectRoot)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsInvertedHours(t *testing.T) {
	cfg := Default()
	cfg.Decompose.MinHours = 5
	cfg.Decompose.MaxHours = 2
	assert.Error(t, cfg.Validate())
}
