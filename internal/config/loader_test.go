package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
storage:
  driver: ${TEST_STORAGE_DRIVER:memory}
llm:
  default_provider: openai
  providers:
    openai:
      api_key: ${TEST_OPENAI_KEY}
      model: gpt-4o-mini
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadFrom_DefaultsAndExpansion(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	dir := writeConfig(t, minimalConfig)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "sk-test", cfg.LLM.Providers["openai"].APIKey)
	assert.Equal(t, 4000, cfg.Generation.SourceCharBudget)
	assert.Equal(t, 2000, cfg.Generation.ReviewSourceCharBudget)
	assert.Equal(t, 100*time.Millisecond, cfg.Generation.AutoRunStepDelay)
	assert.Equal(t, 8000, cfg.Generation.DefaultChapterWordCount)
	assert.Equal(t, time.Duration(0), cfg.LLM.Providers["openai"].Timeout)
}

func TestLoadFrom_EnvironmentOverlay(t *testing.T) {
	dir := writeConfig(t, minimalConfig)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte(`
generation:
  auto_run_step_delay: 2s
`), 0o600))
	t.Setenv("APP_ENV", "staging")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Generation.AutoRunStepDelay)
}

func TestLoadFrom_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("TEST_STORAGE_DRIVER", "sqlite")
	dir := writeConfig(t, minimalConfig)

	_, err := LoadFrom(dir)
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestExpandEnv_KeepsUnknownPlaceholder(t *testing.T) {
	assert.Equal(t, "key: ${TEST_SURELY_UNSET_VAR}", expandEnv("key: ${TEST_SURELY_UNSET_VAR}"))
	assert.Equal(t, "key: fallback", expandEnv("key: ${TEST_SURELY_UNSET_VAR:fallback}"))
}
