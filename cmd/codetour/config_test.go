package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestLoadConfig_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg := loadConfig()
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".codetour", "codetour.db"), cfg.DBPath)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.True(t, cfg.UseCache)
	assert.Equal(t, 30, cfg.CacheTTLDays)
	assert.True(t, cfg.Scheduler)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".codetour")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	settings := `{"listen_addr": ":9999", "llm_provider": "claude", "use_cache": false}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(settings), 0o644))

	cfg := loadConfig()
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "claude", cfg.LLMProvider)
	assert.False(t, cfg.UseCache)
	// Untouched keys keep defaults.
	assert.Equal(t, "output", cfg.OutputDir)
}

func TestLoadConfig_EnvOverridesSettings(t *testing.T) {
	home := isolateHome(t)

	dir := filepath.Join(home, ".codetour")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"),
		[]byte(`{"listen_addr": ":9999"}`), 0o644))

	t.Setenv("CODETOUR_LISTEN_ADDR", ":4300")
	t.Setenv("CODETOUR_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("CODETOUR_SCHEDULER", "false")

	cfg := loadConfig()
	assert.Equal(t, ":4300", cfg.ListenAddr)
	assert.Equal(t, "gpt-4o-mini", cfg.LLMModel)
	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.False(t, cfg.Scheduler)
}

func TestLoadConfig_InvalidBoolEnvIgnored(t *testing.T) {
	isolateHome(t)

	t.Setenv("CODETOUR_USE_CACHE", "maybe")
	cfg := loadConfig()
	assert.True(t, cfg.UseCache)
}
