package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", c.DefaultProvider)
	assert.Equal(t, "starlark", c.Runner)
	assert.Equal(t, 0, c.ExecTimeoutSec)
	assert.Equal(t, ":8501", c.ListenAddr)
	assert.Equal(t, 50, c.MaxUploadMB)
	assert.Equal(t, 5, c.PreviewRows)
	assert.True(t, c.ModelsMerge)
}

func TestLoadFileEnvAndDotenv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	chdir(t, dir)
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("default_provider: openai\nmax_tokens: 1000\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VIZLOOM_PREVIEW_ROWS=9\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VIZLOOM_PREVIEW_ROWS") })
	t.Setenv("VIZLOOM_MAX_TOKENS", "2000")

	c, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.DefaultProvider)
	assert.Equal(t, 2000, c.MaxTokens)
	assert.Equal(t, 9, c.PreviewRows)
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "c.yaml")
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Set("exec_timeout_sec", "30"))
	require.NoError(t, c.Set("runner", "python"))
	require.NoError(t, Save(c, path))

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, again.ExecTimeoutSec)
	assert.Equal(t, "python", again.Runner)
	assert.Error(t, c.Set("nope", "1"))
}

func TestCredentialPrecedence(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	t.Setenv("OPENAI_API_KEY", "")
	c := &Global{APIKey: "fallback"}
	assert.Equal(t, "google-key", c.Credential("gemini"))
	assert.Equal(t, "fallback", c.Credential("openai"))
	assert.Equal(t, "fallback", c.Credential("unknown"))
}

func TestMasked(t *testing.T) {
	assert.Equal(t, "(not set)", Masked(""))
	assert.Equal(t, "***", Masked("abc"))
	assert.Equal(t, "******7890", Masked("1234567890"))
}
