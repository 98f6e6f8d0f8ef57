package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at temp dirs so Load never sees the
// developer's real config or .env.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api/v1", c.ServiceURL)
	assert.Equal(t, "remote", c.Engine)
	assert.Equal(t, filepath.Join(home, ".analytica", "data"), c.DataDir)
	assert.Equal(t, 60, c.HTTPTimeoutSec)
	assert.Equal(t, 3, c.RetryMaxAttempts)
	assert.Equal(t, 500, c.RetryBaseDelayMs)
	assert.Equal(t, 4000, c.RetryMaxDelayMs)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
	assert.Equal(t, 5, c.PreviewRows)
	require.NoError(t, c.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)
	cfg := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("engine: local\nretry_max_attempts: 5\nservice_url: http://svc:9000/api/v1/\n"), 0o644))
	t.Setenv("ANALYTICA_RETRY_MAX_ATTEMPTS", "7")

	c, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", c.Engine)
	assert.Equal(t, 7, c.RetryMaxAttempts, "env wins over file")
	assert.Equal(t, "http://svc:9000/api/v1", c.ServiceURL)
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("ANALYTICA_LOG_LEVEL=debug\n"), 0o644))
	t.Setenv("ANALYTICA_LOG_LEVEL", "")
	os.Unsetenv("ANALYTICA_LOG_LEVEL")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	home := isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("engine", "LOCAL"))
	require.NoError(t, Save(c, ""))
	assert.FileExists(t, filepath.Join(home, ".analytica", "config.yaml"))

	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", again.Engine)
}

func TestSetValidates(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		key, val string
		wantErr  string
	}{
		{"engine", "cloud", "engine"},
		{"log_format", "xml", "log_format"},
		{"retry_max_attempts", "x", "invalid int"},
		{"retry_max_attempts", "0", "retry_max_attempts"},
		{"retry_max_delay_ms", "100", "retry_max_delay_ms"},
		{"service_url", "not a url", "service_url"},
		{"preview_rows", "0", "preview_rows"},
		{"nope", "1", "unknown key"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.val, func(t *testing.T) {
			before := *c
			err := c.Set(tt.key, tt.val)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, before, *c, "failed Set leaves config unchanged")
		})
	}

	require.NoError(t, c.Set("http_timeout_sec", "15"))
	got, err := c.Get("http_timeout_sec")
	require.NoError(t, err)
	assert.Equal(t, "15", got)
}

func TestGetCoversEveryKey(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	for _, k := range Keys {
		_, err := c.Get(k)
		assert.NoError(t, err, k)
	}
}
