package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "bulletproof", c.Profile)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.False(t, c.AutoFallback)
	require.NoError(t, c.Validate())
}

func TestLoad_Precedence(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"server_url":   "http://json.example:8080",
		"max_retries":  5,
		"read_timeout": "10s",
		"profile":      "simple",
	})
	t.Setenv("UPLOAD_MAX_RETRIES", "7")
	t.Setenv("UPLOAD_AUTO_FALLBACK", "true")

	cfg, err := load([]string{"-c", path, "-s", "http://flag.example:9000", "photo.png"})
	require.NoError(t, err)

	assert.Equal(t, "http://flag.example:9000", cfg.ServerURL)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, "simple", cfg.Profile)
	assert.True(t, cfg.AutoFallback)
	// untouched by every source
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown profile", args: []string{"-p", "paranoid"}},
		{name: "unknown strategy", args: []string{"-m", "carrier-pigeon"}},
		{name: "no retries", args: []string{"-r", "0"}},
		{name: "bad url", args: []string{"-s", "not a url"}},
		{name: "tiny chunks", args: []string{"-k", "10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseJson(t *testing.T) {
	t.Run("no flag leaves config alone", func(t *testing.T) {
		cfg := &Config{ServerURL: "http://defaults:1234", MaxRetries: 3}
		require.NoError(t, parseJson(cfg, nil))
		assert.Equal(t, "http://defaults:1234", cfg.ServerURL)
		assert.Equal(t, 3, cfg.MaxRetries)
	})

	t.Run("absent keys keep defaults", func(t *testing.T) {
		path := writeTempJSON(t, map[string]any{"auto_fallback_delay": "500ms"})
		cfg := &Config{}
		cfg.LoadDefaults()
		require.NoError(t, parseJson(cfg, []string{"-config", path}))
		assert.Equal(t, 500*time.Millisecond, cfg.AutoFallbackDelay)
		assert.Equal(t, 3, cfg.MaxRetries)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))
		assert.Error(t, parseJson(&Config{}, []string{"-c", bad}))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, parseJson(&Config{}, []string{"-c", filepath.Join(t.TempDir(), "nope.json")}))
	})
}

func TestParseEnv(t *testing.T) {
	t.Setenv("UPLOAD_VERIFY_TIMEOUT", "2s")
	t.Setenv("UPLOAD_STRATEGY", "emergency")

	cfg := &Config{}
	cfg.LoadDefaults()
	require.NoError(t, parseEnv(cfg))

	assert.Equal(t, 2*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, "emergency", cfg.Strategy)
	assert.Equal(t, "bulletproof", cfg.Profile)
}
