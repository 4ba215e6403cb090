package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 8, cfg.Masking.MaxFrameDepth)
	assert.Equal(t, 30*time.Minute, cfg.Pages.TTL)
	assert.Len(t, cfg.Activation.Matches, 2)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
store:
  backend: redis
  redis_url: redis://cache:6379/1
masking:
  max_frame_depth: 3
activation:
  matches:
    - "https://console.example.test/*"
logging:
  level: debug
  format: console
`)

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis://cache:6379/1", cfg.Store.RedisURL)
	assert.Equal(t, 3, cfg.Masking.MaxFrameDepth)
	assert.Equal(t, []string{"https://console.example.test/*"}, cfg.Activation.Matches)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")
	t.Setenv("CONSOLEMASK_SERVER_PORT", "7070")

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "invalid server port"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "etcd" }, wantErr: "invalid store backend"},
		{name: "postgres without url", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: "database_url"},
		{name: "negative depth", mutate: func(c *Config) { c.Masking.MaxFrameDepth = -1 }, wantErr: "max_frame_depth"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "trace" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher(GetDefaults().Activation.Matches)
	require.NoError(t, err)

	assert.True(t, m.Matches("https://us-east-1.console.aws.amazon.com/iam/home"))
	assert.True(t, m.Matches("https://console.aws.amazon.com/"))
	assert.False(t, m.Matches("http://console.aws.amazon.com/"))
	assert.False(t, m.Matches("https://console.aws.amazon.com.evil.test"))
	assert.False(t, m.Matches("https://example.com/console.aws.amazon.com/"))

	var nilMatcher *Matcher
	assert.False(t, nilMatcher.Matches("https://console.aws.amazon.com/"))
}

func TestMatcher_LiteralDots(t *testing.T) {
	m, err := NewMatcher([]string{"https://a.b/*", "  "})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.b/*"}, m.Patterns())
	assert.True(t, m.Matches("https://a.b/x"))
	assert.False(t, m.Matches("https://axb/x"))
}
