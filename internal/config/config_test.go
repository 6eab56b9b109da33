package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ncmerged.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overlays defaults", func(t *testing.T) {
		path := writeConfig(t, `
listen: 127.0.0.1:9000
log:
  level: debug
part_ttl: 90m
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "json", cfg.Log.Format, "unset keys keep defaults")
		assert.Equal(t, 90*time.Minute, cfg.PartTTL)
		assert.Equal(t, int64(256<<20), cfg.MaxUploadBytes)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, "listne: :1\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvListen:         ":7000",
		EnvLogLevel:       "warn",
		EnvLogFormat:      "text",
		EnvMaxUploadBytes: "1024",
		EnvPartTTL:        "0s",
		EnvShards:         "8",
	}))
	require.NoError(t, err)
	assert.Equal(t, Config{
		Listen:          ":7000",
		Log:             LogConfig{Level: "warn", Format: "text"},
		MaxUploadBytes:  1024,
		PartTTL:         0,
		Shards:          8,
		ShutdownTimeout: 10 * time.Second,
	}, cfg)

	bad := Default()
	err = bad.ApplyEnv(envMap(map[string]string{EnvMaxUploadBytes: "lots", EnvPartTTL: "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvMaxUploadBytes)
	assert.Contains(t, err.Error(), EnvPartTTL)
}

func TestResolvePrecedence(t *testing.T) {
	path := writeConfig(t, "listen: :1000\nshards: 2\nlog:\n  format: text\n")
	env := envMap(map[string]string{
		EnvConfig: path,
		EnvListen: ":2000",
		EnvShards: "4",
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--listen", ":3000"}))

	cfg, err := Resolve(fs, env)
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Listen, "flag beats env and file")
	assert.Equal(t, 4, cfg.Shards, "env beats file")
	assert.Equal(t, "text", cfg.Log.Format, "file beats default")
	assert.Equal(t, 24*time.Hour, cfg.PartTTL, "unset flag does not reset")
}

func TestResolveConfigFlag(t *testing.T) {
	path := writeConfig(t, "max_upload_bytes: 64\n")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := Resolve(fs, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(64), cfg.MaxUploadBytes)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"bad level", func(c *Config) { c.Log.Level = "chatty" }, "chatty"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "xml"},
		{"zero upload", func(c *Config) { c.MaxUploadBytes = 0 }, "max_upload_bytes"},
		{"negative ttl", func(c *Config) { c.PartTTL = -time.Second }, "part_ttl"},
		{"too many shards", func(c *Config) { c.Shards = 5000 }, "shards"},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("reports every problem", func(t *testing.T) {
		cfg := Default()
		cfg.Listen = ""
		cfg.Shards = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listen")
		assert.Contains(t, err.Error(), "shards")
	})
}
