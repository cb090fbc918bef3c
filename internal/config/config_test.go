package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadReader(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 20, cfg.Cache.MaxSessions)
	require.Equal(t, 30*time.Minute, cfg.TTL())
	require.Equal(t, time.Minute, cfg.SweepInterval())
}

func TestLoadReader_JSONC(t *testing.T) {
	t.Parallel()

	cfg, err := LoadReader(strings.NewReader(`{
		// talk to a remote server
		"host": "tcp://127.0.0.1:8080",
		"cache": {
			"max_sessions": 5, /* small */
			"ttl": "10m",
		},
	}`))
	require.NoError(t, err)
	require.Equal(t, "tcp://127.0.0.1:8080", cfg.Host)
	require.Equal(t, 5, cfg.Cache.MaxSessions)
	require.Equal(t, 10*time.Minute, cfg.TTL())
	require.Equal(t, time.Minute, cfg.SweepInterval(), "unset fields keep defaults")
}

func TestLoadReader_BadDuration(t *testing.T) {
	t.Parallel()

	_, err := LoadReader(strings.NewReader(`{"cache": {"ttl": "forever"}}`))
	require.Error(t, err)
}

func TestLoadFromReaders_Merge(t *testing.T) {
	t.Parallel()

	global := strings.NewReader(`{"host": "unix:///tmp/a.sock", "cache": {"max_sessions": 50, "ttl": "1h"}}`)
	project := strings.NewReader(`{"cache": {"max_sessions": 3}}`)

	cfg, err := loadFromReaders([]io.Reader{global, project})
	require.NoError(t, err)
	require.Equal(t, "unix:///tmp/a.sock", cfg.Host)
	require.Equal(t, 3, cfg.Cache.MaxSessions, "later files win")
	require.Equal(t, time.Hour, cfg.TTL())
}

func TestLoad(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mirror.json"), []byte(`{
		// project overrides
		"cache": {"max_sessions": 7, "ttl": "5m"}
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MIRROR_TTL=2m\nMIRROR_HOST=tcp://localhost:1\n"), 0o644))

	cfg, err := Load(dir, "", true, []string{"MIRROR_HOST=tcp://localhost:2", "UNRELATED"})
	require.NoError(t, err)

	require.Equal(t, 7, cfg.Cache.MaxSessions)
	require.Equal(t, 2*time.Minute, cfg.TTL(), ".env applies over files")
	require.Equal(t, "tcp://localhost:2", cfg.Host, "process env wins over .env")
	require.True(t, cfg.Options.Debug)
	require.Equal(t, dir, cfg.WorkingDir())
	require.Equal(t, filepath.Join(dir, ".mirror"), cfg.Options.DataDirectory)
	require.Equal(t, filepath.Join(dir, ".mirror", "logs", "mirror.log"), cfg.Options.LogFile)
}

func TestLoad_EnvErrors(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	_, err := Load(dir, "", false, []string{"MIRROR_MAX_SESSIONS=lots"})
	require.ErrorContains(t, err, EnvMaxSessions)

	_, err = Load(dir, "", false, []string{"MIRROR_TTL=soon"})
	require.ErrorContains(t, err, EnvTTL)

	_, err = Load(dir, "", false, []string{"MIRROR_HOST=localhost"})
	require.Error(t, err)
}

func TestInit_CreatesDataDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	data := filepath.Join(t.TempDir(), "state")

	cfg, err := Init(dir, data, false, nil)
	require.NoError(t, err)
	require.Equal(t, data, cfg.Options.DataDirectory)
	require.FileExists(t, filepath.Join(data, ".gitignore"))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "unix host", modify: func(c *Config) { c.Host = "unix:///tmp/crush.sock" }},
		{name: "bad host", modify: func(c *Config) { c.Host = "localhost:80" }, wantErr: "invalid host"},
		{name: "bad scheme", modify: func(c *Config) { c.Host = "http://localhost" }, wantErr: "unsupported scheme"},
		{name: "negative ttl", modify: func(c *Config) { c.Cache.TTL = Duration(-time.Second) }, wantErr: "cache.ttl"},
		{name: "zero interval", modify: func(c *Config) { c.Cache.SweepInterval = 0 }, wantErr: "cache.sweep_interval"},
		{
			name: "sweeps disabled",
			modify: func(c *Config) {
				c.Cache.MaxSessions = 0
				c.Cache.TTL = 0
				c.Cache.SweepInterval = 0
			},
		},
		{name: "no data dir", modify: func(c *Config) { c.Options.DataDirectory = "" }, wantErr: "data_directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSchema(t *testing.T) {
	t.Parallel()

	data, err := Schema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	require.Equal(t, "mirror configuration", schema["title"])
	require.Contains(t, string(data), `"max_sessions"`)
	require.Contains(t, string(data), `"sweep_interval"`)
}
