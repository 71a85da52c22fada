package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfig_DefaultsValidate(t *testing.T) {
	// Given: no configuration file
	cfg := NewConfig()

	// Then: defaults are sensible and valid
	require.NoError(t, cfg.Validate())
	assert.Equal(t, runtime.NumCPU(), cfg.Scheduler.Workers)
	assert.Equal(t, 3, cfg.Scheduler.FetchRetries)
	assert.Equal(t, 1000, cfg.Index.MaxPendingChanges)
	assert.Equal(t, 5*time.Second, Duration(cfg.Index.CommitInterval))
	assert.Equal(t, "standard", cfg.Index.Analyzer)
	assert.Equal(t, 32, cfg.Pool.MaxOpenedIndexes)
	assert.Equal(t, "sqlite", cfg.JobLog.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Len(t, cfg.Templates.Mappings, 2)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// Given: a file setting a few keys
	dir := t.TempDir()
	path := writeFile(t, dir, `
data_dir: /srv/amanidx
scheduler:
  workers: 8
  drain_on_stop: true
index:
  commit_interval: 250ms
templates:
  mappings:
    - content_type: file
      mime_type: application/json
      config_id: compact
      template: json.tmpl
`)

	// When
	cfg, err := Load(path)
	require.NoError(t, err)

	// Then: set keys win, the rest keep their defaults
	assert.Equal(t, "/srv/amanidx", cfg.DataDir)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.True(t, cfg.Scheduler.DrainOnStop)
	assert.Equal(t, 3, cfg.Scheduler.FetchRetries)
	assert.Equal(t, 250*time.Millisecond, Duration(cfg.Index.CommitInterval))
	assert.Equal(t, 1000, cfg.Index.MaxPendingChanges)
	require.Len(t, cfg.Templates.Mappings, 1)
	assert.Equal(t, TemplateMapping{ContentType: "file", MimeType: "application/json", ConfigID: "compact", Template: "json.tmpl"}, cfg.Templates.Mappings[0])
	assert.Equal(t, filepath.Join("/srv/amanidx", "jobs.db"), cfg.JobLogPath())
	assert.Equal(t, filepath.Join("/srv/amanidx", "indexes", "books"), cfg.IndexDir("books"))
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Index, cfg.Index)
}

func TestLoad_MissingFiles(t *testing.T) {
	// An explicit path must exist
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	// A missing user config is fine
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Pool, cfg.Pool)
}

func TestLoad_UserConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "amanidx"), 0o755))
	require.NoError(t, os.WriteFile(GetUserConfigPath(), []byte("pool:\n  max_opened_indexes: 4\n"), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Pool.MaxOpenedIndexes)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scheduler:\n  workers: 2\nlogging:\n  level: warn\n")
	t.Setenv("AMANIDX_WORKERS", "6")
	t.Setenv("AMANIDX_LOG_LEVEL", "debug")
	t.Setenv("AMANIDX_METRICS_ENABLED", "true")
	t.Setenv("AMANIDX_JOBLOG_BACKEND", "memory")
	t.Setenv("AMANIDX_MAX_OPENED_INDEXES", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Scheduler.Workers)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "memory", cfg.JobLog.Backend)
	assert.Equal(t, 32, cfg.Pool.MaxOpenedIndexes)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "scheduler:\n  wokers: 2\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.DataDir = " " }},
		{"zero workers", func(c *Config) { c.Scheduler.Workers = 0 }},
		{"negative retries", func(c *Config) { c.Scheduler.FetchRetries = -1 }},
		{"zero pending", func(c *Config) { c.Index.MaxPendingChanges = 0 }},
		{"bad interval", func(c *Config) { c.Index.CommitInterval = "soon" }},
		{"negative interval", func(c *Config) { c.Index.CommitInterval = "-1s" }},
		{"no analyzer", func(c *Config) { c.Index.Analyzer = "" }},
		{"zero pool", func(c *Config) { c.Pool.MaxOpenedIndexes = 0 }},
		{"zero cache", func(c *Config) { c.Templates.CacheSize = 0 }},
		{"bad content type", func(c *Config) { c.Templates.Mappings[0].ContentType = "ftp" }},
		{"mapping without template", func(c *Config) { c.Templates.Mappings[0].Template = "" }},
		{"bad backend", func(c *Config) { c.JobLog.Backend = "postgres" }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: a modified config written to disk
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := NewConfig()
	cfg.Scheduler.Workers = 3
	cfg.Watch.Ignore = []string{"*.tmp"}
	require.NoError(t, cfg.WriteYAML(path))

	// When
	loaded, err := Load(path)
	require.NoError(t, err)

	// Then
	assert.Equal(t, cfg, loaded)
}

func TestBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	// Given: no file, nothing to back up
	got, err := Backup(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	// When: backing up more often than kept
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /x\n"), 0o644))
	for i := 0; i < MaxBackups+2; i++ {
		got, err = Backup(path)
		require.NoError(t, err)
		require.NotEmpty(t, got)
	}

	// Then: only the newest remain, newest first
	backups, err := ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, MaxBackups)
	assert.Equal(t, got, backups[0])
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "data_dir: /x\n", string(data))
}
