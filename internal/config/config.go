package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete amanidx configuration.
type Config struct {
	// DataDir holds indexes, the job log and log files.
	DataDir   string          `yaml:"data_dir" json:"data_dir"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Pool      PoolConfig      `yaml:"pool" json:"pool"`
	Templates TemplatesConfig `yaml:"templates" json:"templates"`
	JobLog    JobLogConfig    `yaml:"joblog" json:"joblog"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
}

// SchedulerConfig configures the job workers.
type SchedulerConfig struct {
	Workers         int    `yaml:"workers" json:"workers"`
	DrainOnStop     bool   `yaml:"drain_on_stop" json:"drain_on_stop"`
	FetchRetries    int    `yaml:"fetch_retries" json:"fetch_retries"`
	FetchRetryDelay string `yaml:"fetch_retry_delay" json:"fetch_retry_delay"`
}

// IndexConfig configures commit timing and analysis of every index.
type IndexConfig struct {
	MaxPendingChanges int    `yaml:"max_pending_changes" json:"max_pending_changes"`
	CommitInterval    string `yaml:"commit_interval" json:"commit_interval"`
	// Analyzer is the bleve analyzer for tokenised fields.
	Analyzer string `yaml:"analyzer" json:"analyzer"`
}

// PoolConfig bounds the open index readers.
type PoolConfig struct {
	MaxOpenedIndexes int    `yaml:"max_opened_indexes" json:"max_opened_indexes"`
	SweepInterval    string `yaml:"sweep_interval" json:"sweep_interval"`
}

// TemplatesConfig configures the transformation templates.
type TemplatesConfig struct {
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// Dir is searched for template refs; builtin/ refs fall back to the
	// embedded templates.
	Dir      string            `yaml:"dir" json:"dir"`
	Mappings []TemplateMapping `yaml:"mappings" json:"mappings"`
}

// TemplateMapping registers one template for a content kind.
type TemplateMapping struct {
	ContentType string `yaml:"content_type" json:"content_type"`
	MimeType    string `yaml:"mime_type" json:"mime_type"`
	ConfigID    string `yaml:"config_id" json:"config_id"`
	Template    string `yaml:"template" json:"template"`
}

// JobLogConfig selects where job outcomes are kept.
type JobLogConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend" json:"backend"`
	// Path defaults to <data_dir>/jobs.db.
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// WatchConfig configures directory watching.
type WatchConfig struct {
	Debounce     string   `yaml:"debounce" json:"debounce"`
	PollInterval string   `yaml:"poll_interval" json:"poll_interval"`
	ForcePolling bool     `yaml:"force_polling" json:"force_polling"`
	Ignore       []string `yaml:"ignore" json:"ignore"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Scheduler: SchedulerConfig{
			Workers:         runtime.NumCPU(),
			FetchRetries:    3,
			FetchRetryDelay: "100ms",
		},
		Index: IndexConfig{
			MaxPendingChanges: 1000,
			CommitInterval:    "5s",
			Analyzer:          "standard",
		},
		Pool: PoolConfig{
			MaxOpenedIndexes: 32,
			SweepInterval:    "1m",
		},
		Templates: TemplatesConfig{
			CacheSize: 128,
			Mappings: []TemplateMapping{
				{ContentType: "file", MimeType: "text/xml", Template: "builtin/passthrough.tmpl"},
				{ContentType: "file", MimeType: "text/plain", Template: "builtin/text.tmpl"},
			},
		},
		JobLog: JobLogConfig{
			Backend: "sqlite",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Stderr:    true,
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Watch: WatchConfig{
			Debounce:     "200ms",
			PollInterval: "5s",
		},
	}
}

// defaultDataDir returns ~/.amanidx, or a temp directory without a home.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amanidx")
	}
	return filepath.Join(home, ".amanidx")
}

// GetUserConfigPath returns the path of the user configuration file:
//   - $XDG_CONFIG_HOME/amanidx/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanidx/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanidx", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanidx", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanidx", "config.yaml")
}

// Load builds the configuration in order of increasing precedence:
//  1. Defaults
//  2. The YAML file at path, or the user config file when path is empty
//  3. Environment variables (AMANIDX_*)
//
// A missing user config file is fine; a missing explicit path is not.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = GetUserConfigPath()
	}
	if err := cfg.loadYAML(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML decodes the file over the current values. Keys the file does
// not set keep their value; lists are replaced. Unknown keys are errors.
func (c *Config) loadYAML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies AMANIDX_* environment variables. Unparsable
// values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANIDX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("AMANIDX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scheduler.Workers = n
		}
	}
	if v := os.Getenv("AMANIDX_DRAIN_ON_STOP"); v != "" {
		c.Scheduler.DrainOnStop = parseBool(v)
	}
	if v := os.Getenv("AMANIDX_COMMIT_INTERVAL"); v != "" {
		c.Index.CommitInterval = v
	}
	if v := os.Getenv("AMANIDX_ANALYZER"); v != "" {
		c.Index.Analyzer = v
	}
	if v := os.Getenv("AMANIDX_MAX_OPENED_INDEXES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Pool.MaxOpenedIndexes = n
		}
	}
	if v := os.Getenv("AMANIDX_TEMPLATES_DIR"); v != "" {
		c.Templates.Dir = v
	}
	if v := os.Getenv("AMANIDX_JOBLOG_BACKEND"); v != "" {
		c.JobLog.Backend = v
	}
	if v := os.Getenv("AMANIDX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AMANIDX_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("AMANIDX_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1, got %d", c.Scheduler.Workers)
	}
	if c.Scheduler.FetchRetries < 0 {
		return fmt.Errorf("scheduler.fetch_retries must be non-negative, got %d", c.Scheduler.FetchRetries)
	}
	if c.Index.MaxPendingChanges < 1 {
		return fmt.Errorf("index.max_pending_changes must be at least 1, got %d", c.Index.MaxPendingChanges)
	}
	if strings.TrimSpace(c.Index.Analyzer) == "" {
		return fmt.Errorf("index.analyzer must be set")
	}
	if c.Pool.MaxOpenedIndexes < 1 {
		return fmt.Errorf("pool.max_opened_indexes must be at least 1, got %d", c.Pool.MaxOpenedIndexes)
	}
	if c.Templates.CacheSize < 1 {
		return fmt.Errorf("templates.cache_size must be at least 1, got %d", c.Templates.CacheSize)
	}

	durations := []struct{ name, value string }{
		{"scheduler.fetch_retry_delay", c.Scheduler.FetchRetryDelay},
		{"index.commit_interval", c.Index.CommitInterval},
		{"pool.sweep_interval", c.Pool.SweepInterval},
		{"watch.debounce", c.Watch.Debounce},
		{"watch.poll_interval", c.Watch.PollInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s must be a duration like 5s, got %q", d.name, d.value)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}

	for i, m := range c.Templates.Mappings {
		if m.ContentType != "file" && m.ContentType != "url" {
			return fmt.Errorf("templates.mappings[%d].content_type must be 'file' or 'url', got %q", i, m.ContentType)
		}
		if m.MimeType == "" || m.Template == "" {
			return fmt.Errorf("templates.mappings[%d] needs mime_type and template", i)
		}
	}

	switch strings.ToLower(c.JobLog.Backend) {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("joblog.backend must be 'sqlite' or 'memory', got %s", c.JobLog.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// Duration parses one of the duration settings. Call after Validate.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// IndexDir returns the storage directory of an index.
func (c *Config) IndexDir(indexID string) string {
	return filepath.Join(c.DataDir, "indexes", indexID)
}

// JobLogPath returns the SQLite job log path.
func (c *Config) JobLogPath() string {
	if c.JobLog.Path != "" {
		return c.JobLog.Path
	}
	return filepath.Join(c.DataDir, "jobs.db")
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
