package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/config"
)

func TestConfigTemplate_LoadsAsDefaults(t *testing.T) {
	// Given: the template written to disk
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.Load(path)

	// Then: it only restates the defaults
	require.NoError(t, err)
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Scheduler, cfg.Scheduler)
	assert.Equal(t, defaults.Index, cfg.Index)
	assert.Equal(t, defaults.Pool, cfg.Pool)
	assert.Equal(t, defaults.Templates.Mappings, cfg.Templates.Mappings)
	assert.Equal(t, defaults.JobLog, cfg.JobLog)
	assert.Equal(t, defaults.Logging, cfg.Logging)
	assert.Equal(t, defaults.Metrics, cfg.Metrics)
	assert.Equal(t, defaults.Watch.Debounce, cfg.Watch.Debounce)
}
