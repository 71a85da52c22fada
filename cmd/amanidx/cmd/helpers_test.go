package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/config"
)

// testEnv is a config file with its data directory below t.TempDir().
type testEnv struct {
	configPath string
	dataDir    string
	contentDir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	cfg := config.NewConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Scheduler.Workers = 2
	cfg.Logging.Level = "error"

	env := testEnv{
		configPath: filepath.Join(dir, "config.yaml"),
		dataDir:    cfg.DataDir,
		contentDir: filepath.Join(dir, "content"),
	}
	require.NoError(t, cfg.WriteYAML(env.configPath))
	require.NoError(t, os.MkdirAll(env.contentDir, 0o755))
	return env
}

func (e testEnv) write(t *testing.T, name, data string) {
	t.Helper()
	path := filepath.Join(e.contentDir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

// run executes the root command with --config set and returns stdout.
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", e.configPath}, args...)...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeStreams(t, args...)
	return out, err
}

// executeStreams runs the root command and returns stdout and stderr.
func executeStreams(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
