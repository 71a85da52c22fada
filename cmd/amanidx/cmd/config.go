package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanidx/configs"
	"github.com/Aman-CERP/amanidx/internal/config"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the amanidx configuration file.

Configuration precedence (lowest to highest):
  1. Defaults
  2. Config file (--config, or ~/.config/amanidx/config.yaml)
  3. Environment variables (AMANIDX_*)`,
		Example: `  # Create the user config with defaults
  amanidx config init

  # Show the effective configuration
  amanidx config show --json`,
		// config init may be pointed at a file that does not exist yet.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if root.configPath != "" {
				if _, err := os.Stat(root.configPath); errors.Is(err, fs.ErrNotExist) {
					root.cfg = config.NewConfig()
					root.logger = slog.Default()
					return nil
				}
			}
			return root.setup()
		},
	}

	cmd.AddCommand(newConfigInitCmd(root))
	cmd.AddCommand(newConfigShowCmd(root))
	cmd.AddCommand(newConfigPathCmd(root))

	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated config file",
		Long: `Write the annotated default configuration to --config or the user
config path.

An existing file is kept unless --force is given; it is then backed up
next to the new file first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, root, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(root.cfg)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(root.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), root.configFile())
			return err
		},
	}
}

// configFile is the file config init writes to.
func (o *rootOptions) configFile() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.GetUserConfigPath()
}

func runConfigInit(cmd *cobra.Command, root *rootOptions, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := root.configFile()

	if _, err := os.Stat(path); err == nil {
		if !force {
			return amerrors.New(amerrors.ErrCodeInvalidInput, fmt.Sprintf("config file %s already exists", path), nil).
				WithSuggestion("Use --force to overwrite it")
		}
		backup, err := config.Backup(path)
		if err != nil {
			return err
		}
		out.Statusf("", "Backed up %s to %s", path, backup)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	out.Successf("Wrote %s", path)
	return nil
}
