// Package cmd provides the CLI commands for amanidx.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/pkg/version"
)

// rootOptions is shared by every subcommand. cfg and logger are set in
// PersistentPreRunE.
type rootOptions struct {
	configPath string
	debug      bool

	cfg            *config.Config
	logger         *slog.Logger
	loggingCleanup func()
}

// NewRootCmd creates the root command for the amanidx CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "amanidx",
		Short: "Job-scheduled full-text indexing of content",
		Long: `amanidx transforms content through templates into documents and
keeps them in full-text indexes.

Index jobs run on a worker pool with per-index write serialisation;
searches read the last committed state of an index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("amanidx version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: user config if present)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to <data_dir>/logs/")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.setup()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		opts.teardown()
		return nil
	}

	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup loads the config and installs the logger.
func (o *rootOptions) setup() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg

	lc := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	}
	if o.debug {
		lc.Level = "debug"
		if lc.FilePath == "" {
			lc.FilePath = logging.DefaultLogPath(cfg.DataDir)
		}
	}

	logger, cleanup, err := logging.Setup(lc)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.logger = logger
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)

	if o.debug {
		logger.Debug("debug_logging_enabled",
			slog.String("log_file", lc.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

func (o *rootOptions) teardown() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
