package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanidx/internal/config"
	"github.com/Aman-CERP/amanidx/internal/content"
	"github.com/Aman-CERP/amanidx/internal/output"
	"github.com/Aman-CERP/amanidx/internal/scheduler"
	"github.com/Aman-CERP/amanidx/internal/watcher"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &indexOptions{}
	var skipInitial bool

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Keep an index in sync with a directory",
		Long: `Watch indexes every file below path, then enqueues a job for every file
that is created, modified or removed until interrupted.

Removed files have their documents deleted. fsnotify is used where
available, polling otherwise (or with watch.force_polling).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, root, opts, path, !skipInitial)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&skipInitial, "skip-initial", false, "Do not index the existing files first")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *indexOptions, path string, initial bool) (err error) {
	out := output.New(cmd.OutOrStdout())
	logger := root.logger
	cfg := root.cfg

	priority, err := scheduler.ParsePriority(opts.priority)
	if err != nil {
		return err
	}
	fetcher, err := content.NewDirFetcher(path, logger)
	if err != nil {
		return err
	}
	fetcher.WithConfigID(opts.configID)

	a, err := newApp(ctx, root, fetcher)
	if err != nil {
		return err
	}
	defer func() {
		if serr := a.shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	w, err := watcher.New(watcher.Options{
		DebounceWindow: config.Duration(cfg.Watch.Debounce),
		PollInterval:   config.Duration(cfg.Watch.PollInterval),
		IgnorePatterns: cfg.Watch.Ignore,
		ForcePolling:   cfg.Watch.ForcePolling,
	}, logger)
	if err != nil {
		return err
	}

	feeder := &watcher.Feeder{
		Fetcher:      fetcher,
		Index:        a.index(opts.indexID),
		Config:       a.indexConfig,
		Requester:    scheduler.Requester(opts.requester),
		Priority:     priority,
		Params:       opts.params,
		SkipUnmapped: true,
		Logger:       logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx, fetcher.Root())
	})
	g.Go(func() error {
		return feeder.Run(gctx, w.Events(), a.manager)
	})

	select {
	case <-w.Ready():
	case <-gctx.Done():
	}
	if initial && gctx.Err() == nil {
		jobs, skipped, err := enqueueTree(gctx, a, fetcher, opts, priority)
		if err != nil {
			logger.Warn("watch_initial_scan_failed", slog.String("error", err.Error()))
		} else {
			out.Statusf("", "Queued %d files for %q (%d skipped)", len(jobs), opts.indexID, skipped)
		}
	}
	out.Successf("Watching %s (%s), press Ctrl+C to stop", fetcher.Root(), w.Mode())

	err = g.Wait()
	_ = w.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
