package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanidx/internal/content"
	"github.com/Aman-CERP/amanidx/internal/output"
	"github.com/Aman-CERP/amanidx/internal/scheduler"
)

// indexOptions are shared by the index and watch commands.
type indexOptions struct {
	indexID   string
	configID  string
	requester string
	priority  string
	params    map[string]string
}

func (o *indexOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.indexID, "index", "default", "Index to write to")
	cmd.Flags().StringVar(&o.configID, "config-id", "", "Config id selecting the template of every file")
	cmd.Flags().StringVar(&o.requester, "requester", "cli", "Requester recorded on every job")
	cmd.Flags().StringVar(&o.priority, "priority", "low", "Job priority: low or high")
	cmd.Flags().StringToStringVar(&o.params, "param", nil, "Template parameter as key=value (repeatable)")
}

func newIndexCmd(root *rootOptions) *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index every file below a directory",
		Long: `Index enqueues one job per file below path and waits for all of them.

Files are transformed with the template mapped to their mime type in the
config; files without a mapping are skipped. Failed jobs are listed at
the end and kept in the job log.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, root, opts, path)
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *indexOptions, path string) (err error) {
	out := output.New(cmd.OutOrStdout())

	priority, err := scheduler.ParsePriority(opts.priority)
	if err != nil {
		return err
	}
	fetcher, err := content.NewDirFetcher(path, root.logger)
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

	out.Statusf("", "Scanning %s", fetcher.Root())
	jobs, skipped, err := enqueueTree(ctx, a, fetcher, opts, priority)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		out.Warningf("No indexable files below %s (%d skipped)", fetcher.Root(), skipped)
		return nil
	}

	out.Statusf("", "Indexing %d files into %q", len(jobs), opts.indexID)
	if err := a.manager.Wait(ctx); err != nil {
		return err
	}

	failed, err := a.manager.FailedByIndex(ctx, opts.indexID)
	if err != nil {
		return err
	}
	nFailed := 0
	for _, r := range failed {
		if !jobs[r.JobID] {
			continue
		}
		nFailed++
		out.Errorf("%s: %s", r.ContentKey, r.Message)
	}

	if nFailed > 0 {
		out.Warningf("Indexed %d of %d files into %q (%d failed, %d skipped)",
			len(jobs)-nFailed, len(jobs), opts.indexID, nFailed, skipped)
		return fmt.Errorf("%d index jobs failed", nFailed)
	}
	out.Successf("Indexed %d files into %q (%d skipped)", len(jobs), opts.indexID, skipped)
	return nil
}

// enqueueTree enqueues a job for every mapped file below the fetcher root
// and returns the job ids and the number of unmapped files.
func enqueueTree(ctx context.Context, a *app, fetcher *content.DirFetcher, opts *indexOptions, priority scheduler.Priority) (map[string]bool, int, error) {
	idx := a.index(opts.indexID)
	jobs := make(map[string]bool)
	skipped := 0

	err := fetcher.Walk(ctx, func(id content.ID) error {
		if _, err := a.indexConfig.Template(id.Type, content.MimeTypeOf(id.Key), id.ConfigID); err != nil {
			skipped++
			return nil
		}
		job, err := a.manager.Index(id, idx, a.indexConfig, scheduler.Requester(opts.requester), priority, opts.params)
		if err != nil {
			return err
		}
		jobs[job.ID.String()] = true
		return nil
	})
	return jobs, skipped, err
}
