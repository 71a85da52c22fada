package watcher

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/amanidx/internal/content"
	"github.com/Aman-CERP/amanidx/internal/indexio"
	"github.com/Aman-CERP/amanidx/internal/scheduler"
	"github.com/Aman-CERP/amanidx/internal/transform"
)

// Enqueuer accepts index jobs. *scheduler.Manager implements it.
type Enqueuer interface {
	Index(id content.ID, idx *indexio.Index, cfg *transform.IndexConfig, requester scheduler.Requester, priority scheduler.Priority, params map[string]string) (*scheduler.Job, error)
}

// Feeder enqueues an index job for every file a watcher reports.
type Feeder struct {
	Fetcher   *content.DirFetcher
	Index     *indexio.Index
	Config    *transform.IndexConfig
	Requester scheduler.Requester
	Priority  scheduler.Priority
	Params    map[string]string
	// SkipUnmapped drops files whose mime type has no template in Config
	// instead of enqueueing jobs that would fail.
	SkipUnmapped bool
	Logger       *slog.Logger
}

// Run feeds batches until events is closed or ctx is done.
func (f *Feeder) Run(ctx context.Context, events <-chan []FileEvent, q Enqueuer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			f.Handle(batch, q)
		}
	}
}

// Handle enqueues one job per file event and returns how many were
// accepted. Directory events carry no content and are skipped.
func (f *Feeder) Handle(batch []FileEvent, q Enqueuer) int {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}

	n := 0
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		id, err := f.Fetcher.IDFor(ev.Path)
		if err != nil {
			logger.Warn("watch_event_skipped", slog.String("path", ev.Path), slog.String("error", err.Error()))
			continue
		}
		if f.SkipUnmapped {
			if _, err := f.Config.Template(id.Type, content.MimeTypeOf(id.Key), id.ConfigID); err != nil {
				logger.Debug("watch_event_unmapped", slog.String("content", id.String()))
				continue
			}
		}
		job, err := q.Index(id, f.Index, f.Config, f.Requester, f.Priority, f.Params)
		if err != nil {
			logger.Warn("watch_enqueue_failed",
				slog.String("content", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		n++
		logger.Debug("watch_enqueued",
			slog.String("content", id.String()),
			slog.String("op", ev.Operation.String()),
			slog.String("job_id", job.ID.String()))
	}
	return n
}
