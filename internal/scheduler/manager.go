// Package scheduler runs index jobs.
//
// Jobs wait in a two-lane priority queue and are executed by a fixed pool
// of workers. Writes to one index are serialised through a per-index lock
// table while different indexes are processed in parallel. Every index is
// served by a lazily created indexio.Controller; reads go straight to the
// controller and never wait for the queue.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanidx/internal/content"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/indexio"
	"github.com/Aman-CERP/amanidx/internal/joblog"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/metrics"
	"github.com/Aman-CERP/amanidx/internal/parser"
	"github.com/Aman-CERP/amanidx/internal/pool"
	"github.com/Aman-CERP/amanidx/internal/query"
	"github.com/Aman-CERP/amanidx/internal/transform"
)

// Config tunes a Manager.
type Config struct {
	// Workers is the number of jobs run at the same time.
	Workers int
	// DrainOnStop runs the queued jobs before Stop returns instead of
	// abandoning them.
	DrainOnStop bool
	// FetchRetries is how often a fetch or index write failing with a
	// retryable error is tried again.
	FetchRetries    int
	FetchRetryDelay time.Duration
	// Index is applied to every controller the manager creates.
	Index indexio.Options
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		FetchRetries:    3,
		FetchRetryDelay: 100 * time.Millisecond,
		Index:           indexio.DefaultOptions(),
	}
}

// Deps are the collaborators of a Manager. Fetcher and Transformer are
// required; the rest default to a fresh parser, no pool, an in-memory job
// log and a discarding logger.
type Deps struct {
	Fetcher     content.Fetcher
	Transformer transform.Transformer
	Parser      *parser.Parser
	Pool        *pool.Pool
	JobLog      joblog.Store
	Logger      *slog.Logger
}

type lifecycle int

const (
	lifecycleNew lifecycle = iota
	lifecycleRunning
	lifecycleStopping
	lifecycleStopped
)

// Manager accepts index jobs and runs them on a worker pool.
type Manager struct {
	cfg         Config
	fetcher     content.Fetcher
	transformer transform.Transformer
	parser      *parser.Parser
	pool        *pool.Pool
	jobLog      joblog.Store
	logger      *slog.Logger

	mu    sync.Mutex
	state lifecycle
	seq   uint64
	queue *queue
	// wake is closed and replaced whenever a job is queued or an index lock
	// is released.
	wake chan struct{}

	ctlMu       sync.Mutex
	controllers map[string]*indexio.Controller
	ctlClosed   bool

	group *errgroup.Group
}

// NewManager returns a manager. Call Start before enqueueing.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Fetcher == nil || deps.Transformer == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "scheduler needs a fetcher and a transformer", nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	logger := logging.OrDiscard(deps.Logger)
	if deps.Parser == nil {
		deps.Parser = parser.New(logger)
	}
	if deps.JobLog == nil {
		deps.JobLog = joblog.NewMemoryStore(0)
	}
	return &Manager{
		cfg:         cfg,
		fetcher:     deps.Fetcher,
		transformer: deps.Transformer,
		parser:      deps.Parser,
		pool:        deps.Pool,
		jobLog:      deps.JobLog,
		logger:      logger,
		queue:       newQueue(),
		wake:        make(chan struct{}),
		controllers: make(map[string]*indexio.Controller),
	}, nil
}

// Start launches the workers. Cancelling ctx makes the workers return after
// their current job; Stop must still be called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != lifecycleNew {
		return errStopped()
	}
	m.state = lifecycleRunning

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error {
			m.work(gctx)
			return nil
		})
	}
	m.group = g
	m.logger.Info("scheduler_started", slog.Int("workers", m.cfg.Workers))
	return nil
}

// Stop refuses new jobs, abandons the queued ones (or runs them when
// DrainOnStop is set), waits for running jobs and stops every controller.
// Calling Stop again is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	switch m.state {
	case lifecycleNew:
		m.state = lifecycleStopped
		m.mu.Unlock()
		return nil
	case lifecycleStopping, lifecycleStopped:
		m.mu.Unlock()
		return nil
	}
	m.state = lifecycleStopping
	var abandoned []*Job
	if !m.cfg.DrainOnStop {
		abandoned = m.queue.drain()
	}
	m.broadcastLocked()
	m.mu.Unlock()

	for _, j := range abandoned {
		j.State = StateAbandoned
		m.record(context.Background(), j, StateAbandoned, time.Now(), errStopped())
	}

	_ = m.group.Wait()

	// jobs left behind by workers that exited on context cancellation
	m.mu.Lock()
	left := m.queue.drain()
	m.state = lifecycleStopped
	m.mu.Unlock()
	for _, j := range left {
		j.State = StateAbandoned
		m.record(context.Background(), j, StateAbandoned, time.Now(), errStopped())
	}

	var errs []error
	m.ctlMu.Lock()
	m.ctlClosed = true
	for id, c := range m.controllers {
		if err := c.Stop(context.Background()); err != nil {
			m.logger.Warn("index_stop_failed", slog.String("index", id), slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	m.ctlMu.Unlock()

	m.logger.Info("scheduler_stopped", slog.Int("abandoned", len(abandoned)+len(left)))
	return errors.Join(errs...)
}

// Index enqueues a job to bring the content identified by id into idx using
// cfg's templates. It never blocks on the queue.
func (m *Manager) Index(id content.ID, idx *indexio.Index, cfg *transform.IndexConfig, requester Requester, priority Priority, params map[string]string) (*Job, error) {
	if idx == nil || idx.ID == "" || cfg == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "index job needs an index and a config", nil)
	}
	if priority != PriorityHigh {
		priority = PriorityLow
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != lifecycleRunning {
		return nil, errStopped()
	}
	m.seq++
	j := &Job{
		ID:        uuid.New(),
		ContentID: id,
		Index:     *idx,
		Config:    cfg,
		Requester: requester,
		Priority:  priority,
		Params:    params,
		Created:   time.Now(),
		State:     StateQueued,
		seq:       m.seq,
	}
	m.queue.push(j)
	m.broadcastLocked()
	metrics.JobsEnqueuedTotal.WithLabelValues(priority.String()).Inc()
	m.logger.Debug("job_enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("content", id.String()),
		slog.String("index", idx.ID),
		slog.String("priority", priority.String()))
	return j.snapshot(), nil
}

// Status returns a copy of every job not finished yet, ordered by priority
// then enqueue order.
func (m *Manager) Status() []*Job {
	return m.status(nil)
}

// StatusByIndex is Status limited to one index.
func (m *Manager) StatusByIndex(indexID string) []*Job {
	return m.status(func(j *Job) bool { return j.Index.ID == indexID })
}

// StatusByRequester is Status limited to one requester.
func (m *Manager) StatusByRequester(r Requester) []*Job {
	return m.status(func(j *Job) bool { return j.Requester == r })
}

func (m *Manager) status(keep func(*Job) bool) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.snapshot(keep)
}

// Failed lists the recorded job failures, oldest first.
func (m *Manager) Failed(ctx context.Context) ([]joblog.Record, error) {
	return m.jobLog.List(ctx, joblog.Filter{Outcome: joblog.OutcomeFailed})
}

// FailedByIndex is Failed limited to one index.
func (m *Manager) FailedByIndex(ctx context.Context, indexID string) ([]joblog.Record, error) {
	return m.jobLog.List(ctx, joblog.Filter{Outcome: joblog.OutcomeFailed, IndexID: indexID})
}

// FailedByRequester is Failed limited to one requester.
func (m *Manager) FailedByRequester(ctx context.Context, r Requester) ([]joblog.Record, error) {
	return m.jobLog.List(ctx, joblog.Filter{Outcome: joblog.OutcomeFailed, Requester: string(r)})
}

// Wait blocks until no job is queued or running.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.queue.idle() {
			m.mu.Unlock()
			return nil
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Query runs q on the committed state of idx. It bypasses the job queue.
// The caller must Terminate the results.
func (m *Manager) Query(ctx context.Context, idx *indexio.Index, q query.Query, opts query.Options) (*query.Results, error) {
	if idx == nil || idx.ID == "" || q == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "query needs an index and a query", nil)
	}
	c, err := m.controller(*idx)
	if err != nil {
		return nil, err
	}
	return query.Run(ctx, c, q, opts)
}

// Indexes returns the ids of the indexes the manager has touched.
func (m *Manager) Indexes() []string {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	ids := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetMaxOpenedIndexes bounds the number of open index readers.
func (m *Manager) SetMaxOpenedIndexes(n int) {
	if m.pool != nil {
		m.pool.SetMaxOpened(n)
	}
}

// CloseOldReaders runs one pool eviction pass.
func (m *Manager) CloseOldReaders() {
	if m.pool != nil {
		m.pool.CloseOldReaders()
	}
}

// controller returns the controller of idx, creating it on first use. The
// first Index seen for an id fixes its analyzer and path.
func (m *Manager) controller(idx indexio.Index) (*indexio.Controller, error) {
	m.ctlMu.Lock()
	defer m.ctlMu.Unlock()
	if m.ctlClosed {
		return nil, errStopped()
	}
	c, ok := m.controllers[idx.ID]
	if ok {
		if c.Index() != idx {
			m.logger.Warn("index_definition_mismatch",
				slog.String("index", idx.ID),
				slog.String("using", c.Index().String()))
		}
		return c, nil
	}
	var reg indexio.Registry
	if m.pool != nil {
		reg = m.pool
	}
	c = indexio.New(idx, m.cfg.Index, reg, m.logger)
	m.controllers[idx.ID] = c
	return c, nil
}

// broadcastLocked wakes every waiting worker. Requires mu.
func (m *Manager) broadcastLocked() {
	close(m.wake)
	m.wake = make(chan struct{})
}

func errStopped() error {
	return amerrors.New(amerrors.ErrCodeSchedulerStopped, "scheduler is not running", nil)
}
