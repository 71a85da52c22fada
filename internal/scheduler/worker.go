package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amanidx/internal/content"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/indexio"
	"github.com/Aman-CERP/amanidx/internal/joblog"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/metrics"
)

// work runs jobs until the manager stops or ctx is cancelled.
func (m *Manager) work(ctx context.Context) {
	for ctx.Err() == nil {
		j, lock, wake, done := m.next()
		if done {
			return
		}
		if j == nil {
			select {
			case <-wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		m.run(ctx, j, lock)
	}
}

// next picks a runnable job. With no runnable job it returns the channel
// to wait on; done is set once the manager stops and nothing is left.
func (m *Manager) next() (*Job, *sync.Mutex, <-chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != lifecycleRunning && m.queue.queued() == 0 {
		return nil, nil, nil, true
	}
	j, lock := m.queue.pick()
	return j, lock, m.wake, false
}

// run executes one job and releases its index lock.
func (m *Manager) run(ctx context.Context, j *Job, lock *sync.Mutex) {
	start := time.Now()
	metrics.RunningJobs.Inc()
	log := logging.ForJob(m.logger, string(j.Requester), j.Index.ID).With(
		slog.String("job_id", j.ID.String()),
		slog.String("content", j.ContentID.String()))

	err := m.process(ctx, j, log)
	state := StateDone
	if err != nil {
		state = StateFailed
		attrs := append(amerrors.LogAttrs(err), slog.Duration("duration", time.Since(start)))
		log.Error("job_failed", attrs...)
	} else {
		log.Debug("job_done", slog.Duration("duration", time.Since(start)))
	}
	// Recorded before the job leaves the running set, so Wait returning
	// means every outcome is in the job log.
	m.record(ctx, j, state, start, err)

	lock.Unlock()
	metrics.RunningJobs.Dec()

	m.mu.Lock()
	delete(m.queue.running, j)
	j.State = state
	m.broadcastLocked()
	m.mu.Unlock()
}

// process fetches, transforms, parses and writes one unit of content. The
// commit decision runs whatever the outcome, so a failing job still
// publishes what earlier jobs on the same index staged.
func (m *Manager) process(ctx context.Context, j *Job, log *slog.Logger) (err error) {
	ctl, err := m.controller(j.Index)
	if err != nil {
		return err
	}
	defer func() {
		cerr := m.commit(ctx, ctl)
		switch {
		case cerr == nil:
		case err == nil:
			err = cerr
		default:
			log.Warn("commit_failed", amerrors.LogAttrs(cerr)...)
		}
	}()

	c, err := m.fetch(ctx, j.ContentID)
	if err != nil {
		return err
	}

	if c.Deleted {
		if !c.DeleteRule.Valid() {
			return amerrors.New(amerrors.ErrCodeInvalidInput, "deleted content "+j.ContentID.String()+" has no delete rule", nil)
		}
		if err := amerrors.Retry(ctx, m.retryConfig(), func() error {
			return ctl.DeleteDocuments(ctx, c.DeleteRule)
		}); err != nil {
			return err
		}
		log.Debug("content_deleted", slog.String("rule", c.DeleteRule.String()))
		return nil
	}

	ref, err := j.Config.TemplateFor(c)
	if err != nil {
		return err
	}
	out, err := m.transformer.Transform(ctx, ref, c, j.Params)
	if err != nil {
		return err
	}
	res, err := m.parser.Process(bytes.NewReader(out))
	if err != nil {
		return err
	}
	metrics.ParserWarningsTotal.Add(float64(len(res.Warnings)))

	if err := amerrors.Retry(ctx, m.retryConfig(), func() error {
		return ctl.UpdateDocuments(ctx, c.DeleteRule, res.Documents)
	}); err != nil {
		return err
	}
	log.Debug("content_indexed",
		slog.String("template", string(ref)),
		slog.Int("documents", len(res.Documents)),
		slog.Int("warnings", len(res.Warnings)))
	return nil
}

// retryConfig is the backoff for fetches and for writes refused because
// another process holds the index.
func (m *Manager) retryConfig() amerrors.RetryConfig {
	rc := amerrors.DefaultRetryConfig()
	rc.MaxRetries = m.cfg.FetchRetries
	if m.cfg.FetchRetryDelay > 0 {
		rc.InitialDelay = m.cfg.FetchRetryDelay
	}
	return rc
}

func (m *Manager) fetch(ctx context.Context, id content.ID) (*content.Content, error) {
	c, err := amerrors.RetryWithResult(ctx, m.retryConfig(), func() (*content.Content, error) {
		return m.fetcher.Fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, amerrors.New(amerrors.ErrCodeContentNotFound, "no content for "+id.String(), nil)
	}
	return c, nil
}

// commit makes the job's changes visible right away unless another queued
// job targets the same index, in which case the controller's thresholds
// decide.
func (m *Manager) commit(ctx context.Context, ctl *indexio.Controller) error {
	m.mu.Lock()
	more := m.queue.waiting(ctl.Index().ID)
	m.mu.Unlock()
	if more {
		_, err := ctl.MaybeCommit(ctx)
		return err
	}
	return ctl.Commit(ctx)
}

// record stores the outcome of a finished or abandoned job.
func (m *Manager) record(ctx context.Context, j *Job, state State, start time.Time, err error) {
	outcome := joblog.OutcomeDone
	switch state {
	case StateFailed:
		outcome = joblog.OutcomeFailed
	case StateAbandoned:
		outcome = joblog.OutcomeAbandoned
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(outcome)).Inc()
	if state != StateAbandoned {
		metrics.JobDuration.WithLabelValues(string(outcome)).Observe(time.Since(start).Seconds())
	}

	r := joblog.Record{
		JobID:       j.ID.String(),
		ContentType: string(j.ContentID.Type),
		ContentKey:  j.ContentID.Key,
		IndexID:     j.Index.ID,
		Requester:   string(j.Requester),
		Priority:    j.Priority.String(),
		Outcome:     outcome,
		Created:     j.Created,
		Finished:    time.Now(),
	}
	if err != nil {
		r.ErrorCode = amerrors.GetCode(err)
		r.Message = err.Error()
	}
	if err := m.jobLog.Append(context.WithoutCancel(ctx), r); err != nil {
		m.logger.Warn("job_record_failed",
			slog.String("job_id", r.JobID),
			slog.String("error", err.Error()))
	}
}
