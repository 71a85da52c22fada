package indexio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	bdoc "github.com/blevesearch/bleve/v2/document"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/google/uuid"

	"github.com/Aman-CERP/amanidx/internal/content"
	"github.com/Aman-CERP/amanidx/internal/document"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/metrics"
	"github.com/Aman-CERP/amanidx/internal/pool"
)

// internal key holding the time of the last commit
const commitTimeKey = "amanidx.last_commit"

// page size used when resolving a delete rule against committed documents
const matchPage = 500

// Registry is told whenever a controller hands out a reader and when it
// goes away. *pool.Pool implements it.
type Registry interface {
	Touch(r pool.Reader)
	Remove(r pool.Reader)
}

// Controller serialises writes to one index and caches its searcher.
//
// Lock order is writeMu, then readMu, then openMu. openMu is never held
// while taking another lock.
type Controller struct {
	index    Index
	opts     Options
	registry Registry
	logger   *slog.Logger

	// write section
	writeMu       sync.Mutex
	batch         *bleve.Batch
	staged        map[string]*document.Document
	stagedDeletes map[string]struct{}
	pending       int

	// unix nanos of the last commit, or of opening if never committed
	lastCommit atomic.Int64

	// lifecycle
	openMu   sync.Mutex
	state    State
	idx      bleve.Index
	lock     *sessionLock
	analyzer analysis.Analyzer
	keyword  analysis.Analyzer

	generation atomic.Uint64

	// read section
	readMu  sync.Mutex
	current *Searcher
}

// New creates a controller. Nothing is opened until the first read or write.
// A nil registry disables reader tracking.
func New(idx Index, opts Options, registry Registry, logger *slog.Logger) *Controller {
	if registry == nil {
		registry = noRegistry{}
	}
	return &Controller{
		index:         idx,
		opts:          opts.withDefaults(),
		registry:      registry,
		logger:        logging.ForIndex(logger, idx.ID),
		staged:        make(map[string]*document.Document),
		stagedDeletes: make(map[string]struct{}),
	}
}

// Index returns the index this controller serves.
func (c *Controller) Index() Index { return c.index }

// ReaderName implements pool.Reader.
func (c *Controller) ReaderName() string { return c.index.ID }

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	return c.state
}

// Generation returns the number of commits applied since the controller opened.
func (c *Controller) Generation() uint64 { return c.generation.Load() }

// Pending returns the number of staged, uncommitted changes.
func (c *Controller) Pending() int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.pending
}

// LastCommit returns the time of the last commit. An index never committed
// reports when it was opened; one never opened reports the zero time.
func (c *Controller) LastCommit() time.Time {
	ns := c.lastCommit.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// ensureOpen opens the bleve index and session lock on first use.
func (c *Controller) ensureOpen() (bleve.Index, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	switch c.state {
	case StateOpen:
		return c.idx, nil
	case StateStopped:
		return nil, stopped(c.index)
	}

	m := bleve.NewIndexMapping()
	if m.AnalyzerNamed(c.index.analyzer()) == nil {
		return nil, amerrors.ConfigError("unknown analyzer "+c.index.analyzer(), nil).
			WithDetail("index", c.index.ID)
	}
	m.DefaultAnalyzer = c.index.analyzer()

	var (
		idx  bleve.Index
		lock *sessionLock
		err  error
	)
	if c.index.Path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		lock = newSessionLock(c.index.Path)
		if err := lock.acquire(); err != nil {
			return nil, err
		}
		idx, err = bleve.Open(c.index.Path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			c.logger.Info("index_created", slog.String("path", c.index.Path))
			idx, err = bleve.New(c.index.Path, m)
		}
	}
	if err != nil {
		if lock != nil {
			_ = lock.release()
		}
		return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to open index "+c.index.ID, err).
			WithDetail("path", c.index.Path)
	}

	analyzer := idx.Mapping().AnalyzerNamed(c.index.analyzer())
	keyword := idx.Mapping().AnalyzerNamed(keywordAnalyzer)
	if analyzer == nil || keyword == nil {
		_ = idx.Close()
		if lock != nil {
			_ = lock.release()
		}
		return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "index mapping lacks analyzer "+c.index.analyzer(), nil).
			WithDetail("index", c.index.ID)
	}

	c.idx = idx
	c.lock = lock
	c.analyzer = analyzer
	c.keyword = keyword
	c.batch = idx.NewBatch()
	c.state = StateOpen

	last := time.Now()
	if raw, err := idx.GetInternal([]byte(commitTimeKey)); err == nil && len(raw) > 0 {
		if t, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			last = t
		}
	}
	c.lastCommit.Store(last.UnixNano())

	c.logger.Debug("index_opened", slog.String("path", c.index.Path))
	return idx, nil
}

// UpdateDocuments stages the deletion of every document matching rule,
// committed or staged, followed by the addition of docs. Nothing becomes
// visible to searchers before Commit. A nil rule only adds.
func (c *Controller) UpdateDocuments(ctx context.Context, rule *content.DeleteRule, docs []*document.Document) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	idx, err := c.ensureOpen()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	added := make(map[string]*document.Document, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		added[uuid.Must(uuid.NewV7()).String()] = d
	}

	st, err := c.stage(ctx, idx, rule, added)
	if err != nil {
		return err
	}
	c.batch.Merge(st.batch)
	for _, id := range st.committed {
		c.stagedDeletes[id] = struct{}{}
	}
	for _, id := range st.staged {
		delete(c.staged, id)
	}
	for id, d := range added {
		c.staged[id] = d
	}
	deleted := len(st.committed) + len(st.staged)
	c.pending += deleted + len(added)
	c.logger.Debug("documents_staged",
		slog.Int("added", len(added)),
		slog.Int("deleted", deleted),
		slog.Int("pending", c.pending))
	return nil
}

// staging is one replace, built apart from the pending batch.
type staging struct {
	batch     *bleve.Batch
	committed []string
	staged    []string
}

// stage builds the batch deleting rule's matches and adding docs. It leaves
// the controller untouched, so a failure never leaves half a replace pending.
// Callers hold writeMu.
func (c *Controller) stage(ctx context.Context, idx bleve.Index, rule *content.DeleteRule, docs map[string]*document.Document) (*staging, error) {
	st := &staging{batch: idx.NewBatch()}
	if rule.Valid() {
		ids, err := c.committedMatches(ctx, idx, rule)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to resolve delete rule", err).
				WithDetail("index", c.index.ID).
				WithDetail("rule", rule.String())
		}
		for _, id := range ids {
			if _, done := c.stagedDeletes[id]; done {
				continue
			}
			st.batch.Delete(id)
			st.committed = append(st.committed, id)
		}
		for id, d := range c.staged {
			if matches(d, rule) {
				st.batch.Delete(id)
				st.staged = append(st.staged, id)
			}
		}
	} else if rule != nil {
		c.logger.Warn("delete_rule_ignored", slog.String("rule", rule.String()))
	}

	for id, d := range docs {
		if err := st.batch.IndexAdvanced(c.toBleve(id, d)); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to stage document", err).
				WithDetail("index", c.index.ID)
		}
	}
	return st, nil
}

// DeleteDocuments stages the deletion of every document matching rule.
func (c *Controller) DeleteDocuments(ctx context.Context, rule *content.DeleteRule) error {
	if !rule.Valid() {
		return amerrors.New(amerrors.ErrCodeInvalidInput, "delete needs a rule with a field and a value", nil)
	}
	return c.UpdateDocuments(ctx, rule, nil)
}

// committedMatches returns the ids of committed documents whose rule field
// holds exactly the rule value.
func (c *Controller) committedMatches(ctx context.Context, idx bleve.Index, rule *content.DeleteRule) ([]string, error) {
	q := bleve.NewTermQuery(rule.Value)
	q.SetField(rule.Field)

	var ids []string
	for from := 0; ; from += matchPage {
		req := bleve.NewSearchRequestOptions(q, matchPage, from, false)
		req.SortBy([]string{"_id"})
		res, err := idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < matchPage || uint64(from+len(res.Hits)) >= res.Total {
			return ids, nil
		}
	}
}

func matches(d *document.Document, rule *content.DeleteRule) bool {
	for _, v := range d.Values(rule.Field) {
		if v == rule.Value {
			return true
		}
	}
	return false
}

// toBleve converts a parsed document, mapping its flags to field options.
func (c *Controller) toBleve(id string, d *document.Document) *bdoc.Document {
	bd := bdoc.NewDocument(id)
	for _, f := range d.Fields {
		var opts index.FieldIndexingOptions
		if f.Stored {
			opts |= index.StoreField
		}
		analyzer := c.keyword
		if f.Indexed {
			opts |= index.IndexField
			if f.Tokenized {
				opts |= index.IncludeTermVectors
				analyzer = c.analyzer
			} else {
				opts |= index.DocValues
			}
		}
		if f.OmitNorms {
			opts |= index.SkipFreqNorm
		}
		bd.AddField(bdoc.NewTextFieldCustom(f.Name, nil, []byte(f.Value), opts, analyzer))
	}
	return bd
}

// MaybeCommit commits when enough changes are pending or enough time has
// passed since the last commit. It reports whether a commit happened.
func (c *Controller) MaybeCommit(ctx context.Context) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() == StateStopped {
		return false, stopped(c.index)
	}
	if c.pending == 0 {
		return false, nil
	}
	if c.pending < c.opts.MaxPendingChanges && time.Since(c.LastCommit()) < c.opts.CommitInterval {
		return false, nil
	}
	if err := c.commitLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Commit applies every staged change atomically. Searchers booked from now
// on see the changes; searchers already booked do not.
func (c *Controller) Commit(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() == StateStopped {
		return stopped(c.index)
	}
	return c.commitLocked(ctx)
}

func (c *Controller) commitLocked(ctx context.Context) error {
	if c.pending == 0 || c.batch == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	now := start.UTC()
	c.batch.SetInternal([]byte(commitTimeKey), []byte(now.Format(time.RFC3339Nano)))

	if err := c.idx.Batch(c.batch); err != nil {
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		c.logger.Error("index_commit_failed", slog.String("error", err.Error()))
		return amerrors.New(amerrors.ErrCodeIOFailure, "failed to commit index "+c.index.ID, err)
	}

	changes := c.pending
	c.batch.Reset()
	clear(c.staged)
	clear(c.stagedDeletes)
	c.pending = 0
	c.lastCommit.Store(now.UnixNano())
	gen := c.generation.Add(1)

	metrics.CommitsTotal.WithLabelValues("ok").Inc()
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	c.logger.Debug("index_committed",
		slog.Int("changes", changes),
		slog.Uint64("generation", gen),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// BookSearcher returns the current searcher, opening one if there is none
// or the last commit made it stale, and takes a reference on it. Calls
// between two commits return the same *Searcher. Every booking must be
// released with ReleaseSearcher.
func (c *Controller) BookSearcher(ctx context.Context) (*Searcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx, err := c.ensureOpen()
	if err != nil {
		return nil, err
	}

	c.readMu.Lock()
	if c.State() == StateStopped {
		c.readMu.Unlock()
		return nil, stopped(c.index)
	}

	gen := c.generation.Load()
	s := c.current
	if s != nil && s.generation != gen {
		if err := c.detachLocked(); err != nil {
			c.logger.Warn("searcher_close_failed", slog.String("error", err.Error()))
		}
		s = nil
	}
	if s == nil {
		s, err = c.openSearcher(idx, gen)
		if err != nil {
			c.readMu.Unlock()
			return nil, err
		}
		c.current = s
	}
	s.refs++
	c.readMu.Unlock()

	// outside readMu: the pool may call back into CloseReader
	c.registry.Touch(c)
	return s, nil
}

func (c *Controller) openSearcher(idx bleve.Index, gen uint64) (*Searcher, error) {
	adv, err := idx.Advanced()
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to access index "+c.index.ID, err)
	}
	reader, err := adv.Reader()
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to open reader for "+c.index.ID, err)
	}
	c.logger.Debug("searcher_opened", slog.Uint64("generation", gen))
	return &Searcher{
		owner:      c,
		generation: gen,
		reader:     reader,
		mapping:    idx.Mapping(),
		current:    true,
	}, nil
}

// ReleaseSearcher gives back a booking. The reader is closed once no
// booking is left and a newer searcher has replaced it.
func (c *Controller) ReleaseSearcher(s *Searcher) error {
	if s == nil || s.owner != c {
		return amerrors.New(amerrors.ErrCodeInvalidSearcherHandle, "searcher does not belong to index "+c.index.ID, nil)
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	if s.refs <= 0 {
		return amerrors.New(amerrors.ErrCodeInvalidSearcherHandle, "searcher released more often than booked", nil).
			WithDetail("index", c.index.ID)
	}
	s.refs--
	if s.refs == 0 && !s.current {
		return s.close()
	}
	return nil
}

// CloseReader detaches the current searcher, closing it unless it is
// booked. Writer state is untouched and the next BookSearcher reopens.
func (c *Controller) CloseReader() error {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	return c.detachLocked()
}

// detachLocked drops the current searcher. Requires readMu.
func (c *Controller) detachLocked() error {
	s := c.current
	if s == nil {
		return nil
	}
	c.current = nil
	s.current = false
	if s.refs == 0 {
		return s.close()
	}
	return nil
}

// Stop commits what is pending, closes the reader, the writer and the
// session lock, and leaves the pool. Later calls fail with ErrIndexStopped;
// searchers still booked stay usable until released.
func (c *Controller) Stop(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.openMu.Lock()
	prev := c.state
	if prev != StateOpen {
		c.state = StateStopped
	}
	c.openMu.Unlock()

	switch prev {
	case StateStopped:
		return nil
	case StateUninitialized:
		c.registry.Remove(c)
		return nil
	}

	var errs []error
	if err := c.commitLocked(ctx); err != nil {
		errs = append(errs, err)
	}

	c.readMu.Lock()
	c.openMu.Lock()
	c.state = StateStopped
	c.openMu.Unlock()
	if err := c.detachLocked(); err != nil {
		errs = append(errs, err)
	}
	c.readMu.Unlock()

	c.registry.Remove(c)

	if err := c.idx.Close(); err != nil {
		errs = append(errs, amerrors.New(amerrors.ErrCodeIOFailure, "failed to close index "+c.index.ID, err))
	}
	if c.lock != nil {
		if err := c.lock.release(); err != nil {
			errs = append(errs, err)
		}
	}
	c.idx = nil
	c.batch = nil
	c.lock = nil

	c.logger.Debug("index_stopped", slog.Int("unsaved_changes", c.pending))
	return errors.Join(errs...)
}

func stopped(idx Index) error {
	return amerrors.New(amerrors.ErrCodeIndexStopped, "index "+idx.ID+" is stopped", nil)
}

type noRegistry struct{}

func (noRegistry) Touch(pool.Reader)  {}
func (noRegistry) Remove(pool.Reader) {}
