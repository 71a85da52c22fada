package scheduler

import (
	"context"
	"fmt"
	"html"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanidx/internal/content"
	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/indexio"
	"github.com/Aman-CERP/amanidx/internal/joblog"
	"github.com/Aman-CERP/amanidx/internal/pool"
	"github.com/Aman-CERP/amanidx/internal/query"
	"github.com/Aman-CERP/amanidx/internal/transform"
)

const mimeText = "text/plain"

// toXML turns plain content into one document keyed by uri.
func toXML(_ context.Context, _ transform.TemplateRef, c *content.Content, _ map[string]string) ([]byte, error) {
	return []byte(fmt.Sprintf(`<documents version="1.0"><document>`+
		`<field name="uri" store="yes" index="un-tokenised">%s</field>`+
		`<field name="body" store="yes" index="tokenised">%s</field>`+
		`</document></documents>`, html.EscapeString(c.ID.Key), html.EscapeString(string(c.Source)))), nil
}

func textConfig() *transform.IndexConfig {
	cfg := transform.NewIndexConfig("text")
	cfg.AddTemplates(content.TypeFile, mimeText, "", "plain")
	return cfg
}

func put(f *content.MemoryFetcher, key, body string) content.ID {
	id := content.ID{Type: content.TypeFile, Key: key}
	f.Put(&content.Content{
		ID:         id,
		MimeType:   mimeText,
		Source:     []byte(body),
		DeleteRule: &content.DeleteRule{Field: "uri", Value: key},
	})
	return id
}

type fixture struct {
	m       *Manager
	fetcher *content.MemoryFetcher
	log     *joblog.MemoryStore
	cfg     *transform.IndexConfig
}

func newFixture(t *testing.T, cfg Config, tr transform.Transformer, p *pool.Pool) *fixture {
	t.Helper()
	f := &fixture{
		fetcher: content.NewMemoryFetcher(),
		log:     joblog.NewMemoryStore(0),
		cfg:     textConfig(),
	}
	if tr == nil {
		tr = transform.TransformerFunc(toXML)
	}
	m, err := NewManager(cfg, Deps{Fetcher: f.fetcher, Transformer: tr, Pool: p, JobLog: f.log})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop() })
	f.m = m
	return f
}

func (f *fixture) enqueue(t *testing.T, key, body, index string, r Requester, p Priority) *Job {
	t.Helper()
	id := put(f.fetcher, key, body)
	j, err := f.m.Index(id, &indexio.Index{ID: index}, f.cfg, r, p, nil)
	require.NoError(t, err)
	return j
}

func wait(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func total(t *testing.T, m *Manager, index string, q query.Query) uint64 {
	t.Helper()
	r, err := m.Query(context.Background(), &indexio.Index{ID: index}, q, query.Options{})
	require.NoError(t, err)
	defer func() { _ = r.Terminate() }()
	return r.Total()
}

// gate blocks the transformation of keys it holds until they are opened.
type gate struct {
	mu      sync.Mutex
	held    map[string]chan struct{}
	started chan string
}

func newGate(keys ...string) *gate {
	g := &gate{held: make(map[string]chan struct{}), started: make(chan string, 16)}
	for _, k := range keys {
		g.held[k] = make(chan struct{})
	}
	return g
}

func (g *gate) open(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ch, ok := g.held[key]; ok {
		close(ch)
		delete(g.held, key)
	}
}

func (g *gate) Transform(ctx context.Context, ref transform.TemplateRef, c *content.Content, params map[string]string) ([]byte, error) {
	g.mu.Lock()
	ch := g.held[c.ID.Key]
	g.mu.Unlock()
	g.started <- c.ID.Key
	if ch != nil {
		<-ch
	}
	return toXML(ctx, ref, c, params)
}

func TestManager_IndexesEveryJob(t *testing.T) {
	f := newFixture(t, Config{Workers: 4}, nil, nil)

	// Given: ten documents for each of three indexes, mixed priorities
	indexes := []string{"a", "b", "c"}
	for i := 0; i < 10; i++ {
		for _, idx := range indexes {
			p := PriorityLow
			if i%3 == 0 {
				p = PriorityHigh
			}
			f.enqueue(t, fmt.Sprintf("%s-%d", idx, i), "body", idx, "tester", p)
		}
	}

	// When
	wait(t, f.m)

	// Then: every index holds its ten documents and nothing failed
	for _, idx := range indexes {
		assert.Equal(t, uint64(10), total(t, f.m, idx, query.NewGeneric(nil)), idx)
	}
	failed, err := f.m.Failed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Empty(t, f.m.Status())
	assert.Equal(t, indexes, f.m.Indexes())
}

func TestManager_ReindexReplacesDocument(t *testing.T) {
	f := newFixture(t, Config{Workers: 2}, nil, nil)

	f.enqueue(t, "doc", "first version", "idx", "r", PriorityLow)
	wait(t, f.m)
	f.enqueue(t, "doc", "second version", "idx", "r", PriorityLow)
	wait(t, f.m)

	r, err := f.m.Query(context.Background(), &indexio.Index{ID: "idx"}, query.NewGeneric(nil), query.Options{})
	require.NoError(t, err)
	defer func() { _ = r.Terminate() }()
	require.Equal(t, uint64(1), r.Total())
	fields, err := r.Document(0)
	require.NoError(t, err)
	assert.Equal(t, []string{"second version"}, fields["body"])
}

func TestManager_DeletedContentRemovesDocuments(t *testing.T) {
	f := newFixture(t, Config{Workers: 1}, nil, nil)
	idx := &indexio.Index{ID: "idx"}

	id := put(f.fetcher, "gone", "soon deleted")
	put(f.fetcher, "kept", "stays")
	for _, key := range []string{"gone", "kept"} {
		_, err := f.m.Index(content.ID{Type: content.TypeFile, Key: key}, idx, f.cfg, "r", PriorityLow, nil)
		require.NoError(t, err)
	}
	wait(t, f.m)
	require.Equal(t, uint64(2), total(t, f.m, "idx", query.NewGeneric(nil)))

	// When: the content reports deletion
	f.fetcher.Put(&content.Content{ID: id, Deleted: true, DeleteRule: &content.DeleteRule{Field: "uri", Value: "gone"}})
	_, err := f.m.Index(id, idx, f.cfg, "r", PriorityHigh, nil)
	require.NoError(t, err)
	wait(t, f.m)

	// Then
	assert.Equal(t, uint64(1), total(t, f.m, "idx", query.NewGeneric(nil)))
	assert.Zero(t, total(t, f.m, "idx", query.NewGeneric(nil, query.Term{Field: "uri", Value: "gone"})))
}

func TestManager_ConcurrentMixedPriorityRequesters(t *testing.T) {
	f := newFixture(t, Config{Workers: 4}, nil, nil)

	// Given: three requesters enqueueing into one shared index and their own
	var wg sync.WaitGroup
	for r := 0; r < 3; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			req := Requester(fmt.Sprintf("req-%d", r))
			for i := 0; i < 20; i++ {
				p := PriorityLow
				if (i+r)%2 == 0 {
					p = PriorityHigh
				}
				id := put(f.fetcher, fmt.Sprintf("%s-%d", req, i), "text")
				_, err := f.m.Index(id, &indexio.Index{ID: "shared"}, f.cfg, req, p, nil)
				assert.NoError(t, err)
				_, err = f.m.Index(id, &indexio.Index{ID: string(req)}, f.cfg, req, p, nil)
				assert.NoError(t, err)
			}
		}(r)
	}
	wg.Wait()

	// When
	wait(t, f.m)

	// Then: no job failed, write conflicts included
	records, err := f.log.List(context.Background(), joblog.Filter{})
	require.NoError(t, err)
	assert.Len(t, records, 120)
	for _, rec := range records {
		assert.Equal(t, joblog.OutcomeDone, rec.Outcome, rec.Message)
		assert.NotEqual(t, amerrors.ErrCodeWriteConflict, rec.ErrorCode)
	}
	assert.Equal(t, uint64(60), total(t, f.m, "shared", query.NewGeneric(nil)))
	for r := 0; r < 3; r++ {
		assert.Equal(t, uint64(20), total(t, f.m, fmt.Sprintf("req-%d", r), query.NewGeneric(nil)))
	}
}

func TestManager_MissingTemplateIsRecorded(t *testing.T) {
	f := newFixture(t, Config{Workers: 2}, nil, nil)

	// Given: content with a mime type the config has no template for
	bad := content.ID{Type: content.TypeFile, Key: "bad.bin"}
	f.fetcher.Put(&content.Content{ID: bad, MimeType: "application/octet-stream", Source: []byte("x")})
	_, err := f.m.Index(bad, &indexio.Index{ID: "idx"}, f.cfg, "alice", PriorityLow, nil)
	require.NoError(t, err)
	f.enqueue(t, "good", "fine", "idx", "bob", PriorityLow)

	// When
	wait(t, f.m)

	// Then: the failure is recorded and the other job still ran
	failed, err := f.m.FailedByIndex(context.Background(), "idx")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, amerrors.ErrCodeNoTemplate, failed[0].ErrorCode)
	assert.Equal(t, "bad.bin", failed[0].ContentKey)

	byReq, err := f.m.FailedByRequester(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, byReq, 1)
	byReq, err = f.m.FailedByRequester(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, byReq)

	assert.Equal(t, uint64(1), total(t, f.m, "idx", query.NewGeneric(nil)))
}

func TestManager_FetchRetriesRetryableErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	mem := content.NewMemoryFetcher()
	id := put(mem, "flaky", "eventually")
	flaky := content.FetcherFunc(func(ctx context.Context, id content.ID) (*content.Content, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			return nil, amerrors.New(amerrors.ErrCodeContentUnavailable, "busy", nil)
		}
		return mem.Fetch(ctx, id)
	})

	m, err := NewManager(Config{Workers: 1, FetchRetries: 3, FetchRetryDelay: time.Millisecond},
		Deps{Fetcher: flaky, Transformer: transform.TransformerFunc(toXML)})
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	_, err = m.Index(id, &indexio.Index{ID: "idx"}, textConfig(), "r", PriorityLow, nil)
	require.NoError(t, err)
	wait(t, m)

	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(1), total(t, m, "idx", query.NewGeneric(nil)))
}

func TestManager_BusyIndexDoesNotBlockOthers(t *testing.T) {
	g := newGate("slow-1")
	f := newFixture(t, Config{Workers: 2}, g, nil)

	// Given: a blocked job on "slow" and a second job queued behind it
	f.enqueue(t, "slow-1", "x", "slow", "r", PriorityHigh)
	require.Equal(t, "slow-1", <-g.started)
	f.enqueue(t, "slow-2", "x", "slow", "r", PriorityHigh)
	f.enqueue(t, "fast-1", "x", "fast", "r", PriorityLow)

	// Then: the free worker skips the busy index and runs the low job
	require.Eventually(t, func() bool {
		return len(f.m.StatusByIndex("fast")) == 0
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), total(t, f.m, "fast", query.NewGeneric(nil)))
	assert.Len(t, f.m.StatusByIndex("slow"), 2)

	g.open("slow-1")
	wait(t, f.m)
	assert.Equal(t, uint64(2), total(t, f.m, "slow", query.NewGeneric(nil)))
}

func TestManager_FailedJobStillCommitsEarlierWrites(t *testing.T) {
	g := newGate("ok")
	f := newFixture(t, Config{Workers: 1}, g, nil)
	idx := &indexio.Index{ID: "idx"}

	// Given: a good job held in its transform while a job for missing
	// content queues behind it on the same index
	f.enqueue(t, "ok", "kept", "idx", "r", PriorityLow)
	require.Equal(t, "ok", <-g.started)
	_, err := f.m.Index(content.ID{Type: content.TypeFile, Key: "missing"}, idx, f.cfg, "r", PriorityLow, nil)
	require.NoError(t, err)

	// When: both run and the queue drains
	g.open("ok")
	wait(t, f.m)

	// Then: the failure is recorded and the good job's document is visible
	assert.Empty(t, f.m.StatusByIndex("idx"))
	failed, err := f.m.FailedByIndex(context.Background(), "idx")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, amerrors.ErrCodeContentNotFound, failed[0].ErrorCode)
	assert.Equal(t, uint64(1), total(t, f.m, "idx", query.NewGeneric(nil)))
}

func TestManager_RetriesWriteWhileIndexLocked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Workers: 1, FetchRetries: 10, FetchRetryDelay: 20 * time.Millisecond}, nil, nil)
	path := filepath.Join(t.TempDir(), "idx")

	// Given: another writer holding the index directory for a moment
	holder := indexio.New(indexio.Index{ID: "holder", Path: path}, indexio.Options{}, nil, nil)
	require.NoError(t, holder.UpdateDocuments(ctx, nil, nil))
	released := make(chan error, 1)
	time.AfterFunc(50*time.Millisecond, func() { released <- holder.Stop(ctx) })

	// When
	id := put(f.fetcher, "doc", "written once free")
	_, err := f.m.Index(id, &indexio.Index{ID: "idx", Path: path}, f.cfg, "r", PriorityLow, nil)
	require.NoError(t, err)
	wait(t, f.m)

	// Then: the write went through after the lock was released
	require.NoError(t, <-released)
	failed, err := f.m.Failed(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, uint64(1), total(t, f.m, "idx", query.NewGeneric(nil)))
}

func TestManager_StatusOrderedByPriorityThenEnqueue(t *testing.T) {
	g := newGate("a")
	f := newFixture(t, Config{Workers: 1}, g, nil)

	// Given: one running low job and two queued jobs behind it
	f.enqueue(t, "a", "x", "idx", "alice", PriorityLow)
	require.Equal(t, "a", <-g.started)
	f.enqueue(t, "b", "x", "idx", "bob", PriorityLow)
	f.enqueue(t, "c", "x", "idx", "alice", PriorityHigh)

	// When
	status := f.m.Status()

	// Then
	require.Len(t, status, 3)
	assert.Equal(t, "c", status[0].ContentID.Key)
	assert.Equal(t, StateQueued, status[0].State)
	assert.Equal(t, "a", status[1].ContentID.Key)
	assert.Equal(t, StateRunning, status[1].State)
	assert.Equal(t, "b", status[2].ContentID.Key)

	alice := f.m.StatusByRequester("alice")
	require.Len(t, alice, 2)
	assert.Equal(t, "c", alice[0].ContentID.Key)
	assert.Equal(t, "a", alice[1].ContentID.Key)

	// snapshots are copies
	status[0].State = StateDone
	assert.Equal(t, StateQueued, f.m.Status()[0].State)

	g.open("a")
	wait(t, f.m)
	assert.Empty(t, f.m.Status())
}

func TestManager_StopAbandonsQueuedJobs(t *testing.T) {
	g := newGate("first")
	f := newFixture(t, Config{Workers: 1}, g, nil)

	f.enqueue(t, "first", "x", "idx", "r", PriorityLow)
	require.Equal(t, "first", <-g.started)
	f.enqueue(t, "second", "x", "idx", "r", PriorityLow)
	f.enqueue(t, "third", "x", "idx", "r", PriorityLow)

	// When: stopping while the first job runs
	stopped := make(chan error, 1)
	go func() { stopped <- f.m.Stop() }()
	require.Eventually(t, func() bool { return len(f.m.Status()) == 1 }, 5*time.Second, 5*time.Millisecond)
	g.open("first")
	require.NoError(t, <-stopped)

	// Then: the running job finished, the queued ones were abandoned
	ctx := context.Background()
	done, err := f.log.List(ctx, joblog.Filter{Outcome: joblog.OutcomeDone})
	require.NoError(t, err)
	assert.Len(t, done, 1)
	abandoned, err := f.log.List(ctx, joblog.Filter{Outcome: joblog.OutcomeAbandoned})
	require.NoError(t, err)
	assert.Len(t, abandoned, 2)
	for _, r := range abandoned {
		assert.Equal(t, amerrors.ErrCodeSchedulerStopped, r.ErrorCode)
	}
}

func TestManager_DrainOnStopRunsQueuedJobs(t *testing.T) {
	g := newGate("first")
	f := newFixture(t, Config{Workers: 1, DrainOnStop: true}, g, nil)

	f.enqueue(t, "first", "x", "idx", "r", PriorityLow)
	require.Equal(t, "first", <-g.started)
	f.enqueue(t, "second", "x", "idx", "r", PriorityLow)

	stopped := make(chan error, 1)
	go func() { stopped <- f.m.Stop() }()
	g.open("first")
	require.NoError(t, <-stopped)

	done, err := f.log.List(context.Background(), joblog.Filter{Outcome: joblog.OutcomeDone})
	require.NoError(t, err)
	assert.Len(t, done, 2)
}

func TestManager_RejectsWhenNotRunning(t *testing.T) {
	m, err := NewManager(Config{}, Deps{Fetcher: content.NewMemoryFetcher(), Transformer: transform.TransformerFunc(toXML)})
	require.NoError(t, err)
	idx := &indexio.Index{ID: "idx"}
	id := content.ID{Type: content.TypeFile, Key: "k"}

	// Given: not started
	_, err = m.Index(id, idx, textConfig(), "r", PriorityLow, nil)
	assert.ErrorIs(t, err, amerrors.ErrSchedulerStopped)

	// When: started then stopped
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())

	// Then
	_, err = m.Index(id, idx, textConfig(), "r", PriorityLow, nil)
	assert.ErrorIs(t, err, amerrors.ErrSchedulerStopped)
	_, err = m.Query(context.Background(), idx, query.NewGeneric(nil), query.Options{})
	assert.ErrorIs(t, err, amerrors.ErrSchedulerStopped)
	assert.ErrorIs(t, m.Start(context.Background()), amerrors.ErrSchedulerStopped)
}

func TestManager_ValidatesInput(t *testing.T) {
	_, err := NewManager(Config{}, Deps{})
	assert.ErrorIs(t, err, amerrors.ErrInvalidInput)

	f := newFixture(t, Config{}, nil, nil)
	id := content.ID{Type: content.TypeFile, Key: "k"}
	_, err = f.m.Index(id, nil, f.cfg, "r", PriorityLow, nil)
	assert.ErrorIs(t, err, amerrors.ErrInvalidInput)
	_, err = f.m.Index(id, &indexio.Index{ID: "idx"}, nil, "r", PriorityLow, nil)
	assert.ErrorIs(t, err, amerrors.ErrInvalidInput)
}

func TestManager_PoolKeepsIndexesSearchable(t *testing.T) {
	p := pool.New(2, nil)
	f := newFixture(t, Config{Workers: 3}, nil, p)

	for i := 0; i < 6; i++ {
		f.enqueue(t, fmt.Sprintf("k%d", i), "x", fmt.Sprintf("idx-%d", i), "r", PriorityLow)
	}
	wait(t, f.m)

	for round := 0; round < 2; round++ {
		for i := 0; i < 6; i++ {
			assert.Equal(t, uint64(1), total(t, f.m, fmt.Sprintf("idx-%d", i), query.NewGeneric(nil)))
		}
	}
	f.m.SetMaxOpenedIndexes(1)
	f.m.CloseOldReaders()
	assert.LessOrEqual(t, p.OpenCount(), 1)
	assert.Equal(t, uint64(1), total(t, f.m, "idx-0", query.NewGeneric(nil)))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)
	p, err = ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityLow, p)
	_, err = ParsePriority("urgent")
	assert.Error(t, err)
}
