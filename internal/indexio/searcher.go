package indexio

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/collector"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/metrics"
)

// Searcher is a reference-counted snapshot of an index at one commit.
// Its content never changes; documents committed later are only visible
// to searchers booked after the commit.
type Searcher struct {
	owner      *Controller
	generation uint64
	reader     index.IndexReader
	mapping    mapping.IndexMapping

	// guarded by owner.readMu
	refs    int
	current bool

	closed atomic.Bool
}

// Hit is one matching document.
type Hit struct {
	ID    string
	Score float64
}

// Hits is the top of a result list and the total number of matches.
type Hits struct {
	Total uint64
	Hits  []Hit
}

// Generation returns the commit generation the snapshot was taken at.
func (s *Searcher) Generation() uint64 { return s.generation }

// IndexID returns the id of the index the snapshot belongs to.
func (s *Searcher) IndexID() string { return s.owner.index.ID }

// DocCount returns the number of live documents in the snapshot.
func (s *Searcher) DocCount() (uint64, error) {
	if s.closed.Load() {
		return 0, closedSearcher()
	}
	n, err := s.reader.DocCount()
	if err != nil {
		return 0, amerrors.New(amerrors.ErrCodeIOFailure, "failed to count documents", err)
	}
	return n, nil
}

// Search runs q on the snapshot and returns up to size hits after skipping
// skip, ordered by order.
func (s *Searcher) Search(ctx context.Context, q bquery.Query, size, skip int, order search.SortOrder) (*Hits, error) {
	if s.closed.Load() {
		return nil, closedSearcher()
	}
	if size < 1 {
		size = 1
	}
	if skip < 0 {
		skip = 0
	}
	if len(order) == 0 {
		order = search.SortOrder{&search.SortScore{Desc: true}}
	}

	searcher, err := q.Searcher(ctx, s.reader, s.mapping, search.SearcherOptions{})
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, amerrors.New(amerrors.ErrCodeInvalidQuery, "query cannot run", err)
	}
	defer func() { _ = searcher.Close() }()

	coll := collector.NewTopNCollector(size, skip, order)
	if err := coll.Collect(ctx, searcher, s.reader); err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, amerrors.New(amerrors.ErrCodeSearchFailed, "search failed", err)
	}

	matches := coll.Results()
	hits := &Hits{Total: coll.Total(), Hits: make([]Hit, 0, len(matches))}
	for _, m := range matches {
		hits.Hits = append(hits.Hits, Hit{ID: m.ID, Score: m.Score})
	}
	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	return hits, nil
}

// Document returns the stored fields of a document in the snapshot.
func (s *Searcher) Document(id string) (map[string][]string, error) {
	if s.closed.Load() {
		return nil, closedSearcher()
	}
	doc, err := s.reader.Document(id)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIOFailure, "failed to load document", err).
			WithDetail("id", id)
	}
	if doc == nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "no such document", nil).
			WithDetail("id", id)
	}

	fields := make(map[string][]string)
	doc.VisitFields(func(f index.Field) {
		if f.Name() == "_id" {
			return
		}
		fields[f.Name()] = append(fields[f.Name()], string(f.Value()))
	})
	return fields, nil
}

func (s *Searcher) close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.owner.logger.Debug("searcher_closed", slog.Uint64("generation", s.generation))
	if err := s.reader.Close(); err != nil {
		return amerrors.New(amerrors.ErrCodeIOFailure, "failed to close reader", err)
	}
	return nil
}

func closedSearcher() error {
	return amerrors.New(amerrors.ErrCodeInvalidSearcherHandle, "searcher is closed", nil)
}
