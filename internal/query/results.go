package query

import (
	"context"
	"sync"

	"github.com/Aman-CERP/amanidx/internal/indexio"
)

// DefaultSize is the number of hits kept when Options.Size is unset.
const DefaultSize = 1000

// Options bound the hits kept in a result set.
type Options struct {
	Size int
	Skip int
}

// Booker hands out and takes back searchers. *indexio.Controller implements it.
type Booker interface {
	BookSearcher(ctx context.Context) (*indexio.Searcher, error)
	ReleaseSearcher(s *indexio.Searcher) error
}

// Results is a page of hits bound to the snapshot they came from. The
// booking is held until Terminate.
type Results struct {
	query    Query
	booker   Booker
	searcher *indexio.Searcher
	hits     *indexio.Hits

	once    sync.Once
	termErr error
}

// Run books the current searcher of b and runs q on it. On success the
// caller owns the booking and must call Terminate.
func Run(ctx context.Context, b Booker, q Query, opts Options) (*Results, error) {
	bq, err := q.Bleve()
	if err != nil {
		return nil, err
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}

	s, err := b.BookSearcher(ctx)
	if err != nil {
		return nil, err
	}
	hits, err := s.Search(ctx, bq, opts.Size, opts.Skip, sortOrder(q.SortOrder()))
	if err != nil {
		_ = b.ReleaseSearcher(s)
		return nil, err
	}
	return &Results{query: q, booker: b, searcher: s, hits: hits}, nil
}

// Query returns the query that produced the results.
func (r *Results) Query() Query { return r.query }

// Total returns the number of matching documents, beyond the kept page too.
func (r *Results) Total() uint64 { return r.hits.Total }

// Len returns the number of hits kept.
func (r *Results) Len() int { return len(r.hits.Hits) }

// Hit returns the i-th kept hit.
func (r *Results) Hit(i int) indexio.Hit { return r.hits.Hits[i] }

// Generation returns the commit generation of the snapshot searched.
func (r *Results) Generation() uint64 { return r.searcher.Generation() }

// Document returns the stored fields of the i-th hit.
func (r *Results) Document(i int) (map[string][]string, error) {
	return r.searcher.Document(r.hits.Hits[i].ID)
}

// Terminate releases the searcher booking. Only the first call has an effect.
func (r *Results) Terminate() error {
	r.once.Do(func() {
		r.termErr = r.booker.ReleaseSearcher(r.searcher)
	})
	return r.termErr
}
