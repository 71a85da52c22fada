// Package pool bounds how many index readers are open at once.
//
// Controllers register themselves with Touch whenever they hand out a
// reader. When more than MaxOpened readers are registered, the least
// recently touched ones are asked to close their reader. Closing a reader
// never destroys the controller: its next read reopens one.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amanidx/internal/bucket"
	"github.com/Aman-CERP/amanidx/internal/logging"
	"github.com/Aman-CERP/amanidx/internal/metrics"
)

// DefaultMaxOpened is the default limit on open readers.
const DefaultMaxOpened = 100

// Reader is something holding an open index reader.
type Reader interface {
	// CloseReader closes the open reader, keeping any writer state.
	CloseReader() error
	// ReaderName identifies the reader in logs.
	ReaderName() string
}

// Pool tracks open readers. Create one with New; the zero value is not usable.
type Pool struct {
	logger *slog.Logger

	mu      sync.Mutex
	max     int
	counter int64
	weights map[Reader]int64

	// serialises eviction passes
	evictMu sync.Mutex

	stopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a pool allowing maxOpened open readers (DefaultMaxOpened if below 1).
func New(maxOpened int, logger *slog.Logger) *Pool {
	if maxOpened < 1 {
		maxOpened = DefaultMaxOpened
	}
	return &Pool{
		logger:  logging.OrDiscard(logger),
		max:     maxOpened,
		weights: make(map[Reader]int64),
	}
}

// Touch records an access to r, registering it if needed. If the pool is
// then over its limit an eviction pass runs on the calling goroutine, so
// callers must not hold locks that CloseReader needs.
func (p *Pool) Touch(r Reader) {
	p.mu.Lock()
	p.counter++
	p.weights[r] = p.counter
	over := len(p.weights) > p.max
	metrics.PoolOpenReaders.Set(float64(len(p.weights)))
	p.mu.Unlock()

	if over {
		p.CloseOldReaders()
	}
}

// Remove forgets r without closing it.
func (p *Pool) Remove(r Reader) {
	p.mu.Lock()
	delete(p.weights, r)
	metrics.PoolOpenReaders.Set(float64(len(p.weights)))
	p.mu.Unlock()
}

// Contains reports whether r is registered as open.
func (p *Pool) Contains(r Reader) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.weights[r]
	return ok
}

// OpenCount returns the number of registered readers.
func (p *Pool) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.weights)
}

// MaxOpened returns the current limit.
func (p *Pool) MaxOpened() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// SetMaxOpened changes the limit and evicts immediately if it shrank below
// the open count.
func (p *Pool) SetMaxOpened(n int) {
	if n < 1 {
		n = 1
	}
	p.mu.Lock()
	p.max = n
	over := len(p.weights) > n
	p.mu.Unlock()

	p.logger.Info("pool_limit_changed", slog.Int("max_opened", n))
	if over {
		p.CloseOldReaders()
	}
}

// CloseOldReaders keeps the MaxOpened most recently touched readers and
// closes the others. Ranking happens under the pool lock; closing does not.
// A reader that fails to close stays registered and is retried next pass.
func (p *Pool) CloseOldReaders() {
	p.evictMu.Lock()
	defer p.evictMu.Unlock()

	losers := p.rank()
	if len(losers) == 0 {
		return
	}

	var failed []loser
	for _, l := range losers {
		if err := l.reader.CloseReader(); err != nil {
			p.logger.Warn("pool_close_reader_failed",
				slog.String("reader", l.reader.ReaderName()),
				slog.String("error", err.Error()))
			metrics.PoolCloseFailuresTotal.Inc()
			failed = append(failed, l)
			continue
		}
		metrics.PoolEvictionsTotal.Inc()
		p.logger.Debug("pool_reader_evicted", slog.String("reader", l.reader.ReaderName()))
	}

	if len(failed) > 0 {
		p.mu.Lock()
		for _, l := range failed {
			// a newer Touch wins over the old weight
			if _, ok := p.weights[l.reader]; !ok {
				p.weights[l.reader] = l.weight
			}
		}
		metrics.PoolOpenReaders.Set(float64(len(p.weights)))
		p.mu.Unlock()
	}
}

type loser struct {
	reader Reader
	weight int64
}

// rank drops every reader outside the top MaxOpened from the registry and
// returns them.
func (p *Pool) rank() []loser {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.weights) <= p.max {
		return nil
	}

	keep := bucket.New[Reader](p.max)
	for r, w := range p.weights {
		keep.Add(r, w)
	}

	var losers []loser
	for r, w := range p.weights {
		if !keep.Contains(r) {
			losers = append(losers, loser{reader: r, weight: w})
			delete(p.weights, r)
		}
	}
	metrics.PoolOpenReaders.Set(float64(len(p.weights)))
	return losers
}

// Start runs CloseOldReaders every interval until Stop or ctx is done.
// Calling Start on a started pool does nothing.
func (p *Pool) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	p.stopMu.Lock()
	defer p.stopMu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.CloseOldReaders()
			}
		}
	}(p.done)
}

// Stop ends the periodic pass started by Start and waits for it to exit.
// Registered readers are left as they are.
func (p *Pool) Stop() {
	p.stopMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.stopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
