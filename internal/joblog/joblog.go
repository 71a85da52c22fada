// Package joblog records the outcome of every finished index job.
package joblog

import (
	"context"
	"sync"
	"time"
)

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// Record is one finished job.
type Record struct {
	JobID       string    `json:"job_id"`
	ContentType string    `json:"content_type"`
	ContentKey  string    `json:"content_key"`
	IndexID     string    `json:"index_id"`
	Requester   string    `json:"requester"`
	Priority    string    `json:"priority"`
	Outcome     Outcome   `json:"outcome"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Message     string    `json:"message,omitempty"`
	Created     time.Time `json:"created"`
	Finished    time.Time `json:"finished"`
}

// Filter selects records. Zero fields match everything; Limit keeps the
// most recent records.
type Filter struct {
	IndexID   string
	Requester string
	Outcome   Outcome
	Limit     int
}

func (f Filter) match(r Record) bool {
	return (f.IndexID == "" || f.IndexID == r.IndexID) &&
		(f.Requester == "" || f.Requester == r.Requester) &&
		(f.Outcome == "" || f.Outcome == r.Outcome)
}

// Store persists records. Implementations are safe for concurrent use.
type Store interface {
	Append(ctx context.Context, r Record) error
	// List returns matching records oldest first.
	List(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}

// DefaultMemoryCapacity bounds a MemoryStore created with capacity <= 0.
const DefaultMemoryCapacity = 10000

// MemoryStore keeps the most recent records in memory.
type MemoryStore struct {
	mu       sync.Mutex
	records  []Record
	capacity int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding at most capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Append implements Store. The oldest record is dropped when full.
func (m *MemoryStore) Append(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) >= m.capacity {
		copy(m.records, m.records[1:])
		m.records = m.records[:len(m.records)-1]
	}
	m.records = append(m.records, r)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }
