package content

import (
	"context"
	"sync"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// MemoryFetcher serves content from memory. Used by embedders that already
// hold the payload, and by tests.
type MemoryFetcher struct {
	mu    sync.RWMutex
	items map[ID]*Content
}

// NewMemoryFetcher returns an empty fetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{items: make(map[ID]*Content)}
}

// Put stores c under c.ID, replacing any previous value.
func (m *MemoryFetcher) Put(c *Content) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[c.ID] = c
}

// Remove forgets id.
func (m *MemoryFetcher) Remove(id ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
}

// Fetch returns a copy of the stored content.
func (m *MemoryFetcher) Fetch(ctx context.Context, id ID) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	c, ok := m.items[id]
	m.mu.RUnlock()
	if !ok {
		return nil, amerrors.New(amerrors.ErrCodeContentNotFound, "content not found: "+id.String(), nil).
			WithDetail("content", id.String())
	}
	cp := *c
	return &cp, nil
}
