package result

import (
	"context"
	"sync"

	"github.com/newthinker/quarry/internal/backtest"
)

// MemoryStore keeps the most recent results in memory.
type MemoryStore struct {
	results []*backtest.Result
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryStore creates a store that retains at most maxSize results.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &MemoryStore{
		results: make([]*backtest.Result, 0, maxSize),
		maxSize: maxSize,
	}
}

// Save appends a result, evicting the oldest beyond capacity.
func (m *MemoryStore) Save(ctx context.Context, r *backtest.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	m.results = append(m.results, &cp)
	if len(m.results) > m.maxSize {
		m.results = m.results[len(m.results)-m.maxSize:]
	}
	return nil
}

// Get retrieves a result by ID.
func (m *MemoryStore) Get(ctx context.Context, id string) (*backtest.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.results {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, notFound(id)
}

// List returns matching summaries, newest first.
func (m *MemoryStore) List(ctx context.Context, filter backtest.ResultFilter) ([]backtest.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []backtest.Summary{}
	for i := len(m.results) - 1; i >= 0; i-- {
		s := m.results[i].Summary()
		if matches(s, filter) {
			out = append(out, s)
		}
	}
	return page(out, filter), nil
}
