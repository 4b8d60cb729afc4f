package fetcher

import (
	"sort"
	"sync"

	"github.com/newthinker/quarry/internal/core"
)

// Registry manages fetcher plugins keyed by canonical source name
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewRegistry creates a new fetcher registry
func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[string]Fetcher),
	}
}

// Register adds a fetcher to the registry, replacing any previous one with the same source name
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[core.NormalizeSource(f.Info().SourceName)] = f
}

// Get retrieves a fetcher by source name
func (r *Registry) Get(source string) (Fetcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fetchers[core.NormalizeSource(source)]
	return f, ok
}

// Lookup returns the fetcher for source only if it can fetch on demand and supports interval.
func (r *Registry) Lookup(source string, interval core.Interval) (Fetcher, bool) {
	f, ok := r.Get(source)
	if !ok {
		return nil, false
	}
	info := f.Info()
	if !info.CanFetchOnDemand || !info.Supports(interval) {
		return nil, false
	}
	return f, true
}

// List returns the info of every registered fetcher sorted by source name
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		result = append(result, f.Info())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SourceName < result[j].SourceName })
	return result
}
