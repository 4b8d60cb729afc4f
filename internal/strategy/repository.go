package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/quarry/internal/core"
	"go.uber.org/zap"
)

// Repository loads and stores strategy records.
type Repository interface {
	Get(ctx context.Context, id string) (Strategy, error)
	List(ctx context.Context) ([]Strategy, error)
	Save(ctx context.Context, s Strategy) error
}

// MemoryRepository keeps strategies in a map. Safe for concurrent use.
type MemoryRepository struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository(logger ...*zap.Logger) *MemoryRepository {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &MemoryRepository{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Get returns a copy of the stored strategy, or ErrNotFound.
func (r *MemoryRepository) Get(_ context.Context, id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[id]
	if !ok {
		return Strategy{}, notFound(id)
	}
	s.Config = s.Config.Clone()
	return s, nil
}

// List returns all strategies ordered by ID.
func (r *MemoryRepository) List(_ context.Context) ([]Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		s.Config = s.Config.Clone()
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save inserts or replaces a strategy by ID.
func (r *MemoryRepository) Save(_ context.Context, s Strategy) error {
	if s.ID == "" {
		return core.Validationf("strategy id is required")
	}
	s.Config = s.Config.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.ID] = s
	r.logger.Debug("strategy saved", zap.String("id", s.ID), zap.Bool("configured", s.IsConfigured()))
	return nil
}

// Seed saves every strategy, stopping at the first failure.
func Seed(ctx context.Context, repo Repository, strategies []Strategy) error {
	for _, s := range strategies {
		if err := repo.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func notFound(id string) error {
	return core.WrapError(core.ErrNotFound, fmt.Errorf("strategy %q", id))
}
