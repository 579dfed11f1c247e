package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/community-services/internal/domain"
)

type memoryWorkflowRepository struct {
	mu   sync.RWMutex
	defs map[string]*domain.WorkflowDefinition
}

// NewMemoryWorkflowRepository returns a process-local workflow store.
func NewMemoryWorkflowRepository() WorkflowRepository {
	return &memoryWorkflowRepository{defs: make(map[string]*domain.WorkflowDefinition)}
}

func (r *memoryWorkflowRepository) Create(_ context.Context, def *domain.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return ErrDuplicate
	}
	if def.Status == domain.WorkflowStatusActive && r.activeLocked(def.Category) != nil {
		return ErrDuplicate
	}
	r.defs[def.ID] = def.Clone()
	return nil
}

func (r *memoryWorkflowRepository) GetByID(_ context.Context, id string) (*domain.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def.Clone(), nil
}

func (r *memoryWorkflowRepository) GetActiveByCategory(_ context.Context, category domain.Category) (*domain.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def := r.activeLocked(category); def != nil {
		return def.Clone(), nil
	}
	return nil, ErrNotFound
}

func (r *memoryWorkflowRepository) List(_ context.Context, filter WorkflowFilter) ([]domain.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.WorkflowDefinition
	for _, def := range r.defs {
		if filter.Category != nil && def.Category != *filter.Category {
			continue
		}
		if filter.Status != nil && def.Status != *filter.Status {
			continue
		}
		result = append(result, *def.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *memoryWorkflowRepository) Update(_ context.Context, id string, mutate WorkflowMutator) (*domain.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	if working.Status == domain.WorkflowStatusActive {
		if other := r.activeLocked(working.Category); other != nil && other.ID != id {
			return nil, ErrDuplicate
		}
	}
	r.defs[id] = working
	return working.Clone(), nil
}

func (r *memoryWorkflowRepository) Activate(_ context.Context, id string, mutate WorkflowMutator) (*domain.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	if other := r.activeLocked(working.Category); other != nil && other.ID != id {
		demoted := other.Clone()
		demoted.Status = domain.WorkflowStatusDraft
		demoted.UpdatedAt = working.UpdatedAt
		r.defs[other.ID] = demoted
	}
	working.Status = domain.WorkflowStatusActive
	r.defs[id] = working
	return working.Clone(), nil
}

func (r *memoryWorkflowRepository) activeLocked(category domain.Category) *domain.WorkflowDefinition {
	for _, def := range r.defs {
		if def.Category == category && def.Status == domain.WorkflowStatusActive {
			return def
		}
	}
	return nil
}
