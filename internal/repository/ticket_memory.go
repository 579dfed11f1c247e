package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/community-services/internal/domain"
)

type ticketEntry struct {
	mu     sync.Mutex
	ticket *domain.Ticket
}

type memoryTicketRepository struct {
	mu      sync.RWMutex
	entries map[string]*ticketEntry
}

// NewMemoryTicketRepository returns a process-local ticket store. Writes to
// one ticket are serialized by a per-ticket lock; distinct tickets proceed
// in parallel.
func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{entries: make(map[string]*ticketEntry)}
}

func (r *memoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[ticket.ID]; exists {
		return ErrDuplicate
	}
	r.entries[ticket.ID] = &ticketEntry{ticket: ticket.Clone()}
	return nil
}

func (r *memoryTicketRepository) entry(id string) (*ticketEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (r *memoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticket.Clone(), nil
}

func (r *memoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	entries := make([]*ticketEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var result []domain.Ticket
	for _, e := range entries {
		e.mu.Lock()
		t := e.ticket.Clone()
		e.mu.Unlock()
		if matchesTicket(t, filter) {
			result = append(result, *t)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *memoryTicketRepository) Update(ctx context.Context, id string, mutate TicketMutator) (*domain.Ticket, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := e.ticket.Clone()
	if err := mutate(working); err != nil {
		return nil, err
	}
	working.Version = e.ticket.Version + 1
	e.ticket = working
	return working.Clone(), nil
}

func (r *memoryTicketRepository) AppendComment(_ context.Context, id string, comment domain.Comment) error {
	e, ok := r.entry(id)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.ticket.Clone()
	working.Comments = append(working.Comments, comment)
	working.UpdatedAt = comment.CreatedAt
	working.Version++
	e.ticket = working
	return nil
}

func matchesTicket(t *domain.Ticket, filter TicketFilter) bool {
	if filter.Category != nil && t.Category != *filter.Category {
		return false
	}
	if filter.Status != nil && t.Status != *filter.Status {
		return false
	}
	if filter.Submitter != nil && t.Submitter != *filter.Submitter {
		return false
	}
	if filter.Assignee != nil && t.AssigneeName() != *filter.Assignee {
		return false
	}
	if filter.HasWorkflow && t.Workflow == nil {
		return false
	}
	return true
}
